// Copyright © 2025 Orgstream Labs, Inc.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package msgs

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"golang.org/x/text/language"
)

const orgIndexerPrefix = "OI01"

var registered sync.Once
var ffe = func(key, translation string, statusHint ...int) i18n.ErrorMessageKey {
	registered.Do(func() {
		i18n.RegisterPrefix(orgIndexerPrefix, "Org Indexer")
	})
	if !strings.HasPrefix(key, orgIndexerPrefix) {
		panic(fmt.Errorf("must have prefix '%s': %s", orgIndexerPrefix, key))
	}
	return i18n.FFE(language.AmericanEnglish, key, translation, statusHint...)
}

var (
	// Types OI0100XX
	MsgTypesInvalidHex            = ffe("OI010000", "Invalid hex: %s")
	MsgTypesInvalidHexInteger     = ffe("OI010001", "Invalid integer: %s")
	MsgTypesInvalidUint64         = ffe("OI010002", "Integer cannot be converted to uint64 without losing precision: %s")
	MsgTypesValueInvalidBytes32   = ffe("OI010003", "Failed to parse value as 32 byte hex string (parsedBytes=%d)")
	MsgTypesRestoreFailed         = ffe("OI010004", "Failed to restore type '%T' into '%T'")
	MsgTypesScanFail              = ffe("OI010005", "Unable to scan type %T into type %T")
	MsgTypesEnumValueInvalid      = ffe("OI010006", "Value must be one of %s")
	MsgTypesTimeParseFail         = ffe("OI010007", "Cannot parse time as RFC3339, Unix, or UnixNano: '%s'", 400)
	MsgTypesInvalidNameSafeChar   = ffe("OI010008", "Field '%s' must be 1-%d characters, including alphanumerics, dot, dash and underscore, and must start/end in an alphanumeric: %q", 400)

	// Persistence OI0101XX
	MsgPersistenceInvalidType          = ffe("OI010100", "Invalid persistence type: %s")
	MsgPersistenceMissingDSN           = ffe("OI010101", "Missing DSN for database connection")
	MsgPersistenceInitFailed           = ffe("OI010102", "Database init failed")
	MsgPersistenceMigrationFailed      = ffe("OI010103", "Database migration failed")
	MsgPersistenceMissingMigrationDir  = ffe("OI010104", "Missing migration directory for database")
	MsgPersistenceErrorInDBTransaction = ffe("OI010105", "Error in database transaction: %s")

	// Dispatcher OI0102XX
	MsgDispatcherBatchOutOfOrder   = ffe("OI010200", "Event batch is not in canonical order at index %d: block=%d logIndex=%d follows block=%d logIndex=%d")
	MsgDispatcherInvalidStreamName = ffe("OI010201", "Invalid dispatch stream name")
	MsgDispatcherNotStarted        = ffe("OI010202", "Dispatcher is not started")
	MsgDispatcherEventMissingField = ffe("OI010203", "Event at index %d is missing required field %s")

	// Reducers OI0103XX
	MsgReducerUnknownContractKind = ffe("OI010300", "No reducer registered for contract kind '%s'")

	// Reconciliation OI0104XX
	MsgReconcileKeyCollision = ffe("OI010400", "Entity key collision detected in table '%s' for key '%s' - this is a programming error")

	// Content OI0105XX
	MsgContentPopulatorStopped = ffe("OI010500", "Metadata populator has been stopped")

	// Engine/config OI0106XX
	MsgConfigFileReadFailed         = ffe("OI010600", "Failed to read config file %s")
	MsgConfigFileParseFailed        = ffe("OI010601", "Failed to parse config file %s")
	MsgConfigStubPolicyInvalid      = ffe("OI010602", "Invalid stub policy '%s' for entity family '%s' (must be 'stub' or 'drop')")
	MsgConfigMissingRegistryAddress = ffe("OI010603", "Missing registry contract address in configuration")
	MsgConfigStubPolicyUnsupported  = ffe("OI010604", "Stub policy cannot be configured for entity family '%s'")

	// Retry OI0107XX
	MsgContextCanceled = ffe("OI010700", "Context canceled")
)
