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

package types

import (
	"context"
	"database/sql/driver"
	"encoding/json"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/orgstream-labs/orgindexer/internal/msgs"
)

// RawJSON is a byte slice that is JSON, stored in the DB as a string, and
// passed through JSON serialization without re-encoding
type RawJSON []byte

func JSONString(v interface{}) RawJSON {
	b, _ := json.Marshal(v)
	return b
}

func (j RawJSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *RawJSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[0:0], data...)
	return nil
}

func (j RawJSON) String() string {
	if j == nil {
		return "null"
	}
	return (string)(j)
}

func (j RawJSON) IsNil() bool {
	return j == nil
}

func (j RawJSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return (string)(j), nil
}

func (j *RawJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case string:
		*j = ([]byte)(v)
		return nil
	case []byte:
		*j = v
		return nil
	default:
		return i18n.NewError(context.Background(), msgs.MsgTypesScanFail, src, j)
	}
}
