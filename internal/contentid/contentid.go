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

// Package contentid maps on-chain content digests to the content-addressed
// locator strings used to request the bytes from external storage.
package contentid

import (
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

// Multihash header for a sha2-256 digest: function code 0x12, length 0x20.
// Prefixing the raw digest with this header and base58btc-encoding the
// result yields the CIDv0 form ("Qm..."), byte-identical to the network's
// own derivation, so the locator can be used to fetch the same content.
const (
	mhSHA256    = 0x12
	mhLen32     = 0x20
	locatorSize = 2 + 32
)

// DeriveLocator converts a 32-byte content digest to its locator string.
// The all-zero digest means no metadata was set, and returns ok=false so
// the caller must not schedule a fetch at all. A fetch for a locator that
// can never exist would be a permanent failure, not a transient one.
func DeriveLocator(digest types.Bytes32) (string, bool) {
	if digest.IsZero() {
		return "", false
	}
	buf := make([]byte, locatorSize)
	buf[0] = mhSHA256
	buf[1] = mhLen32
	copy(buf[2:], digest.Bytes())
	return base58.Encode(buf), true
}
