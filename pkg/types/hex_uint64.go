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
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/orgstream-labs/orgindexer/internal/msgs"
)

// HexUint64 is an unsigned integer that is serialized in JSON as hex,
// accepting hex or decimal strings, or JSON numbers, when parsing.
// Decoded event parameters use this for local IDs, hat IDs and amounts
// that fit 64 bits.
type HexUint64 uint64

func ParseHexUint64(ctx context.Context, s string) (HexUint64, error) {
	bi, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return 0, i18n.NewError(ctx, msgs.MsgTypesInvalidHexInteger, s)
	}
	if !bi.IsUint64() {
		return 0, i18n.NewError(ctx, msgs.MsgTypesInvalidUint64, s)
	}
	return HexUint64(bi.Uint64()), nil
}

func MustParseHexUint64(s string) HexUint64 {
	hi, err := ParseHexUint64(context.Background(), s)
	if err != nil {
		panic(err)
	}
	return hi
}

func (hi HexUint64) Uint64() uint64 {
	return uint64(hi)
}

func (hi HexUint64) String() string {
	return hi.HexString0xPrefix()
}

func (hi HexUint64) HexString0xPrefix() string {
	return fmt.Sprintf("0x%x", uint64(hi))
}

func (hi HexUint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(hi.HexString0xPrefix())
}

func (hi *HexUint64) UnmarshalJSON(b []byte) error {
	var iVal interface{}
	err := json.Unmarshal(b, &iVal)
	if err != nil {
		return err
	}
	switch v := iVal.(type) {
	case string:
		parsed, err := ParseHexUint64(context.Background(), v)
		if err != nil {
			return err
		}
		*hi = parsed
		return nil
	case float64:
		// JSON numbers are only safe to 2^53, but the chain-sync layer is
		// expected to use strings above that anyway
		*hi = HexUint64(v)
		return nil
	default:
		return i18n.NewError(context.Background(), msgs.MsgTypesInvalidHexInteger, string(b))
	}
}
