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
	"encoding/hex"
	"strings"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/orgstream-labs/orgindexer/internal/msgs"
)

// Bytes32 is a 32 byte value, formatted in JSON with an 0x prefix, and stored
// in the DB as a 64 character hex string
type Bytes32 [32]byte

var zeroBytes32 = Bytes32{}

func ParseBytes32(ctx context.Context, s string) (*Bytes32, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, i18n.NewError(ctx, msgs.MsgTypesInvalidHex, err)
	}
	if len(b) != 32 {
		return nil, i18n.NewError(ctx, msgs.MsgTypesValueInvalidBytes32, len(b))
	}
	var b32 Bytes32
	copy(b32[:], b)
	return &b32, nil
}

func MustParseBytes32(s string) Bytes32 {
	b32, err := ParseBytes32(context.Background(), s)
	if err != nil {
		panic(err)
	}
	return *b32
}

// NewBytes32FromSlice pads/truncates silently - use ParseBytes32 for validation
func NewBytes32FromSlice(b []byte) Bytes32 {
	var b32 Bytes32
	copy(b32[:], b)
	return b32
}

func (id Bytes32) Bytes() []byte {
	return id[:]
}

func (id *Bytes32) IsZero() bool {
	return id == nil || *id == zeroBytes32
}

func (id *Bytes32) Equals(id2 *Bytes32) bool {
	if id == nil && id2 == nil {
		return true
	}
	if id == nil || id2 == nil {
		return false
	}
	return *id == *id2
}

// Natural string representation is HexString0xPrefix()
func (id Bytes32) String() string {
	return id.HexString0xPrefix()
}

// JSON representation is lower case hex, with 0x prefix
func (id Bytes32) MarshalText() ([]byte, error) {
	return ([]byte)(id.HexString0xPrefix()), nil
}

// Parses with/without 0x in any case
func (id *Bytes32) UnmarshalText(text []byte) error {
	pID, err := ParseBytes32(context.Background(), string(text))
	if err != nil {
		return err
	}
	*id = *pID
	return nil
}

func (id Bytes32) HexString0xPrefix() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id Bytes32) HexString() string {
	return hex.EncodeToString(id[:])
}

func (id Bytes32) Value() (driver.Value, error) {
	return id.HexString(), nil // no 0x prefix
}

func (id *Bytes32) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		b32, err := ParseBytes32(context.Background(), v)
		if err != nil {
			return err
		}
		*id = *b32
		return nil
	case []byte:
		switch len(v) {
		case 32:
			copy((*id)[:], v)
		case 64, 66 /* with 0x */ :
			b32, err := ParseBytes32(context.Background(), (string)(v))
			if err != nil {
				return err
			}
			*id = *b32
		default:
			return i18n.NewError(context.Background(), msgs.MsgTypesScanFail, src, id)
		}
		return nil
	default:
		return i18n.NewError(context.Background(), msgs.MsgTypesScanFail, src, id)
	}
}
