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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEthAddress(t *testing.T) {

	_, err := ParseEthAddress("wrong")
	assert.Regexp(t, "bad address", err)

	a, err := ParseEthAddress("0xacA6D8Ba6BFf0fa5c8a06A58368CB6097285d5c5")
	require.NoError(t, err)
	assert.Equal(t, "0xaca6d8ba6bff0fa5c8a06a58368cb6097285d5c5", a.String())
	assert.Equal(t, "0xacA6D8Ba6BFf0fa5c8a06A58368CB6097285d5c5", a.Checksummed())
	assert.False(t, a.IsZero())

	var aNil *EthAddress
	assert.True(t, aNil.IsZero())
	assert.True(t, aNil.Equals(nil))
	assert.False(t, aNil.Equals(a))

	a2 := &EthAddress{}
	err = a2.Scan(a.String())
	require.NoError(t, err)
	assert.True(t, a.Equals(a2))

	v2, err := a2.Value()
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(a.String(), "0x"), v2)

	a3 := &EthAddress{}
	err = a3.Scan(([]byte)(a[:]))
	require.NoError(t, err)
	assert.True(t, a.Equals(a3))

	a4 := &EthAddress{}
	err = a4.Scan(false)
	assert.Regexp(t, "OI010004", err)
}

func TestBytes32(t *testing.T) {

	_, err := ParseBytes32(context.Background(), "0xfeedbeef")
	assert.Regexp(t, "OI010003", err)

	_, err = ParseBytes32(context.Background(), "!wrong")
	assert.Regexp(t, "OI010000", err)

	b := MustParseBytes32("0x223d6b011270c7ac6a3d4f6479f45d1bc2e399ec0d998ca9427f37999b52ab10")
	assert.Equal(t, "0x223d6b011270c7ac6a3d4f6479f45d1bc2e399ec0d998ca9427f37999b52ab10", b.String())
	assert.False(t, b.IsZero())
	assert.True(t, (&Bytes32{}).IsZero())

	var b2 Bytes32
	err = b2.Scan(b.HexString())
	require.NoError(t, err)
	assert.True(t, b.Equals(&b2))

	v, err := b2.Value()
	require.NoError(t, err)
	assert.Equal(t, b.HexString(), v)

	var b3 Bytes32
	err = b3.Scan(b[:])
	require.NoError(t, err)
	assert.True(t, b.Equals(&b3))

	var b4 Bytes32
	err = b4.Scan(12345)
	assert.Regexp(t, "OI010005", err)

	jb, err := json.Marshal(map[string]Bytes32{"digest": b})
	require.NoError(t, err)
	var back map[string]Bytes32
	err = json.Unmarshal(jb, &back)
	require.NoError(t, err)
	assert.Equal(t, b, back["digest"])
}

func TestHexUint64(t *testing.T) {

	_, err := ParseHexUint64(context.Background(), "!wrong")
	assert.Regexp(t, "OI010001", err)

	_, err = ParseHexUint64(context.Background(), "0x10000000000000000")
	assert.Regexp(t, "OI010002", err)

	h := MustParseHexUint64("0x2a")
	assert.Equal(t, uint64(42), h.Uint64())
	assert.Equal(t, "0x2a", h.String())

	var h2 HexUint64
	err = json.Unmarshal([]byte(`"42"`), &h2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h2.Uint64())

	err = json.Unmarshal([]byte(`42`), &h2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h2.Uint64())

	err = json.Unmarshal([]byte(`{}`), &h2)
	assert.Regexp(t, "OI010001", err)

	jb, err := json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `"0x2a"`, string(jb))
}

func TestTimestamp(t *testing.T) {

	_, err := ParseTimeString("not a time")
	assert.Regexp(t, "OI010007", err)

	ts := MustParseTimeString("2024-11-19T09:01:00Z")
	assert.Equal(t, "2024-11-19T09:01:00Z", ts.String())

	// seconds resolution unix time normalizes to nanos
	tsUnix := TimestampFromUnix(1732006860)
	assert.Equal(t, ts.UnixNano(), tsUnix.UnixNano())

	var ts2 Timestamp
	require.NoError(t, ts2.Scan(int64(ts)))
	assert.Equal(t, ts, ts2)
	require.NoError(t, ts2.Scan(nil))
	assert.Zero(t, ts2)
	require.NoError(t, ts2.Scan("2024-11-19T09:01:00Z"))
	assert.Equal(t, ts, ts2)
	assert.Regexp(t, "OI010005", ts2.Scan(false))

	v, err := ts.Value()
	require.NoError(t, err)
	assert.Equal(t, ts.UnixNano(), v)

	jb, err := json.Marshal(&ts)
	require.NoError(t, err)
	var ts3 Timestamp
	require.NoError(t, json.Unmarshal(jb, &ts3))
	assert.Equal(t, ts, ts3)
}

func TestRawJSON(t *testing.T) {

	var j RawJSON
	assert.True(t, j.IsNil())
	assert.Equal(t, "null", j.String())
	v, err := j.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	j = JSONString(map[string]string{"name": "treasury"})
	assert.JSONEq(t, `{"name":"treasury"}`, j.String())

	var j2 RawJSON
	require.NoError(t, j2.Scan(j.String()))
	assert.JSONEq(t, j.String(), j2.String())
	require.NoError(t, j2.Scan([]byte(j)))
	assert.JSONEq(t, j.String(), j2.String())
	require.NoError(t, j2.Scan(nil))
	assert.True(t, j2.IsNil())
	assert.Regexp(t, "OI010005", j2.Scan(42))
}

func TestValidateSafeCharsStartEndAlphaNum(t *testing.T) {
	require.NoError(t, ValidateSafeCharsStartEndAlphaNum(context.Background(), "org-events.1", DefaultNameMaxLen, "name"))
	assert.Regexp(t, "OI010008", ValidateSafeCharsStartEndAlphaNum(context.Background(), "-bad", DefaultNameMaxLen, "name"))
	assert.Regexp(t, "OI010008", ValidateSafeCharsStartEndAlphaNum(context.Background(), "", DefaultNameMaxLen, "name"))
	assert.Regexp(t, "OI010008", ValidateSafeCharsStartEndAlphaNum(context.Background(), strings.Repeat("x", 129), DefaultNameMaxLen, "name"))
}
