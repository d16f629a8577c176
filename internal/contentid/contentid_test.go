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

package contentid

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/orgstream-labs/orgindexer/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestDeriveLocatorZeroDigestIsSentinel(t *testing.T) {
	locator, ok := DeriveLocator(types.Bytes32{})
	assert.False(t, ok)
	assert.Empty(t, locator)
}

func TestDeriveLocatorKnownVector(t *testing.T) {
	// sha256("hello world") wrapped as CIDv0 is a well-known IPFS vector
	digest := types.NewBytes32FromSlice(func() []byte {
		h := sha256.Sum256([]byte("hello world"))
		return h[:]
	}())
	locator, ok := DeriveLocator(digest)
	assert.True(t, ok)
	assert.Equal(t, "Qmf412jQZiuVUtdgnB36FXFX7xg5V6KEbSJ4dpQuhkLyfD", locator)
}

func TestDeriveLocatorDeterministicAndPrefixed(t *testing.T) {
	digest := types.MustParseBytes32("0x0101010101010101010101010101010101010101010101010101010101010101")
	l1, ok1 := DeriveLocator(digest)
	l2, ok2 := DeriveLocator(digest)
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, l1, l2)
	assert.True(t, strings.HasPrefix(l1, "Qm"))
}

func TestDeriveLocatorSharedDigestSharedLocator(t *testing.T) {
	// Content addressing dedupes: any entity referencing the same digest
	// resolves to the same locator
	d := types.MustParseBytes32("0xd2b2f47b1a2c0a74ccbf0ff86b1ea36c6c9bb37bcb0b2a4ad43cf04b67d2973f")
	a, _ := DeriveLocator(d)
	b, _ := DeriveLocator(d)
	assert.Equal(t, a, b)
}
