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

package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractKindEnum(t *testing.T) {
	v, err := ContractKindTaskboard.Enum().Validate()
	require.NoError(t, err)
	assert.Equal(t, ContractKindTaskboard, v)

	_, err = ContractKind("widget").Enum().Validate()
	assert.Regexp(t, "OI010006", err)
}

func TestTaskStatusDefaultAndTerminal(t *testing.T) {
	v, err := TaskStatus("").Enum().Validate()
	require.NoError(t, err)
	assert.Equal(t, TaskStatusOpen, v)

	assert.False(t, TaskStatusOpen.Terminal())
	assert.False(t, TaskStatusSubmitted.Terminal())
	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusCancelled.Terminal())
}

func TestRoleKindForHatType(t *testing.T) {
	assert.Equal(t, RoleKindCreator, RoleKindForHatType(0))
	assert.Equal(t, RoleKindMember, RoleKindForHatType(1))
	assert.Equal(t, RoleKindMember, RoleKindForHatType(2))
}
