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

// Package ids derives the deterministic entity keys used throughout the
// entity store. All functions are pure and total. The separator never
// occurs inside a 0x-prefixed hex token, so distinct inputs cannot
// produce colliding keys.
package ids

import (
	"strconv"

	"github.com/orgstream-labs/orgindexer/pkg/types"
)

const separator = "-"

// Composite keys a sub-entity (task, project, proposal, distribution) by
// the contract that assigned its local ID. Local IDs are only unique
// within one contract's numbering space.
func Composite(contract types.EthAddress, localID uint64) string {
	return contract.String() + separator + strconv.FormatUint(localID, 10)
}

// TenantScoped keys a participant record under one org, so the same
// address active in two orgs yields two independent records.
func TenantScoped(org, member types.EthAddress) string {
	return org.String() + separator + member.String()
}

// RolePermission keys one (contract, hatID, roleKind) permission. The
// same (contract, hatID) pair holds independent records per role kind.
func RolePermission(contract types.EthAddress, hatID string, roleKind string) string {
	return contract.String() + separator + hatID + separator + roleKind
}
