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
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

// ContractKind identifies which module of the organization framework a
// deployed contract instance implements, and selects the reducer that
// handles its events.
type ContractKind string

const (
	ContractKindRegistry  ContractKind = "registry"
	ContractKindTaskboard ContractKind = "taskboard"
	ContractKindProjects  ContractKind = "projects"
	ContractKindVoting    ContractKind = "voting"
	ContractKindToken     ContractKind = "token"
	ContractKindPayments  ContractKind = "payments"
	ContractKindRecovery  ContractKind = "recovery"
)

func (ck ContractKind) Enum() types.Enum[ContractKind] {
	return types.Enum[ContractKind](ck)
}

func (ck ContractKind) Options() []string {
	return []string{
		string(ContractKindRegistry),
		string(ContractKindTaskboard),
		string(ContractKindProjects),
		string(ContractKindVoting),
		string(ContractKindToken),
		string(ContractKindPayments),
		string(ContractKindRecovery),
	}
}

// TaskStatus transitions are one-directional:
// open -> assigned -> submitted -> completed, with cancelled terminal
// from any non-terminal state.
type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "open"
	TaskStatusAssigned  TaskStatus = "assigned"
	TaskStatusSubmitted TaskStatus = "submitted"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

func (ts TaskStatus) Enum() types.Enum[TaskStatus] {
	return types.Enum[TaskStatus](ts)
}

func (ts TaskStatus) Options() []string {
	return []string{
		string(TaskStatusOpen),
		string(TaskStatusAssigned),
		string(TaskStatusSubmitted),
		string(TaskStatusCompleted),
		string(TaskStatusCancelled),
	}
}

func (ts TaskStatus) Default() string {
	return string(TaskStatusOpen)
}

// Terminal returns true for states no transition may leave
func (ts TaskStatus) Terminal() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusCancelled
}

type ProjectStatus string

const (
	ProjectStatusActive ProjectStatus = "active"
	ProjectStatusClosed ProjectStatus = "closed"
)

func (ps ProjectStatus) Enum() types.Enum[ProjectStatus] {
	return types.Enum[ProjectStatus](ps)
}

func (ps ProjectStatus) Options() []string {
	return []string{
		string(ProjectStatusActive),
		string(ProjectStatusClosed),
	}
}

func (ps ProjectStatus) Default() string {
	return string(ProjectStatusActive)
}

type ProposalStatus string

const (
	ProposalStatusActive   ProposalStatus = "active"
	ProposalStatusEnded    ProposalStatus = "ended"
	ProposalStatusExecuted ProposalStatus = "executed"
)

func (ps ProposalStatus) Enum() types.Enum[ProposalStatus] {
	return types.Enum[ProposalStatus](ps)
}

func (ps ProposalStatus) Options() []string {
	return []string{
		string(ProposalStatusActive),
		string(ProposalStatusEnded),
		string(ProposalStatusExecuted),
	}
}

func (ps ProposalStatus) Default() string {
	return string(ProposalStatusActive)
}

type DistributionStatus string

const (
	DistributionStatusActive    DistributionStatus = "active"
	DistributionStatusCompleted DistributionStatus = "completed"
	DistributionStatusCancelled DistributionStatus = "cancelled"
)

func (ds DistributionStatus) Enum() types.Enum[DistributionStatus] {
	return types.Enum[DistributionStatus](ds)
}

func (ds DistributionStatus) Options() []string {
	return []string{
		string(DistributionStatusActive),
		string(DistributionStatusCompleted),
		string(DistributionStatusCancelled),
	}
}

func (ds DistributionStatus) Default() string {
	return string(DistributionStatusActive)
}

// RoleKind discriminates the independent permission records that one
// (contract, hatId) pair may hold simultaneously. They are separate
// booleans and are never merged into a single multi-valued field.
type RoleKind string

const (
	RoleKindCreator  RoleKind = "creator"
	RoleKindMember   RoleKind = "member"
	RoleKindVoter    RoleKind = "voter"
	RoleKindApprover RoleKind = "approver"
	RoleKindGuardian RoleKind = "guardian"
)

func (rk RoleKind) Enum() types.Enum[RoleKind] {
	return types.Enum[RoleKind](rk)
}

func (rk RoleKind) Options() []string {
	return []string{
		string(RoleKindCreator),
		string(RoleKindMember),
		string(RoleKindVoter),
		string(RoleKindApprover),
		string(RoleKindGuardian),
	}
}

// RoleKindForHatType maps the numeric hat type discriminant carried on
// role events. Zero is the privileged creator role, any other value is
// a general member role.
func RoleKindForHatType(hatType uint64) RoleKind {
	switch hatType {
	case 0:
		return RoleKindCreator
	default:
		return RoleKindMember
	}
}
