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

// Package entities defines the gorm-mapped tables of the materialized
// entity graph. Current-state entities are mutable and shadowed by the
// immutable change_records trail.
package entities

import (
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

// Org is the tenant. Its ID is the org contract address assigned at
// deployment.
type Org struct {
	ID              types.EthAddress  `json:"id"              gorm:"column:id;primaryKey"`
	Name            string            `json:"name"            gorm:"column:name"`
	MetadataDigest  *types.Bytes32    `json:"metadataDigest"  gorm:"column:metadata_digest"`
	MetadataLocator string            `json:"metadataLocator" gorm:"column:metadata_locator"`
	Executor        *types.EthAddress `json:"executor"        gorm:"column:executor"`
	Paused          bool              `json:"paused"          gorm:"column:paused"`
	CreatedBlock    int64             `json:"createdBlock"    gorm:"column:created_block"`
	DeployTxHash    types.Bytes32     `json:"deployTxHash"    gorm:"column:deploy_tx_hash"`
	DeployLogIndex  int64             `json:"deployLogIndex"  gorm:"column:deploy_log_index"`
	Created         types.Timestamp   `json:"created"         gorm:"column:created;autoCreateTime:nano"`
	Updated         types.Timestamp   `json:"updated"         gorm:"column:updated;autoUpdateTime:nano"`
}

func (Org) TableName() string { return "orgs" }

// OrgContract is one deployed module instance owned by an org. It is
// created exactly once by the registry's deployment event. Counters are
// owned exclusively by the reducer for the contract's kind and are never
// derived by re-scanning sub-entities.
type OrgContract struct {
	Address            types.EthAddress          `json:"address"            gorm:"column:address;primaryKey"`
	Org                types.EthAddress          `json:"org"                gorm:"column:org"`
	Kind               types.Enum[ContractKind]  `json:"kind"               gorm:"column:kind"`
	Executor           *types.EthAddress         `json:"executor"           gorm:"column:executor"`
	Quorum             string                    `json:"quorum"             gorm:"column:quorum"`
	VotingToken        *types.EthAddress         `json:"votingToken"        gorm:"column:voting_token"`
	Paused             bool                      `json:"paused"             gorm:"column:paused"`
	CreatorHatID       string                    `json:"creatorHatId"       gorm:"column:creator_hat_id"`
	MemberHatID        string                    `json:"memberHatId"        gorm:"column:member_hat_id"`
	RecoveryDelay      *int64                    `json:"recoveryDelay"      gorm:"column:recovery_delay"`
	NextLocalID        int64                     `json:"nextLocalId"        gorm:"column:next_local_id"`
	TotalTasks         int64                     `json:"totalTasks"         gorm:"column:total_tasks"`
	TotalProjects      int64                     `json:"totalProjects"      gorm:"column:total_projects"`
	TotalProposals     int64                     `json:"totalProposals"     gorm:"column:total_proposals"`
	TotalDistributions int64                     `json:"totalDistributions" gorm:"column:total_distributions"`
	CreatedBlock       int64                     `json:"createdBlock"       gorm:"column:created_block"`
	Created            types.Timestamp           `json:"created"            gorm:"column:created;autoCreateTime:nano"`
	Updated            types.Timestamp           `json:"updated"            gorm:"column:updated;autoUpdateTime:nano"`
}

func (OrgContract) TableName() string { return "org_contracts" }

// Task is keyed by the composite (contract, localId) identifier so the
// same localId under two taskboards never collides.
type Task struct {
	ID              string                  `json:"id"              gorm:"column:id;primaryKey"`
	Contract        types.EthAddress        `json:"contract"        gorm:"column:contract"`
	LocalID         int64                   `json:"localId"         gorm:"column:local_id"`
	Org             types.EthAddress        `json:"org"             gorm:"column:org"`
	Title           string                  `json:"title"           gorm:"column:title"`
	Status          types.Enum[TaskStatus]  `json:"status"          gorm:"column:status"`
	Cap             string                  `json:"cap"             gorm:"column:cap"`
	Assignee        *types.EthAddress       `json:"assignee"        gorm:"column:assignee"`
	Approver        *types.EthAddress       `json:"approver"        gorm:"column:approver"`
	MetadataDigest  *types.Bytes32          `json:"metadataDigest"  gorm:"column:metadata_digest"`
	MetadataLocator string                  `json:"metadataLocator" gorm:"column:metadata_locator"`
	Stub            bool                    `json:"stub"            gorm:"column:stub"`
	CreatedBlock    int64                   `json:"createdBlock"    gorm:"column:created_block"`
	CompletedAt     *types.Timestamp        `json:"completedAt"     gorm:"column:completed_at"`
	Created         types.Timestamp         `json:"created"         gorm:"column:created;autoCreateTime:nano"`
	Updated         types.Timestamp         `json:"updated"         gorm:"column:updated;autoUpdateTime:nano"`
}

func (Task) TableName() string { return "tasks" }

type Project struct {
	ID              string                     `json:"id"              gorm:"column:id;primaryKey"`
	Contract        types.EthAddress           `json:"contract"        gorm:"column:contract"`
	LocalID         int64                      `json:"localId"         gorm:"column:local_id"`
	Org             types.EthAddress           `json:"org"             gorm:"column:org"`
	Name            string                     `json:"name"            gorm:"column:name"`
	Status          types.Enum[ProjectStatus]  `json:"status"          gorm:"column:status"`
	Cap             string                     `json:"cap"             gorm:"column:cap"`
	Lead            *types.EthAddress          `json:"lead"            gorm:"column:lead"`
	MetadataDigest  *types.Bytes32             `json:"metadataDigest"  gorm:"column:metadata_digest"`
	MetadataLocator string                     `json:"metadataLocator" gorm:"column:metadata_locator"`
	Stub            bool                       `json:"stub"            gorm:"column:stub"`
	CreatedBlock    int64                      `json:"createdBlock"    gorm:"column:created_block"`
	Created         types.Timestamp            `json:"created"         gorm:"column:created;autoCreateTime:nano"`
	Updated         types.Timestamp            `json:"updated"         gorm:"column:updated;autoUpdateTime:nano"`
}

func (Project) TableName() string { return "projects" }

type Proposal struct {
	ID              string                      `json:"id"              gorm:"column:id;primaryKey"`
	Contract        types.EthAddress            `json:"contract"        gorm:"column:contract"`
	LocalID         int64                       `json:"localId"         gorm:"column:local_id"`
	Org             types.EthAddress            `json:"org"             gorm:"column:org"`
	Proposer        *types.EthAddress           `json:"proposer"        gorm:"column:proposer"`
	Status          types.Enum[ProposalStatus]  `json:"status"          gorm:"column:status"`
	Quorum          string                      `json:"quorum"          gorm:"column:quorum"`
	ChoicesCount    int64                       `json:"choicesCount"    gorm:"column:choices_count"`
	WinningChoice   *int64                      `json:"winningChoice"   gorm:"column:winning_choice"`
	MetadataDigest  *types.Bytes32              `json:"metadataDigest"  gorm:"column:metadata_digest"`
	MetadataLocator string                      `json:"metadataLocator" gorm:"column:metadata_locator"`
	Stub            bool                        `json:"stub"            gorm:"column:stub"`
	CreatedBlock    int64                       `json:"createdBlock"    gorm:"column:created_block"`
	Created         types.Timestamp             `json:"created"         gorm:"column:created;autoCreateTime:nano"`
	Updated         types.Timestamp             `json:"updated"         gorm:"column:updated;autoUpdateTime:nano"`
}

func (Proposal) TableName() string { return "proposals" }

type Distribution struct {
	ID              string                          `json:"id"              gorm:"column:id;primaryKey"`
	Contract        types.EthAddress                `json:"contract"        gorm:"column:contract"`
	LocalID         int64                           `json:"localId"         gorm:"column:local_id"`
	Org             types.EthAddress                `json:"org"             gorm:"column:org"`
	Status          types.Enum[DistributionStatus]  `json:"status"          gorm:"column:status"`
	Token           *types.EthAddress               `json:"token"           gorm:"column:token"`
	Total           string                          `json:"total"           gorm:"column:total"`
	Claimed         string                          `json:"claimed"         gorm:"column:claimed"`
	EligibilityRoot *types.Bytes32                  `json:"eligibilityRoot" gorm:"column:eligibility_root"`
	Stub            bool                            `json:"stub"            gorm:"column:stub"`
	CreatedBlock    int64                           `json:"createdBlock"    gorm:"column:created_block"`
	Created         types.Timestamp                 `json:"created"         gorm:"column:created;autoCreateTime:nano"`
	Updated         types.Timestamp                 `json:"updated"         gorm:"column:updated;autoUpdateTime:nano"`
}

func (Distribution) TableName() string { return "distributions" }

// RolePermission holds one independent allowed flag per
// (contract, hatId, roleKind).
type RolePermission struct {
	ID           string                `json:"id"           gorm:"column:id;primaryKey"`
	Contract     types.EthAddress      `json:"contract"     gorm:"column:contract"`
	Org          types.EthAddress      `json:"org"          gorm:"column:org"`
	HatID        string                `json:"hatId"        gorm:"column:hat_id"`
	RoleKind     types.Enum[RoleKind]  `json:"roleKind"     gorm:"column:role_kind"`
	Allowed      bool                  `json:"allowed"      gorm:"column:allowed"`
	UpdatedBlock int64                 `json:"updatedBlock" gorm:"column:updated_block"`
	Created      types.Timestamp       `json:"created"      gorm:"column:created;autoCreateTime:nano"`
	Updated      types.Timestamp       `json:"updated"      gorm:"column:updated;autoUpdateTime:nano"`
}

func (RolePermission) TableName() string { return "role_permissions" }

// OrgMember aggregates one participant address across all contracts of
// one org. Counters move exactly once per applied event.
type OrgMember struct {
	ID                  string           `json:"id"                  gorm:"column:id;primaryKey"`
	Org                 types.EthAddress `json:"org"                 gorm:"column:org"`
	Address             types.EthAddress `json:"address"             gorm:"column:address"`
	Active              bool             `json:"active"              gorm:"column:active"`
	TotalTasksCompleted int64            `json:"totalTasksCompleted" gorm:"column:total_tasks_completed"`
	TotalClaimed        string           `json:"totalClaimed"        gorm:"column:total_claimed"`
	Created             types.Timestamp  `json:"created"             gorm:"column:created;autoCreateTime:nano"`
	Updated             types.Timestamp  `json:"updated"             gorm:"column:updated;autoUpdateTime:nano"`
}

func (OrgMember) TableName() string { return "org_members" }

// ChangeRecord is the append-only historical trail, one row per applied
// state-changing event. The (txHash, logIndex) primary key doubles as the
// engine's replay guard: an insert that affects zero rows means the event
// was already applied.
type ChangeRecord struct {
	TxHash         types.Bytes32     `json:"txHash"         gorm:"column:tx_hash;primaryKey"`
	LogIndex       int64             `json:"logIndex"       gorm:"column:log_index;primaryKey"`
	Org            *types.EthAddress `json:"org"            gorm:"column:org"`
	Contract       types.EthAddress  `json:"contract"       gorm:"column:contract"`
	ChangeKind     string            `json:"changeKind"     gorm:"column:change_kind"`
	EntityKey      string            `json:"entityKey"      gorm:"column:entity_key"`
	Payload        types.RawJSON     `json:"payload"        gorm:"column:payload"`
	BlockNumber    int64             `json:"blockNumber"    gorm:"column:block_number"`
	BlockTimestamp types.Timestamp   `json:"blockTimestamp" gorm:"column:block_timestamp"`
	Created        types.Timestamp   `json:"created"        gorm:"column:created;autoCreateTime:nano"`
}

func (ChangeRecord) TableName() string { return "change_records" }

// ContentRecord is immutable once populated. A re-fetch of the same
// locator never overwrites parsed fields.
type ContentRecord struct {
	Locator     string          `json:"locator"     gorm:"column:locator;primaryKey"`
	Populated   bool            `json:"populated"   gorm:"column:populated"`
	Name        string          `json:"name"        gorm:"column:name"`
	Description string          `json:"description" gorm:"column:description"`
	ExternalURL string          `json:"externalUrl" gorm:"column:external_url"`
	Tags        types.RawJSON   `json:"tags"        gorm:"column:tags"`
	Created     types.Timestamp `json:"created"     gorm:"column:created;autoCreateTime:nano"`
	Updated     types.Timestamp `json:"updated"     gorm:"column:updated;autoUpdateTime:nano"`
}

func (ContentRecord) TableName() string { return "content_records" }

type DispatchCheckpoint struct {
	Stream      string          `json:"stream"      gorm:"column:stream;primaryKey"`
	BlockNumber int64           `json:"blockNumber" gorm:"column:block_number"`
	Updated     types.Timestamp `json:"updated"     gorm:"column:updated;autoUpdateTime:nano"`
}

func (DispatchCheckpoint) TableName() string { return "dispatch_checkpoints" }
