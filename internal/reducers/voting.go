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

package reducers

import (
	"context"

	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/orgstream-labs/orgindexer/internal/contentid"
	"github.com/orgstream-labs/orgindexer/internal/entities"
	"github.com/orgstream-labs/orgindexer/internal/ids"
	"github.com/orgstream-labs/orgindexer/internal/reconcile"
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

const (
	EventProposalCreated  = "ProposalCreated"
	EventProposalEnded    = "ProposalEnded"
	EventProposalExecuted = "ProposalExecuted"
	EventQuorumSet        = "QuorumSet"
	EventVotingTokenSet   = "VotingTokenSet"
	EventVoterSet         = "VoterSet"
)

// Proposal lifecycle events all require an existing proposal, so the
// voting reducer has no stub policy. A ProposalEnded or ProposalExecuted
// for an unknown proposal is dropped with a warning.
type votingReducer struct{}

func newVotingReducer() *votingReducer {
	return &votingReducer{}
}

func (r *votingReducer) Kind() entities.ContractKind {
	return entities.ContractKindVoting
}

type proposalCreatedParams struct {
	LocalID        uint64            `json:"localId"`
	Proposer       *types.EthAddress `json:"proposer"`
	ChoicesCount   int64             `json:"choicesCount"`
	MetadataDigest *types.Bytes32    `json:"metadataDigest"`
}

type proposalEndedParams struct {
	LocalID       uint64 `json:"localId"`
	WinningChoice *int64 `json:"winningChoice"`
}

type proposalLocalParams struct {
	LocalID uint64 `json:"localId"`
}

type quorumSetParams struct {
	Quorum string `json:"quorum"`
}

type votingTokenSetParams struct {
	Token *types.EthAddress `json:"token"`
}

type voterSetParams struct {
	HatID   string `json:"hatId"`
	Allowed bool   `json:"allowed"`
}

func (r *votingReducer) Apply(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	if handled, err := applyCommonConfig(ctx, tx, c, ev); handled {
		return nil, err
	}
	switch ev.Kind {
	case EventProposalCreated:
		return r.applyCreated(ctx, tx, c, ev)
	case EventProposalEnded:
		return r.applyEnded(ctx, tx, c, ev)
	case EventProposalExecuted:
		return r.applyExecuted(ctx, tx, c, ev)
	case EventQuorumSet:
		return r.applyQuorumSet(ctx, tx, c, ev)
	case EventVotingTokenSet:
		return r.applyVotingTokenSet(ctx, tx, c, ev)
	case EventVoterSet:
		return r.applyVoterSet(ctx, tx, c, ev)
	default:
		return skipUnknown(ctx, ev)
	}
}

func (r *votingReducer) applyCreated(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params proposalCreatedParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	proposalID := ids.Composite(c.Address, params.LocalID)

	applied, err := appendTrail(ctx, tx, &c.Org, ev, proposalID)
	if err != nil || !applied {
		return nil, err
	}

	// Snapshot the contract's quorum as of this event. The routed contract
	// record may be cached, so the mutable field is re-read in this tx.
	quorum := c.Quorum
	if fresh, found, err := reconcile.RequireExisting[entities.OrgContract](ctx, tx, "address", c.Address); err != nil {
		return nil, err
	} else if found {
		quorum = fresh.Quorum
	}

	proposal := &entities.Proposal{
		ID:           proposalID,
		Contract:     c.Address,
		LocalID:      int64(params.LocalID),
		Org:          c.Org,
		Proposer:     params.Proposer,
		Status:       entities.ProposalStatusActive.Enum(),
		Quorum:       quorum,
		ChoicesCount: params.ChoicesCount,
		CreatedBlock: ev.BlockNumber,
	}
	var fetches []*orgevents.FetchRequest
	if params.MetadataDigest != nil {
		if locator, ok := contentid.DeriveLocator(*params.MetadataDigest); ok {
			proposal.MetadataDigest = params.MetadataDigest
			proposal.MetadataLocator = locator
			fetches = append(fetches, &orgevents.FetchRequest{
				Locator:    locator,
				EntityKind: "proposal",
				EntityKey:  proposalID,
			})
		}
	}

	existing, created, err := reconcile.LoadOrCreate(ctx, tx, "id", proposalID, proposal)
	if err != nil {
		return nil, err
	}
	if !created && !existing.Stub {
		log.L(ctx).Warnf("Duplicate creation for proposal %s ignored", proposalID)
		return nil, nil
	}

	if err := reconcile.IncrementCounter[entities.OrgContract](ctx, tx, "address", c.Address, "next_local_id", 1); err != nil {
		return nil, err
	}
	if err := reconcile.IncrementCounter[entities.OrgContract](ctx, tx, "address", c.Address, "total_proposals", 1); err != nil {
		return nil, err
	}
	return fetches, nil
}

func (r *votingReducer) applyEnded(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params proposalEndedParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	proposalID := ids.Composite(c.Address, params.LocalID)

	proposal, found, err := reconcile.RequireExisting[entities.Proposal](ctx, tx, "id", proposalID)
	if err != nil || !found {
		return nil, err
	}
	if proposal.Status.V() != entities.ProposalStatusActive {
		log.L(ctx).Warnf("Ignoring %s for proposal %s in state %s", ev.Kind, proposalID, proposal.Status)
		return nil, nil
	}
	applied, err := appendTrail(ctx, tx, &c.Org, ev, proposalID)
	if err != nil || !applied {
		return nil, err
	}
	return nil, tx.DB().WithContext(ctx).Model(&entities.Proposal{}).Where("id = ?", proposalID).Updates(map[string]any{
		"status":         entities.ProposalStatusEnded.Enum(),
		"winning_choice": params.WinningChoice,
	}).Error
}

func (r *votingReducer) applyExecuted(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params proposalLocalParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	proposalID := ids.Composite(c.Address, params.LocalID)

	proposal, found, err := reconcile.RequireExisting[entities.Proposal](ctx, tx, "id", proposalID)
	if err != nil || !found {
		return nil, err
	}
	if proposal.Status.V() != entities.ProposalStatusEnded {
		log.L(ctx).Warnf("Ignoring %s for proposal %s in state %s", ev.Kind, proposalID, proposal.Status)
		return nil, nil
	}
	applied, err := appendTrail(ctx, tx, &c.Org, ev, proposalID)
	if err != nil || !applied {
		return nil, err
	}
	return nil, tx.DB().WithContext(ctx).Model(&entities.Proposal{}).Where("id = ?", proposalID).UpdateColumn("status", entities.ProposalStatusExecuted.Enum()).Error
}

func (r *votingReducer) applyQuorumSet(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params quorumSetParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	applied, err := appendTrail(ctx, tx, &c.Org, ev, c.Address.String())
	if err != nil || !applied {
		return nil, err
	}
	return nil, updateContract(ctx, tx, c.Address, map[string]any{"quorum": params.Quorum})
}

func (r *votingReducer) applyVotingTokenSet(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params votingTokenSetParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	applied, err := appendTrail(ctx, tx, &c.Org, ev, c.Address.String())
	if err != nil || !applied {
		return nil, err
	}
	return nil, updateContract(ctx, tx, c.Address, map[string]any{"voting_token": params.Token})
}

func (r *votingReducer) applyVoterSet(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params voterSetParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	permID := ids.RolePermission(c.Address, params.HatID, string(entities.RoleKindVoter))

	applied, err := appendTrail(ctx, tx, &c.Org, ev, permID)
	if err != nil || !applied {
		return nil, err
	}
	return nil, upsertRolePermission(ctx, tx, c, ev, permID, params.HatID, entities.RoleKindVoter, params.Allowed)
}
