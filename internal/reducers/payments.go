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
	"math/big"

	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/orgstream-labs/orgindexer/internal/entities"
	"github.com/orgstream-labs/orgindexer/internal/ids"
	"github.com/orgstream-labs/orgindexer/internal/reconcile"
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

const (
	EventDistributionCreated     = "DistributionCreated"
	EventDistributionClaimed     = "DistributionClaimed"
	EventDistributionCancelled   = "DistributionCancelled"
	EventEligibilityBatchUpdated = "EligibilityBatchUpdated"
)

type paymentsReducer struct {
	stubPolicy StubPolicy
}

func newPaymentsReducer(policies *Policies) *paymentsReducer {
	return &paymentsReducer{stubPolicy: policies.Distributions}
}

func (r *paymentsReducer) Kind() entities.ContractKind {
	return entities.ContractKindPayments
}

type distributionCreatedParams struct {
	LocalID         uint64            `json:"localId"`
	Token           *types.EthAddress `json:"token"`
	Total           string            `json:"total"`
	EligibilityRoot *types.Bytes32    `json:"eligibilityRoot"`
}

type distributionClaimedParams struct {
	LocalID  uint64           `json:"localId"`
	Claimant types.EthAddress `json:"claimant"`
	Amount   string           `json:"amount"`
}

type distributionLocalParams struct {
	LocalID uint64 `json:"localId"`
}

type eligibilityBatchParams struct {
	LocalID         uint64             `json:"localId"`
	EligibilityRoot *types.Bytes32     `json:"eligibilityRoot"`
	Accounts        []types.EthAddress `json:"accounts"`
}

func (r *paymentsReducer) Apply(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	if handled, err := applyCommonConfig(ctx, tx, c, ev); handled {
		return nil, err
	}
	switch ev.Kind {
	case EventDistributionCreated:
		return r.applyCreated(ctx, tx, c, ev)
	case EventDistributionClaimed:
		return r.applyClaimed(ctx, tx, c, ev)
	case EventDistributionCancelled:
		return r.applyCancelled(ctx, tx, c, ev)
	case EventEligibilityBatchUpdated:
		return r.applyEligibilityBatch(ctx, tx, c, ev)
	default:
		return skipUnknown(ctx, ev)
	}
}

func (r *paymentsReducer) applyCreated(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params distributionCreatedParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	distID := ids.Composite(c.Address, params.LocalID)

	applied, err := appendTrail(ctx, tx, &c.Org, ev, distID)
	if err != nil || !applied {
		return nil, err
	}

	existing, created, err := reconcile.LoadOrCreate(ctx, tx, "id", distID, &entities.Distribution{
		ID:              distID,
		Contract:        c.Address,
		LocalID:         int64(params.LocalID),
		Org:             c.Org,
		Status:          entities.DistributionStatusActive.Enum(),
		Token:           params.Token,
		Total:           params.Total,
		Claimed:         "0",
		EligibilityRoot: params.EligibilityRoot,
		CreatedBlock:    ev.BlockNumber,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		if !existing.Stub {
			log.L(ctx).Warnf("Duplicate creation for distribution %s ignored", distID)
			return nil, nil
		}
		// Fill a stub left by an earlier eligibility event, preserving a
		// root that event already set
		updates := map[string]any{
			"token":         params.Token,
			"total":         params.Total,
			"created_block": ev.BlockNumber,
			"stub":          false,
		}
		if existing.EligibilityRoot == nil {
			updates["eligibility_root"] = params.EligibilityRoot
		}
		if err := tx.DB().WithContext(ctx).Model(&entities.Distribution{}).Where("id = ?", distID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	if err := reconcile.IncrementCounter[entities.OrgContract](ctx, tx, "address", c.Address, "next_local_id", 1); err != nil {
		return nil, err
	}
	if err := reconcile.IncrementCounter[entities.OrgContract](ctx, tx, "address", c.Address, "total_distributions", 1); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *paymentsReducer) applyClaimed(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params distributionClaimedParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	distID := ids.Composite(c.Address, params.LocalID)

	dist, found, err := reconcile.RequireExisting[entities.Distribution](ctx, tx, "id", distID)
	if err != nil || !found {
		return nil, err
	}
	if dist.Status.V() != entities.DistributionStatusActive {
		log.L(ctx).Warnf("Ignoring %s for distribution %s in state %s", ev.Kind, distID, dist.Status)
		return nil, nil
	}

	amount, ok := new(big.Int).SetString(params.Amount, 10)
	if !ok {
		log.L(ctx).Errorf("Skipping %s with malformed amount %q tx=%s logIndex=%d", ev.Kind, params.Amount, ev.TxHash, ev.LogIndex)
		return nil, nil
	}

	applied, err := appendTrail(ctx, tx, &c.Org, ev, distID)
	if err != nil || !applied {
		return nil, err
	}

	// Compute the new running total in the reducer so the distribution
	// can be flipped to completed in the same update once fully claimed
	claimed := new(big.Int)
	if dist.Claimed != "" {
		if _, ok := claimed.SetString(dist.Claimed, 10); !ok {
			log.L(ctx).Errorf("Resetting malformed claimed total %q on distribution %s", dist.Claimed, distID)
			claimed = new(big.Int)
		}
	}
	claimed = claimed.Add(claimed, amount)
	updates := map[string]any{"claimed": claimed.String()}
	if total, ok := new(big.Int).SetString(dist.Total, 10); ok && claimed.Cmp(total) >= 0 {
		updates["status"] = entities.DistributionStatusCompleted.Enum()
	}
	if err := tx.DB().WithContext(ctx).Model(&entities.Distribution{}).Where("id = ?", distID).Updates(updates).Error; err != nil {
		return nil, err
	}

	memberID := ids.TenantScoped(c.Org, params.Claimant)
	if _, _, err := reconcile.LoadOrCreate(ctx, tx, "id", memberID, &entities.OrgMember{
		ID:           memberID,
		Org:          c.Org,
		Address:      params.Claimant,
		Active:       true,
		TotalClaimed: "0",
	}); err != nil {
		return nil, err
	}
	return nil, reconcile.AddToBigCounter[entities.OrgMember](ctx, tx, "id", memberID, "total_claimed", amount)
}

func (r *paymentsReducer) applyCancelled(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params distributionLocalParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	distID := ids.Composite(c.Address, params.LocalID)

	dist, found, err := reconcile.RequireExisting[entities.Distribution](ctx, tx, "id", distID)
	if err != nil || !found {
		return nil, err
	}
	if dist.Status.V() != entities.DistributionStatusActive {
		log.L(ctx).Warnf("Ignoring %s for distribution %s in state %s", ev.Kind, distID, dist.Status)
		return nil, nil
	}
	applied, err := appendTrail(ctx, tx, &c.Org, ev, distID)
	if err != nil || !applied {
		return nil, err
	}
	return nil, tx.DB().WithContext(ctx).Model(&entities.Distribution{}).Where("id = ?", distID).UpdateColumn("status", entities.DistributionStatusCancelled.Enum()).Error
}

func (r *paymentsReducer) applyEligibilityBatch(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params eligibilityBatchParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	distID := ids.Composite(c.Address, params.LocalID)

	var dist *entities.Distribution
	if r.stubPolicy == StubPolicyStub {
		var err error
		dist, _, err = reconcile.LoadOrStub(ctx, tx, "id", distID, &entities.Distribution{
			ID:              distID,
			Contract:        c.Address,
			LocalID:         int64(params.LocalID),
			Org:             c.Org,
			Status:          entities.DistributionStatusActive.Enum(),
			Claimed:         "0",
			EligibilityRoot: params.EligibilityRoot,
			Stub:            true,
		})
		if err != nil {
			return nil, err
		}
	} else {
		var found bool
		var err error
		dist, found, err = reconcile.RequireExisting[entities.Distribution](ctx, tx, "id", distID)
		if err != nil || !found {
			return nil, err
		}
	}
	if dist.Status.V() != entities.DistributionStatusActive {
		log.L(ctx).Warnf("Ignoring %s for distribution %s in state %s", ev.Kind, distID, dist.Status)
		return nil, nil
	}

	applied, err := appendTrail(ctx, tx, &c.Org, ev, distID)
	if err != nil || !applied {
		return nil, err
	}

	if params.EligibilityRoot != nil {
		if err := tx.DB().WithContext(ctx).Model(&entities.Distribution{}).Where("id = ?", distID).UpdateColumn("eligibility_root", params.EligibilityRoot).Error; err != nil {
			return nil, err
		}
	}
	// One derived member record per listed account, all inside the
	// event's transaction
	for i := range params.Accounts {
		memberID := ids.TenantScoped(c.Org, params.Accounts[i])
		if _, _, err := reconcile.LoadOrCreate(ctx, tx, "id", memberID, &entities.OrgMember{
			ID:           memberID,
			Org:          c.Org,
			Address:      params.Accounts[i],
			Active:       true,
			TotalClaimed: "0",
		}); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
