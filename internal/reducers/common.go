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

	"github.com/orgstream-labs/orgindexer/internal/entities"
	"github.com/orgstream-labs/orgindexer/internal/ids"
	"github.com/orgstream-labs/orgindexer/internal/reconcile"
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

// Event kinds every module contract can emit
const (
	EventExecutorSet     = "ExecutorSet"
	EventPaused          = "Paused"
	EventUnpaused        = "Unpaused"
	EventRoleStatusSet   = "RoleStatusSet"
	EventRoleBatchMinted = "RoleBatchMinted"
)

type executorSetParams struct {
	Executor *types.EthAddress `json:"executor"`
}

type roleStatusSetParams struct {
	HatID   string            `json:"hatId"`
	HatType uint64            `json:"hatType"`
	Allowed bool              `json:"allowed"`
	Wearer  *types.EthAddress `json:"wearer"`
}

type roleBatchMintedParams struct {
	Mints []roleStatusSetParams `json:"mints"`
}

// applyCommonConfig handles the configuration events shared by every
// module kind. Returns handled=false when the event kind is not a common
// one, so the per-kind reducer continues its own switch.
func applyCommonConfig(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) (bool, error) {
	switch ev.Kind {

	case EventExecutorSet:
		var params executorSetParams
		if !parseData(ctx, ev, &params) {
			return true, nil
		}
		applied, err := appendTrail(ctx, tx, &c.Org, ev, c.Address.String())
		if err != nil || !applied {
			return true, err
		}
		return true, updateContract(ctx, tx, c.Address, map[string]any{"executor": params.Executor})

	case EventPaused, EventUnpaused:
		applied, err := appendTrail(ctx, tx, &c.Org, ev, c.Address.String())
		if err != nil || !applied {
			return true, err
		}
		return true, updateContract(ctx, tx, c.Address, map[string]any{"paused": ev.Kind == EventPaused})

	case EventRoleStatusSet:
		var params roleStatusSetParams
		if !parseData(ctx, ev, &params) {
			return true, nil
		}
		return true, applyRoleStatus(ctx, tx, c, ev, &params, true)

	case EventRoleBatchMinted:
		var params roleBatchMintedParams
		if !parseData(ctx, ev, &params) {
			return true, nil
		}
		applied, err := appendTrail(ctx, tx, &c.Org, ev, c.Address.String())
		if err != nil || !applied {
			return true, err
		}
		// Per-element derived writes run inside the same DB transaction,
		// so partial application cannot be observed
		for i := range params.Mints {
			if err := applyRoleMint(ctx, tx, c, ev, &params.Mints[i]); err != nil {
				return true, err
			}
		}
		return true, nil
	}
	return false, nil
}

// applyRoleStatus upserts the one (contract, hatId, roleKind) permission
// record. Last write wins on the allowed flag; role kinds for the same
// hat stay independent records. The hat type discriminant also pins the
// contract's own creator/member hat reference when the role is granted.
func applyRoleStatus(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event, params *roleStatusSetParams, withTrail bool) error {
	roleKind := entities.RoleKindForHatType(params.HatType)
	permID := ids.RolePermission(c.Address, params.HatID, string(roleKind))

	if withTrail {
		applied, err := appendTrail(ctx, tx, &c.Org, ev, permID)
		if err != nil || !applied {
			return err
		}
	}

	if err := upsertRolePermission(ctx, tx, c, ev, permID, params.HatID, roleKind, params.Allowed); err != nil {
		return err
	}

	if params.Allowed {
		hatColumn := "member_hat_id"
		if roleKind == entities.RoleKindCreator {
			hatColumn = "creator_hat_id"
		}
		return updateContract(ctx, tx, c.Address, map[string]any{hatColumn: params.HatID})
	}
	return nil
}

// upsertRolePermission is the idempotent last-write-wins upsert shared by
// every role toggle event
func upsertRolePermission(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event, permID, hatID string, roleKind entities.RoleKind, allowed bool) error {
	perm, created, err := reconcile.LoadOrCreate(ctx, tx, "id", permID, &entities.RolePermission{
		ID:           permID,
		Contract:     c.Address,
		Org:          c.Org,
		HatID:        hatID,
		RoleKind:     roleKind.Enum(),
		Allowed:      allowed,
		UpdatedBlock: ev.BlockNumber,
	})
	if err != nil {
		return err
	}
	if !created && (perm.Allowed != allowed || perm.UpdatedBlock != ev.BlockNumber) {
		return tx.DB().
			WithContext(ctx).
			Model(&entities.RolePermission{}).
			Where("id = ?", permID).
			Updates(map[string]any{"allowed": allowed, "updated_block": ev.BlockNumber}).
			Error
	}
	return nil
}

// applyRoleMint is the per-element body of a RoleBatchMinted event: the
// same permission upsert as a single RoleStatusSet, plus activation of
// the wearer's member record when the mint names one.
func applyRoleMint(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event, mint *roleStatusSetParams) error {
	if err := applyRoleStatus(ctx, tx, c, ev, mint, false); err != nil {
		return err
	}
	if mint.Wearer == nil {
		return nil
	}
	memberID := ids.TenantScoped(c.Org, *mint.Wearer)
	member, created, err := reconcile.LoadOrCreate(ctx, tx, "id", memberID, &entities.OrgMember{
		ID:           memberID,
		Org:          c.Org,
		Address:      *mint.Wearer,
		Active:       true,
		TotalClaimed: "0",
	})
	if err != nil {
		return err
	}
	if !created && !member.Active {
		return tx.DB().
			WithContext(ctx).
			Model(&entities.OrgMember{}).
			Where("id = ?", memberID).
			UpdateColumn("active", true).
			Error
	}
	return nil
}
