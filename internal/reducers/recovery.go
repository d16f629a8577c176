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
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
)

const (
	EventRecoveryConfigSet = "RecoveryConfigSet"
	EventGuardianSet       = "GuardianSet"
)

type recoveryReducer struct{}

func newRecoveryReducer() *recoveryReducer {
	return &recoveryReducer{}
}

func (r *recoveryReducer) Kind() entities.ContractKind {
	return entities.ContractKindRecovery
}

type recoveryConfigSetParams struct {
	RecoveryDelay *int64 `json:"recoveryDelay"`
}

type guardianSetParams struct {
	HatID   string `json:"hatId"`
	Allowed bool   `json:"allowed"`
}

func (r *recoveryReducer) Apply(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	if handled, err := applyCommonConfig(ctx, tx, c, ev); handled {
		return nil, err
	}
	switch ev.Kind {

	case EventRecoveryConfigSet:
		var params recoveryConfigSetParams
		if !parseData(ctx, ev, &params) {
			return nil, nil
		}
		applied, err := appendTrail(ctx, tx, &c.Org, ev, c.Address.String())
		if err != nil || !applied {
			return nil, err
		}
		return nil, updateContract(ctx, tx, c.Address, map[string]any{"recovery_delay": params.RecoveryDelay})

	case EventGuardianSet:
		var params guardianSetParams
		if !parseData(ctx, ev, &params) {
			return nil, nil
		}
		permID := ids.RolePermission(c.Address, params.HatID, string(entities.RoleKindGuardian))
		applied, err := appendTrail(ctx, tx, &c.Org, ev, permID)
		if err != nil || !applied {
			return nil, err
		}
		return nil, upsertRolePermission(ctx, tx, c, ev, permID, params.HatID, entities.RoleKindGuardian, params.Allowed)

	default:
		return skipUnknown(ctx, ev)
	}
}
