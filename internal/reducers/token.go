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
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

const (
	EventTokenDeployed = "TokenDeployed"
	EventTokenPaused   = "TokenPaused"
)

type tokenReducer struct{}

func newTokenReducer() *tokenReducer {
	return &tokenReducer{}
}

func (r *tokenReducer) Kind() entities.ContractKind {
	return entities.ContractKindToken
}

type tokenDeployedParams struct {
	Token *types.EthAddress `json:"token"`
}

type tokenPausedParams struct {
	Paused bool `json:"paused"`
}

func (r *tokenReducer) Apply(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	if handled, err := applyCommonConfig(ctx, tx, c, ev); handled {
		return nil, err
	}
	switch ev.Kind {

	case EventTokenDeployed:
		var params tokenDeployedParams
		if !parseData(ctx, ev, &params) {
			return nil, nil
		}
		applied, err := appendTrail(ctx, tx, &c.Org, ev, c.Address.String())
		if err != nil || !applied {
			return nil, err
		}
		// The deployed ERC20 address is the module's token reference
		return nil, updateContract(ctx, tx, c.Address, map[string]any{"voting_token": params.Token})

	case EventTokenPaused:
		var params tokenPausedParams
		if !parseData(ctx, ev, &params) {
			return nil, nil
		}
		applied, err := appendTrail(ctx, tx, &c.Org, ev, c.Address.String())
		if err != nil || !applied {
			return nil, err
		}
		return nil, updateContract(ctx, tx, c.Address, map[string]any{"paused": params.Paused})

	default:
		return skipUnknown(ctx, ev)
	}
}
