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
	"github.com/orgstream-labs/orgindexer/internal/reconcile"
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

const (
	EventOrgDeployed    = "OrgDeployed"
	EventModuleEnabled  = "ModuleEnabled"
	EventModuleDisabled = "ModuleDisabled"
)

// registryReducer is the only reducer that creates contract records. All
// other reducers require one to already exist, because fabricating a
// contract record would desynchronize its counters from the deployment.
type registryReducer struct{}

func newRegistryReducer() *registryReducer {
	return &registryReducer{}
}

func (r *registryReducer) Kind() entities.ContractKind {
	return entities.ContractKindRegistry
}

type orgModuleParams struct {
	Address types.EthAddress `json:"address"`
	Kind    string           `json:"kind"`
}

type orgDeployedParams struct {
	Org            types.EthAddress  `json:"org"`
	Name           string            `json:"name"`
	Executor       *types.EthAddress `json:"executor"`
	MetadataDigest *types.Bytes32    `json:"metadataDigest"`
	Modules        []orgModuleParams `json:"modules"`
}

type moduleEnabledParams struct {
	Org    types.EthAddress `json:"org"`
	Module types.EthAddress `json:"module"`
	Kind   string           `json:"kind"`
}

type moduleDisabledParams struct {
	Module types.EthAddress `json:"module"`
}

func (r *registryReducer) Apply(ctx context.Context, tx persistence.DBTX, _ *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	switch ev.Kind {
	case EventOrgDeployed:
		return r.applyOrgDeployed(ctx, tx, ev)
	case EventModuleEnabled:
		return r.applyModuleEnabled(ctx, tx, ev)
	case EventModuleDisabled:
		return r.applyModuleDisabled(ctx, tx, ev)
	default:
		return skipUnknown(ctx, ev)
	}
}

func (r *registryReducer) applyOrgDeployed(ctx context.Context, tx persistence.DBTX, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params orgDeployedParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}

	applied, err := appendTrail(ctx, tx, &params.Org, ev, params.Org.String())
	if err != nil || !applied {
		return nil, err
	}

	org := &entities.Org{
		ID:             params.Org,
		Name:           params.Name,
		Executor:       params.Executor,
		CreatedBlock:   ev.BlockNumber,
		DeployTxHash:   ev.TxHash,
		DeployLogIndex: ev.LogIndex,
	}
	var fetches []*orgevents.FetchRequest
	if params.MetadataDigest != nil {
		if locator, ok := contentid.DeriveLocator(*params.MetadataDigest); ok {
			org.MetadataDigest = params.MetadataDigest
			org.MetadataLocator = locator
			fetches = append(fetches, &orgevents.FetchRequest{
				Locator:    locator,
				EntityKind: "org",
				EntityKey:  params.Org.String(),
			})
		}
	}
	if _, _, err := reconcile.LoadOrCreate(ctx, tx, "id", params.Org, org); err != nil {
		return nil, err
	}

	for _, m := range params.Modules {
		if err := r.createModule(ctx, tx, ev, params.Org, m.Address, m.Kind); err != nil {
			return nil, err
		}
	}
	log.L(ctx).Infof("Org %s deployed with %d modules at block %d", params.Org, len(params.Modules), ev.BlockNumber)
	return fetches, nil
}

func (r *registryReducer) applyModuleEnabled(ctx context.Context, tx persistence.DBTX, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params moduleEnabledParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	applied, err := appendTrail(ctx, tx, &params.Org, ev, params.Module.String())
	if err != nil || !applied {
		return nil, err
	}
	return nil, r.createModule(ctx, tx, ev, params.Org, params.Module, params.Kind)
}

func (r *registryReducer) applyModuleDisabled(ctx context.Context, tx persistence.DBTX, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params moduleDisabledParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	c, found, err := reconcile.RequireExisting[entities.OrgContract](ctx, tx, "address", params.Module)
	if err != nil || !found {
		return nil, err
	}
	applied, err := appendTrail(ctx, tx, &c.Org, ev, c.Address.String())
	if err != nil || !applied {
		return nil, err
	}
	return nil, updateContract(ctx, tx, c.Address, map[string]any{"paused": true})
}

// createModule inserts the contract record with zeroed counters. Contract
// records are immutable from the registry's perspective, so a record that
// already exists is left untouched.
func (r *registryReducer) createModule(ctx context.Context, tx persistence.DBTX, ev *orgevents.Event, org types.EthAddress, address types.EthAddress, kind string) error {
	validKind, err := entities.ContractKind(kind).Enum().Validate()
	if err != nil {
		log.L(ctx).Errorf("Skipping module %s with unknown kind '%s': %s", address, kind, err)
		return nil
	}
	_, created, err := reconcile.LoadOrCreate(ctx, tx, "address", address, &entities.OrgContract{
		Address:      address,
		Org:          org,
		Kind:         validKind.Enum(),
		CreatedBlock: ev.BlockNumber,
	})
	if err == nil && created {
		log.L(ctx).Debugf("Created %s contract record %s for org %s", validKind, address, org)
	}
	return err
}
