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

// Package reducers holds one reducer per contract kind. A reducer maps
// (current persisted state, one decoded event) to entity writes, trail
// records and content fetch requests. Reducers never abort the stream:
// unknown events and malformed payloads are logged and skipped.
package reducers

import (
	"context"
	"encoding/json"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/orgstream-labs/orgindexer/internal/entities"
	"github.com/orgstream-labs/orgindexer/internal/msgs"
	"github.com/orgstream-labs/orgindexer/internal/reconcile"
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

// Reducer applies one event addressed to a contract of its kind. The
// contract record is nil only for the registry reducer, which is the one
// reducer allowed to create contract records.
type Reducer interface {
	Kind() entities.ContractKind
	Apply(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error)
}

// StubPolicy decides what happens when a configuration event references
// a sub-entity that has not been created yet: create a placeholder to be
// filled by the later creation event, or drop the event.
type StubPolicy string

const (
	StubPolicyStub StubPolicy = "stub"
	StubPolicyDrop StubPolicy = "drop"
)

func (sp StubPolicy) Validate(ctx context.Context, family string) error {
	switch sp {
	case StubPolicyStub, StubPolicyDrop:
		return nil
	default:
		return i18n.NewError(ctx, msgs.MsgConfigStubPolicyInvalid, sp, family)
	}
}

// Policies carries the per-entity-family stub policy, for the families
// whose contracts emit configuration events that may precede the
// creation event. Proposals have no such events, so there is no policy
// for them.
type Policies struct {
	Tasks         StubPolicy
	Projects      StubPolicy
	Distributions StubPolicy
}

func DefaultPolicies() *Policies {
	return &Policies{
		Tasks:         StubPolicyStub,
		Projects:      StubPolicyStub,
		Distributions: StubPolicyDrop,
	}
}

// Registry routes events by the kind of the target contract
type Registry struct {
	reducers map[entities.ContractKind]Reducer
}

func NewRegistry(policies *Policies) *Registry {
	if policies == nil {
		policies = DefaultPolicies()
	}
	r := &Registry{reducers: make(map[entities.ContractKind]Reducer)}
	for _, red := range []Reducer{
		newRegistryReducer(),
		newTaskboardReducer(policies),
		newProjectsReducer(policies),
		newVotingReducer(),
		newTokenReducer(),
		newPaymentsReducer(policies),
		newRecoveryReducer(),
	} {
		r.reducers[red.Kind()] = red
	}
	return r
}

func (r *Registry) ForKind(ctx context.Context, kind entities.ContractKind) (Reducer, error) {
	red, ok := r.reducers[kind]
	if !ok {
		return nil, i18n.NewError(ctx, msgs.MsgReducerUnknownContractKind, kind)
	}
	return red, nil
}

// parseData unmarshals the event payload, logging and skipping on
// malformed data rather than failing the batch
func parseData[T any](ctx context.Context, ev *orgevents.Event, params *T) bool {
	if err := json.Unmarshal(ev.Data, params); err != nil {
		log.L(ctx).Errorf("Skipping %s event with malformed data tx=%s logIndex=%d: %s", ev.Kind, ev.TxHash, ev.LogIndex, err)
		return false
	}
	return true
}

// appendTrail writes the historical record for one event. A false return
// means this (txHash, logIndex) was already applied, and the caller must
// perform no mutations at all.
func appendTrail(ctx context.Context, tx persistence.DBTX, org *types.EthAddress, ev *orgevents.Event, entityKey string) (bool, error) {
	return reconcile.AppendChange(ctx, tx, &entities.ChangeRecord{
		TxHash:         ev.TxHash,
		LogIndex:       ev.LogIndex,
		Org:            org,
		Contract:       ev.ContractAddress,
		ChangeKind:     ev.Kind,
		EntityKey:      entityKey,
		Payload:        ev.Data,
		BlockNumber:    ev.BlockNumber,
		BlockTimestamp: ev.BlockTimestamp,
	})
}

func updateContract(ctx context.Context, tx persistence.DBTX, addr types.EthAddress, updates map[string]any) error {
	return tx.DB().
		WithContext(ctx).
		Model(&entities.OrgContract{}).
		Where("address = ?", addr).
		Updates(updates).
		Error
}

func skipUnknown(ctx context.Context, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	log.L(ctx).Warnf("Skipping unknown event kind '%s' for contract %s tx=%s logIndex=%d", ev.Kind, ev.ContractAddress, ev.TxHash, ev.LogIndex)
	return nil, nil
}
