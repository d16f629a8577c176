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

// Package dispatcher routes ordered event batches to the per-kind
// reducers, one database transaction per batch, with the stream
// checkpoint advanced in the same transaction.
package dispatcher

import (
	"context"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/orgstream-labs/orgindexer/internal/cache"
	"github.com/orgstream-labs/orgindexer/internal/confutil"
	"github.com/orgstream-labs/orgindexer/internal/entities"
	"github.com/orgstream-labs/orgindexer/internal/msgs"
	"github.com/orgstream-labs/orgindexer/internal/reconcile"
	"github.com/orgstream-labs/orgindexer/internal/reducers"
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
	"gorm.io/gorm/clause"
)

type Config struct {
	StreamName    string       `json:"streamName"`
	ContractCache cache.Config `json:"contractCache"`
}

var ConfigDefaults = &Config{
	StreamName: "orgindexer",
	ContractCache: cache.Config{
		Capacity: confutil.P(1000),
	},
}

// contractRoute is the cached identity of a known contract. Only
// immutable fields live in the cache; reducers re-read mutable
// configuration inside the batch transaction when they need it.
type contractRoute struct {
	address types.EthAddress
	org     types.EthAddress
	kind    entities.ContractKind
}

type Dispatcher struct {
	streamName   string
	registryAddr types.EthAddress
	p            persistence.Persistence
	reducers     *reducers.Registry
	fetcher      orgevents.ContentFetcher
	routeCache   cache.Cache[types.EthAddress, *contractRoute]
}

func NewDispatcher(ctx context.Context, conf *Config, registryAddr types.EthAddress, p persistence.Persistence, registry *reducers.Registry, fetcher orgevents.ContentFetcher) (*Dispatcher, error) {
	streamName := confutil.StringNotEmpty(&conf.StreamName, ConfigDefaults.StreamName)
	if err := types.ValidateSafeCharsStartEndAlphaNum(ctx, streamName, types.DefaultNameMaxLen, "streamName"); err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgDispatcherInvalidStreamName)
	}
	return &Dispatcher{
		streamName:   streamName,
		registryAddr: registryAddr,
		p:            p,
		reducers:     registry,
		fetcher:      fetcher,
		routeCache:   cache.NewCache[types.EthAddress, *contractRoute](&conf.ContractCache, &ConfigDefaults.ContractCache),
	}, nil
}

// ProcessBatch applies one canonical-order batch of events. The whole
// batch, including the checkpoint update, commits or rolls back as one
// transaction. Fetch requests emitted by reducers are handed to the
// content fetcher only after the commit.
func (d *Dispatcher) ProcessBatch(ctx context.Context, batch *orgevents.EventDeliveryBatch) error {
	ctx = log.WithLogField(ctx, "batch", batch.BatchID.String())
	if err := d.validateBatch(ctx, batch); err != nil {
		return err
	}
	if len(batch.Events) == 0 {
		return nil
	}

	var fetches []*orgevents.FetchRequest
	return d.p.Transaction(ctx, func(ctx context.Context, tx persistence.DBTX) error {
		for _, ev := range batch.Events {
			evFetches, err := d.processEvent(ctx, tx, ev)
			if err != nil {
				return err
			}
			fetches = append(fetches, evFetches...)
		}

		lastBlock := batch.Events[len(batch.Events)-1].BlockNumber
		if err := d.writeCheckpoint(ctx, tx, lastBlock); err != nil {
			return err
		}

		if d.fetcher != nil && len(fetches) > 0 {
			tx.AddPostCommit(func(ctx context.Context) {
				d.fetcher.RequestContent(ctx, fetches)
			})
		}
		return nil
	})
}

// Checkpoint returns the last processed block for the stream, or -1
// before the first batch commits
func (d *Dispatcher) Checkpoint(ctx context.Context) (int64, error) {
	cp, found, err := reconcile.Lookup[entities.DispatchCheckpoint](ctx, d.p.NOTX(), "stream", d.streamName)
	if err != nil || !found {
		return -1, err
	}
	return cp.BlockNumber, nil
}

func (d *Dispatcher) validateBatch(ctx context.Context, batch *orgevents.EventDeliveryBatch) error {
	lastBlock := int64(-1)
	lastLogIndex := int64(-1)
	for i, ev := range batch.Events {
		if ev.TxHash.IsZero() {
			return i18n.NewError(ctx, msgs.MsgDispatcherEventMissingField, i, "txHash")
		}
		if ev.Kind == "" {
			return i18n.NewError(ctx, msgs.MsgDispatcherEventMissingField, i, "kind")
		}
		inOrder := ev.BlockNumber > lastBlock ||
			(ev.BlockNumber == lastBlock && ev.LogIndex > lastLogIndex)
		if !inOrder {
			return i18n.NewError(ctx, msgs.MsgDispatcherBatchOutOfOrder, i, ev.BlockNumber, ev.LogIndex, lastBlock, lastLogIndex)
		}
		lastBlock = ev.BlockNumber
		lastLogIndex = ev.LogIndex
	}
	return nil
}

func (d *Dispatcher) processEvent(ctx context.Context, tx persistence.DBTX, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	// Registry events run first-class so contract records they create are
	// visible to later events in the same batch
	if ev.ContractAddress.Equals(&d.registryAddr) {
		red, err := d.reducers.ForKind(ctx, entities.ContractKindRegistry)
		if err != nil {
			return nil, err
		}
		return red.Apply(ctx, tx, nil, ev)
	}

	route, err := d.resolveRoute(ctx, tx, ev.ContractAddress)
	if err != nil {
		return nil, err
	}
	if route == nil {
		log.L(ctx).Debugf("Dropping %s event for unknown contract %s tx=%s logIndex=%d", ev.Kind, ev.ContractAddress, ev.TxHash, ev.LogIndex)
		return nil, nil
	}

	red, err := d.reducers.ForKind(ctx, route.kind)
	if err != nil {
		return nil, err
	}
	return red.Apply(ctx, tx, &entities.OrgContract{
		Address: route.address,
		Org:     route.org,
		Kind:    route.kind.Enum(),
	}, ev)
}

// resolveRoute looks up the contract identity, via the LRU cache when
// possible. Unknown addresses are never cached, so a later deployment
// for the same address is picked up immediately.
func (d *Dispatcher) resolveRoute(ctx context.Context, tx persistence.DBTX, address types.EthAddress) (*contractRoute, error) {
	if route, ok := d.routeCache.Get(address); ok {
		return route, nil
	}
	c, found, err := reconcile.Lookup[entities.OrgContract](ctx, tx, "address", address)
	if err != nil || !found {
		return nil, err
	}
	route := &contractRoute{
		address: c.Address,
		org:     c.Org,
		kind:    c.Kind.V(),
	}
	d.routeCache.Set(address, route)
	return route, nil
}

func (d *Dispatcher) writeCheckpoint(ctx context.Context, tx persistence.DBTX, blockNumber int64) error {
	return tx.DB().
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stream"}},
			DoUpdates: clause.AssignmentColumns([]string{"block_number", "updated"}),
		}).
		Create(&entities.DispatchCheckpoint{
			Stream:      d.streamName,
			BlockNumber: blockNumber,
			Updated:     types.TimestampNow(),
		}).
		Error
}
