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

// Package orgindexer is the embedding surface of the engine. The host
// owns chain synchronization, event decoding and content fetching; this
// package owns materializing those events into the entity graph.
package orgindexer

import (
	"context"
	"sync/atomic"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/orgstream-labs/orgindexer/internal/dispatcher"
	"github.com/orgstream-labs/orgindexer/internal/metadata"
	"github.com/orgstream-labs/orgindexer/internal/msgs"
	"github.com/orgstream-labs/orgindexer/internal/reducers"
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
)

type Engine struct {
	p          persistence.Persistence
	dispatcher *dispatcher.Dispatcher
	populator  *metadata.Populator
	started    atomic.Bool
}

// NewEngine initializes the database (running migrations when configured
// to) and wires the dispatcher and content populator. The fetcher may be
// nil for hosts that never resolve content locators.
func NewEngine(ctx context.Context, conf *Config, fetcher orgevents.ContentFetcher) (e *Engine, err error) {
	if conf.RegistryAddress == nil {
		return nil, i18n.NewError(ctx, msgs.MsgConfigMissingRegistryAddress)
	}
	policies, err := conf.StubPolicies.policies(ctx)
	if err != nil {
		return nil, err
	}

	p, err := persistence.NewPersistence(ctx, &conf.DB)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	d, err := dispatcher.NewDispatcher(ctx, &conf.Dispatcher, *conf.RegistryAddress, p, reducers.NewRegistry(policies), fetcher)
	if err != nil {
		return nil, err
	}
	return &Engine{
		p:          p,
		dispatcher: d,
		populator:  metadata.NewPopulator(ctx, &conf.Populator, p),
	}, nil
}

func (e *Engine) Start() {
	e.populator.Start()
	e.started.Store(true)
}

func (e *Engine) Stop() {
	if !e.started.CompareAndSwap(true, false) {
		return
	}
	e.populator.Stop()
	e.p.Close()
}

// ProcessEvents applies one canonical-order batch, committing all of its
// writes and the stream checkpoint in a single database transaction.
// Returning an error means nothing committed and the host must redeliver.
func (e *Engine) ProcessEvents(ctx context.Context, batch *orgevents.EventDeliveryBatch) error {
	if !e.started.Load() {
		return i18n.NewError(ctx, msgs.MsgDispatcherNotStarted)
	}
	return e.dispatcher.ProcessBatch(ctx, batch)
}

// PopulateContent ingests fetched content bytes. It blocks until every
// delivery has flushed; deliveries for locators already populated are
// cheap no-ops, so the host may redeliver freely.
func (e *Engine) PopulateContent(ctx context.Context, deliveries []*metadata.ContentDelivery) error {
	if !e.started.Load() {
		return i18n.NewError(ctx, msgs.MsgDispatcherNotStarted)
	}
	ops := make([]metadata.Operation, len(deliveries))
	for i, d := range deliveries {
		ops[i] = e.populator.Queue(ctx, d)
	}
	var firstErr error
	for i, op := range ops {
		if err := op.WaitFlushed(ctx); err != nil {
			log.L(ctx).Errorf("Content delivery %s failed: %s", deliveries[i].Locator, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Checkpoint is the block number of the last committed batch, or -1
func (e *Engine) Checkpoint(ctx context.Context) (int64, error) {
	return e.dispatcher.Checkpoint(ctx)
}

// Persistence exposes the underlying database for host queries
func (e *Engine) Persistence() persistence.Persistence {
	return e.p
}
