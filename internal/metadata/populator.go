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

// Package metadata populates content records from bytes the host fetched
// for a locator. Population is decoupled from event processing: a slow
// or failed fetch never stalls indexing, and deliveries arrive on the
// host's schedule, possibly repeated.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/orgstream-labs/orgindexer/internal/cache"
	"github.com/orgstream-labs/orgindexer/internal/confutil"
	"github.com/orgstream-labs/orgindexer/internal/entities"
	"github.com/orgstream-labs/orgindexer/internal/msgs"
	"github.com/orgstream-labs/orgindexer/internal/retry"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
	"gorm.io/gorm/clause"
)

type Config struct {
	WorkerCount    *int                `json:"workerCount"`
	BatchTimeout   *string             `json:"batchTimeout"`
	BatchMaxSize   *int                `json:"batchMaxSize"`
	Retry          retry.ConfigWithMax `json:"retry"`
	PopulatedCache cache.Config        `json:"populatedCache"`
}

var ConfigDefaults = &Config{
	WorkerCount:  confutil.P(4),
	BatchTimeout: confutil.P("75ms"),
	BatchMaxSize: confutil.P(50),
	PopulatedCache: cache.Config{
		Capacity: confutil.P(1000),
	},
}

// ContentDelivery is one locator's raw bytes, as fetched by the host
type ContentDelivery struct {
	Locator string `json:"locator"`
	Data    []byte `json:"data"`
}

// Operation tracks one queued delivery through to its flush
type Operation interface {
	WaitFlushed(ctx context.Context) error
}

type op struct {
	id       string
	delivery *ContentDelivery
	shutdown bool
	done     chan error
}

func (o *op) WaitFlushed(ctx context.Context) error {
	select {
	case err := <-o.done:
		return err
	case <-ctx.Done():
		return i18n.NewError(ctx, msgs.MsgContextCanceled)
	}
}

type Populator struct {
	bgCtx        context.Context
	cancelCtx    context.CancelFunc
	p            persistence.Persistence
	retry        *retry.Retry
	populatorID  string
	workerCount  int
	batchTimeout time.Duration
	batchMaxSize int
	populated    cache.Cache[string, bool]
	workQueues   []chan *op
	workersDone  []chan struct{}
}

func NewPopulator(bgCtx context.Context, conf *Config, p persistence.Persistence) *Populator {
	pop := &Populator{
		p:            p,
		retry:        retry.NewRetryLimited(&conf.Retry),
		populatorID:  types.ShortID(),
		workerCount:  confutil.IntMin(conf.WorkerCount, 1, *ConfigDefaults.WorkerCount),
		batchTimeout: confutil.DurationMin(conf.BatchTimeout, 0, confutil.Duration(ConfigDefaults.BatchTimeout, 0)),
		batchMaxSize: confutil.IntMin(conf.BatchMaxSize, 1, *ConfigDefaults.BatchMaxSize),
		populated:    cache.NewCache[string, bool](&conf.PopulatedCache, &ConfigDefaults.PopulatedCache),
	}
	pop.bgCtx, pop.cancelCtx = context.WithCancel(bgCtx)
	return pop
}

func (pop *Populator) Start() {
	log.L(pop.bgCtx).Debugf("Starting %d workers for populator %s", pop.workerCount, pop.populatorID)
	pop.workQueues = make([]chan *op, pop.workerCount)
	pop.workersDone = make([]chan struct{}, pop.workerCount)
	for i := 0; i < pop.workerCount; i++ {
		pop.workQueues[i] = make(chan *op, pop.batchMaxSize)
		pop.workersDone[i] = make(chan struct{})
		go pop.worker(i)
	}
}

// Stop quiesces the workers, letting any batch in flight complete
func (pop *Populator) Stop() {
	shutdownOps := make([]*op, len(pop.workersDone))
	for i := range pop.workersDone {
		shutdownOps[i] = &op{shutdown: true, done: make(chan error)}
		select {
		case pop.workQueues[i] <- shutdownOps[i]:
		case <-pop.bgCtx.Done():
		}
	}
	for i, workerDone := range pop.workersDone {
		select {
		case <-shutdownOps[i].done:
		case <-pop.bgCtx.Done():
		}
		<-workerDone
	}
	pop.cancelCtx()
}

// Queue hands one delivery to the worker owning its locator. All
// deliveries for the same locator go to the same worker, so the
// first-delivery-wins check never races with itself.
func (pop *Populator) Queue(ctx context.Context, delivery *ContentDelivery) Operation {
	o := &op{
		id:       types.ShortID(),
		delivery: delivery,
		done:     make(chan error, 1),
	}
	if _, known := pop.populated.Get(delivery.Locator); known {
		o.done <- nil
		return o
	}
	select {
	case <-pop.bgCtx.Done():
		o.done <- i18n.NewError(ctx, msgs.MsgContentPopulatorStopped)
		return o
	default:
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(delivery.Locator))
	routine := h.Sum32() % uint32(pop.workerCount)
	log.L(ctx).Debugf("Queuing content delivery %s for %s to populator_%s_%.4d", o.id, delivery.Locator, pop.populatorID, routine)
	select {
	case pop.workQueues[routine] <- o:
	case <-ctx.Done():
		o.done <- i18n.NewError(ctx, msgs.MsgContextCanceled)
	case <-pop.bgCtx.Done():
		o.done <- i18n.NewError(ctx, msgs.MsgContentPopulatorStopped)
	}
	return o
}

type batch struct {
	id             string
	opened         time.Time
	ops            []*op
	timeoutContext context.Context
	timeoutCancel  func()
}

func (pop *Populator) worker(i int) {
	defer close(pop.workersDone[i])
	workerID := fmt.Sprintf("populator_%s_%.4d", pop.populatorID, i)
	ctx := log.WithLogField(pop.bgCtx, "job", workerID)
	l := log.L(ctx)
	var b *batch
	batchCount := 0
	workQueue := pop.workQueues[i]
	var shutdownRequest *op
	for shutdownRequest == nil {
		var timeoutContext context.Context
		var timedOutOrFlush bool
		if b != nil {
			timeoutContext = b.timeoutContext
		} else {
			timeoutContext = ctx
		}
		select {
		case o := <-workQueue:
			if o.shutdown {
				shutdownRequest = o
				timedOutOrFlush = true
				break
			}
			if b == nil {
				b = &batch{
					id:     fmt.Sprintf("%.4d_%.9d", i, batchCount),
					opened: time.Now(),
				}
				b.timeoutContext, b.timeoutCancel = context.WithTimeout(ctx, pop.batchTimeout)
				batchCount++
			}
			b.ops = append(b.ops, o)
			l.Debugf("Added delivery %s to batch %s (len=%d)", o.id, b.id, len(b.ops))
		case <-timeoutContext.Done():
			timedOutOrFlush = true
			select {
			case <-ctx.Done():
				l.Debugf("Populator worker ending")
				return
			default:
			}
		}

		if b != nil && (timedOutOrFlush || (len(b.ops) >= pop.batchMaxSize)) {
			b.timeoutCancel()
			l.Debugf("Running batch %s (len=%d,timeout=%t,age=%dms)", b.id, len(b.ops), timedOutOrFlush, time.Since(b.opened).Milliseconds())
			pop.runBatch(ctx, b)
			b = nil
		}

		if shutdownRequest != nil {
			close(shutdownRequest.done)
		}
	}
}

func (pop *Populator) runBatch(ctx context.Context, b *batch) {
	// First delivery for a locator wins within the batch too
	deliveries := make([]*ContentDelivery, 0, len(b.ops))
	seen := make(map[string]bool)
	for _, o := range b.ops {
		if !seen[o.delivery.Locator] {
			seen[o.delivery.Locator] = true
			deliveries = append(deliveries, o.delivery)
		}
	}

	// Only locators whose record actually reached populated state go in
	// the cache, so an unparseable delivery never blocks a later retry
	populated := make(map[string]bool, len(deliveries))
	err := pop.retry.Do(ctx, func(attempt int) (bool, error) {
		return true, pop.p.Transaction(ctx, func(ctx context.Context, tx persistence.DBTX) error {
			for _, d := range deliveries {
				isPopulated, err := pop.populateOne(ctx, tx, d)
				if err != nil {
					return err
				}
				populated[d.Locator] = isPopulated
			}
			return nil
		})
	})
	if err != nil {
		log.L(ctx).Errorf("Content batch %s failed: %s", b.id, err)
	} else {
		for _, d := range deliveries {
			if populated[d.Locator] {
				pop.populated.Set(d.Locator, true)
			}
		}
	}
	for _, o := range b.ops {
		o.done <- err
	}
}

// populateOne writes the content record for one delivery and reports
// whether the record is populated afterwards, so the caller knows if
// the locator may be cached as done.
func (pop *Populator) populateOne(ctx context.Context, tx persistence.DBTX, d *ContentDelivery) (bool, error) {
	var existing []*entities.ContentRecord
	if err := tx.DB().WithContext(ctx).Where("locator = ?", d.Locator).Limit(1).Find(&existing).Error; err != nil {
		return false, err
	}
	if len(existing) > 0 && existing[0].Populated {
		log.L(ctx).Debugf("Content %s already populated", d.Locator)
		return true, nil
	}

	rec := parseDocument(ctx, d.Locator, d.Data)
	if len(existing) == 0 {
		if err := tx.DB().WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "locator"}},
				DoNothing: true,
			}).
			Create(rec).Error; err != nil {
			return false, err
		}
	} else if rec.Populated {
		// Upgrade a record left behind by an earlier unparseable delivery
		if err := tx.DB().WithContext(ctx).Model(&entities.ContentRecord{}).Where("locator = ?", d.Locator).Updates(map[string]any{
			"populated":    true,
			"name":         rec.Name,
			"description":  rec.Description,
			"external_url": rec.ExternalURL,
			"tags":         rec.Tags,
		}).Error; err != nil {
			return false, err
		}
	}

	if rec.Populated && rec.Name != "" {
		return true, pop.fillNames(ctx, tx, d.Locator, rec.Name)
	}
	return rec.Populated, nil
}

// fillNames denormalizes the content name onto entities referencing the
// locator, without overwriting a name set explicitly by an event
func (pop *Populator) fillNames(ctx context.Context, tx persistence.DBTX, locator, name string) error {
	if err := tx.DB().WithContext(ctx).Model(&entities.Org{}).
		Where("metadata_locator = ? AND name = ''", locator).
		UpdateColumn("name", name).Error; err != nil {
		return err
	}
	if err := tx.DB().WithContext(ctx).Model(&entities.Task{}).
		Where("metadata_locator = ? AND title = ''", locator).
		UpdateColumn("title", name).Error; err != nil {
		return err
	}
	return tx.DB().WithContext(ctx).Model(&entities.Project{}).
		Where("metadata_locator = ? AND name = ''", locator).
		UpdateColumn("name", name).Error
}

type metadataDocument struct {
	Name        json.RawMessage `json:"name"`
	Description json.RawMessage `json:"description"`
	ExternalURL json.RawMessage `json:"external_url"`
	Tags        json.RawMessage `json:"tags"`
}

// parseDocument is deliberately tolerant. Content is user supplied, so a
// wrong-typed field is dropped rather than failing the document, and a
// document that is not JSON at all still gets an unpopulated record so
// the locator is not fetched again.
func parseDocument(ctx context.Context, locator string, data []byte) *entities.ContentRecord {
	rec := &entities.ContentRecord{Locator: locator}
	var doc metadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.L(ctx).Warnf("Content %s is not parseable metadata: %s", locator, err)
		return rec
	}
	rec.Populated = true
	rec.Name = stringField(ctx, locator, "name", doc.Name)
	rec.Description = stringField(ctx, locator, "description", doc.Description)
	rec.ExternalURL = stringField(ctx, locator, "external_url", doc.ExternalURL)
	if doc.Tags != nil {
		var tags []any
		if err := json.Unmarshal(doc.Tags, &tags); err == nil {
			rec.Tags = types.RawJSON(doc.Tags)
		} else {
			log.L(ctx).Debugf("Dropping non-array tags field on content %s", locator)
		}
	}
	return rec
}

func stringField(ctx context.Context, locator, field string, raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		log.L(ctx).Debugf("Dropping wrong-typed %s field on content %s", field, locator)
		return ""
	}
	return s
}
