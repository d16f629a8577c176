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

package metadata

import (
	"context"
	"testing"

	"github.com/orgstream-labs/orgindexer/internal/confutil"
	"github.com/orgstream-labs/orgindexer/internal/entities"
	"github.com/orgstream-labs/orgindexer/internal/ids"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLocator = "Qmf412jQZiuVUtdgnB36FXFX7xg5V6KEbSJ4dpQuhkLyfD"

var taskboardAddr = types.MustEthAddress("0x2b5ad5c4795c026514f8317c7a215e218dccd6cf")

func newPopulatorTest(t *testing.T) (context.Context, persistence.Persistence, *Populator) {
	ctx := context.Background()
	p, done, err := persistence.NewUnitTestPersistence(ctx, "metadata")
	require.NoError(t, err)
	t.Cleanup(done)

	pop := NewPopulator(ctx, &Config{
		WorkerCount:  confutil.P(2),
		BatchTimeout: confutil.P("10ms"),
	}, p)
	pop.Start()
	t.Cleanup(pop.Stop)
	return ctx, p, pop
}

func contentRecord(t *testing.T, ctx context.Context, p persistence.Persistence, locator string) *entities.ContentRecord {
	var recs []*entities.ContentRecord
	require.NoError(t, p.DB().WithContext(ctx).Where("locator = ?", locator).Limit(1).Find(&recs).Error)
	require.Len(t, recs, 1)
	return recs[0]
}

func TestPopulateContentAndFillTaskTitle(t *testing.T) {
	ctx, p, pop := newPopulatorTest(t)

	// A stub task referencing the locator, title not yet known
	taskID := ids.Composite(*taskboardAddr, 1)
	require.NoError(t, p.DB().WithContext(ctx).Create(&entities.Task{
		ID:              taskID,
		Contract:        *taskboardAddr,
		LocalID:         1,
		Status:          entities.TaskStatusOpen.Enum(),
		Stub:            true,
		MetadataLocator: testLocator,
	}).Error)

	err := pop.Queue(ctx, &ContentDelivery{
		Locator: testLocator,
		Data: []byte(`{
			"name": "triage inbox",
			"description": "keep the queue empty",
			"external_url": "https://orgstream.example/tasks/1",
			"tags": ["ops", "weekly"]
		}`),
	}).WaitFlushed(ctx)
	require.NoError(t, err)

	rec := contentRecord(t, ctx, p, testLocator)
	assert.True(t, rec.Populated)
	assert.Equal(t, "triage inbox", rec.Name)
	assert.Equal(t, "keep the queue empty", rec.Description)
	assert.Equal(t, "https://orgstream.example/tasks/1", rec.ExternalURL)
	assert.JSONEq(t, `["ops", "weekly"]`, rec.Tags.String())

	var task entities.Task
	require.NoError(t, p.DB().WithContext(ctx).Where("id = ?", taskID).First(&task).Error)
	assert.Equal(t, "triage inbox", task.Title)
}

func TestPopulateContentNeverOverwritesExplicitTitle(t *testing.T) {
	ctx, p, pop := newPopulatorTest(t)

	taskID := ids.Composite(*taskboardAddr, 2)
	require.NoError(t, p.DB().WithContext(ctx).Create(&entities.Task{
		ID:              taskID,
		Contract:        *taskboardAddr,
		LocalID:         2,
		Status:          entities.TaskStatusOpen.Enum(),
		Title:           "set by creation event",
		MetadataLocator: testLocator,
	}).Error)

	err := pop.Queue(ctx, &ContentDelivery{
		Locator: testLocator,
		Data:    []byte(`{"name": "from metadata"}`),
	}).WaitFlushed(ctx)
	require.NoError(t, err)

	var task entities.Task
	require.NoError(t, p.DB().WithContext(ctx).Where("id = ?", taskID).First(&task).Error)
	assert.Equal(t, "set by creation event", task.Title)
}

func TestPopulateContentWrongTypedFieldsDropped(t *testing.T) {
	ctx, p, pop := newPopulatorTest(t)

	err := pop.Queue(ctx, &ContentDelivery{
		Locator: testLocator,
		Data:    []byte(`{"name": 42, "description": "still fine", "tags": "not-an-array"}`),
	}).WaitFlushed(ctx)
	require.NoError(t, err)

	rec := contentRecord(t, ctx, p, testLocator)
	assert.True(t, rec.Populated)
	assert.Empty(t, rec.Name)
	assert.Equal(t, "still fine", rec.Description)
	assert.Nil(t, rec.Tags)
}

func TestPopulateContentGarbageThenUpgrade(t *testing.T) {
	ctx, p, pop := newPopulatorTest(t)

	err := pop.Queue(ctx, &ContentDelivery{
		Locator: testLocator,
		Data:    []byte(`not json at all`),
	}).WaitFlushed(ctx)
	require.NoError(t, err)

	rec := contentRecord(t, ctx, p, testLocator)
	assert.False(t, rec.Populated)

	// A later parseable delivery upgrades the unpopulated record
	err = pop.Queue(ctx, &ContentDelivery{
		Locator: testLocator,
		Data:    []byte(`{"name": "second attempt"}`),
	}).WaitFlushed(ctx)
	require.NoError(t, err)

	rec = contentRecord(t, ctx, p, testLocator)
	assert.True(t, rec.Populated)
	assert.Equal(t, "second attempt", rec.Name)
}

func TestPopulateContentFirstDeliveryWins(t *testing.T) {
	ctx, p, pop := newPopulatorTest(t)

	err := pop.Queue(ctx, &ContentDelivery{
		Locator: testLocator,
		Data:    []byte(`{"name": "first"}`),
	}).WaitFlushed(ctx)
	require.NoError(t, err)

	// Re-delivery is a no-op, whether it hits the cache or the database
	err = pop.Queue(ctx, &ContentDelivery{
		Locator: testLocator,
		Data:    []byte(`{"name": "second"}`),
	}).WaitFlushed(ctx)
	require.NoError(t, err)

	pop.populated.Delete(testLocator)
	err = pop.Queue(ctx, &ContentDelivery{
		Locator: testLocator,
		Data:    []byte(`{"name": "third"}`),
	}).WaitFlushed(ctx)
	require.NoError(t, err)

	rec := contentRecord(t, ctx, p, testLocator)
	assert.Equal(t, "first", rec.Name)
}

func TestPopulatorQueueAfterStop(t *testing.T) {
	ctx := context.Background()
	p, done, err := persistence.NewUnitTestPersistence(ctx, "metadata")
	require.NoError(t, err)
	defer done()

	pop := NewPopulator(ctx, &Config{WorkerCount: confutil.P(1)}, p)
	pop.Start()
	pop.Stop()

	err = pop.Queue(ctx, &ContentDelivery{Locator: testLocator, Data: []byte(`{}`)}).WaitFlushed(ctx)
	assert.Regexp(t, "OI010500", err)
}
