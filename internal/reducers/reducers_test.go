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
	"fmt"
	"testing"

	"github.com/orgstream-labs/orgindexer/internal/entities"
	"github.com/orgstream-labs/orgindexer/internal/ids"
	"github.com/orgstream-labs/orgindexer/internal/reconcile"
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	orgAddr       = types.MustEthAddress("0x7e5f4552091a69125d5dfcb7b8c2659029395bdf")
	taskboardAddr = types.MustEthAddress("0x2b5ad5c4795c026514f8317c7a215e218dccd6cf")
	paymentsAddr  = types.MustEthAddress("0x6813eb9362372eef6200f3b1dbc3f819671cba69")
	memberAddr    = types.MustEthAddress("0x1efF47bc3a10a45D4B230B5d10E37751FE6AA718")
)

type reducerTest struct {
	ctx      context.Context
	p        persistence.Persistence
	registry *Registry
	logIndex int64
}

func newReducerTest(t *testing.T) *reducerTest {
	ctx := context.Background()
	p, done, err := persistence.NewUnitTestPersistence(ctx, "reducers")
	require.NoError(t, err)
	t.Cleanup(done)
	return &reducerTest{
		ctx:      ctx,
		p:        p,
		registry: NewRegistry(nil),
	}
}

// event builds a uniquely-coordinated event unless the caller re-uses
// coordinates to simulate a replay
func (rt *reducerTest) event(contract types.EthAddress, kind, data string) *orgevents.Event {
	rt.logIndex++
	return &orgevents.Event{
		ContractAddress: contract,
		Kind:            kind,
		Data:            types.RawJSON(data),
		BlockNumber:     100,
		BlockTimestamp:  types.TimestampFromUnix(1732006860),
		TxHash:          types.MustParseBytes32("0x39e5e8e3e7a1e6b0f9c2a35b1a7d47371b273c8d95a1f6e4c2d90b7a83f4e619"),
		LogIndex:        rt.logIndex,
	}
}

func (rt *reducerTest) apply(t *testing.T, c *entities.OrgContract, ev *orgevents.Event) []*orgevents.FetchRequest {
	var fetches []*orgevents.FetchRequest
	err := rt.p.Transaction(rt.ctx, func(ctx context.Context, tx persistence.DBTX) error {
		var kind entities.ContractKind
		if c == nil {
			kind = entities.ContractKindRegistry
		} else {
			kind = c.Kind.V()
		}
		red, err := rt.registry.ForKind(ctx, kind)
		require.NoError(t, err)
		fetches, err = red.Apply(ctx, tx, c, ev)
		return err
	})
	require.NoError(t, err)
	return fetches
}

func (rt *reducerTest) deployOrgWithModules(t *testing.T) {
	ev := rt.event(types.EthAddress{}, EventOrgDeployed, fmt.Sprintf(`{
		"org": "%s",
		"name": "orgstream-collective",
		"modules": [
			{"address": "%s", "kind": "taskboard"},
			{"address": "%s", "kind": "payments"}
		]
	}`, orgAddr, taskboardAddr, paymentsAddr))
	rt.apply(t, nil, ev)
}

func (rt *reducerTest) contract(t *testing.T, addr types.EthAddress) *entities.OrgContract {
	var c *entities.OrgContract
	err := rt.p.Transaction(rt.ctx, func(ctx context.Context, tx persistence.DBTX) error {
		var found bool
		var err error
		c, found, err = reconcile.RequireExisting[entities.OrgContract](ctx, tx, "address", addr)
		require.True(t, found)
		return err
	})
	require.NoError(t, err)
	return c
}

func (rt *reducerTest) task(t *testing.T, taskID string) *entities.Task {
	var task *entities.Task
	err := rt.p.Transaction(rt.ctx, func(ctx context.Context, tx persistence.DBTX) error {
		var err error
		task, _, err = reconcile.RequireExisting[entities.Task](ctx, tx, "id", taskID)
		return err
	})
	require.NoError(t, err)
	return task
}

func (rt *reducerTest) member(t *testing.T, memberID string) *entities.OrgMember {
	var m *entities.OrgMember
	err := rt.p.Transaction(rt.ctx, func(ctx context.Context, tx persistence.DBTX) error {
		var err error
		m, _, err = reconcile.RequireExisting[entities.OrgMember](ctx, tx, "id", memberID)
		return err
	})
	require.NoError(t, err)
	return m
}

func TestOrgDeployedCreatesContractRecords(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)

	c := rt.contract(t, *taskboardAddr)
	assert.Equal(t, entities.ContractKindTaskboard, c.Kind.V())
	assert.Equal(t, *orgAddr, c.Org)
	assert.Zero(t, c.NextLocalID)

	p := rt.contract(t, *paymentsAddr)
	assert.Equal(t, entities.ContractKindPayments, p.Kind.V())
}

func TestTaskLifecycleWithCounters(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)

	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCreated, `{"localId": 1, "title": "write docs", "cap": "1000"}`))
	taskID := ids.Composite(*taskboardAddr, 1)

	task := rt.task(t, taskID)
	require.NotNil(t, task)
	assert.Equal(t, entities.TaskStatusOpen, task.Status.V())
	assert.Equal(t, "write docs", task.Title)

	c = rt.contract(t, *taskboardAddr)
	assert.Equal(t, int64(1), c.NextLocalID)
	assert.Equal(t, int64(1), c.TotalTasks)

	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskAssigned, fmt.Sprintf(`{"localId": 1, "assignee": "%s"}`, memberAddr)))
	task = rt.task(t, taskID)
	assert.Equal(t, entities.TaskStatusAssigned, task.Status.V())
	assert.True(t, task.Assignee.Equals(memberAddr))

	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCompleted, fmt.Sprintf(`{"localId": 1, "completer": "%s"}`, memberAddr)))
	task = rt.task(t, taskID)
	assert.Equal(t, entities.TaskStatusCompleted, task.Status.V())
	require.NotNil(t, task.CompletedAt)

	m := rt.member(t, ids.TenantScoped(*orgAddr, *memberAddr))
	require.NotNil(t, m)
	assert.Equal(t, int64(1), m.TotalTasksCompleted)
}

func TestTaskCompletedReplayDoesNotDoubleCount(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)

	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCreated, `{"localId": 1, "title": "ship release"}`))

	completed := rt.event(*taskboardAddr, EventTaskCompleted, fmt.Sprintf(`{"localId": 1, "completer": "%s"}`, memberAddr))
	rt.apply(t, c, completed)
	// Same (txHash, logIndex) delivered again after a restart
	rt.apply(t, c, completed)

	m := rt.member(t, ids.TenantScoped(*orgAddr, *memberAddr))
	require.NotNil(t, m)
	assert.Equal(t, int64(1), m.TotalTasksCompleted)

	task := rt.task(t, ids.Composite(*taskboardAddr, 1))
	assert.Equal(t, entities.TaskStatusCompleted, task.Status.V())
}

func TestTaskCompletedBackfillsAssignee(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)

	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCreated, `{"localId": 7, "title": "fix flaky test"}`))
	// Completed without a prior TaskAssigned
	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCompleted, fmt.Sprintf(`{"localId": 7, "completer": "%s"}`, memberAddr)))

	task := rt.task(t, ids.Composite(*taskboardAddr, 7))
	require.NotNil(t, task.Assignee)
	assert.True(t, task.Assignee.Equals(memberAddr))
}

func TestStubThenFill(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)
	taskID := ids.Composite(*taskboardAddr, 5)

	// Cap set arrives before the creation event in the same transaction
	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCapSet, `{"localId": 5, "cap": "2500"}`))

	task := rt.task(t, taskID)
	require.NotNil(t, task)
	assert.True(t, task.Stub)
	assert.Equal(t, "2500", task.Cap)
	assert.Empty(t, task.Title)

	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCreated, `{"localId": 5, "title": "audit contracts", "cap": "1000"}`))

	task = rt.task(t, taskID)
	assert.False(t, task.Stub)
	assert.Equal(t, "audit contracts", task.Title)
	// The configured cap on the stub persists over the creation default
	assert.Equal(t, "2500", task.Cap)
}

func TestStatusTransitionDropsOnMissingTask(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)

	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskAssigned, fmt.Sprintf(`{"localId": 99, "assignee": "%s"}`, memberAddr)))

	task := rt.task(t, ids.Composite(*taskboardAddr, 99))
	assert.Nil(t, task)
}

func TestTaskStatusNeverMovesBackward(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)
	taskID := ids.Composite(*taskboardAddr, 3)

	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCreated, `{"localId": 3, "title": "rotate keys"}`))
	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskAssigned, fmt.Sprintf(`{"localId": 3, "assignee": "%s"}`, memberAddr)))
	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskSubmitted, `{"localId": 3}`))

	// A late assignment event must not regress the submitted task
	otherAssignee := types.MustEthAddress("0xd1c24f50d05946b3fabefbae3cd0a7e9938c63f2")
	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskAssigned, fmt.Sprintf(`{"localId": 3, "assignee": "%s"}`, otherAssignee)))

	task := rt.task(t, taskID)
	assert.Equal(t, entities.TaskStatusSubmitted, task.Status.V())
	require.NotNil(t, task.Assignee)
	assert.True(t, task.Assignee.Equals(memberAddr))

	// Cancellation still reaches any non-terminal state
	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCancelled, `{"localId": 3}`))
	task = rt.task(t, taskID)
	assert.Equal(t, entities.TaskStatusCancelled, task.Status.V())
}

func TestRoleKindsAreIndependent(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)

	hatID := "26959946667150639794667015087019630673637144422540572481103610249216"
	rt.apply(t, c, rt.event(*taskboardAddr, EventRoleStatusSet, fmt.Sprintf(`{"hatId": "%s", "hatType": 0, "allowed": true}`, hatID)))
	rt.apply(t, c, rt.event(*taskboardAddr, EventRoleStatusSet, fmt.Sprintf(`{"hatId": "%s", "hatType": 1, "allowed": false}`, hatID)))

	err := rt.p.Transaction(rt.ctx, func(ctx context.Context, tx persistence.DBTX) error {
		creator, found, err := reconcile.RequireExisting[entities.RolePermission](ctx, tx, "id", ids.RolePermission(*taskboardAddr, hatID, "creator"))
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, creator.Allowed)

		member, found, err := reconcile.RequireExisting[entities.RolePermission](ctx, tx, "id", ids.RolePermission(*taskboardAddr, hatID, "member"))
		require.NoError(t, err)
		require.True(t, found)
		assert.False(t, member.Allowed)
		return nil
	})
	require.NoError(t, err)

	c = rt.contract(t, *taskboardAddr)
	assert.Equal(t, hatID, c.CreatorHatID)
}

func TestApproverRoleSetUpsert(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)

	hatID := "42"
	rt.apply(t, c, rt.event(*taskboardAddr, EventApproverSet, fmt.Sprintf(`{"hatId": "%s", "allowed": true}`, hatID)))
	rt.apply(t, c, rt.event(*taskboardAddr, EventApproverSet, fmt.Sprintf(`{"hatId": "%s", "allowed": false}`, hatID)))

	err := rt.p.Transaction(rt.ctx, func(ctx context.Context, tx persistence.DBTX) error {
		perm, found, err := reconcile.RequireExisting[entities.RolePermission](ctx, tx, "id", ids.RolePermission(*taskboardAddr, hatID, "approver"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, entities.RoleKindApprover, perm.RoleKind.V())
		assert.False(t, perm.Allowed)
		return nil
	})
	require.NoError(t, err)
}

func TestDistributionClaimFlow(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *paymentsAddr)

	rt.apply(t, c, rt.event(*paymentsAddr, EventDistributionCreated, `{"localId": 1, "total": "1000"}`))
	rt.apply(t, c, rt.event(*paymentsAddr, EventDistributionClaimed, fmt.Sprintf(`{"localId": 1, "claimant": "%s", "amount": "400"}`, memberAddr)))

	err := rt.p.Transaction(rt.ctx, func(ctx context.Context, tx persistence.DBTX) error {
		dist, found, err := reconcile.RequireExisting[entities.Distribution](ctx, tx, "id", ids.Composite(*paymentsAddr, 1))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "400", dist.Claimed)
		assert.Equal(t, entities.DistributionStatusActive, dist.Status.V())
		return nil
	})
	require.NoError(t, err)

	// Claiming the remainder completes the distribution
	rt.apply(t, c, rt.event(*paymentsAddr, EventDistributionClaimed, fmt.Sprintf(`{"localId": 1, "claimant": "%s", "amount": "600"}`, memberAddr)))

	err = rt.p.Transaction(rt.ctx, func(ctx context.Context, tx persistence.DBTX) error {
		dist, _, err := reconcile.RequireExisting[entities.Distribution](ctx, tx, "id", ids.Composite(*paymentsAddr, 1))
		require.NoError(t, err)
		assert.Equal(t, "1000", dist.Claimed)
		assert.Equal(t, entities.DistributionStatusCompleted, dist.Status.V())
		return err
	})
	require.NoError(t, err)

	m := rt.member(t, ids.TenantScoped(*orgAddr, *memberAddr))
	require.NotNil(t, m)
	assert.Equal(t, "1000", m.TotalClaimed)
}

func (rt *reducerTest) distribution(t *testing.T, distID string) *entities.Distribution {
	var dist *entities.Distribution
	err := rt.p.Transaction(rt.ctx, func(ctx context.Context, tx persistence.DBTX) error {
		var err error
		dist, _, err = reconcile.Lookup[entities.Distribution](ctx, tx, "id", distID)
		return err
	})
	require.NoError(t, err)
	return dist
}

func TestEligibilityBatchDropsOnMissingDistribution(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *paymentsAddr)

	// Default policy for distributions is drop
	rt.apply(t, c, rt.event(*paymentsAddr, EventEligibilityBatchUpdated, fmt.Sprintf(`{
		"localId": 9, "accounts": ["%s"]
	}`, memberAddr)))

	assert.Nil(t, rt.distribution(t, ids.Composite(*paymentsAddr, 9)))
	assert.Nil(t, rt.member(t, ids.TenantScoped(*orgAddr, *memberAddr)))
}

func TestEligibilityBatchStubsDistributionWhenConfigured(t *testing.T) {
	rt := newReducerTest(t)
	rt.registry = NewRegistry(&Policies{
		Tasks:         StubPolicyStub,
		Projects:      StubPolicyStub,
		Distributions: StubPolicyStub,
	})
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *paymentsAddr)
	distID := ids.Composite(*paymentsAddr, 2)
	root := "0x8b5f1a9fa6a04a17de9c3a10c6c05246c2fbeef75ec1fdcfa4c2b46d32f4e0a1"

	// Eligibility arrives before the creation event
	rt.apply(t, c, rt.event(*paymentsAddr, EventEligibilityBatchUpdated, fmt.Sprintf(`{
		"localId": 2, "eligibilityRoot": "%s", "accounts": ["%s"]
	}`, root, memberAddr)))

	dist := rt.distribution(t, distID)
	require.NotNil(t, dist)
	assert.True(t, dist.Stub)
	require.NotNil(t, dist.EligibilityRoot)
	assert.Equal(t, root, dist.EligibilityRoot.String())

	m := rt.member(t, ids.TenantScoped(*orgAddr, *memberAddr))
	require.NotNil(t, m)
	assert.True(t, m.Active)

	// The creation event fills the stub, keeping the root already set
	rt.apply(t, c, rt.event(*paymentsAddr, EventDistributionCreated, `{"localId": 2, "total": "5000"}`))

	dist = rt.distribution(t, distID)
	require.NotNil(t, dist)
	assert.False(t, dist.Stub)
	assert.Equal(t, "5000", dist.Total)
	require.NotNil(t, dist.EligibilityRoot)
	assert.Equal(t, root, dist.EligibilityRoot.String())

	// Claims work against the filled distribution
	rt.apply(t, c, rt.event(*paymentsAddr, EventDistributionClaimed, fmt.Sprintf(`{"localId": 2, "claimant": "%s", "amount": "5000"}`, memberAddr)))
	dist = rt.distribution(t, distID)
	assert.Equal(t, entities.DistributionStatusCompleted, dist.Status.V())
}

func TestCrossContractIsolation(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)

	// Second org with its own taskboard, same localId numbering space
	otherBoard := types.MustEthAddress("0xe1AB8145F7E55DC933d51a18c793F901A3A0b276")
	otherOrg := types.MustEthAddress("0xe57bFE9F44b819898F47BF37E5AF72a0783e1141")
	rt.apply(t, nil, rt.event(types.EthAddress{}, EventOrgDeployed, fmt.Sprintf(`{
		"org": "%s", "name": "other", "modules": [{"address": "%s", "kind": "taskboard"}]
	}`, otherOrg, otherBoard)))

	c1 := rt.contract(t, *taskboardAddr)
	c2 := rt.contract(t, *otherBoard)

	rt.apply(t, c1, rt.event(*taskboardAddr, EventTaskCreated, `{"localId": 1, "title": "one", "cap": "1000"}`))
	rt.apply(t, c2, rt.event(*otherBoard, EventTaskCreated, `{"localId": 1, "title": "two", "cap": "2000"}`))

	t1 := rt.task(t, ids.Composite(*taskboardAddr, 1))
	t2 := rt.task(t, ids.Composite(*otherBoard, 1))
	require.NotNil(t, t1)
	require.NotNil(t, t2)
	assert.Equal(t, "1000", t1.Cap)
	assert.Equal(t, "2000", t2.Cap)

	// Mutating one never affects the other
	rt.apply(t, c2, rt.event(*otherBoard, EventTaskCapSet, `{"localId": 1, "cap": "9999"}`))
	t1 = rt.task(t, ids.Composite(*taskboardAddr, 1))
	assert.Equal(t, "1000", t1.Cap)
}

func TestMalformedDataSkipsWithoutError(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)

	rt.apply(t, c, rt.event(*taskboardAddr, EventTaskCreated, `{"localId": not json`))

	task := rt.task(t, ids.Composite(*taskboardAddr, 0))
	assert.Nil(t, task)
}

func TestUnknownEventKindSkips(t *testing.T) {
	rt := newReducerTest(t)
	rt.deployOrgWithModules(t)
	c := rt.contract(t, *taskboardAddr)

	fetches := rt.apply(t, c, rt.event(*taskboardAddr, "SomethingNew", `{}`))
	assert.Nil(t, fetches)
}

func TestRegistryUnknownKind(t *testing.T) {
	rt := newReducerTest(t)
	_, err := rt.registry.ForKind(rt.ctx, entities.ContractKind("widget"))
	assert.Regexp(t, "OI010300", err)
}
