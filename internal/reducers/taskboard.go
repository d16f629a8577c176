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
	"github.com/orgstream-labs/orgindexer/internal/ids"
	"github.com/orgstream-labs/orgindexer/internal/reconcile"
	"github.com/orgstream-labs/orgindexer/pkg/orgevents"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

const (
	EventTaskCreated     = "TaskCreated"
	EventTaskAssigned    = "TaskAssigned"
	EventTaskSubmitted   = "TaskSubmitted"
	EventTaskCompleted   = "TaskCompleted"
	EventTaskCancelled   = "TaskCancelled"
	EventTaskCapSet      = "TaskCapSet"
	EventTaskApproverSet = "TaskApproverSet"
	EventApproverSet     = "ApproverSet"
)

type taskboardReducer struct {
	stubPolicy StubPolicy
}

func newTaskboardReducer(policies *Policies) *taskboardReducer {
	return &taskboardReducer{stubPolicy: policies.Tasks}
}

func (r *taskboardReducer) Kind() entities.ContractKind {
	return entities.ContractKindTaskboard
}

type taskCreatedParams struct {
	LocalID        uint64            `json:"localId"`
	Title          string            `json:"title"`
	Cap            string            `json:"cap"`
	Approver       *types.EthAddress `json:"approver"`
	MetadataDigest *types.Bytes32    `json:"metadataDigest"`
}

type taskAssignedParams struct {
	LocalID  uint64           `json:"localId"`
	Assignee types.EthAddress `json:"assignee"`
}

type taskLocalParams struct {
	LocalID uint64 `json:"localId"`
}

type taskCompletedParams struct {
	LocalID   uint64            `json:"localId"`
	Completer *types.EthAddress `json:"completer"`
}

type taskCapSetParams struct {
	LocalID uint64 `json:"localId"`
	Cap     string `json:"cap"`
}

type taskApproverSetParams struct {
	LocalID  uint64            `json:"localId"`
	Approver *types.EthAddress `json:"approver"`
}

type approverRoleSetParams struct {
	HatID   string `json:"hatId"`
	Allowed bool   `json:"allowed"`
}

func (r *taskboardReducer) Apply(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	if handled, err := applyCommonConfig(ctx, tx, c, ev); handled {
		return nil, err
	}
	switch ev.Kind {
	case EventTaskCreated:
		return r.applyCreated(ctx, tx, c, ev)
	case EventTaskAssigned:
		return r.applyAssigned(ctx, tx, c, ev)
	case EventTaskSubmitted:
		return r.applySubmitted(ctx, tx, c, ev)
	case EventTaskCompleted:
		return r.applyCompleted(ctx, tx, c, ev)
	case EventTaskCancelled:
		return r.applyCancelled(ctx, tx, c, ev)
	case EventTaskCapSet:
		return r.applyCapSet(ctx, tx, c, ev)
	case EventTaskApproverSet:
		return r.applyApproverSet(ctx, tx, c, ev)
	case EventApproverSet:
		return r.applyApproverRoleSet(ctx, tx, c, ev)
	default:
		return skipUnknown(ctx, ev)
	}
}

func (r *taskboardReducer) applyCreated(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params taskCreatedParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	taskID := ids.Composite(c.Address, params.LocalID)

	applied, err := appendTrail(ctx, tx, &c.Org, ev, taskID)
	if err != nil || !applied {
		return nil, err
	}

	task := &entities.Task{
		ID:           taskID,
		Contract:     c.Address,
		LocalID:      int64(params.LocalID),
		Org:          c.Org,
		Title:        params.Title,
		Status:       entities.TaskStatusOpen.Enum(),
		Cap:          params.Cap,
		Approver:     params.Approver,
		CreatedBlock: ev.BlockNumber,
	}
	var fetches []*orgevents.FetchRequest
	if params.MetadataDigest != nil {
		if locator, ok := contentid.DeriveLocator(*params.MetadataDigest); ok {
			task.MetadataDigest = params.MetadataDigest
			task.MetadataLocator = locator
			fetches = append(fetches, &orgevents.FetchRequest{
				Locator:    locator,
				EntityKind: "task",
				EntityKey:  taskID,
			})
		}
	}

	existing, created, err := reconcile.LoadOrCreate(ctx, tx, "id", taskID, task)
	if err != nil {
		return nil, err
	}
	if !created {
		if !existing.Stub {
			log.L(ctx).Warnf("Duplicate creation for task %s ignored", taskID)
			return nil, nil
		}
		// Fill the stub: placeholder fields come from the creation event,
		// configuration fields already set on the stub persist
		updates := map[string]any{
			"title":         params.Title,
			"created_block": ev.BlockNumber,
			"stub":          false,
		}
		if existing.Cap == "" {
			updates["cap"] = params.Cap
		}
		if existing.Approver == nil {
			updates["approver"] = params.Approver
		}
		if task.MetadataLocator != "" {
			updates["metadata_digest"] = task.MetadataDigest
			updates["metadata_locator"] = task.MetadataLocator
		}
		err = tx.DB().WithContext(ctx).Model(&entities.Task{}).Where("id = ?", taskID).Updates(updates).Error
		if err != nil {
			return nil, err
		}
	}

	// The taskboard owns these counters - they are never recomputed by
	// scanning the tasks table
	if err := reconcile.IncrementCounter[entities.OrgContract](ctx, tx, "address", c.Address, "next_local_id", 1); err != nil {
		return nil, err
	}
	if err := reconcile.IncrementCounter[entities.OrgContract](ctx, tx, "address", c.Address, "total_tasks", 1); err != nil {
		return nil, err
	}
	return fetches, nil
}

func (r *taskboardReducer) applyAssigned(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params taskAssignedParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	return r.transition(ctx, tx, c, ev, params.LocalID, entities.TaskStatusAssigned, map[string]any{
		"assignee": params.Assignee,
	})
}

func (r *taskboardReducer) applySubmitted(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params taskLocalParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	return r.transition(ctx, tx, c, ev, params.LocalID, entities.TaskStatusSubmitted, nil)
}

func (r *taskboardReducer) applyCancelled(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params taskLocalParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	return r.transition(ctx, tx, c, ev, params.LocalID, entities.TaskStatusCancelled, nil)
}

func (r *taskboardReducer) applyCompleted(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params taskCompletedParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	taskID := ids.Composite(c.Address, params.LocalID)

	task, found, err := reconcile.RequireExisting[entities.Task](ctx, tx, "id", taskID)
	if err != nil || !found {
		return nil, err
	}
	if task.Status.V().Terminal() {
		log.L(ctx).Warnf("Ignoring %s for task %s already in terminal state %s", ev.Kind, taskID, task.Status)
		return nil, nil
	}

	applied, err := appendTrail(ctx, tx, &c.Org, ev, taskID)
	if err != nil || !applied {
		return nil, err
	}

	// The protocol permits completing without a prior explicit assignment,
	// so the completer backfills the assignee
	assignee := task.Assignee
	if assignee == nil {
		assignee = params.Completer
	}
	completedAt := ev.BlockTimestamp
	updates := map[string]any{
		"status":       entities.TaskStatusCompleted.Enum(),
		"assignee":     assignee,
		"completed_at": &completedAt,
	}
	if err := tx.DB().WithContext(ctx).Model(&entities.Task{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
		return nil, err
	}

	if assignee != nil {
		memberID := ids.TenantScoped(c.Org, *assignee)
		if _, _, err := reconcile.LoadOrCreate(ctx, tx, "id", memberID, &entities.OrgMember{
			ID:           memberID,
			Org:          c.Org,
			Address:      *assignee,
			Active:       true,
			TotalClaimed: "0",
		}); err != nil {
			return nil, err
		}
		// Replay of this event is rejected by the trail guard above, so
		// the completion count moves exactly once per applied event
		if err := reconcile.IncrementCounter[entities.OrgMember](ctx, tx, "id", memberID, "total_tasks_completed", 1); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (r *taskboardReducer) applyCapSet(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params taskCapSetParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	return nil, r.configUpdate(ctx, tx, c, ev, params.LocalID,
		&entities.Task{Cap: params.Cap},
		map[string]any{"cap": params.Cap})
}

func (r *taskboardReducer) applyApproverSet(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params taskApproverSetParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	return nil, r.configUpdate(ctx, tx, c, ev, params.LocalID,
		&entities.Task{Approver: params.Approver},
		map[string]any{"approver": params.Approver})
}

// applyApproverRoleSet grants or revokes the board-level approver role
// for a hat, distinct from TaskApproverSet which names a per-task address
func (r *taskboardReducer) applyApproverRoleSet(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params approverRoleSetParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	permID := ids.RolePermission(c.Address, params.HatID, string(entities.RoleKindApprover))

	applied, err := appendTrail(ctx, tx, &c.Org, ev, permID)
	if err != nil || !applied {
		return nil, err
	}
	return nil, upsertRolePermission(ctx, tx, c, ev, permID, params.HatID, entities.RoleKindApprover, params.Allowed)
}

// taskStatusRank orders the forward path of the status FSM. Cancellation
// is reachable from any non-terminal state so it carries no rank.
var taskStatusRank = map[entities.TaskStatus]int{
	entities.TaskStatusOpen:      0,
	entities.TaskStatusAssigned:  1,
	entities.TaskStatusSubmitted: 2,
	entities.TaskStatusCompleted: 3,
}

// transition moves a task one step along the status FSM. Status events
// never stub: a transition for an unknown task is dropped.
func (r *taskboardReducer) transition(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event, localID uint64, to entities.TaskStatus, extra map[string]any) ([]*orgevents.FetchRequest, error) {
	taskID := ids.Composite(c.Address, localID)

	task, found, err := reconcile.RequireExisting[entities.Task](ctx, tx, "id", taskID)
	if err != nil || !found {
		return nil, err
	}
	if task.Status.V().Terminal() {
		log.L(ctx).Warnf("Ignoring %s for task %s already in terminal state %s", ev.Kind, taskID, task.Status)
		return nil, nil
	}
	// The FSM is one-directional, so a late event for an earlier state
	// must not regress a task that has already moved on
	if to != entities.TaskStatusCancelled && taskStatusRank[to] <= taskStatusRank[task.Status.V()] {
		log.L(ctx).Warnf("Ignoring %s for task %s already in state %s", ev.Kind, taskID, task.Status)
		return nil, nil
	}

	applied, err := appendTrail(ctx, tx, &c.Org, ev, taskID)
	if err != nil || !applied {
		return nil, err
	}

	updates := map[string]any{"status": to.Enum()}
	for k, v := range extra {
		updates[k] = v
	}
	return nil, tx.DB().WithContext(ctx).Model(&entities.Task{}).Where("id = ?", taskID).Updates(updates).Error
}

// configUpdate applies a configuration event that may race ahead of the
// task's creation event, honoring the configured stub policy
func (r *taskboardReducer) configUpdate(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event, localID uint64, stubFields *entities.Task, updates map[string]any) error {
	taskID := ids.Composite(c.Address, localID)

	var task *entities.Task
	if r.stubPolicy == StubPolicyStub {
		stub := *stubFields
		stub.ID = taskID
		stub.Contract = c.Address
		stub.LocalID = int64(localID)
		stub.Org = c.Org
		stub.Status = entities.TaskStatusOpen.Enum()
		stub.Stub = true

		var created bool
		var err error
		task, created, err = reconcile.LoadOrStub(ctx, tx, "id", taskID, &stub)
		if err != nil {
			return err
		}
		if created {
			// Stub already carries the configured fields; record the trail
			_, err = appendTrail(ctx, tx, &c.Org, ev, taskID)
			return err
		}
	} else {
		var found bool
		var err error
		task, found, err = reconcile.RequireExisting[entities.Task](ctx, tx, "id", taskID)
		if err != nil || !found {
			return err
		}
	}

	if task.Status.V().Terminal() {
		log.L(ctx).Warnf("Ignoring %s for task %s already in terminal state %s", ev.Kind, taskID, task.Status)
		return nil
	}
	applied, err := appendTrail(ctx, tx, &c.Org, ev, taskID)
	if err != nil || !applied {
		return err
	}
	return tx.DB().WithContext(ctx).Model(&entities.Task{}).Where("id = ?", taskID).Updates(updates).Error
}
