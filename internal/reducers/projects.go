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
	EventProjectCreated = "ProjectCreated"
	EventProjectCapSet  = "ProjectCapSet"
	EventProjectClosed  = "ProjectClosed"
)

type projectsReducer struct {
	stubPolicy StubPolicy
}

func newProjectsReducer(policies *Policies) *projectsReducer {
	return &projectsReducer{stubPolicy: policies.Projects}
}

func (r *projectsReducer) Kind() entities.ContractKind {
	return entities.ContractKindProjects
}

type projectCreatedParams struct {
	LocalID        uint64            `json:"localId"`
	Name           string            `json:"name"`
	Cap            string            `json:"cap"`
	Lead           *types.EthAddress `json:"lead"`
	MetadataDigest *types.Bytes32    `json:"metadataDigest"`
}

type projectCapSetParams struct {
	LocalID uint64 `json:"localId"`
	Cap     string `json:"cap"`
}

type projectLocalParams struct {
	LocalID uint64 `json:"localId"`
}

func (r *projectsReducer) Apply(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	if handled, err := applyCommonConfig(ctx, tx, c, ev); handled {
		return nil, err
	}
	switch ev.Kind {
	case EventProjectCreated:
		return r.applyCreated(ctx, tx, c, ev)
	case EventProjectCapSet:
		return r.applyCapSet(ctx, tx, c, ev)
	case EventProjectClosed:
		return r.applyClosed(ctx, tx, c, ev)
	default:
		return skipUnknown(ctx, ev)
	}
}

func (r *projectsReducer) applyCreated(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params projectCreatedParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	projectID := ids.Composite(c.Address, params.LocalID)

	applied, err := appendTrail(ctx, tx, &c.Org, ev, projectID)
	if err != nil || !applied {
		return nil, err
	}

	project := &entities.Project{
		ID:           projectID,
		Contract:     c.Address,
		LocalID:      int64(params.LocalID),
		Org:          c.Org,
		Name:         params.Name,
		Status:       entities.ProjectStatusActive.Enum(),
		Cap:          params.Cap,
		Lead:         params.Lead,
		CreatedBlock: ev.BlockNumber,
	}
	var fetches []*orgevents.FetchRequest
	if params.MetadataDigest != nil {
		if locator, ok := contentid.DeriveLocator(*params.MetadataDigest); ok {
			project.MetadataDigest = params.MetadataDigest
			project.MetadataLocator = locator
			fetches = append(fetches, &orgevents.FetchRequest{
				Locator:    locator,
				EntityKind: "project",
				EntityKey:  projectID,
			})
		}
	}

	existing, created, err := reconcile.LoadOrCreate(ctx, tx, "id", projectID, project)
	if err != nil {
		return nil, err
	}
	if !created {
		if !existing.Stub {
			log.L(ctx).Warnf("Duplicate creation for project %s ignored", projectID)
			return nil, nil
		}
		updates := map[string]any{
			"name":          params.Name,
			"created_block": ev.BlockNumber,
			"stub":          false,
		}
		if existing.Cap == "" {
			updates["cap"] = params.Cap
		}
		if existing.Lead == nil {
			updates["lead"] = params.Lead
		}
		if project.MetadataLocator != "" {
			updates["metadata_digest"] = project.MetadataDigest
			updates["metadata_locator"] = project.MetadataLocator
		}
		if err := tx.DB().WithContext(ctx).Model(&entities.Project{}).Where("id = ?", projectID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	if err := reconcile.IncrementCounter[entities.OrgContract](ctx, tx, "address", c.Address, "next_local_id", 1); err != nil {
		return nil, err
	}
	if err := reconcile.IncrementCounter[entities.OrgContract](ctx, tx, "address", c.Address, "total_projects", 1); err != nil {
		return nil, err
	}
	return fetches, nil
}

func (r *projectsReducer) applyCapSet(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params projectCapSetParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	projectID := ids.Composite(c.Address, params.LocalID)

	var project *entities.Project
	if r.stubPolicy == StubPolicyStub {
		var created bool
		var err error
		project, created, err = reconcile.LoadOrStub(ctx, tx, "id", projectID, &entities.Project{
			ID:       projectID,
			Contract: c.Address,
			LocalID:  int64(params.LocalID),
			Org:      c.Org,
			Status:   entities.ProjectStatusActive.Enum(),
			Cap:      params.Cap,
			Stub:     true,
		})
		if err != nil {
			return nil, err
		}
		if created {
			_, err = appendTrail(ctx, tx, &c.Org, ev, projectID)
			return nil, err
		}
	} else {
		var found bool
		var err error
		project, found, err = reconcile.RequireExisting[entities.Project](ctx, tx, "id", projectID)
		if err != nil || !found {
			return nil, err
		}
	}

	if project.Status.V() == entities.ProjectStatusClosed {
		log.L(ctx).Warnf("Ignoring %s for closed project %s", ev.Kind, projectID)
		return nil, nil
	}
	applied, err := appendTrail(ctx, tx, &c.Org, ev, projectID)
	if err != nil || !applied {
		return nil, err
	}
	return nil, tx.DB().WithContext(ctx).Model(&entities.Project{}).Where("id = ?", projectID).UpdateColumn("cap", params.Cap).Error
}

func (r *projectsReducer) applyClosed(ctx context.Context, tx persistence.DBTX, c *entities.OrgContract, ev *orgevents.Event) ([]*orgevents.FetchRequest, error) {
	var params projectLocalParams
	if !parseData(ctx, ev, &params) {
		return nil, nil
	}
	projectID := ids.Composite(c.Address, params.LocalID)

	project, found, err := reconcile.RequireExisting[entities.Project](ctx, tx, "id", projectID)
	if err != nil || !found {
		return nil, err
	}
	if project.Status.V() == entities.ProjectStatusClosed {
		log.L(ctx).Debugf("Project %s already closed", projectID)
		return nil, nil
	}
	applied, err := appendTrail(ctx, tx, &c.Org, ev, projectID)
	if err != nil || !applied {
		return nil, err
	}
	return nil, tx.DB().WithContext(ctx).Model(&entities.Project{}).Where("id = ?", projectID).UpdateColumn("status", entities.ProjectStatusClosed.Enum()).Error
}
