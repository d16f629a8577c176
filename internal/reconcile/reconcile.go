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

// Package reconcile centralizes the load-or-create, stub-then-fill and
// require-existing policies shared by all reducers, so each entity type
// declares its missing-dependency policy once instead of re-deriving it
// per handler.
package reconcile

import (
	"context"
	"fmt"
	"math/big"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/orgstream-labs/orgindexer/internal/entities"
	"github.com/orgstream-labs/orgindexer/internal/msgs"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadOrCreate returns the existing entity for the key, or persists the
// supplied defaults and returns them. The OnConflict guard covers an
// insert racing an earlier insert for the same key within the batch.
func LoadOrCreate[T any](ctx context.Context, tx persistence.DBTX, keyColumn string, key any, defaults *T) (*T, bool, error) {
	existing, err := selectOne[T](ctx, tx, keyColumn, key)
	if err != nil || existing != nil {
		return existing, false, err
	}
	res := tx.DB().
		WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(defaults)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Inserted under us in this batch - reload the winner
		existing, err = selectOne[T](ctx, tx, keyColumn, key)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, i18n.NewError(ctx, msgs.MsgReconcileKeyCollision, tableName[T](), key)
		}
		return existing, false, nil
	}
	return defaults, true, nil
}

// LoadOrStub is LoadOrCreate for entities whose canonical creation event
// may arrive after a configuration event in the same transaction. The
// caller marks the stub flag on the defaults; the later creation event
// overwrites placeholder fields while preserving the configured ones.
func LoadOrStub[T any](ctx context.Context, tx persistence.DBTX, keyColumn string, key any, stubDefaults *T) (*T, bool, error) {
	entity, created, err := LoadOrCreate(ctx, tx, keyColumn, key, stubDefaults)
	if created {
		log.L(ctx).Infof("Created stub %s record for out-of-order key %v", tableName[T](), key)
	}
	return entity, created, err
}

// Lookup is a plain fetch with no diagnostics, for callers where absence
// is an expected outcome rather than a dropped event
func Lookup[T any](ctx context.Context, tx persistence.DBTX, keyColumn string, key any) (*T, bool, error) {
	existing, err := selectOne[T](ctx, tx, keyColumn, key)
	return existing, existing != nil, err
}

// RequireExisting returns (nil, false, nil) when the entity is absent.
// The caller must drop the event with a diagnostic rather than fabricate
// a record, because fabrication would desynchronize counters from the
// authoritative creation event.
func RequireExisting[T any](ctx context.Context, tx persistence.DBTX, keyColumn string, key any) (*T, bool, error) {
	existing, err := selectOne[T](ctx, tx, keyColumn, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		log.L(ctx).Warnf("Dropping event for missing %s record key=%v", tableName[T](), key)
		return nil, false, nil
	}
	return existing, true, nil
}

// IncrementCounter applies a relative integer update in the database, so
// no read-modify-write cycle can lose an update. Replay protection is the
// dispatcher's trail guard, not this primitive.
func IncrementCounter[T any](ctx context.Context, tx persistence.DBTX, keyColumn string, key any, counterColumn string, delta int64) error {
	return tx.DB().
		WithContext(ctx).
		Model(new(T)).
		Where(keyColumn+" = ?", key).
		UpdateColumn(counterColumn, gorm.Expr(counterColumn+" + ?", delta)).
		Error
}

// AddToBigCounter adds to a decimal-string counter column that can hold
// values beyond int64 range (wei amounts). Runs read-then-write, which is
// safe under the engine's single-writer transaction model.
func AddToBigCounter[T any](ctx context.Context, tx persistence.DBTX, keyColumn string, key any, counterColumn string, amount *big.Int) error {
	var current string
	err := tx.DB().
		WithContext(ctx).
		Model(new(T)).
		Where(keyColumn+" = ?", key).
		Pluck(counterColumn, &current).
		Error
	if err != nil {
		return err
	}
	total := new(big.Int)
	if current != "" {
		// Tolerate a malformed stored value by restarting from zero
		if _, ok := total.SetString(current, 10); !ok {
			log.L(ctx).Errorf("Resetting malformed counter %s.%s value %q", tableName[T](), counterColumn, current)
			total = new(big.Int)
		}
	}
	total = total.Add(total, amount)
	return tx.DB().
		WithContext(ctx).
		Model(new(T)).
		Where(keyColumn+" = ?", key).
		UpdateColumn(counterColumn, total.String()).
		Error
}

// AppendChange inserts one immutable trail record. A false return means
// the (txHash, logIndex) pair was already recorded, so the event is a
// replay and the reducer must skip all of its mutations.
func AppendChange(ctx context.Context, tx persistence.DBTX, rec *entities.ChangeRecord) (bool, error) {
	res := tx.DB().
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_hash"}, {Name: "log_index"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		log.L(ctx).Debugf("Replay detected for tx=%s logIndex=%d changeKind=%s", rec.TxHash, rec.LogIndex, rec.ChangeKind)
		return false, nil
	}
	return true, nil
}

func selectOne[T any](ctx context.Context, tx persistence.DBTX, keyColumn string, key any) (*T, error) {
	var results []*T
	err := tx.DB().
		WithContext(ctx).
		Where(keyColumn+" = ?", key).
		Limit(1).
		Find(&results).
		Error
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

func tableName[T any]() string {
	if tn, ok := any(new(T)).(interface{ TableName() string }); ok {
		return tn.TableName()
	}
	return fmt.Sprintf("%T", *new(T))
}
