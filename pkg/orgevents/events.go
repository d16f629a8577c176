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

// Package orgevents defines the wire types exchanged with the host: the
// decoded events delivered into the engine, and the content fetch
// requests the engine emits back out.
package orgevents

import (
	"context"

	"github.com/google/uuid"
	"github.com/orgstream-labs/orgindexer/pkg/types"
)

// Event is one decoded log event. The host's chain-sync collaborator is
// responsible for decoding raw log bytes into the Kind discriminant and
// the JSON Data payload before delivery.
type Event struct {
	ContractAddress types.EthAddress `json:"contractAddress"`
	Kind            string           `json:"kind"`
	Data            types.RawJSON    `json:"data"`
	BlockNumber     int64            `json:"blockNumber"`
	BlockTimestamp  types.Timestamp  `json:"blockTimestamp"`
	TxHash          types.Bytes32    `json:"txHash"`
	LogIndex        int64            `json:"logIndex"`
}

// EventDeliveryBatch is the unit of delivery and of database transaction.
// Events must be in canonical order: ascending block number, ascending
// log index within a block.
type EventDeliveryBatch struct {
	BatchID uuid.UUID `json:"batchId"`
	Events  []*Event  `json:"events"`
}

// NewEventDeliveryBatch assigns a fresh correlation ID for logging
func NewEventDeliveryBatch(events []*Event) *EventDeliveryBatch {
	return &EventDeliveryBatch{
		BatchID: uuid.New(),
		Events:  events,
	}
}

// FetchRequest asks the host to resolve a content locator to raw bytes.
// The host later hands the bytes back through the engine's content
// population surface. Requests are only emitted after the originating
// batch has committed.
type FetchRequest struct {
	Locator    string `json:"locator"`
	EntityKind string `json:"entityKind"`
	EntityKey  string `json:"entityKey"`
}

// ContentFetcher is implemented by the host. It must not block event
// processing; a slow fetch delays only content population, never
// indexing.
type ContentFetcher interface {
	RequestContent(ctx context.Context, requests []*FetchRequest)
}
