// Copyright 2025 Poiesic Systems
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


// Package storage provides the staging-store abstraction for corpus.
//
// This package defines the StagingStore interface that decouples the
// embedding pipeline and the search gateway from the storage implementation.
// The staging store is the durable buffer between ingestion and embedding:
// a document inserted here is never lost, even if the embedding backend is
// down for hours — it simply accumulates in StatusPending until a scheduler
// claims it.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return the StagingStore
// interface to enforce abstraction:
//
//	store, err := badger.NewStagingStore(path)  // returns storage.StagingStore
//
// This keeps the claim-under-concurrency primitive swappable (row-level
// lock, conditional update, or lease token) without touching scheduler
// logic.
//
// # Thread Safety
//
// All implementations must be thread-safe. ClaimBatch in particular must be
// atomic at the storage layer: under N concurrent schedulers claiming from
// the same pending set, no document may be returned to more than one claimer.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
package storage
