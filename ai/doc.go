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

// Package ai defines the embedding abstraction for corpus.
//
// The Embedder interface hides the concrete embedding provider from the
// scheduler and gateway. The openai subpackage implements it against any
// OpenAI-compatible API (OpenAI itself, Ollama, LocalAI, vLLM); the mock
// subpackage provides a deterministic in-process implementation for tests.
//
// Embedding failures are classified by the caller, not here: the scheduler
// decides whether an error is transient, permanent, or a rate-limit
// rejection, and drives the staging store's retry machinery accordingly.
package ai
