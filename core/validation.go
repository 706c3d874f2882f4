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


package core

import (
	"fmt"
	"strings"
)

// ValidateStagedDocument validates a StagedDocument according to domain rules.
//
// Validation rules:
//   - Collection must not be empty
//   - NormalizedText must not be blank
//   - ContentHash must be set
//   - ChunkIndex must lie within [0, ChunkCount) and ChunkCount >= 1
//   - Audience tags must come from the closed set
//
// NOT validated (populated by the scheduler):
//   - Status, VectorRef, RetryCount, claim fields
func ValidateStagedDocument(doc *StagedDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.Collection == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyCollection)
	}

	if strings.TrimSpace(doc.NormalizedText) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	if doc.ContentHash == "" {
		return fmt.Errorf("%w: content hash is not set", ErrInvalidDocument)
	}

	if doc.ChunkCount < 1 {
		return fmt.Errorf("%w: chunk count %d", ErrInvalidDocument, doc.ChunkCount)
	}

	if doc.ChunkIndex < 0 || doc.ChunkIndex >= doc.ChunkCount {
		return fmt.Errorf("%w: chunk index %d of %d", ErrInvalidDocument, doc.ChunkIndex, doc.ChunkCount)
	}

	if err := ValidateAudience(doc.Audience); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return nil
}

// ValidateAudience validates that every tag belongs to the closed audience set.
// An empty set is valid at this layer; ingestion applies DefaultAudience.
func ValidateAudience(tags []Audience) error {
	for _, tag := range tags {
		if tag != AudienceHuman && tag != AudienceAgent {
			return fmt.Errorf("%w: %q", ErrInvalidAudience, tag)
		}
	}
	return nil
}
