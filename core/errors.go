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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a StagedDocument failed validation.
	ErrInvalidDocument = errors.New("invalid staged document")

	// ErrEmptyContent indicates the normalized text is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyCollection indicates a missing collection name.
	ErrEmptyCollection = errors.New("collection cannot be empty")

	// ErrInvalidAudience indicates an audience tag outside the closed set.
	ErrInvalidAudience = errors.New("invalid audience tag")

	// ErrEmptyQuery indicates a search request with no query text.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrSearchUnavailable indicates both search backends failed within the
	// request deadline. Single-backend failure is reported through the
	// response's degraded flag instead.
	ErrSearchUnavailable = errors.New("all search backends unavailable")

	// ErrRetriesExhausted indicates a document failed its final retry.
	// It is recorded on the document and surfaced through counters only.
	ErrRetriesExhausted = errors.New("embedding retries exhausted")
)

// TransientError wraps a failure that should be retried with backoff:
// network problems, backend unavailability, timeouts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// PermanentError wraps a failure that must never be retried, such as
// malformed or empty content. The staging store marks the document
// terminally failed without consuming retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError. Returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err must not be retried. Validation errors
// count as permanent even without the wrapper.
func IsPermanent(err error) bool {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrEmptyContent) || errors.Is(err, ErrInvalidDocument)
}

// RateLimitedError wraps a backend rejection due to rate limiting.
// It is retried like a transient error but with a longer backoff base.
type RateLimitedError struct {
	Err error
}

func (e *RateLimitedError) Error() string { return "rate limited: " + e.Err.Error() }

func (e *RateLimitedError) Unwrap() error { return e.Err }

// RateLimited wraps err as a RateLimitedError. Returns nil for nil.
func RateLimited(err error) error {
	if err == nil {
		return nil
	}
	return &RateLimitedError{Err: err}
}

// IsRateLimited reports whether err is marked as a rate-limit rejection.
func IsRateLimited(err error) bool {
	var re *RateLimitedError
	return errors.As(err, &re)
}
