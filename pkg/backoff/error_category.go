// Copyright 2025 PulseGrid Authors
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

package backoff

import "errors"

// ErrorCategory indicates how an engine should respond to a given error.
type ErrorCategory int

const (
	// CategoryIgnored indicates an error that is expected or benign in the
	// current context and should not trigger a retry or a state change.
	CategoryIgnored ErrorCategory = iota

	// CategoryTransient indicates an unexpected but recoverable error:
	// network failures, timeouts, 5xx responses. The engine retries these
	// per policy; once the policy is exhausted the failure escalates to
	// permanent.
	CategoryTransient

	// CategoryPermanent indicates an unrecoverable error: a non-retryable
	// server response or an exhausted retry streak. The engine moves to a
	// failed state and surfaces a terminal status.
	CategoryPermanent

	// CategoryCancelled indicates the operation was aborted on purpose.
	// Cancelled results are discarded, never surfaced and never retried.
	CategoryCancelled
)

// CategorizedError wraps the underlying error together with its category.
type CategorizedError struct {
	Err      error
	Category ErrorCategory
}

func (ce *CategorizedError) Error() string {
	return ce.Err.Error()
}

func (ce *CategorizedError) Unwrap() error {
	return ce.Err
}

// IsCategory checks if the CategorizedError has the specified category.
func (ce *CategorizedError) IsCategory(category ErrorCategory) bool {
	return ce.Category == category
}

// NewIgnoredError wraps err as CategoryIgnored.
func NewIgnoredError(err error) error {
	return &CategorizedError{Err: err, Category: CategoryIgnored}
}

// NewTransientError wraps err as CategoryTransient.
func NewTransientError(err error) error {
	return &CategorizedError{Err: err, Category: CategoryTransient}
}

// NewPermanentError wraps err as CategoryPermanent.
func NewPermanentError(err error) error {
	return &CategorizedError{Err: err, Category: CategoryPermanent}
}

// NewCancelledError wraps err as CategoryCancelled.
func NewCancelledError(err error) error {
	return &CategorizedError{Err: err, Category: CategoryCancelled}
}

// CategorizeError ensures that every error is at least Transient if not
// already categorized.
func CategorizeError(err error) error {
	if err == nil {
		return nil
	}
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return err
	}
	return NewTransientError(err)
}

// IsIgnoredError is a convenience checker for CategoryIgnored.
func IsIgnoredError(err error) bool {
	var ce *CategorizedError
	return errors.As(err, &ce) && ce.IsCategory(CategoryIgnored)
}

// IsTransientError is a convenience checker for CategoryTransient.
func IsTransientError(err error) bool {
	var ce *CategorizedError
	return errors.As(err, &ce) && ce.IsCategory(CategoryTransient)
}

// IsPermanentError is a convenience checker for CategoryPermanent.
func IsPermanentError(err error) bool {
	var ce *CategorizedError
	return errors.As(err, &ce) && ce.IsCategory(CategoryPermanent)
}

// IsCancelledError is a convenience checker for CategoryCancelled.
func IsCancelledError(err error) bool {
	var ce *CategorizedError
	return errors.As(err, &ce) && ce.IsCategory(CategoryCancelled)
}
