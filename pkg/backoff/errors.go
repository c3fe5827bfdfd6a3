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

// ErrRetryExhausted is wrapped into the permanent error an engine reports
// once a failure streak has consumed all allowed attempts.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// IsRetryExhausted checks if the error is the give-up marker.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}

// ExtractOriginalError unwraps all nested errors to get the root cause.
func ExtractOriginalError(err error) error {
	if err == nil {
		return nil
	}
	unwrapped := err
	for {
		next := errors.Unwrap(unwrapped)
		if next == nil {
			return unwrapped
		}
		unwrapped = next
	}
}
