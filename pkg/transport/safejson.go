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

package transport

import (
	jsonstd "encoding/json"
	"fmt"

	"github.com/goccy/go-json"
)

// safeUnmarshal decodes with goccy and falls back to the standard library
// when goccy panics on a payload it cannot handle. Server payloads are
// untrusted input; a decode must never take the subscribe loop down.
func safeUnmarshal(data []byte, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if stdErr := jsonstd.Unmarshal(data, v); stdErr != nil {
				err = fmt.Errorf("json decode failed: %v (stdlib fallback: %w)", r, stdErr)
			} else {
				err = nil
			}
		}
	}()
	return json.Unmarshal(data, v)
}
