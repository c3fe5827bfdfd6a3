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

package sentry

import (
	"os"
	"sync"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
)

var (
	initOnce sync.Once
	enabled  bool
)

// Initialize sets up the sentry client. Reporting stays disabled when no
// DSN is configured, so local and test runs never phone home.
func Initialize(release string) {
	initOnce.Do(func() {
		dsn := os.Getenv("SENTRY_DSN")
		if dsn == "" {
			return
		}
		err := sentrygo.Init(sentrygo.ClientOptions{
			Dsn:     dsn,
			Release: release,
		})
		if err != nil {
			return
		}
		enabled = true
	})
}

// Flush waits for buffered events to be delivered.
func Flush(timeout time.Duration) {
	if enabled {
		sentrygo.Flush(timeout)
	}
}

func isEnabled() bool {
	return enabled
}
