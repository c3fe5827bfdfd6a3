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

package config

import "os"

// Environment variables override config-file values. Useful for CI and
// containerized runs where mounting a config file is inconvenient.
//
// Order of precedence (highest to lowest):
//  1. Environment variables
//  2. Config file values
//  3. Defaults
const (
	EnvOrigin       = "PULSEGRID_ORIGIN"
	EnvSubscribeKey = "PULSEGRID_SUBSCRIBE_KEY"
	EnvPublishKey   = "PULSEGRID_PUBLISH_KEY"
	EnvUserID       = "PULSEGRID_USER_ID"
)

func applyEnvOverrides(cfg *FullConfig) {
	if v := os.Getenv(EnvOrigin); v != "" {
		cfg.Origin = v
	}
	if v := os.Getenv(EnvSubscribeKey); v != "" {
		cfg.SubscribeKey = v
	}
	if v := os.Getenv(EnvPublishKey); v != "" {
		cfg.PublishKey = v
	}
	if v := os.Getenv(EnvUserID); v != "" {
		cfg.UserID = v
	}
}
