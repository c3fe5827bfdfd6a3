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

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/pulsegrid/pulsegrid-go/pkg/backoff"
)

// ErrInvalidConfig marks synchronous configuration rejections. Invalid
// input never reaches an engine; it is reported before any state change.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration wraps time.Duration so that YAML can carry values like "7s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w: bad duration %q: %v", ErrInvalidConfig, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// AsDuration returns the wrapped value.
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// FullConfig is the complete client configuration.
type FullConfig struct {
	// Origin is the server base URL, e.g. "https://rt.pulsegrid.io".
	Origin string `yaml:"origin"`
	// SubscribeKey authorizes the subscribe loop.
	SubscribeKey string `yaml:"subscribeKey"`
	// PublishKey authorizes publishing; optional for receive-only clients.
	PublishKey string `yaml:"publishKey,omitempty"`
	// UserID identifies this client in presence. Defaults to a random
	// UUID when left empty.
	UserID string `yaml:"userId,omitempty"`
	// InsecureTLS disables certificate verification. Test setups only.
	InsecureTLS bool `yaml:"insecureTLS,omitempty"`

	Subscribe SubscribeConfig `yaml:"subscribe"`
	Presence  PresenceConfig  `yaml:"presence"`
	Retry     RetryConfig     `yaml:"retry"`
	Dedup     DedupConfig     `yaml:"dedup"`
}

// SubscribeConfig tunes the subscription engine.
type SubscribeConfig struct {
	// CatchUpOnJoin controls where newly added channels start receiving
	// when the channel set changes mid-receive: true replays from the
	// held cursor, false starts from "now".
	CatchUpOnJoin *bool `yaml:"catchUpOnJoin,omitempty"`
	// QueueSize bounds the engine event queue.
	QueueSize int `yaml:"queueSize,omitempty"`
}

// PresenceConfig tunes the presence engine.
type PresenceConfig struct {
	// Timeout is the server-side presence timeout announced with each
	// heartbeat, in seconds.
	Timeout int `yaml:"timeout,omitempty"`
	// HeartbeatInterval is the cooldown between heartbeats, in seconds.
	// Zero derives the usual (timeout/2)-1.
	HeartbeatInterval int `yaml:"heartbeatInterval,omitempty"`
	// SuppressLeave skips leave announcements entirely.
	SuppressLeave bool `yaml:"suppressLeave,omitempty"`
}

// RetryConfig selects and tunes the retry policy.
type RetryConfig struct {
	// Policy is one of "none", "linear", "exponential".
	Policy string `yaml:"policy,omitempty"`
	// Delay is the constant delay of the linear policy.
	Delay Duration `yaml:"delay,omitempty"`
	// MinDelay and MaxDelay bound the exponential policy.
	MinDelay Duration `yaml:"minDelay,omitempty"`
	MaxDelay Duration `yaml:"maxDelay,omitempty"`
	// MaxRetry caps the attempts of one failure streak.
	MaxRetry int `yaml:"maxRetry,omitempty"`
	// ExcludedEndpoints fail fast regardless of policy. Values:
	// "subscribe", "presence", "leave".
	ExcludedEndpoints []string `yaml:"excludedEndpoints,omitempty"`
}

// DedupConfig tunes the message dedup cache.
type DedupConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
	// MaximumCacheSize bounds the retained identity window.
	MaximumCacheSize int `yaml:"maximumCacheSize,omitempty"`
}

const (
	defaultPresenceTimeout  = 300
	defaultQueueSize        = 64
	defaultMaximumCacheSize = 100
	defaultMaxRetry         = 6
	defaultMinDelay         = 2 * time.Second
	defaultMaxDelay         = 150 * time.Second
	defaultLinearDelay      = 2 * time.Second
)

// LoadFromFile reads and parses the config file, applies env overrides and
// defaults, and validates the result.
func LoadFromFile(path string) (FullConfig, error) {
	var cfg FullConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, path, err)
	}
	applyEnvOverrides(&cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyDefaults fills the zero fields with working values.
func (c *FullConfig) ApplyDefaults() {
	if c.UserID == "" {
		c.UserID = uuid.NewString()
	}
	if c.Subscribe.QueueSize <= 0 {
		c.Subscribe.QueueSize = defaultQueueSize
	}
	if c.Subscribe.CatchUpOnJoin == nil {
		t := true
		c.Subscribe.CatchUpOnJoin = &t
	}
	if c.Presence.Timeout <= 0 {
		c.Presence.Timeout = defaultPresenceTimeout
	}
	if c.Presence.HeartbeatInterval <= 0 {
		c.Presence.HeartbeatInterval = (c.Presence.Timeout / 2) - 1
	}
	if c.Retry.Policy == "" {
		c.Retry.Policy = "exponential"
	}
	if c.Retry.MaxRetry <= 0 {
		c.Retry.MaxRetry = defaultMaxRetry
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = Duration(defaultLinearDelay)
	}
	if c.Retry.MinDelay == 0 {
		c.Retry.MinDelay = Duration(defaultMinDelay)
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = Duration(defaultMaxDelay)
	}
	if c.Dedup.MaximumCacheSize <= 0 {
		c.Dedup.MaximumCacheSize = defaultMaximumCacheSize
	}
}

// Validate rejects configurations the engines cannot run with.
func (c *FullConfig) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("%w: origin is required", ErrInvalidConfig)
	}
	parsed, err := url.Parse(c.Origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: origin %q is not an absolute URL", ErrInvalidConfig, c.Origin)
	}
	if c.SubscribeKey == "" {
		return fmt.Errorf("%w: subscribeKey is required", ErrInvalidConfig)
	}
	if c.Presence.HeartbeatInterval >= c.Presence.Timeout {
		return fmt.Errorf("%w: heartbeatInterval (%ds) must be below presence timeout (%ds)",
			ErrInvalidConfig, c.Presence.HeartbeatInterval, c.Presence.Timeout)
	}
	switch c.Retry.Policy {
	case "none", "linear", "exponential":
	default:
		return fmt.Errorf("%w: unknown retry policy %q", ErrInvalidConfig, c.Retry.Policy)
	}
	for _, e := range c.Retry.ExcludedEndpoints {
		switch backoff.Endpoint(e) {
		case backoff.EndpointSubscribe, backoff.EndpointPresence, backoff.EndpointLeave:
		default:
			return fmt.Errorf("%w: unknown excluded endpoint %q", ErrInvalidConfig, e)
		}
	}
	return nil
}

// ValidateNames rejects channel or group identifiers that cannot travel on
// the wire.
func ValidateNames(names []string) error {
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("%w: empty channel or group name", ErrInvalidConfig)
		}
		if strings.ContainsAny(n, ",/?#") {
			return fmt.Errorf("%w: channel or group name %q contains reserved characters", ErrInvalidConfig, n)
		}
	}
	return nil
}

// RetryPolicy builds the configured backoff.RetryPolicy.
func (c *FullConfig) RetryPolicy() *backoff.RetryPolicy {
	excluded := make([]backoff.Endpoint, 0, len(c.Retry.ExcludedEndpoints))
	for _, e := range c.Retry.ExcludedEndpoints {
		excluded = append(excluded, backoff.Endpoint(e))
	}
	switch c.Retry.Policy {
	case "none":
		return backoff.NewNoRetryPolicy()
	case "linear":
		return backoff.NewLinearRetryPolicy(c.Retry.Delay.AsDuration(), c.Retry.MaxRetry, excluded...)
	default:
		return backoff.NewExponentialRetryPolicy(
			c.Retry.MinDelay.AsDuration(), c.Retry.MaxDelay.AsDuration(), c.Retry.MaxRetry, excluded...)
	}
}

// CatchUpOnJoin returns the effective merge policy.
func (c *FullConfig) CatchUpOnJoin() bool {
	return c.Subscribe.CatchUpOnJoin == nil || *c.Subscribe.CatchUpOnJoin
}

// HeartbeatCooldown returns the idle interval between heartbeats.
func (c *FullConfig) HeartbeatCooldown() time.Duration {
	return time.Duration(c.Presence.HeartbeatInterval) * time.Second
}
