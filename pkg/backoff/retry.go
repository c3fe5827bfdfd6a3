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

import (
	"math/rand"
	"time"
)

// Endpoint identifies the class of request a failure belongs to. Retry
// policies can exclude individual endpoints so that those fail fast.
type Endpoint string

const (
	EndpointSubscribe Endpoint = "subscribe"
	EndpointPresence  Endpoint = "presence"
	EndpointLeave     Endpoint = "leave"
)

// PolicyKind selects how retry delays grow within a failure streak.
type PolicyKind int

const (
	PolicyNone PolicyKind = iota
	PolicyLinear
	PolicyExponential
)

// Decision is the outcome of consulting the retry policy for one failed
// attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// RetryPolicy computes whether and after what delay a failed operation is
// re-attempted. The attempt counter is scoped to a single failure streak;
// callers reset it on the next success. The policy itself holds no
// per-streak state, so one policy value can serve a whole engine.
type RetryPolicy struct {
	kind     PolicyKind
	delay    time.Duration // linear
	minDelay time.Duration // exponential
	maxDelay time.Duration // exponential
	jitter   time.Duration
	maxRetry int
	excluded map[Endpoint]struct{}
}

// NewNoRetryPolicy returns a policy that never retries.
func NewNoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{kind: PolicyNone}
}

// NewLinearRetryPolicy retries up to maxRetry times with a constant delay.
func NewLinearRetryPolicy(delay time.Duration, maxRetry int, excluded ...Endpoint) *RetryPolicy {
	return &RetryPolicy{
		kind:     PolicyLinear,
		delay:    delay,
		jitter:   defaultJitter,
		maxRetry: maxRetry,
		excluded: excludeSet(excluded),
	}
}

// NewExponentialRetryPolicy doubles the delay per attempt, starting at
// minDelay and capped at maxDelay, up to maxRetry attempts.
func NewExponentialRetryPolicy(minDelay, maxDelay time.Duration, maxRetry int, excluded ...Endpoint) *RetryPolicy {
	return &RetryPolicy{
		kind:     PolicyExponential,
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   defaultJitter,
		maxRetry: maxRetry,
		excluded: excludeSet(excluded),
	}
}

// defaultJitter spreads simultaneous retries of many clients so that they
// do not hit the origin in lockstep after an outage.
const defaultJitter = 500 * time.Millisecond

// WithJitter overrides the random delay added on top of the computed
// backoff. Zero disables jitter, which tests rely on for determinism.
func (p *RetryPolicy) WithJitter(jitter time.Duration) *RetryPolicy {
	p.jitter = jitter
	return p
}

// ShouldRetry decides the fate of the given attempt (zero-based failure
// streak counter) against the given endpoint.
func (p *RetryPolicy) ShouldRetry(attempt int, endpoint Endpoint) Decision {
	if p == nil || p.kind == PolicyNone {
		return Decision{}
	}
	if _, ok := p.excluded[endpoint]; ok {
		return Decision{}
	}
	if attempt > p.maxRetry {
		return Decision{}
	}

	var delay time.Duration
	switch p.kind {
	case PolicyLinear:
		delay = p.delay
	case PolicyExponential:
		delay = p.minDelay
		for i := 0; i < attempt && delay < p.maxDelay; i++ {
			delay *= 2
		}
		if delay > p.maxDelay {
			delay = p.maxDelay
		}
	}
	if p.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.jitter)))
	}
	return Decision{Retry: true, Delay: delay}
}

// MaxRetry returns the attempt cap of the policy.
func (p *RetryPolicy) MaxRetry() int {
	if p == nil {
		return 0
	}
	return p.maxRetry
}

func excludeSet(endpoints []Endpoint) map[Endpoint]struct{} {
	if len(endpoints) == 0 {
		return nil
	}
	set := make(map[Endpoint]struct{}, len(endpoints))
	for _, e := range endpoints {
		set[e] = struct{}{}
	}
	return set
}
