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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RetryPolicy", func() {
	Describe("no-retry policy", func() {
		It("never retries", func() {
			p := NewNoRetryPolicy()
			Expect(p.ShouldRetry(0, EndpointSubscribe).Retry).To(BeFalse())
		})

		It("a nil policy behaves like no-retry", func() {
			var p *RetryPolicy
			Expect(p.ShouldRetry(0, EndpointSubscribe).Retry).To(BeFalse())
		})
	})

	Describe("linear policy", func() {
		It("keeps a constant delay across attempts", func() {
			p := NewLinearRetryPolicy(2*time.Second, 5).WithJitter(0)
			for attempt := 0; attempt <= 5; attempt++ {
				d := p.ShouldRetry(attempt, EndpointSubscribe)
				Expect(d.Retry).To(BeTrue())
				Expect(d.Delay).To(Equal(2 * time.Second))
			}
		})

		It("stops past the attempt cap", func() {
			p := NewLinearRetryPolicy(2*time.Second, 3).WithJitter(0)
			Expect(p.ShouldRetry(3, EndpointSubscribe).Retry).To(BeTrue())
			Expect(p.ShouldRetry(4, EndpointSubscribe).Retry).To(BeFalse())
		})
	})

	Describe("exponential policy", func() {
		It("doubles the delay per attempt and never decreases", func() {
			p := NewExponentialRetryPolicy(2*time.Second, 150*time.Second, 10).WithJitter(0)
			var last time.Duration
			for attempt := 0; attempt <= 10; attempt++ {
				d := p.ShouldRetry(attempt, EndpointSubscribe)
				Expect(d.Retry).To(BeTrue())
				Expect(d.Delay).To(BeNumerically(">=", last))
				last = d.Delay
			}
			Expect(p.ShouldRetry(0, EndpointSubscribe).Delay).To(Equal(2 * time.Second))
			Expect(p.ShouldRetry(1, EndpointSubscribe).Delay).To(Equal(4 * time.Second))
			Expect(p.ShouldRetry(2, EndpointSubscribe).Delay).To(Equal(8 * time.Second))
		})

		It("caps the delay at maxDelay", func() {
			p := NewExponentialRetryPolicy(2*time.Second, 150*time.Second, 20).WithJitter(0)
			Expect(p.ShouldRetry(12, EndpointSubscribe).Delay).To(Equal(150 * time.Second))
		})

		It("adds bounded jitter when enabled", func() {
			p := NewExponentialRetryPolicy(2*time.Second, 150*time.Second, 6).WithJitter(500 * time.Millisecond)
			d := p.ShouldRetry(0, EndpointSubscribe)
			Expect(d.Retry).To(BeTrue())
			Expect(d.Delay).To(BeNumerically(">=", 2*time.Second))
			Expect(d.Delay).To(BeNumerically("<", 2*time.Second+500*time.Millisecond))
		})
	})

	Describe("endpoint exclusions", func() {
		It("fails fast for excluded endpoints only", func() {
			p := NewExponentialRetryPolicy(2*time.Second, 150*time.Second, 6, EndpointPresence).WithJitter(0)
			Expect(p.ShouldRetry(0, EndpointPresence).Retry).To(BeFalse())
			Expect(p.ShouldRetry(0, EndpointSubscribe).Retry).To(BeTrue())
		})
	})
})

var _ = Describe("Error categories", func() {
	It("round-trips the category through errors.As", func() {
		err := NewPermanentError(ErrRetryExhausted)
		Expect(IsPermanentError(err)).To(BeTrue())
		Expect(IsTransientError(err)).To(BeFalse())
	})

	It("defaults uncategorized errors to transient", func() {
		err := CategorizeError(assertionError("boom"))
		Expect(IsTransientError(err)).To(BeTrue())
	})

	It("keeps an existing category on re-categorization", func() {
		err := CategorizeError(NewCancelledError(assertionError("gone")))
		Expect(IsCancelledError(err)).To(BeTrue())
	})

	It("unwraps to the original error", func() {
		orig := assertionError("root cause")
		Expect(ExtractOriginalError(NewTransientError(orig))).To(Equal(error(orig)))
	})
})

type assertionError string

func (e assertionError) Error() string { return string(e) }
