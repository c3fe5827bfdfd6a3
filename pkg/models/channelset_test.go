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

package models

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ChannelSet", func() {
	It("deduplicates on construction and keeps first-seen order", func() {
		s := NewChannelSet("alpha", "beta", "alpha", "gamma", "beta")
		Expect(s.Names()).To(Equal([]string{"alpha", "beta", "gamma"}))
		Expect(s.Len()).To(Equal(3))
	})

	Describe("Union", func() {
		It("adds only unseen names and leaves the receiver untouched", func() {
			base := NewChannelSet("alpha", "beta")
			grown := base.Union("beta", "gamma")
			Expect(grown.Names()).To(Equal([]string{"alpha", "beta", "gamma"}))
			Expect(base.Names()).To(Equal([]string{"alpha", "beta"}))
		})
	})

	Describe("Difference", func() {
		It("removes the given names", func() {
			base := NewChannelSet("alpha", "beta", "gamma")
			shrunk := base.Difference("beta")
			Expect(shrunk.Names()).To(Equal([]string{"alpha", "gamma"}))
			Expect(shrunk.Contains("beta")).To(BeFalse())
		})

		It("can empty the set", func() {
			base := NewChannelSet("alpha")
			Expect(base.Difference("alpha").IsEmpty()).To(BeTrue())
		})
	})

	Describe("Equal", func() {
		It("matches identical member sequences", func() {
			a := NewChannelSet("alpha", "beta")
			b := NewChannelSet("alpha", "beta", "beta")
			Expect(a.Equal(b)).To(BeTrue())
		})

		It("is order-sensitive, matching wire form equality", func() {
			a := NewChannelSet("alpha", "beta")
			b := NewChannelSet("beta", "alpha")
			Expect(a.Equal(b)).To(BeFalse())
		})

		It("detects differing membership", func() {
			a := NewChannelSet("alpha")
			b := NewChannelSet("alpha", "beta")
			Expect(a.Equal(b)).To(BeFalse())
		})
	})

	It("renders a comma-joined string", func() {
		Expect(NewChannelSet("alpha", "beta").String()).To(Equal("alpha,beta"))
	})
})
