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
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func validConfig() FullConfig {
	return FullConfig{
		Origin:       "https://rt.pulsegrid.io",
		SubscribeKey: "sub-key",
	}
}

var _ = Describe("FullConfig", func() {
	Describe("ApplyDefaults", func() {
		It("derives the heartbeat interval from the presence timeout", func() {
			cfg := validConfig()
			cfg.Presence.Timeout = 60
			cfg.ApplyDefaults()
			Expect(cfg.Presence.HeartbeatInterval).To(Equal(29))
		})

		It("fills a random user id", func() {
			cfg := validConfig()
			cfg.ApplyDefaults()
			Expect(cfg.UserID).NotTo(BeEmpty())
		})

		It("defaults to the exponential retry policy", func() {
			cfg := validConfig()
			cfg.ApplyDefaults()
			Expect(cfg.Retry.Policy).To(Equal("exponential"))
			Expect(cfg.Retry.MaxRetry).To(Equal(6))
			Expect(cfg.Retry.MinDelay.AsDuration()).To(Equal(2 * time.Second))
			Expect(cfg.Retry.MaxDelay.AsDuration()).To(Equal(150 * time.Second))
		})

		It("keeps an explicit catchUpOnJoin=false", func() {
			cfg := validConfig()
			f := false
			cfg.Subscribe.CatchUpOnJoin = &f
			cfg.ApplyDefaults()
			Expect(cfg.CatchUpOnJoin()).To(BeFalse())
		})
	})

	Describe("Validate", func() {
		It("requires an absolute origin URL", func() {
			cfg := validConfig()
			cfg.ApplyDefaults()
			cfg.Origin = "rt.pulsegrid.io"
			Expect(cfg.Validate()).To(MatchError(ErrInvalidConfig))
		})

		It("requires a subscribe key", func() {
			cfg := validConfig()
			cfg.ApplyDefaults()
			cfg.SubscribeKey = ""
			Expect(cfg.Validate()).To(MatchError(ErrInvalidConfig))
		})

		It("rejects a heartbeat interval at or above the timeout", func() {
			cfg := validConfig()
			cfg.Presence.Timeout = 30
			cfg.Presence.HeartbeatInterval = 30
			cfg.ApplyDefaults()
			Expect(cfg.Validate()).To(MatchError(ErrInvalidConfig))
		})

		It("rejects unknown retry policies and endpoints", func() {
			cfg := validConfig()
			cfg.ApplyDefaults()
			cfg.Retry.Policy = "fibonacci"
			Expect(cfg.Validate()).To(MatchError(ErrInvalidConfig))

			cfg = validConfig()
			cfg.ApplyDefaults()
			cfg.Retry.ExcludedEndpoints = []string{"publish"}
			Expect(cfg.Validate()).To(MatchError(ErrInvalidConfig))
		})

		It("accepts a fully defaulted config", func() {
			cfg := validConfig()
			cfg.ApplyDefaults()
			Expect(cfg.Validate()).To(Succeed())
		})
	})

	Describe("ValidateNames", func() {
		It("rejects empty and reserved-character names", func() {
			Expect(ValidateNames([]string{""})).To(MatchError(ErrInvalidConfig))
			Expect(ValidateNames([]string{"a,b"})).To(MatchError(ErrInvalidConfig))
			Expect(ValidateNames([]string{"a/b"})).To(MatchError(ErrInvalidConfig))
			Expect(ValidateNames([]string{"news?"})).To(MatchError(ErrInvalidConfig))
			Expect(ValidateNames([]string{"news#1"})).To(MatchError(ErrInvalidConfig))
		})

		It("accepts ordinary names", func() {
			Expect(ValidateNames([]string{"sensors", "alerts.critical", "room-42"})).To(Succeed())
		})
	})

	Describe("LoadFromFile", func() {
		It("parses yaml including durations", func() {
			path := filepath.Join(GinkgoT().TempDir(), "pulsegrid.yaml")
			data := []byte(`
origin: https://rt.pulsegrid.io
subscribeKey: sub-key
userId: tester
presence:
  timeout: 120
retry:
  policy: linear
  delay: 3s
  maxRetry: 2
dedup:
  enabled: true
  maximumCacheSize: 50
`)
			Expect(os.WriteFile(path, data, 0o600)).To(Succeed())

			cfg, err := LoadFromFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.UserID).To(Equal("tester"))
			Expect(cfg.Presence.Timeout).To(Equal(120))
			Expect(cfg.Presence.HeartbeatInterval).To(Equal(59))
			Expect(cfg.Retry.Policy).To(Equal("linear"))
			Expect(cfg.Retry.Delay.AsDuration()).To(Equal(3 * time.Second))
			Expect(cfg.Dedup.Enabled).To(BeTrue())
			Expect(cfg.Dedup.MaximumCacheSize).To(Equal(50))
		})

		It("fails on unparsable yaml", func() {
			path := filepath.Join(GinkgoT().TempDir(), "broken.yaml")
			Expect(os.WriteFile(path, []byte("origin: [unterminated"), 0o600)).To(Succeed())
			_, err := LoadFromFile(path)
			Expect(err).To(MatchError(ErrInvalidConfig))
		})

		It("fails on a missing file", func() {
			_, err := LoadFromFile(filepath.Join(GinkgoT().TempDir(), "absent.yaml"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("environment overrides", func() {
		It("takes precedence over file values", func() {
			GinkgoT().Setenv(EnvOrigin, "https://override.pulsegrid.io")
			path := filepath.Join(GinkgoT().TempDir(), "pulsegrid.yaml")
			data := []byte("origin: https://rt.pulsegrid.io\nsubscribeKey: sub-key\n")
			Expect(os.WriteFile(path, data, 0o600)).To(Succeed())

			cfg, err := LoadFromFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Origin).To(Equal("https://override.pulsegrid.io"))
		})
	})
})
