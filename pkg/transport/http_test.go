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
	"context"
	"time"

	"github.com/h2non/gock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/pulsegrid/pulsegrid-go/pkg/backoff"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
)

const testOrigin = "https://rt.pulsegrid.test"

func newTestTransport() *HTTPTransport {
	t := NewHTTPTransport(HTTPConfig{
		Origin:       testOrigin,
		SubscribeKey: "sub-key",
		UserID:       "user-1",
	}, zap.NewNop().Sugar())
	gock.InterceptClient(t.HTTPClient())
	return t
}

var _ = Describe("HTTPTransport", func() {
	var tr *HTTPTransport

	BeforeEach(func() {
		tr = newTestTransport()
	})

	AfterEach(func() {
		gock.Off()
	})

	Describe("handshake", func() {
		It("requests a zero timetoken and decodes the assigned cursor", func() {
			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/room1/0").
				MatchParam("tt", "0").
				MatchParam("uuid", "user-1").
				Reply(200).
				BodyString(`{"t":{"t":"17276954606232118","r":4},"m":[]}`)

			resp, err := tr.Execute(context.Background(), Request{
				Kind:     KindHandshake,
				Channels: []string{"room1"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Cursor).To(Equal(models.Cursor{Timetoken: "17276954606232118", Region: 4}))
			Expect(resp.Messages).To(BeEmpty())
		})

		It("announces the presence timeout", func() {
			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/room1/0").
				MatchParam("heartbeat", "300").
				Reply(200).
				BodyString(`{"t":{"t":"1","r":1},"m":[]}`)

			_, err := tr.Execute(context.Background(), Request{
				Kind:            KindHandshake,
				Channels:        []string{"room1"},
				PresenceTimeout: 300,
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("receive", func() {
		It("resumes from the request cursor and decodes messages", func() {
			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/room1,room2/0").
				MatchParam("tt", "17276954606232118").
				MatchParam("tr", "4").
				Reply(200).
				BodyString(`{"t":{"t":"17276954606232200","r":4},"m":[` +
					`{"c":"room1","i":"user-2","p":{"t":"17276954606232150","r":4},"d":{"v":1}},` +
					`{"c":"room2","b":"group1","i":"user-3","p":{"t":"17276954606232160","r":4},"d":"plain"}]}`)

			resp, err := tr.Execute(context.Background(), Request{
				Kind:     KindReceive,
				Channels: []string{"room1", "room2"},
				Cursor:   models.Cursor{Timetoken: "17276954606232118", Region: 4},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Cursor.Timetoken).To(Equal("17276954606232200"))
			Expect(resp.Messages).To(HaveLen(2))
			Expect(resp.Messages[0].Channel).To(Equal("room1"))
			Expect(resp.Messages[0].Publisher).To(Equal("user-2"))
			Expect(string(resp.Messages[0].Payload)).To(MatchJSON(`{"v":1}`))
			Expect(resp.Messages[1].SubscriptionMatch).To(Equal("group1"))
		})

		It("sends channel groups and the comma placeholder for no channels", func() {
			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/,/0").
				MatchParam("channel-group", "group1").
				Reply(200).
				BodyString(`{"t":{"t":"2","r":1},"m":[]}`)

			_, err := tr.Execute(context.Background(), Request{
				Kind:   KindReceive,
				Groups: []string{"group1"},
				Cursor: models.Cursor{Timetoken: "1"},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a body without a cursor", func() {
			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/room1/0").
				Reply(200).
				BodyString(`{"m":[]}`)

			_, err := tr.Execute(context.Background(), Request{
				Kind:     KindReceive,
				Channels: []string{"room1"},
			})
			Expect(backoff.IsTransientError(err)).To(BeTrue())
		})
	})

	Describe("presence calls", func() {
		It("heartbeats against the presence path", func() {
			gock.New(testOrigin).
				Get("/v2/presence/sub-key/sub-key/channel/room1/heartbeat").
				MatchParam("heartbeat", "120").
				Reply(200).
				BodyString(`{"status": 200, "message": "OK"}`)

			resp, err := tr.Execute(context.Background(), Request{
				Kind:            KindHeartbeat,
				Channels:        []string{"room1"},
				PresenceTimeout: 120,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))
		})

		It("announces departure on the leave path", func() {
			gock.New(testOrigin).
				Get("/v2/presence/sub-key/sub-key/channel/room1,room2/leave").
				Reply(200).
				BodyString(`{"status": 200, "message": "OK"}`)

			_, err := tr.Execute(context.Background(), Request{
				Kind:     KindLeave,
				Channels: []string{"room1", "room2"},
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("error taxonomy", func() {
		It("maps 403 to a permanent error", func() {
			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/room1/0").
				Reply(403).
				BodyString(`{"message":"Forbidden"}`)

			_, err := tr.Execute(context.Background(), Request{Kind: KindHandshake, Channels: []string{"room1"}})
			Expect(backoff.IsPermanentError(err)).To(BeTrue())
		})

		It("maps 400 to a permanent error", func() {
			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/room1/0").
				Reply(400).
				BodyString(`{"message":"Invalid"}`)

			_, err := tr.Execute(context.Background(), Request{Kind: KindHandshake, Channels: []string{"room1"}})
			Expect(backoff.IsPermanentError(err)).To(BeTrue())
		})

		It("maps 500 and 429 to transient errors", func() {
			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/room1/0").
				Reply(500)
			_, err := tr.Execute(context.Background(), Request{Kind: KindHandshake, Channels: []string{"room1"}})
			Expect(backoff.IsTransientError(err)).To(BeTrue())

			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/room1/0").
				Reply(429)
			_, err = tr.Execute(context.Background(), Request{Kind: KindHandshake, Channels: []string{"room1"}})
			Expect(backoff.IsTransientError(err)).To(BeTrue())
		})

		It("maps a cancelled context to a cancelled error", func() {
			gock.New(testOrigin).
				Get("/v2/subscribe/sub-key/room1/0").
				Reply(200).
				Delay(2 * time.Second).
				BodyString(`{"t":{"t":"1","r":1},"m":[]}`)

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()
			_, err := tr.Execute(ctx, Request{Kind: KindHandshake, Channels: []string{"room1"}})
			Expect(backoff.IsCancelledError(err)).To(BeTrue())
		})

		It("rejects an unknown request kind outright", func() {
			_, err := tr.Execute(context.Background(), Request{Kind: Kind("publish")})
			Expect(backoff.IsPermanentError(err)).To(BeTrue())
		})
	})
})
