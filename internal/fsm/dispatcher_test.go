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

package fsm

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) sink(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Name())
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

var _ = Describe("Dispatcher", func() {
	var (
		recorder   *eventRecorder
		dispatcher *Dispatcher
	)

	BeforeEach(func() {
		recorder = &eventRecorder{}
		dispatcher = NewDispatcher("test", recorder.sink, zap.NewNop().Sugar())
	})

	AfterEach(func() {
		dispatcher.Close()
	})

	It("delivers completion events of an uncancelled effect", func() {
		dispatcher.Dispatch(NewEffect(ChannelHandshake, func(context.Context) []Event {
			return []Event{namedEvent("handshake_success")}
		}))
		Eventually(recorder.names).Should(Equal([]string{"handshake_success"}))
	})

	It("drops completion events of a cancelled effect", func() {
		started := make(chan struct{})
		dispatcher.Dispatch(NewEffect(ChannelReceive, func(ctx context.Context) []Event {
			close(started)
			<-ctx.Done()
			// completion computed after cancellation must never surface
			return []Event{namedEvent("receive_success")}
		}))
		Eventually(started).Should(BeClosed())

		dispatcher.Cancel(ChannelReceive)
		Consistently(recorder.names, 200*time.Millisecond).Should(BeEmpty())
	})

	It("supersedes the in-flight effect on the same exclusive channel", func() {
		firstStarted := make(chan struct{})
		dispatcher.Dispatch(NewEffect(ChannelReceive, func(ctx context.Context) []Event {
			close(firstStarted)
			<-ctx.Done()
			return []Event{namedEvent("stale")}
		}))
		Eventually(firstStarted).Should(BeClosed())

		dispatcher.Dispatch(NewEffect(ChannelReceive, func(context.Context) []Event {
			return []Event{namedEvent("fresh")}
		}))

		Eventually(recorder.names).Should(Equal([]string{"fresh"}))
		Consistently(recorder.names, 200*time.Millisecond).Should(Equal([]string{"fresh"}))
	})

	It("runs effects on different channels independently", func() {
		receiveStarted := make(chan struct{})
		dispatcher.Dispatch(NewEffect(ChannelReceive, func(ctx context.Context) []Event {
			close(receiveStarted)
			<-ctx.Done()
			return nil
		}))
		Eventually(receiveStarted).Should(BeClosed())

		dispatcher.Dispatch(NewEffect(ChannelHeartbeat, func(context.Context) []Event {
			return []Event{namedEvent("heartbeat_success")}
		}))
		Eventually(recorder.names).Should(Equal([]string{"heartbeat_success"}))
	})

	It("does not cancel fire-and-forget effects on re-dispatch", func() {
		var mu sync.Mutex
		var cancelled bool
		release := make(chan struct{})
		dispatcher.Dispatch(NewEffect(ChannelLeave, func(ctx context.Context) []Event {
			<-release
			mu.Lock()
			cancelled = ctx.Err() != nil
			mu.Unlock()
			return nil
		}))
		dispatcher.Dispatch(NewEffect(ChannelLeave, func(context.Context) []Event { return nil }))
		close(release)

		Consistently(func() bool {
			mu.Lock()
			defer mu.Unlock()
			return cancelled
		}, 100*time.Millisecond).Should(BeFalse())
	})

	Describe("Wait", func() {
		It("fires the timer event after the delay", func() {
			dispatcher.Dispatch(Wait(20*time.Millisecond, namedEvent("times_up")))
			Eventually(recorder.names).Should(Equal([]string{"times_up"}))
		})

		It("stays silent when cancelled before the delay", func() {
			dispatcher.Dispatch(Wait(150*time.Millisecond, namedEvent("times_up")))
			dispatcher.Cancel(ChannelWait)
			Consistently(recorder.names, 300*time.Millisecond).Should(BeEmpty())
		})

		It("resets the timer when a new wait is dispatched", func() {
			dispatcher.Dispatch(Wait(10*time.Second, namedEvent("slow")))
			dispatcher.Dispatch(Wait(20*time.Millisecond, namedEvent("fast")))
			Eventually(recorder.names).Should(Equal([]string{"fast"}))
		})
	})

	It("aborts everything on Close", func() {
		started := make(chan struct{})
		done := make(chan struct{})
		dispatcher.Dispatch(NewEffect(ChannelReceive, func(ctx context.Context) []Event {
			close(started)
			<-ctx.Done()
			close(done)
			return []Event{namedEvent("late")}
		}))
		Eventually(started).Should(BeClosed())

		dispatcher.Close()
		Eventually(done).Should(BeClosed())
		Consistently(recorder.names, 100*time.Millisecond).Should(BeEmpty())
	})
})
