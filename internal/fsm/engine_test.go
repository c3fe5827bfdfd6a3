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
	"sync"
	"time"

	looplabfsm "github.com/looplab/fsm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type namedEvent string

func (e namedEvent) Name() string { return string(e) }

func testEngine() *Engine {
	return NewEngine(EngineConfig{
		ID:           "test-engine",
		InitialState: "idle",
		Transitions: []looplabfsm.EventDesc{
			{Name: "start", Src: []string{"idle"}, Dst: "running"},
			{Name: "tick", Src: []string{"running"}, Dst: "running"},
			{Name: "stop", Src: []string{"running"}, Dst: "idle"},
		},
	})
}

var _ = Describe("Engine", func() {
	var engine *Engine

	AfterEach(func() {
		engine.Close()
	})

	It("applies a legal event and switches state", func() {
		engine = testEngine()
		applied := make(chan Event, 1)
		engine.OnEvent("idle", "start", func(ev Event) []Effect {
			applied <- ev
			return nil
		})
		engine.Start()

		engine.Send(namedEvent("start"))
		Eventually(applied).Should(Receive(Equal(Event(namedEvent("start")))))
		Eventually(engine.CurrentState).Should(Equal("running"))
	})

	It("ignores an event that is illegal in the current state", func() {
		engine = testEngine()
		var calls int
		var mu sync.Mutex
		engine.OnEvent("running", "tick", func(Event) []Effect {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		})
		engine.Start()

		// tick is only legal while running
		engine.Send(namedEvent("tick"))
		Consistently(engine.CurrentState, 100*time.Millisecond).Should(Equal("idle"))
		mu.Lock()
		Expect(calls).To(BeZero())
		mu.Unlock()
	})

	It("ignores an event with no registered apply function", func() {
		engine = testEngine()
		engine.Start()

		// start is legal in idle but nothing is registered for it
		engine.Send(namedEvent("start"))
		Consistently(engine.CurrentState, 100*time.Millisecond).Should(Equal("idle"))
	})

	It("processes events strictly in arrival order", func() {
		engine = testEngine()
		var mu sync.Mutex
		var order []string
		record := func(ev Event) []Effect {
			mu.Lock()
			order = append(order, ev.Name())
			mu.Unlock()
			return nil
		}
		engine.OnEvent("idle", "start", record)
		engine.OnEvent("running", "tick", record)
		engine.OnEvent("running", "stop", record)
		engine.Start()

		engine.Send(namedEvent("start"))
		engine.Send(namedEvent("tick"))
		engine.Send(namedEvent("tick"))
		engine.Send(namedEvent("stop"))

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), order...)
		}).Should(Equal([]string{"start", "tick", "tick", "stop"}))
	})

	It("supports self-transitions without changing state", func() {
		engine = testEngine()
		ticked := make(chan struct{}, 1)
		engine.OnEvent("idle", "start", func(Event) []Effect { return nil })
		engine.OnEvent("running", "tick", func(Event) []Effect {
			ticked <- struct{}{}
			return nil
		})
		engine.Start()

		engine.Send(namedEvent("start"))
		engine.Send(namedEvent("tick"))
		Eventually(ticked).Should(Receive())
		Expect(engine.CurrentState()).To(Equal("running"))
	})

	It("lets an apply function query the state while its event is processed", func() {
		engine = testEngine()
		observed := make(chan string, 1)
		engine.OnEvent("idle", "start", func(Event) []Effect {
			// apply funcs run unlocked so they may read back the state
			observed <- engine.CurrentState()
			return nil
		})
		engine.Start()

		engine.Send(namedEvent("start"))
		Eventually(observed, time.Second).Should(Receive(Equal("idle")))
		Eventually(engine.CurrentState).Should(Equal("running"))
	})

	It("feeds effect completion events back into the lane", func() {
		engine = testEngine()
		stopped := make(chan struct{}, 1)
		engine.OnEvent("idle", "start", func(Event) []Effect {
			return []Effect{Feedback(namedEvent("stop"))}
		})
		engine.OnEvent("running", "stop", func(Event) []Effect {
			stopped <- struct{}{}
			return nil
		})
		engine.Start()

		engine.Send(namedEvent("start"))
		Eventually(stopped).Should(Receive())
		Eventually(engine.CurrentState).Should(Equal("idle"))
	})

	It("drops events sent after Close", func() {
		engine = testEngine()
		engine.OnEvent("idle", "start", func(Event) []Effect { return nil })
		engine.Start()
		engine.Close()

		engine.Send(namedEvent("start"))
		Consistently(engine.CurrentState, 100*time.Millisecond).Should(Equal("idle"))
	})
})
