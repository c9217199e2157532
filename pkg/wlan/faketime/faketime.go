// Copyright 2026 The gVisor Authors.
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

// Package faketime provides fake clocks that implement wlan.Clock.
package faketime

import (
	"container/heap"
	"time"

	"gvisor.dev/wlan/pkg/sync"
	"gvisor.dev/wlan/pkg/wlan"
)

// NullClock implements a clock that never advances.
type NullClock struct{}

var _ wlan.Clock = NullClock{}

// Now implements wlan.Clock.Now.
func (NullClock) Now() time.Time {
	return time.Unix(0, 0)
}

// ManualClock implements wlan.Clock and only advances manually with the
// Advance and Set methods. Work scheduled with AfterFunc runs on the goroutine
// that advances the clock, in deadline order.
type ManualClock struct {
	// mu protects the fields below.
	mu sync.Mutex

	now time.Time

	// timers is a min-heap of pending timers ordered by deadline.
	timers timerHeap
}

var _ wlan.Clock = (*ManualClock)(nil)

// NewManualClock creates a new ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements wlan.Clock.Now.
func (mc *ManualClock) Now() time.Time {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.now
}

// AfterFunc schedules f to run once the clock has advanced by d.
func (mc *ManualClock) AfterFunc(d time.Duration, f func()) *Timer {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	t := &Timer{clock: mc, f: f, index: -1}
	mc.scheduleLocked(t, mc.now.Add(d))
	return t
}

// +checklocks:mc.mu
func (mc *ManualClock) scheduleLocked(t *Timer, when time.Time) {
	t.when = when
	heap.Push(&mc.timers, t)
}

// Advance executes all work that has been scheduled to execute within d from
// the current time, then moves the clock to the current time plus d.
func (mc *ManualClock) Advance(d time.Duration) {
	mc.mu.Lock()
	until := mc.now.Add(d)
	mc.mu.Unlock()
	mc.Set(until)
}

// Set moves the clock forward to t, running every timer whose deadline is not
// after t. Set never moves the clock backwards.
func (mc *ManualClock) Set(t time.Time) {
	for {
		mc.mu.Lock()
		if len(mc.timers) == 0 || mc.timers[0].when.After(t) {
			if t.After(mc.now) {
				mc.now = t
			}
			mc.mu.Unlock()
			return
		}
		next := heap.Pop(&mc.timers).(*Timer)
		if next.when.After(mc.now) {
			mc.now = next.when
		}
		f := next.f
		mc.mu.Unlock()

		// Callbacks may schedule more work, so the lock is dropped.
		f()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (mc *ManualClock) Pending() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.timers)
}

// Timer is work scheduled on a ManualClock.
type Timer struct {
	clock *ManualClock
	f     func()

	// The fields below are protected by clock.mu.
	when  time.Time
	index int
}

// Stop prevents the timer from firing. It returns true if the call stopped the
// timer and false if it had already fired or been stopped.
func (t *Timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&t.clock.timers, t.index)
	return true
}

// Reset reschedules the timer to fire d after the current time, whether or not
// it was still pending.
func (t *Timer) Reset(d time.Duration) {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.index >= 0 {
		heap.Remove(&t.clock.timers, t.index)
	}
	t.clock.scheduleLocked(t, t.clock.now.Add(d))
}

type timerHeap []*Timer

var _ heap.Interface = (*timerHeap)(nil)

func (h timerHeap) Len() int {
	return len(h)
}

func (h timerHeap) Less(i, j int) bool {
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	old[len(old)-1] = nil
	last.index = -1
	*h = old[:len(old)-1]
	return last
}
