// Copyright 2026 Fortio Authors
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

package runloop

import (
	"sync/atomic"

	"txcore.dev/txcore/rtime"
)

// RepeatForever is the repeat count meaning "never stop repeating on its
// own"; it must be canceled or outlive its scope instead.
const RepeatForever = ^uint64(0)

// RepeatNever fires the timer exactly once regardless of Period.
const RepeatNever uint64 = 0

// NoPeriod marks a Timer as one-shot: once it fires, it is dropped instead
// of being rescheduled.
const NoPeriod rtime.Duration = -1

// Timer is a one-shot or repeating deadline owned by a single Scope. Timers
// are soft-deleted: Cancel flips an alive flag that the scope's timer heap
// consults lazily the next time it is popped, rather than searching the
// heap for the entry to remove.
type Timer struct {
	Name      string
	OnTimeout func(loop *RunLoop, scope *Scope)

	deadline rtime.Time
	period   rtime.Duration
	repeat   uint64
	tick     atomic.Uint64
	alive    atomic.Bool

	heapIndex int
}

// NewTimer builds a Timer that first fires after timeout, then (if period
// is positive) every period thereafter, for up to repeat additional firings
// after the first (RepeatForever for indefinite, RepeatNever for exactly
// one firing).
func NewTimer(timeout, period rtime.Duration, repeat uint64, name string) *Timer {
	t := &Timer{
		Name:   name,
		period: period,
		repeat: repeat,
	}
	t.deadline = rtime.Now().Add(timeout)
	t.alive.Store(true)
	return t
}

// Cancel marks the timer dead. It is dropped, not fired, the next time the
// owning scope's heap pops it.
func (t *Timer) Cancel() { t.alive.Store(false) }

// IsAlive reports whether Cancel has not been called.
func (t *Timer) IsAlive() bool { return t.alive.Load() }

// Tick returns how many times OnTimeout has fired so far.
func (t *Timer) Tick() uint64 { return t.tick.Load() }

// Deadline returns the next time this timer is due to fire.
func (t *Timer) Deadline() rtime.Time { return t.deadline }

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
