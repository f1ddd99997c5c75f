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
	"container/heap"
	"sync"

	"txcore.dev/txcore/rtime"
)

// deadTimerRetryCap bounds how many dead (canceled) timers Scope.timeout
// will pop off the heap while looking for the next live deadline, so a
// scope full of canceled timers can't turn a timeout computation into an
// unbounded loop.
const deadTimerRetryCap = 5

// Scope is a named bucket of sources, timers, observers and deferred blocks
// within a RunLoop. Everything registered against a RunLoop lives in some
// scope (the default one, "default", if the caller didn't ask for another),
// and Run services exactly one scope for its duration.
//
// All mutation and iteration goes through scope.mu: callbacks invoked while
// the lock is held (doBlocks in particular) must not re-enter any method
// that takes it.
type Scope struct {
	name string
	loop *RunLoop

	mu        sync.Mutex
	sources   map[*Source]struct{}
	observers map[*Observer]struct{}
	timers    timerHeap
	blocks    []func()
	stopped   bool
}

func newScope(name string, loop *RunLoop) *Scope {
	return &Scope{
		name:      name,
		loop:      loop,
		sources:   make(map[*Source]struct{}),
		observers: make(map[*Observer]struct{}),
	}
}

// Name returns the scope's name.
func (sc *Scope) Name() string { return sc.name }

func (sc *Scope) addSource(s *Source) {
	sc.mu.Lock()
	sc.sources[s] = struct{}{}
	sc.mu.Unlock()
}

func (sc *Scope) removeSource(s *Source) {
	sc.mu.Lock()
	delete(sc.sources, s)
	sc.mu.Unlock()
}

func (sc *Scope) addTimer(t *Timer) {
	sc.mu.Lock()
	heap.Push(&sc.timers, t)
	sc.mu.Unlock()
}

func (sc *Scope) addObserver(o *Observer) {
	sc.mu.Lock()
	sc.observers[o] = struct{}{}
	sc.mu.Unlock()
}

func (sc *Scope) removeObserver(o *Observer) {
	sc.mu.Lock()
	delete(sc.observers, o)
	sc.mu.Unlock()
}

func (sc *Scope) pushBlock(fn func()) {
	sc.mu.Lock()
	sc.blocks = append(sc.blocks, fn)
	sc.mu.Unlock()
}

func (sc *Scope) isStopped() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.stopped
}

// timeout returns how long until the scope's next live timer is due,
// discarding canceled ones it encounters along the way (up to
// deadTimerRetryCap of them), or Forever if nothing is due within that
// bound.
func (sc *Scope) timeout(now rtime.Time) rtime.Duration {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	retries := 0
	for {
		if sc.timers.Len() == 0 || retries >= deadTimerRetryCap {
			return rtime.Forever
		}
		top := sc.timers[0]
		if !top.IsAlive() {
			heap.Pop(&sc.timers)
			retries++
			continue
		}
		return top.deadline.Diff(now)
	}
}

func (sc *Scope) doObservers(loop *RunLoop, activity Activity) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	var finished []*Observer
	for o := range sc.observers {
		if !o.Activities.Has(activity) {
			continue
		}
		if o.OnActivity != nil {
			o.OnActivity(loop, activity)
		}
		if o.Once {
			finished = append(finished, o)
		}
	}
	for _, o := range finished {
		delete(sc.observers, o)
	}
}

func (sc *Scope) doSources(loop *RunLoop) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for s := range sc.sources {
		if !s.IsSignaled() {
			continue
		}
		s.Clear()
		if s.OnPerform != nil {
			s.OnPerform(loop, sc)
		}
	}
}

// doTimers pops and fires at most one due timer per call, mirroring the
// original tick cycle, which gives every other phase a chance to run
// between consecutive timer firings instead of draining the whole heap.
func (sc *Scope) doTimers(loop *RunLoop) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.timers.Len() == 0 {
		return
	}
	timer := heap.Pop(&sc.timers).(*Timer)
	if !timer.IsAlive() {
		return
	}
	if timer.OnTimeout != nil {
		timer.OnTimeout(loop, sc)
	}
	newTick := timer.tick.Add(1)
	if timer.repeat == newTick-1 {
		return
	}
	if timer.period > 0 {
		timer.deadline = rtime.Now().Add(timer.period)
		heap.Push(&sc.timers, timer)
	}
}

// doBlocks drains the deferred block queue in FIFO order, holding the scope
// lock for the whole drain, exactly as the other Do* phases do: a block
// must not call anything that takes this scope's lock, PushBlock onto the
// same scope included, or it deadlocks.
func (sc *Scope) doBlocks(loop *RunLoop) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for len(sc.blocks) > 0 {
		fn := sc.blocks[0]
		sc.blocks = sc.blocks[1:]
		fn()
	}
}
