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

// Package runloop is a cooperative, single-goroutine event scheduler: one
// RunLoop per participating goroutine, each holding named scopes of
// sources, timers, observers and deferred blocks, serviced by repeatedly
// calling Run.
package runloop

import (
	"sync"
	"sync/atomic"
	"time"

	"fortio.org/log"

	"txcore.dev/txcore/rtime"
)

// DefaultScope is the scope name used by every AddX/RemoveX convenience
// method that doesn't take an explicit scope name.
const DefaultScope = "default"

// Status is the outcome of a Run call.
type Status int

const (
	// Finished means Run's repeat count was exhausted normally.
	Finished Status = iota
	// Timeout means Run's max wall-clock budget elapsed.
	Timeout
	// Stopped means Stop was called while Run was in progress. Run clears
	// the stopped flag on entry, so a Stop issued before Run started does
	// not produce it.
	Stopped
)

func (s Status) String() string {
	switch s {
	case Finished:
		return "Finished"
	case Timeout:
		return "Timeout"
	case Stopped:
		return "Stopped"
	default:
		return "Status(?)"
	}
}

// RunLoop is bound to exactly one goroutine (its threadID) for its whole
// life; Run asserts it's being called from that goroutine. The
// AddX/RemoveX/PushBlock, Wakeup and Stop methods may be called from any
// goroutine.
type RunLoop struct {
	threadID ThreadID

	mu           sync.Mutex
	scopeMap     map[string]*Scope
	currentScope *Scope

	periodNanos atomic.Int64
	tick        atomic.Uint64
	stopped     atomic.Bool

	wakeCh chan struct{}
}

func newRunLoop(id ThreadID) *RunLoop {
	l := &RunLoop{
		threadID: id,
		scopeMap: make(map[string]*Scope),
		wakeCh:   make(chan struct{}, 1),
	}
	l.periodNanos.Store(int64(rtime.Second))
	return l
}

// SetPeriod changes the loop's wake-up granularity: Run never waits longer
// than this between checking for new work, even with no timer due sooner.
func (l *RunLoop) SetPeriod(d rtime.Duration) { l.periodNanos.Store(int64(d)) }

func (l *RunLoop) period() rtime.Duration { return rtime.Duration(l.periodNanos.Load()) }

// GetTick returns the number of completed tick-cycle iterations across this
// loop's lifetime.
func (l *RunLoop) GetTick() uint64 { return l.tick.Load() }

// IsInThread reports whether id is this loop's owning goroutine.
func (l *RunLoop) IsInThread(id ThreadID) bool { return l.threadID == id }

// IsInCurrentThread reports whether the calling goroutine owns this loop.
func (l *RunLoop) IsInCurrentThread() bool { return l.IsInThread(CurrentThreadID()) }

// IsInMainThread reports whether this loop belongs to the process's main
// goroutine.
func (l *RunLoop) IsInMainThread() bool { return l.IsInThread(mainThreadID) }

// IsStopped reports whether Stop has been called since the last Run began.
func (l *RunLoop) IsStopped() bool { return l.stopped.Load() }

// Stop asks the loop to return from its current Run call with Status
// Stopped, and wakes it if it's currently waiting. A Run call that starts
// after Stop clears the flag and runs normally.
func (l *RunLoop) Stop() {
	l.stopped.Store(true)
	l.Wakeup()
}

// Wakeup interrupts a pending wait inside Run without waiting for a timer
// or source to do it. Safe to call from any goroutine.
func (l *RunLoop) Wakeup() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

func (l *RunLoop) wait(d rtime.Duration) (timedOut bool) {
	if d <= 0 {
		return true
	}
	if d == rtime.Forever {
		<-l.wakeCh
		return false
	}
	timer := time.NewTimer(time.Duration(d))
	defer timer.Stop()
	select {
	case <-l.wakeCh:
		return false
	case <-timer.C:
		return true
	}
}

func (l *RunLoop) getOrCreateScopeLocked(name string) *Scope {
	if sc, ok := l.scopeMap[name]; ok {
		return sc
	}
	sc := newScope(name, l)
	l.scopeMap[name] = sc
	return sc
}

func (l *RunLoop) getScope(name string, create bool) *Scope {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sc, ok := l.scopeMap[name]; ok {
		return sc
	}
	if !create {
		return nil
	}
	return l.getOrCreateScopeLocked(name)
}

func (l *RunLoop) assertOwningThread() {
	if !l.IsInCurrentThread() {
		log.Fatalf("runloop: called from goroutine %d, but this loop is owned by %d", CurrentThreadID(), l.threadID)
	}
}

// Run services scopeName (creating it if this is the first use) until
// either repeat post-decrements to zero (RepeatForever to mean "don't
// stop"), maxTimeout of wall-clock time has elapsed, or Stop is called.
// Must be called from the loop's owning goroutine.
func (l *RunLoop) Run(repeat uint64, maxTimeout rtime.Duration, scopeName string) Status {
	l.assertOwningThread()

	l.mu.Lock()
	scope := l.getOrCreateScopeLocked(scopeName)
	previous := l.currentScope
	l.currentScope = scope
	l.mu.Unlock()

	l.stopped.Store(false)
	status := l.schedule(scope, maxTimeout, repeat)

	l.mu.Lock()
	l.currentScope = previous
	l.mu.Unlock()
	return status
}

// decrementRepeat mimics the C++ `do { ... } while (repeat--)` idiom: it
// evaluates to whether the loop should continue (the pre-decrement value
// was nonzero), and always decrements (wrapping from 0 to ^uint64(0), which
// is harmless because the loop has already stopped by then).
func decrementRepeat(repeat *uint64) bool {
	old := *repeat
	*repeat--
	return old != 0
}

func (l *RunLoop) schedule(scope *Scope, maxTimeout rtime.Duration, repeat uint64) Status {
	if scope.isStopped() {
		return Stopped
	}
	var elapseTotal rtime.Duration
	l.doObservers(scope, ActivityEntry)

	for {
		if l.IsStopped() {
			return Stopped
		}
		start := rtime.Now()

		scopeTimeout := scope.timeout(start)
		if scopeTimeout <= 0 {
			l.doObservers(scope, ActivityBeforeTimers)
			l.doTimers(scope)
			if !decrementRepeat(&repeat) {
				l.doObservers(scope, ActivityExit)
				return Finished
			}
			continue
		}

		l.doObservers(scope, ActivityBeforeSources)
		l.doSources(scope)

		loopTimeout := scopeTimeout - rtime.Since(start)
		if loopTimeout <= 0 {
			l.doObservers(scope, ActivityBeforeTimers)
			l.doTimers(scope)
			if !decrementRepeat(&repeat) {
				l.doObservers(scope, ActivityExit)
				return Finished
			}
			continue
		}

		l.doObservers(scope, ActivityBeforeWaiting)
		waitFor := loopTimeout
		if p := l.period(); p < waitFor {
			waitFor = p
		}
		timedOut := l.wait(waitFor)
		l.doObservers(scope, ActivityAfterWaiting)

		if timedOut && loopTimeout <= l.period() {
			l.doObservers(scope, ActivityBeforeTimers)
			l.doTimers(scope)
		}

		l.doObservers(scope, ActivityBeforeBlocks)
		l.doBlocks(scope)

		elapseTotal += rtime.Since(start)
		if maxTimeout != rtime.Forever && elapseTotal >= maxTimeout {
			return Timeout
		}

		l.tick.Add(1)
		if !decrementRepeat(&repeat) {
			l.doObservers(scope, ActivityExit)
			return Finished
		}
	}
}

func (l *RunLoop) doObservers(scope *Scope, activity Activity) { scope.doObservers(l, activity) }
func (l *RunLoop) doSources(scope *Scope)                      { scope.doSources(l) }
func (l *RunLoop) doTimers(scope *Scope)                       { scope.doTimers(l) }
func (l *RunLoop) doBlocks(scope *Scope)                       { scope.doBlocks(l) }

// AddSource registers s against the default scope.
func (l *RunLoop) AddSource(s *Source) { l.AddSourceIn(DefaultScope, s) }

// AddSourceIn registers s against the named scope, creating it if needed.
func (l *RunLoop) AddSourceIn(scopeName string, s *Source) {
	scope := l.getScope(scopeName, true)
	scope.addSource(s)
	if s.OnSchedule != nil {
		s.OnSchedule(l, scope)
	}
}

// RemoveSource unregisters s from the default scope.
func (l *RunLoop) RemoveSource(s *Source) { l.RemoveSourceIn(DefaultScope, s) }

// RemoveSourceIn unregisters s from the named scope, if it exists.
func (l *RunLoop) RemoveSourceIn(scopeName string, s *Source) {
	scope := l.getScope(scopeName, false)
	if scope == nil {
		return
	}
	scope.removeSource(s)
	if s.OnCancel != nil {
		s.OnCancel(l, scope)
	}
}

// AddTimer registers t against the default scope.
func (l *RunLoop) AddTimer(t *Timer) { l.AddTimerIn(DefaultScope, t) }

// AddTimerIn registers t against the named scope, creating it if needed.
func (l *RunLoop) AddTimerIn(scopeName string, t *Timer) {
	scope := l.getScope(scopeName, true)
	scope.addTimer(t)
}

// RemoveTimer cancels t. The scope name is accepted for symmetry with the
// Add methods but unused: cancellation is a flag flip on the timer itself,
// resolved lazily whenever its owning scope's heap next pops it.
func (l *RunLoop) RemoveTimer(t *Timer, _ string) { t.Cancel() }

// AddObserver registers o against the default scope.
func (l *RunLoop) AddObserver(o *Observer) { l.AddObserverIn(DefaultScope, o) }

// AddObserverIn registers o against the named scope, creating it if needed.
func (l *RunLoop) AddObserverIn(scopeName string, o *Observer) {
	scope := l.getScope(scopeName, true)
	scope.addObserver(o)
}

// RemoveObserver unregisters o from the default scope.
func (l *RunLoop) RemoveObserver(o *Observer) { l.RemoveObserverIn(DefaultScope, o) }

// RemoveObserverIn unregisters o from the named scope, if it exists.
func (l *RunLoop) RemoveObserverIn(scopeName string, o *Observer) {
	scope := l.getScope(scopeName, false)
	if scope == nil {
		return
	}
	scope.removeObserver(o)
}

// PushBlock enqueues fn to run once, in FIFO order, during the default
// scope's next DoBlocks phase.
func (l *RunLoop) PushBlock(fn func()) { l.PushBlockIn(DefaultScope, fn) }

// PushBlockIn enqueues fn against the named scope, creating it if needed.
func (l *RunLoop) PushBlockIn(scopeName string, fn func()) {
	scope := l.getScope(scopeName, true)
	scope.pushBlock(fn)
}
