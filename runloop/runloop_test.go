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
	"sync"
	"testing"
	"time"

	"txcore.dev/txcore/rtime"
)

func freshLoop() *RunLoop {
	l := newRunLoop(CurrentThreadID())
	l.SetPeriod(rtime.Millisecond)
	return l
}

func TestRunRepeatZeroFinishesAfterOneTick(t *testing.T) {
	l := freshLoop()
	status := l.Run(0, rtime.Forever, DefaultScope)
	if status != Finished {
		t.Fatalf("status = %v, want Finished", status)
	}
	if got := l.GetTick(); got != 1 {
		t.Errorf("GetTick() = %d, want 1", got)
	}
}

func TestRunRepeatNFinishesAfterNPlusOneTicks(t *testing.T) {
	l := freshLoop()
	l.SetPeriod(rtime.Millisecond)
	status := l.Run(4, rtime.Forever, DefaultScope)
	if status != Finished {
		t.Fatalf("status = %v, want Finished", status)
	}
	if got := l.GetTick(); got != 5 {
		t.Errorf("GetTick() = %d, want 5", got)
	}
}

func TestRunTimeoutStatus(t *testing.T) {
	l := freshLoop()
	l.SetPeriod(5 * rtime.Millisecond)
	status := l.Run(RepeatForever, 20*rtime.Millisecond, DefaultScope)
	if status != Timeout {
		t.Fatalf("status = %v, want Timeout", status)
	}
}

func TestStopFromAnotherGoroutine(t *testing.T) {
	// Run must be called from the loop's owning goroutine, so the loop is
	// created on the goroutine that runs it and stopped from this one.
	loops := make(chan *RunLoop, 1)
	done := make(chan Status, 1)
	go func() {
		l := freshLoop()
		l.SetPeriod(5 * rtime.Millisecond)
		loops <- l
		done <- l.Run(RepeatForever, rtime.Forever, DefaultScope)
	}()
	l := <-loops

	// Stop only once Run is servicing blocks: Run clears the flag on entry.
	started := make(chan struct{})
	l.PushBlock(func() { close(started) })
	l.Wakeup()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Run never drained the pushed block")
	}
	l.Stop()

	select {
	case status := <-done:
		if status != Stopped {
			t.Errorf("status = %v, want Stopped", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestTimerFiresSingleShot(t *testing.T) {
	l := freshLoop()
	var fired int
	timer := NewTimer(0, NoPeriod, RepeatNever, "once")
	timer.OnTimeout = func(*RunLoop, *Scope) { fired++ }
	l.AddTimer(timer)

	l.Run(3, rtime.Forever, DefaultScope)

	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	if got := timer.Tick(); got != 1 {
		t.Errorf("Tick() = %d, want 1", got)
	}
}

func TestTimerRepeatsExactlyRepeatPlusOneTimes(t *testing.T) {
	l := freshLoop()
	l.SetPeriod(rtime.Millisecond)
	var fired int
	var mu sync.Mutex
	timer := NewTimer(0, rtime.Millisecond, 10, "repeating")
	timer.OnTimeout = func(*RunLoop, *Scope) {
		mu.Lock()
		fired++
		mu.Unlock()
	}
	l.AddTimer(timer)

	l.Run(RepeatForever, 150*rtime.Millisecond, DefaultScope)

	mu.Lock()
	defer mu.Unlock()
	if fired != 11 {
		t.Errorf("fired = %d, want 11", fired)
	}
}

func TestRemoveTimerCancelsBeforeItFires(t *testing.T) {
	l := freshLoop()
	var fired bool
	timer := NewTimer(5*rtime.Millisecond, NoPeriod, RepeatNever, "canceled")
	timer.OnTimeout = func(*RunLoop, *Scope) { fired = true }
	l.AddTimer(timer)
	l.RemoveTimer(timer, DefaultScope)

	l.SetPeriod(rtime.Millisecond)
	l.Run(RepeatForever, 20*rtime.Millisecond, DefaultScope)

	if fired {
		t.Error("canceled timer fired")
	}
}

func TestSourceSignalInvokesOnPerformOnce(t *testing.T) {
	l := freshLoop()
	var fired int
	src := NewSource("evt")
	src.OnPerform = func(*RunLoop, *Scope) { fired++ }
	l.AddSource(src)
	src.Signal()
	src.Signal() // idempotent before the next DoSources pass

	l.SetPeriod(rtime.Millisecond)
	l.Run(2, rtime.Forever, DefaultScope)

	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	if src.IsSignaled() {
		t.Error("source should be cleared after firing")
	}
}

func TestObserverMaskFiltersActivities(t *testing.T) {
	l := freshLoop()
	var seen []Activity
	obs := NewObserver(ActivityEntry, false, func(_ *RunLoop, a Activity) {
		seen = append(seen, a)
	})
	l.AddObserver(obs)

	l.Run(2, rtime.Forever, DefaultScope)

	for _, a := range seen {
		if a != ActivityEntry {
			t.Errorf("observer saw activity %v outside its mask", a)
		}
	}
	if len(seen) != 1 {
		t.Errorf("ActivityEntry should only fire once per Run, saw %d", len(seen))
	}
}

func TestObserverOnceRemovesItselfAfterFiring(t *testing.T) {
	l := freshLoop()
	var calls int
	obs := NewObserver(ActivityAll, true, func(*RunLoop, Activity) { calls++ })
	l.AddObserver(obs)

	l.Run(5, rtime.Forever, DefaultScope)

	if calls != 1 {
		t.Errorf("once observer fired %d times, want 1", calls)
	}
}

func TestPushBlockRunsInFIFOOrder(t *testing.T) {
	l := freshLoop()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		l.PushBlock(func() { order = append(order, i) })
	}
	l.Run(0, rtime.Forever, DefaultScope)

	want := []int{0, 1, 2}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %d, want %d", i, order[i], want[i])
		}
	}
}

func TestRegistryFromThreadIsStablePerGoroutine(t *testing.T) {
	Clear()
	defer Clear()
	a := Current()
	b := Current()
	if a != b {
		t.Error("Current() should return the same RunLoop for the same goroutine")
	}
}

func TestRegistryDifferentGoroutinesGetDifferentLoops(t *testing.T) {
	Clear()
	defer Clear()
	var wg sync.WaitGroup
	loops := make(chan *RunLoop, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loops <- Current()
		}()
	}
	wg.Wait()
	close(loops)
	var seen []*RunLoop
	for l := range loops {
		seen = append(seen, l)
	}
	if len(seen) == 2 && seen[0] == seen[1] {
		t.Error("different goroutines should not share a RunLoop")
	}
}

func TestSpawnLoopThreadRunsUntilClosed(t *testing.T) {
	lt := SpawnLoopThread()
	var fired bool
	done := make(chan struct{})
	lt.RunLoop().PushBlock(func() {
		fired = true
		close(done)
	})
	lt.RunLoop().Wakeup()
	<-done
	if !fired {
		t.Error("block pushed onto the spawned loop never ran")
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
