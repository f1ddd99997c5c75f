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

// Package blockingpool is a bounded worker pool for work that must not run
// on a RunLoop's own goroutine: anything that blocks on I/O or does
// CPU-heavy work belongs here instead, so the loop it was spawned from
// keeps ticking.
package blockingpool

// task is the internal, type-erased unit of work the pool actually queues
// and runs; BlockingTask[R] implements it by wrapping the user's func() R.
type task interface {
	run()
}

// BlockingTask adapts a func() R into something the pool can queue and run,
// capturing its return value for Handle to hand back later.
type BlockingTask[R any] struct {
	f      func() R
	result R
	done   chan struct{}
}

func newBlockingTask[R any](f func() R) *BlockingTask[R] {
	return &BlockingTask[R]{f: f, done: make(chan struct{})}
}

func (t *BlockingTask[R]) run() {
	t.result = t.f()
	close(t.done)
}

// unownedTask pairs a task with whether it must still run if the pool is
// shut down before a worker gets to it. On Shutdown, non-mandatory entries
// are dropped from the queue; mandatory ones stay queued and are still run
// by a worker goroutine like any other task, never by the caller of
// Shutdown itself.
type unownedTask struct {
	t         task
	mandatory bool
}

func (u unownedTask) run() { u.t.run() }

// Handle is a caller's receipt for a task Spawned onto a BlockingPool: it
// lets the caller learn when the task finished and what it returned,
// without owning the pool's internals.
//
// The original C++ Task::Handle<R> never settled how a task's return value
// should make it back to the caller (its BlockingTask::Run had a "// ?"
// where the result should have gone); Handle.Wait and Handle.Done are this
// port's answer.
type Handle[R any] struct {
	bt *BlockingTask[R]
}

// Done returns a channel that's closed once the task has run.
func (h *Handle[R]) Done() <-chan struct{} { return h.bt.done }

// Wait blocks until the task has run and returns its result.
func (h *Handle[R]) Wait() R {
	<-h.bt.done
	return h.bt.result
}
