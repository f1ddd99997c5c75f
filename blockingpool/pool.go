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

package blockingpool

import (
	"sync"

	"fortio.org/log"
)

// BlockingPool runs queued tasks on a bounded set of worker goroutines,
// growing lazily up to maxThreads and reusing idle workers before spawning
// new ones.
type BlockingPool struct {
	maxThreads int

	mu           sync.Mutex
	cond         *sync.Cond
	queue        []unownedTask
	numThreads   int
	numIdle      int
	nextWorkerID int
	shutdown     bool
}

// NewBlockingPool builds a pool that never runs more than maxThreads tasks
// concurrently.
func NewBlockingPool(maxThreads int) *BlockingPool {
	p := &BlockingPool{maxThreads: maxThreads}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Spawn queues f to run on a worker goroutine and returns a Handle for its
// result. A pool that is still accepting work always accepts f, growing a
// new worker if every existing one is busy and the pool hasn't reached
// maxThreads yet (a saturated pool just queues f); if mandatory is true, f
// is additionally guaranteed to run even if Shutdown is called before a
// worker picks it up, rather than being dropped.
//
// Spawning onto a pool that has already been shut down is a programmer
// error, not a runtime condition to recover from: it means a caller kept a
// reference to the pool past its owner's cleanup, so Spawn reports it the
// same way runloop reports being driven from the wrong goroutine, via
// log.Fatalf.
//
// Spawn is a package function rather than a method because Go methods
// can't take their own type parameters.
func Spawn[R any](p *BlockingPool, f func() R, mandatory bool) *Handle[R] {
	bt := newBlockingTask(f)
	p.spawn(unownedTask{t: bt, mandatory: mandatory})
	return &Handle[R]{bt: bt}
}

func (p *BlockingPool) spawn(t unownedTask) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		log.Fatalf("blockingpool: Spawn called after Shutdown")
		return
	}
	p.queue = append(p.queue, t)
	switch {
	case p.numIdle > 0:
		p.cond.Signal()
	case p.numThreads < p.maxThreads:
		p.numThreads++
		id := p.nextWorkerID
		p.nextWorkerID++
		go p.runWorker(id)
	}
	p.mu.Unlock()
}

// NumThreads returns how many worker goroutines are currently alive.
func (p *BlockingPool) NumThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numThreads
}

// QueueLen returns how many tasks are queued but not yet picked up by a
// worker.
func (p *BlockingPool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *BlockingPool) runWorker(_ int) {
	p.mu.Lock()
	for {
		for len(p.queue) == 0 && !p.shutdown {
			p.numIdle++
			p.cond.Wait()
			p.numIdle--
		}
		if len(p.queue) == 0 {
			// shutdown with nothing left for this worker.
			p.numThreads--
			p.cond.Broadcast()
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		t.run()

		p.mu.Lock()
	}
}

// Shutdown stops accepting new work, drops every still-queued non-mandatory
// task, and waits for the rest (already running, plus anything still
// mandatory) to finish on a worker goroutine before returning. A blocking
// pool runs callbacks on its own workers, never on the loop or on whatever
// goroutine happens to call Shutdown, so draining never executes a task
// inline here: if the pool currently has no live worker, Shutdown starts
// one to drain the remaining mandatory queue before waiting. Safe to call
// more than once.
func (p *BlockingPool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true

	mandatoryPending := p.queue[:0:0]
	for _, t := range p.queue {
		if t.mandatory {
			mandatoryPending = append(mandatoryPending, t)
		}
	}
	p.queue = mandatoryPending

	if len(p.queue) > 0 && p.numThreads == 0 {
		p.numThreads++
		id := p.nextWorkerID
		p.nextWorkerID++
		go p.runWorker(id)
	}
	p.cond.Broadcast()

	for p.numThreads > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}
