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

import "txcore.dev/txcore/rtime"

// LoopThread owns a goroutine whose entire job is to run a RunLoop forever
// (until Close/Stop). It's the Go stand-in for the original's dedicated
// loop-owning OS thread: where that type joined a thread handle, this one
// waits on a done channel.
type LoopThread struct {
	loop *RunLoop
	done chan struct{}
}

// SpawnLoopThread starts a new goroutine, binds it a fresh RunLoop via the
// registry, and runs that loop's default scope indefinitely.
func SpawnLoopThread() *LoopThread {
	lt := &LoopThread{done: make(chan struct{})}
	ready := make(chan *RunLoop, 1)
	go func() {
		loop := Current()
		// Hand the loop back from inside Run, so a Stop issued right after
		// SpawnLoopThread returns is not cleared by Run's entry.
		loop.PushBlock(func() { ready <- loop })
		loop.Wakeup()
		loop.Run(RepeatForever, rtime.Forever, DefaultScope)
		close(lt.done)
	}()
	lt.loop = <-ready
	return lt
}

// RunLoop returns the loop running on this thread.
func (lt *LoopThread) RunLoop() *RunLoop { return lt.loop }

// Stop asks the loop to return from Run; it does not block for the
// goroutine to actually exit, use Wait or Close for that.
func (lt *LoopThread) Stop() { lt.loop.Stop() }

// Wait blocks until the loop's goroutine has returned from Run.
func (lt *LoopThread) Wait() { <-lt.done }

// Close stops the loop and waits for its goroutine to exit. It implements
// io.Closer so a LoopThread can be used with defer close patterns the way
// the original's destructor did implicitly.
func (lt *LoopThread) Close() error {
	lt.Stop()
	lt.Wait()
	return nil
}
