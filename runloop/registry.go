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
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// ThreadID identifies one of this process's goroutines for the purposes of
// the registry below. It is derived from the runtime's own goroutine id.
//
// Go deliberately doesn't expose goroutine identity as API, so this reads
// it back out of runtime.Stack's header line the way a handful of
// goroutine-local-storage packages in the wild do. It's the only place in
// this package that looks at a goroutine's identity rather than taking an
// explicit handle, and it exists because the loop this package models is
// fundamentally one-loop-per-thread: something has to answer "which loop is
// *this* goroutine's".
type ThreadID uint64

// mainThreadID is goroutine 1: the Go runtime always numbers the goroutine
// that runs main() as 1, so Main() can resolve to the right RunLoop without
// any cooperation from main() itself.
const mainThreadID ThreadID = 1

func goroutineID() ThreadID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return ThreadID(id)
}

// CurrentThreadID returns the calling goroutine's ThreadID.
func CurrentThreadID() ThreadID { return goroutineID() }

var (
	registryMu sync.Mutex
	registry   = map[ThreadID]*RunLoop{}
)

// FromThread returns the RunLoop bound to id, creating and registering one
// the first time it's asked for.
func FromThread(id ThreadID) *RunLoop {
	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := registry[id]; ok {
		return l
	}
	l := newRunLoop(id)
	registry[id] = l
	return l
}

// Current returns the RunLoop bound to the calling goroutine.
func Current() *RunLoop { return FromThread(CurrentThreadID()) }

// Main returns the RunLoop bound to the process's main goroutine.
func Main() *RunLoop { return FromThread(mainThreadID) }

// Clear drops every registered RunLoop. Intended for tests that want a
// clean registry between cases; a live process has no ordinary reason to
// call it.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[ThreadID]*RunLoop{}
}
