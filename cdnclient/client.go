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

// Package cdnclient is a thin domain collaborator demonstrating the core's
// documented contract for a well-behaved source: run the actual I/O on a
// blockingpool worker, then Signal and Wakeup the owning loop so the next
// tick's doSources pass delivers the result on the loop's own goroutine.
//
// It deliberately does not attempt to be a real CDN/HTTP client: retries,
// connection pooling and request construction are the out-of-scope
// transport library's job (see §1/§4.9). This wraps exactly one
// net/http round trip.
package cdnclient

import (
	"net/http"

	"txcore.dev/txcore/blockingpool"
	"txcore.dev/txcore/runloop"
)

// Result is what a Fetch delivers to its onResult callback once its
// source is signaled: either a response or the error that prevented one.
type Result struct {
	Response *http.Response
	Err      error
}

// Fetch performs req on pool's workers and registers a runloop.Source
// against loop's default scope. Once the round trip completes, the
// worker goroutine stashes the Result, signals the source, and wakes loop;
// on the loop's own goroutine, the next doSources pass invokes onResult.
//
// The returned Source is already added to loop; callers that want to
// remove it early (e.g. to abandon a fetch) can still call
// loop.RemoveSource on it.
func Fetch(loop *runloop.RunLoop, pool *blockingpool.BlockingPool, req *http.Request, onResult func(Result)) *runloop.Source {
	src := runloop.NewSource("cdnclient.fetch")
	var result Result
	src.OnPerform = func(*runloop.RunLoop, *runloop.Scope) {
		onResult(result)
	}
	loop.AddSource(src)

	blockingpool.Spawn(pool, func() struct{} {
		resp, err := http.DefaultClient.Do(req)
		result = Result{Response: resp, Err: err}
		src.Signal()
		loop.Wakeup()
		return struct{}{}
	}, true)

	return src
}
