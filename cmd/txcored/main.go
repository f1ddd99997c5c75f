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

// Command txcored is a small demonstration binary: it starts a task
// manager (its own run-loop thread plus a sweep timer), spawns one
// blocking-pool fetch against a CDN-client-style collaborator, and runs
// until -timeout elapses or it's interrupted.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fortio.org/cli"
	"fortio.org/duration"
	"fortio.org/log"

	"txcore.dev/txcore/blockingpool"
	"txcore.dev/txcore/cdnclient"
	"txcore.dev/txcore/rtime"
	"txcore.dev/txcore/stats"
	"txcore.dev/txcore/taskmanager"
	"txcore.dev/txcore/version"
)

var (
	periodFlag      = duration.Duration(time.Second)
	timeoutFlag     = duration.Duration(30 * time.Second)
	maxThreads      = flag.Int("max-threads", 4, "blocking pool worker cap")
	percentilesFlag = flag.String("percentiles", "50,90,99", "percentiles to report for task durations")
)

func main() {
	cli.ProgramName = "txcored"
	cli.ArgsHelp = "url"
	cli.MinArgs = 1
	flag.Var(&periodFlag, "period", "run loop wake-up granularity")
	flag.Var(&timeoutFlag, "timeout", "how long to run before exiting")
	cli.Main()

	percentiles, err := stats.ParsePercentiles(*percentilesFlag)
	if err != nil {
		log.Fatalf("invalid -percentiles %q: %v", *percentilesFlag, err)
	}

	log.Infof("%s starting (%s)", cli.ProgramName, version.Short())

	tm := taskmanager.New()
	defer tm.Close()
	tm.RunLoop().SetPeriod(rtime.Duration(time.Duration(periodFlag)))

	pool := blockingpool.NewBlockingPool(*maxThreads)
	defer pool.Shutdown()

	id := tm.CreateTask(taskmanager.Context{Name: "demo-fetch"})
	tm.StartTask(id)

	req, err := http.NewRequest(http.MethodGet, flag.Arg(0), nil)
	if err != nil {
		log.Fatalf("building request for %q: %v", flag.Arg(0), err)
	}

	// onResult runs under the loop's scope lock, so the task transitions
	// (which push a block onto that scope) are made after done closes.
	done := make(chan struct{})
	var fetchErr error
	cdnclient.Fetch(tm.RunLoop(), pool, req, func(r cdnclient.Result) {
		defer close(done)
		if r.Err != nil {
			log.Errf("fetch failed: %v", r.Err)
			fetchErr = r.Err
			return
		}
		log.Infof("fetch of %s completed: status %d", flag.Arg(0), r.Response.StatusCode)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
		if fetchErr != nil {
			tm.FailTask(id)
		} else {
			tm.StopTask(id)
		}
	case <-sigCh:
		log.Infof("interrupted")
	case <-time.After(time.Duration(timeoutFlag)):
		log.Infof("timed out after %s", time.Duration(timeoutFlag))
	}

	tm.LogDurations(percentiles)
}
