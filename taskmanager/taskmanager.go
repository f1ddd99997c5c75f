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

package taskmanager

import (
	"sync"

	"github.com/google/uuid"

	"fortio.org/log"

	"txcore.dev/txcore/rtime"
	"txcore.dev/txcore/runloop"
	"txcore.dev/txcore/stats"
)

// sweepPeriod matches TransportCore::Task::TaskManager's constructor,
// which builds its sweep timer as Timer(0, Duration::Second(1), UINT64_MAX).
const sweepPeriod = rtime.Second

// retention is how long a Done/Failed task stays queryable via Status
// before the sweep timer reaps it. Zero: the next sweep tick after a task
// finishes reaps it.
const retention rtime.Duration = 0

// TaskManager owns a dedicated run-loop thread and a map of in-flight
// tasks, built entirely out of runloop's public surface: a LoopThread for
// the thread, a repeating Timer for the periodic sweep, and PushBlock as
// the cross-thread hand-off for state transitions.
type TaskManager struct {
	thread *runloop.LoopThread

	mu    sync.Mutex
	tasks map[uuid.UUID]*Task

	durations *stats.Histogram
}

// New starts a TaskManager on its own run-loop thread.
func New() *TaskManager {
	tm := &TaskManager{
		tasks:     make(map[uuid.UUID]*Task),
		durations: stats.NewHistogram(0, 1),
	}
	tm.thread = runloop.SpawnLoopThread()

	timer := runloop.NewTimer(sweepPeriod, sweepPeriod, runloop.RepeatForever, "taskmanager-sweep")
	timer.OnTimeout = func(*runloop.RunLoop, *runloop.Scope) { tm.sweep() }
	tm.thread.RunLoop().AddTimer(timer)
	tm.thread.RunLoop().Wakeup()

	return tm
}

// Close stops the task manager's run-loop thread.
func (tm *TaskManager) Close() error { return tm.thread.Close() }

// RunLoop returns the run loop backing this task manager's thread, for
// collaborators (like cdnclient) that need to register their own sources
// against it.
func (tm *TaskManager) RunLoop() *runloop.RunLoop { return tm.thread.RunLoop() }

// CreateTask registers a new Pending task and returns its id.
func (tm *TaskManager) CreateTask(ctx Context) uuid.UUID {
	t := newTask(ctx)
	tm.mu.Lock()
	tm.tasks[t.ID] = t
	tm.mu.Unlock()
	log.Debugf("taskmanager: created task %s (%s)", t.ID, t.Name)
	return t.ID
}

func (tm *TaskManager) transition(id uuid.UUID, to State) {
	tm.thread.RunLoop().PushBlock(func() {
		tm.mu.Lock()
		defer tm.mu.Unlock()
		t, ok := tm.tasks[id]
		if !ok {
			log.LogVf("taskmanager: transition to %v for unknown task %s ignored", to, id)
			return
		}
		t.State = to
		if to == Done || to == Failed {
			t.FinishedAt = rtime.Now()
		}
	})
	tm.thread.RunLoop().Wakeup()
}

// StartTask moves a task from Pending to Running.
func (tm *TaskManager) StartTask(id uuid.UUID) { tm.transition(id, Running) }

// StopTask moves a task to Done.
func (tm *TaskManager) StopTask(id uuid.UUID) { tm.transition(id, Done) }

// PauseTask moves a task to Paused.
func (tm *TaskManager) PauseTask(id uuid.UUID) { tm.transition(id, Paused) }

// ResumeTask moves a paused task back to Running.
func (tm *TaskManager) ResumeTask(id uuid.UUID) { tm.transition(id, Running) }

// FailTask marks a task Failed (ADDED: the original distinguishes Done from
// Failed in its state enum, but its header only shows Stop/Pause/Resume;
// this gives callers a way to reach the Failed branch the sweep already
// handles).
func (tm *TaskManager) FailTask(id uuid.UUID) { tm.transition(id, Failed) }

// Status looks up a task and reports its state, or an error Reply if the
// task is unknown (including because the sweep already reaped it).
func (tm *TaskManager) Status(id uuid.UUID) Reply {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t, ok := tm.tasks[id]
	if !ok {
		return NewErrorReply("task not found", nil)
	}
	return Reply{Message: t.State.String()}
}

// LogDurations logs a percentile summary of the task lifetimes the sweep
// has recorded so far, via stats.Histogram.Log.
func (tm *TaskManager) LogDurations(percentiles []float64) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.durations.Log("task durations (seconds)", percentiles)
}

// sweep removes Done/Failed tasks older than retention and records each
// one's lifetime into the durations histogram. Runs on the task manager's
// own loop thread, invoked by the sweep timer's OnTimeout.
func (tm *TaskManager) sweep() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	now := rtime.Now()
	for id, t := range tm.tasks {
		if t.State != Done && t.State != Failed {
			continue
		}
		if now.Diff(t.FinishedAt) < retention {
			continue
		}
		tm.durations.Record(t.FinishedAt.Diff(t.CreatedAt).Seconds())
		delete(tm.tasks, id)
	}
}
