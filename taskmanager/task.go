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

// Package taskmanager is a thin domain collaborator built only out of
// runloop's and blockingpool's public surface: it owns its own run-loop
// thread, assigns task ids, and tracks task lifecycle state the way the
// out-of-scope transport task manager this is modeled on does.
package taskmanager

import (
	"github.com/google/uuid"

	"txcore.dev/txcore/rtime"
)

// State is a task's position in its lifecycle.
type State int

const (
	Pending State = iota
	Running
	Paused
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "State(?)"
	}
}

// Context is the caller-supplied description of a task to create. It's
// intentionally minimal: the task manager's job is lifecycle bookkeeping,
// not running the work itself (that's the out-of-scope CDN client's job).
type Context struct {
	Name string
}

// Task is one unit of lifecycle bookkeeping owned by a TaskManager.
type Task struct {
	ID        uuid.UUID
	Name      string
	State     State
	CreatedAt rtime.Time
	// FinishedAt is the zero Time until the task reaches Done or Failed.
	FinishedAt rtime.Time
}

func newTask(ctx Context) *Task {
	return &Task{
		ID:        uuid.New(),
		Name:      ctx.Name,
		State:     Pending,
		CreatedAt: rtime.Now(),
	}
}

// Reply is the status shape TaskManager query methods return, grounded on
// the ecosystem's ServerReply convention (Error/Message/Exception) but
// without any HTTP (de)serialization attached to it, since the core has no
// wire protocol.
type Reply struct {
	Error     bool   `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Exception string `json:"exception,omitempty"`
}

// NewErrorReply builds a Reply reporting failure.
func NewErrorReply(message string, err error) Reply {
	r := Reply{Error: true, Message: message}
	if err != nil {
		r.Exception = err.Error()
	}
	return r
}
