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
	"sync/atomic"

	"txcore.dev/txcore/rtime"
)

// Source is a level-triggered event: something external signals it, and the
// scope that owns it invokes OnPerform once per tick while it stays
// signaled. Zero value is ready to use.
//
// The three callbacks are optional and play the role the original C++ type
// gave to virtual methods: OnSchedule runs once when the source is added to
// a scope, OnCancel once when it is removed, OnPerform each time DoSources
// finds it signaled.
type Source struct {
	Name       string
	OnSchedule func(loop *RunLoop, scope *Scope)
	OnCancel   func(loop *RunLoop, scope *Scope)
	OnPerform  func(loop *RunLoop, scope *Scope)

	signaledAt atomic.Int64
}

// NewSource constructs a named, unsignaled Source.
func NewSource(name string) *Source {
	return &Source{Name: name}
}

// Signal marks the source signaled, recording the time of the first signal
// since the last Clear. Repeated signals before the next DoSources pass are
// idempotent: only the earliest one is kept.
func (s *Source) Signal() {
	s.signaledAt.CompareAndSwap(0, rtime.Now().UnixNano())
}

// Clear un-signals the source. Called by DoSources right before dispatching
// OnPerform, so a callback that re-signals its own source is picked up on
// the next tick rather than the same one.
func (s *Source) Clear() {
	s.signaledAt.Store(0)
}

// IsSignaled reports whether the source is currently signaled.
func (s *Source) IsSignaled() bool {
	return s.signaledAt.Load() != 0
}

// SignaledAt returns the UnixNano timestamp of the pending signal, or 0 if
// the source is not signaled.
func (s *Source) SignaledAt() int64 {
	return s.signaledAt.Load()
}
