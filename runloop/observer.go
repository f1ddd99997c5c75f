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

// Observer watches the tick cycle go through one or more Activity phases.
// Unlike Source and Timer it never drives scheduling decisions; it only
// gets called out to.
type Observer struct {
	Name       string
	Activities Activity
	Once       bool
	OnActivity func(loop *RunLoop, activity Activity)
}

// NewObserver builds an Observer that fires OnActivity for every activity in
// mask. If once is true the observer removes itself from its scope after
// its first invocation.
func NewObserver(mask Activity, once bool, onActivity func(loop *RunLoop, activity Activity)) *Observer {
	return &Observer{Activities: mask, Once: once, OnActivity: onActivity}
}
