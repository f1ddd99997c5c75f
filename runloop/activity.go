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

// Activity is a bitmask identifying a tick-cycle phase boundary that an
// Observer can be notified at.
type Activity uint8

const (
	// ActivityEntry fires once, before the first tick of a Run call.
	ActivityEntry Activity = 1 << iota
	// ActivityBeforeTimers fires right before a scope's due timer is dispatched.
	ActivityBeforeTimers
	// ActivityBeforeSources fires right before the signaled source set is dispatched.
	ActivityBeforeSources
	// ActivityBeforeBlocks fires right before the deferred block queue is drained.
	ActivityBeforeBlocks
	// ActivityBeforeWaiting fires right before the loop suspends on its wake channel.
	ActivityBeforeWaiting
	// ActivityAfterWaiting fires right after the loop resumes from suspension.
	ActivityAfterWaiting
	// ActivityExit fires once, on a normal (Finished) exit from Run, as the
	// counterpart of ActivityEntry. It is not raised on Timeout or Stopped.
	ActivityExit
	// ActivityAll is the convenience mask matching every activity.
	ActivityAll Activity = 0xFF
)

// Has reports whether activity is included in the mask m.
func (m Activity) Has(activity Activity) bool {
	return m&activity != 0
}
