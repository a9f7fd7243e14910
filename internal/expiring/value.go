// Copyright 2025 Google LLC
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

// Package expiring holds a single TTL-bounded value (component K). No
// other package in this module imports it.
package expiring

import (
	"sync"
	"time"
)

// Value holds one trivially-copyable value with a time-to-live. A
// background goroutine owns invalidation: Update rearms the timer
// rather than having Get check a deadline inline, so a reader never
// pays for time arithmetic on the hot path.
type Value[T any] struct {
	ttl time.Duration

	mu      sync.Mutex
	val     T
	valid   bool
	version uint64

	notify   chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Value with the given time-to-live. It starts invalid;
// the first Update makes it readable until ttl elapses.
func New[T any](ttl time.Duration) *Value[T] {
	v := &Value[T]{
		ttl:    ttl,
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go v.run()
	return v
}

// Update sets the value and marks it valid for another full ttl.
func (v *Value[T]) Update(val T) {
	v.mu.Lock()
	v.val = val
	v.valid = true
	v.version++
	v.mu.Unlock()

	select {
	case v.notify <- struct{}{}:
	default:
	}
}

// Get reports the current value and whether it's still valid.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.valid
}

// run is the timer goroutine: it sleeps until the value should expire,
// rechecking the version after every wake since a concurrent Update
// may have rearmed the deadline while it slept.
func (v *Value[T]) run() {
	defer close(v.doneCh)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	armed := false

	for {
		if !armed {
			select {
			case <-v.stopCh:
				return
			case <-v.notify:
			}
		}

		v.mu.Lock()
		version := v.version
		v.mu.Unlock()

		if !timer.Stop() && armed {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(v.ttl)
		armed = true

		select {
		case <-v.stopCh:
			return
		case <-v.notify:
			// Update rearmed the deadline; loop back and reset the timer.
			continue
		case <-timer.C:
			armed = false
			v.mu.Lock()
			if v.version == version {
				v.valid = false
			}
			v.mu.Unlock()
		}
	}
}

// Stop halts the background timer goroutine.
func (v *Value[T]) Stop() {
	v.stopOnce.Do(func() { close(v.stopCh) })
	<-v.doneCh
}
