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

package filelock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock_ExclusiveExcludesShared(t *testing.T) {
	tbl := NewTable()

	excl := tbl.TryLock(1, Exclusive)
	require.True(t, excl.IsLocked())

	shared := tbl.TryLock(1, Shared)
	assert.False(t, shared.IsLocked())
	shared.Unlock() // no-op, must not panic

	excl.Unlock()

	shared2 := tbl.TryLock(1, Shared)
	assert.True(t, shared2.IsLocked())
	shared2.Unlock()
}

func TestTryLock_MultipleSharedHoldersAllowed(t *testing.T) {
	tbl := NewTable()

	a := tbl.TryLock(2, Shared)
	b := tbl.TryLock(2, Shared)
	require.True(t, a.IsLocked())
	require.True(t, b.IsLocked())

	excl := tbl.TryLock(2, Exclusive)
	assert.False(t, excl.IsLocked())

	a.Unlock()
	b.Unlock()
}

func TestLock_BlocksUntilReleased(t *testing.T) {
	tbl := NewTable()
	first := tbl.Lock(3, Exclusive)

	done := make(chan struct{})
	go func() {
		second := tbl.Lock(3, Exclusive)
		second.Unlock()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Lock returned before first Unlock")
	case <-time.After(50 * time.Millisecond):
	}

	first.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after release")
	}
}

func TestUnlock_DoubleUnlockIsNoop(t *testing.T) {
	tbl := NewTable()
	l := tbl.TryLock(4, Exclusive)
	require.True(t, l.IsLocked())
	l.Unlock()
	assert.NotPanics(t, func() { l.Unlock() })
}

func TestLocksOnDifferentInodesDoNotInterfere(t *testing.T) {
	tbl := NewTable()
	a := tbl.TryLock(5, Exclusive)
	b := tbl.TryLock(6, Exclusive)
	require.True(t, a.IsLocked())
	require.True(t, b.IsLocked())
	a.Unlock()
	b.Unlock()
}
