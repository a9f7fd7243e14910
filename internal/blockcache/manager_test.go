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

package blockcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, capacity int64) *Manager {
	t.Helper()
	root := t.TempDir()
	m, err := NewManager(Config{
		Root:         root,
		DirNum:       4,
		CapacityByte: capacity,
		FreeRatio:    0.1,
		BgFreeRatio:  0.2,
		EvictPeriod:  time.Hour, // keep the background loop quiet during tests
	})
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m
}

func writeCacheFile(t *testing.T, m *Manager, inode uint64, size int64) {
	t.Helper()
	path := m.Path(inode)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestInsertOrUpdate_TracksUsedCapacity(t *testing.T) {
	m := newTestManager(t, 0)
	writeCacheFile(t, m, 1, 100)
	m.InsertOrUpdate(1, 100, false)
	writeCacheFile(t, m, 2, 50)
	m.InsertOrUpdate(2, 50, false)

	used, _, _ := m.Stats()
	assert.EqualValues(t, 150, used)
}

func TestFind_TouchesLRUAndPins(t *testing.T) {
	m := newTestManager(t, 0)
	writeCacheFile(t, m, 1, 10)
	m.InsertOrUpdate(1, 10, false)

	e, ok := m.Find(1, true)
	require.True(t, ok)
	assert.EqualValues(t, 1, e.Refs)

	_, ok = m.Find(2, false)
	assert.False(t, ok)
}

func TestEvict_SkipsPinnedEntries(t *testing.T) {
	m := newTestManager(t, 100)
	writeCacheFile(t, m, 1, 60)
	m.InsertOrUpdate(1, 60, true) // pinned, must survive eviction
	writeCacheFile(t, m, 2, 60)
	m.InsertOrUpdate(2, 60, false)

	freed := m.evict(60)

	assert.EqualValues(t, 60, freed)
	_, ok := m.Find(1, false)
	assert.True(t, ok, "pinned entry must not be evicted")
	_, ok = m.Find(2, false)
	assert.False(t, ok, "unpinned entry should have been evicted")
}

func TestPreAlloc_EvictsToFitThenSucceeds(t *testing.T) {
	m := newTestManager(t, 100)
	writeCacheFile(t, m, 1, 80)
	m.InsertOrUpdate(1, 80, false)

	require.NoError(t, m.PreAlloc(50))

	used, reserved, _ := m.Stats()
	assert.LessOrEqual(t, used+reserved, int64(100))
}

func TestPreAlloc_AllPinnedReturnsENOSPC(t *testing.T) {
	m := newTestManager(t, 100)
	writeCacheFile(t, m, 1, 100)
	m.InsertOrUpdate(1, 100, true)

	err := m.PreAlloc(10)

	assert.Error(t, err)
}

func TestDelete_RemovesFileAndIndexEntry(t *testing.T) {
	m := newTestManager(t, 0)
	writeCacheFile(t, m, 1, 10)
	m.InsertOrUpdate(1, 10, false)

	m.Delete(1)

	_, ok := m.Find(1, false)
	assert.False(t, ok)
	_, err := os.Stat(m.Path(1))
	assert.True(t, os.IsNotExist(err))
}

func TestNewManager_RebuildsIndexFromDisk(t *testing.T) {
	root := t.TempDir()
	shardFile := filepath.Join(root, "2", "42-large")
	require.NoError(t, os.MkdirAll(filepath.Dir(shardFile), 0o755))
	require.NoError(t, os.WriteFile(shardFile, make([]byte, 30), 0o644))

	m, err := NewManager(Config{Root: root, DirNum: 4, EvictPeriod: time.Hour})
	require.NoError(t, err)
	defer m.Stop()

	e, ok := m.Find(42, false)
	require.True(t, ok)
	assert.EqualValues(t, 30, e.Size)
}
