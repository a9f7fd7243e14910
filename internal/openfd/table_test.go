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

package openfd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObtainFd_SkipsReservedValues(t *testing.T) {
	tbl := NewTable(10)
	fd := tbl.ObtainFd()
	assert.GreaterOrEqual(t, fd, uint64(fdReserved))
}

func TestAttachAndGet_ReverseIndexConsistent(t *testing.T) {
	tbl := NewTable(10)
	inst := &Instance{Fd: tbl.ObtainFd(), Inode: 42}
	tbl.Attach(inst)

	assert.Same(t, inst, tbl.Get(inst.Fd))

	byInode := tbl.GetByInode(42)
	require.Len(t, byInode, 1)
	assert.Same(t, inst, byInode[0])
}

func TestDelete_RemovesFromBothMapsAndEmptiesBucket(t *testing.T) {
	tbl := NewTable(10)
	inst := &Instance{Fd: tbl.ObtainFd(), Inode: 7}
	tbl.Attach(inst)

	tbl.Delete(inst.Fd, false)

	assert.Nil(t, tbl.Get(inst.Fd))
	assert.Empty(t, tbl.GetByInode(7))
}

func TestAttach_DuplicateFdPanics(t *testing.T) {
	tbl := NewTable(10)
	fd := tbl.ObtainFd()
	tbl.Attach(&Instance{Fd: fd, Inode: 1})

	assert.Panics(t, func() {
		tbl.Attach(&Instance{Fd: fd, Inode: 2})
	})
}

func TestWaitNewInstance_SaturatesAndRecovers(t *testing.T) {
	tbl := NewTable(2)
	ctx := context.Background()

	require.True(t, tbl.WaitNewInstance(ctx, true))
	require.True(t, tbl.WaitNewInstance(ctx, true))

	start := time.Now()
	ok := tbl.WaitNewInstance(ctx, true)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, waitTimeout)

	tbl.Delete(1, true) // releases one charge regardless of fd presence

	assert.True(t, tbl.WaitNewInstance(ctx, true))
}

func TestWaitNewInstance_UnchargedAlwaysSucceeds(t *testing.T) {
	tbl := NewTable(1)
	ctx := context.Background()
	require.True(t, tbl.WaitNewInstance(ctx, true))

	assert.True(t, tbl.WaitNewInstance(ctx, false))
}
