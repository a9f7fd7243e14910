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

package engine

import (
	"context"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWriteCloseThenOpenRead(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, Config{})

	fd, _, err := eng.Create(ctx, "/a/b.txt", syscall.O_WRONLY|syscall.O_CREAT, 0o644, 0, 0)
	require.NoError(t, err)

	payload := []byte("hello falcon")
	n, err := eng.Write(ctx, fd, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	// Flush call first, then the final release call (§4.6 two-phase close).
	require.NoError(t, eng.Close(ctx, fd, true, false))
	require.NoError(t, eng.Close(ctx, fd, false, false))

	fd2, stat, err := eng.Open(ctx, "/a/b.txt", syscall.O_RDONLY)
	require.NoError(t, err)
	_ = stat

	buf := make([]byte, len(payload))
	n, err = eng.Read(ctx, fd2, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)

	require.NoError(t, eng.Close(ctx, fd2, true, false))
	require.NoError(t, eng.Close(ctx, fd2, false, false))
}

func TestReadUnknownFdFails(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})
	_, err := eng.Read(context.Background(), 999, make([]byte, 1), 0)
	require.Error(t, err)
}

func TestWriteUnknownFdFails(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})
	_, err := eng.Write(context.Background(), 999, []byte("x"), 0)
	require.Error(t, err)
}

func TestCloseUnknownFdFails(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})
	err := eng.Close(context.Background(), 999, false, false)
	require.Error(t, err)
}

func TestOpenMissingPathFails(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})
	_, _, err := eng.Open(context.Background(), "/does/not/exist", syscall.O_RDONLY)
	require.Error(t, err)
}

func TestUnlinkRemovesCacheAndMetadata(t *testing.T) {
	ctx := context.Background()
	eng, transport := newTestEngine(t, Config{})

	fd, _, err := eng.Create(ctx, "/d.txt", syscall.O_WRONLY|syscall.O_CREAT, 0o644, 0, 0)
	require.NoError(t, err)
	_, err = eng.Write(ctx, fd, []byte("gone soon"), 0)
	require.NoError(t, err)
	require.NoError(t, eng.Close(ctx, fd, true, false))
	require.NoError(t, eng.Close(ctx, fd, false, false))

	require.NoError(t, eng.Unlink(ctx, "/d.txt"))
	_, ok := transport.files["/d.txt"]
	assert.False(t, ok)

	_, _, err = eng.Open(ctx, "/d.txt", syscall.O_RDONLY)
	require.Error(t, err)
}

func TestUnlinkMissingPathFails(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})
	err := eng.Unlink(context.Background(), "/missing")
	require.Error(t, err)
}

func TestTruncateGrowsFile(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, Config{})

	fd, _, err := eng.Create(ctx, "/e.txt", syscall.O_WRONLY|syscall.O_CREAT, 0o644, 0, 0)
	require.NoError(t, err)
	_, err = eng.Write(ctx, fd, []byte("abc"), 0)
	require.NoError(t, err)
	require.NoError(t, eng.Close(ctx, fd, true, false))
	require.NoError(t, eng.Close(ctx, fd, false, false))

	require.NoError(t, eng.Truncate(ctx, "/e.txt", 10))

	fd2, _, err := eng.Open(ctx, "/e.txt", syscall.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 10)
	n, err := eng.Read(ctx, fd2, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []byte("abc"), buf[:3])
	require.NoError(t, eng.Close(ctx, fd2, true, false))
	require.NoError(t, eng.Close(ctx, fd2, false, false))
}

func TestSample(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	fd, _, err := eng.Create(ctx, "/c.txt", syscall.O_WRONLY|syscall.O_CREAT, 0o644, 0, 0)
	require.NoError(t, err)
	_, err = eng.Write(ctx, fd, []byte("xyz"), 0)
	require.NoError(t, err)

	snap := eng.Sample()
	assert.Equal(t, uint32(0), snap.NodeID)
	assert.GreaterOrEqual(t, snap.OpenFDs, int64(1))
	assert.Equal(t, int64(1), snap.WriteOps)
}
