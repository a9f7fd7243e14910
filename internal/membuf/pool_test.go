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

package membuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidConfiguration(t *testing.T) {
	_, err := New(0, 10)
	require.Error(t, err)

	_, err = New(1024, 0)
	require.Error(t, err)
}

func TestGet_AllocatesAlignedBlocks(t *testing.T) {
	p, err := New(1024, 2)
	require.NoError(t, err)

	b, err := p.Get()
	require.NoError(t, err)
	assert.Len(t, b.Bytes(), 1024)
}

func TestGet_ReusesReturnedBlocks(t *testing.T) {
	p, err := New(64, 1)
	require.NoError(t, err)

	b1, err := p.Get()
	require.NoError(t, err)
	copy(b1.Bytes(), []byte("hello"))
	p.Put(b1)

	b2, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 64), b2.Bytes(), "reused block must come back zeroed")
}

func TestGet_ExhaustedPoolErrors(t *testing.T) {
	p, err := New(16, 1)
	require.NoError(t, err)

	_, err = p.Get()
	require.NoError(t, err)

	_, err = p.Get()
	require.Error(t, err)
}

func TestDrain_ReleasesOnlyFreeBlocks(t *testing.T) {
	p, err := New(16, 2)
	require.NoError(t, err)

	b1, err := p.Get()
	require.NoError(t, err)
	_, err = p.Get()
	require.NoError(t, err)
	p.Put(b1)

	p.Drain()

	// One block is still checked out, so the pool should allow exactly
	// one more allocation before refusing again.
	_, err = p.Get()
	require.NoError(t, err)
	_, err = p.Get()
	require.Error(t, err)
}
