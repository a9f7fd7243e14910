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

package roster

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/falconfs/falcon/internal/membership"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoster(t *testing.T, nodes []membership.Node, localID uint32) *Roster {
	t.Helper()
	src := membership.NewStatic(nodes, localID)
	dial := func(endpoint string) (any, error) { return endpoint, nil }
	r := New(src, dial, t.TempDir(), "127.0.0.1:0")
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Stop)
	return r
}

func TestRoster_StartPopulatesNodes(t *testing.T) {
	r := newTestRoster(t, []membership.Node{
		{NodeID: 1, Endpoint: "a:1"},
		{NodeID: 2, Endpoint: "b:1"},
	}, 1)

	n, ok := r.Get(2)
	require.True(t, ok)
	assert.Equal(t, "b:1", n.Endpoint)
	assert.True(t, r.IsLocal(1))
}

func TestRoster_PersistsLocalIDAcrossRestart(t *testing.T) {
	root := t.TempDir()
	src := membership.NewStatic([]membership.Node{{NodeID: 9, Endpoint: "a:1"}}, 9)
	dial := func(endpoint string) (any, error) { return endpoint, nil }

	r1 := New(src, dial, root, "a:1")
	require.NoError(t, r1.Start(context.Background()))
	r1.Stop()

	assert.FileExists(t, filepath.Join(root, "myid"))

	// A source that would now allocate a different id; resolveLocalID
	// must prefer the persisted myid file instead of re-registering.
	src2 := membership.NewStatic([]membership.Node{{NodeID: 9, Endpoint: "a:1"}}, 77)
	r2 := New(src2, dial, root, "a:1")
	require.NoError(t, r2.Start(context.Background()))
	defer r2.Stop()

	assert.EqualValues(t, 9, r2.LocalID())
}

func TestPlacer_HashedPlacementIsDeterministic(t *testing.T) {
	r := newTestRoster(t, []membership.Node{
		{NodeID: 1, Endpoint: "a:1"},
		{NodeID: 2, Endpoint: "b:1"},
		{NodeID: 3, Endpoint: "c:1"},
	}, 1)
	p := NewPlacer(r, false, false, -1)

	first := p.Pick("/x/y", 12345, false)
	second := p.Pick("/x/y", 12345, false)
	assert.Equal(t, first, second)
}

func TestPlacer_InferencePlacementSharesParentPath(t *testing.T) {
	r := newTestRoster(t, []membership.Node{
		{NodeID: 1, Endpoint: "a:1"},
		{NodeID: 2, Endpoint: "b:1"},
	}, 1)
	p := NewPlacer(r, false, true, -1)

	a := p.Pick("/dir/one.txt", 1, false)
	b := p.Pick("/dir/two.txt", 2, false)
	assert.Equal(t, a, b, "files under the same parent must land on the same node")
}

func TestPlacer_ToLocalPrefersLocalWhenSpaceAvailable(t *testing.T) {
	r := newTestRoster(t, []membership.Node{
		{NodeID: 1, Endpoint: "a:1"},
		{NodeID: 2, Endpoint: "b:1"},
	}, 1)
	p := NewPlacer(r, true, false, -1)

	assert.Equal(t, r.LocalID(), p.Pick("/f", 1, true))
}

func TestParentPath_ImmediateParentByDefault(t *testing.T) {
	assert.Equal(t, "/a/b", ParentPath("/a/b/c.txt", -1))
	assert.Equal(t, "/", ParentPath("/c.txt", -1))
}
