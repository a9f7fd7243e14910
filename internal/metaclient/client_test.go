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

package metaclient

import (
	"context"
	"math"
	"testing"

	"github.com/falconfs/falcon/internal/metaclient/router"
	"github.com/falconfs/falcon/internal/metaproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	metaproto.Transport
	statCalls int
	codes     []metaproto.ErrorCode // returned in order, one per call
	info      metaproto.CoordinatorInfo
}

func (r *recordingTransport) Stat(ctx context.Context, endpoint string, req metaproto.StatRequest) (metaproto.StatResponse, error) {
	code := r.codes[r.statCalls]
	if r.statCalls < len(r.codes)-1 {
		r.statCalls++
	}
	return metaproto.StatResponse{Code: code}, nil
}

func (r *recordingTransport) CoordinatorInfo(ctx context.Context, endpoint string) (metaproto.CoordinatorInfo, error) {
	return r.info, nil
}

func newTestClient(t *testing.T, tr metaproto.Transport) *Client {
	t.Helper()
	info := metaproto.CoordinatorInfo{
		Coordinator: "leader:1",
		Shards:      []metaproto.ShardRange{{MaxHashKey: math.MaxInt32, Endpoint: "shard:1"}},
	}
	if rt, ok := tr.(*recordingTransport); ok {
		rt.info = info
	}
	r := router.New(tr, "leader:1")
	require.NoError(t, r.Refresh(context.Background()))
	return New(tr, r)
}

func TestClient_StatSuccess(t *testing.T) {
	tr := &recordingTransport{codes: []metaproto.ErrorCode{metaproto.OK}}
	c := newTestClient(t, tr)

	_, err := c.Stat(context.Background(), "/a/b")
	assert.NoError(t, err)
}

func TestClient_StatNotFoundMapsToENOENT(t *testing.T) {
	tr := &recordingTransport{codes: []metaproto.ErrorCode{metaproto.NotFound}}
	c := newTestClient(t, tr)

	_, err := c.Stat(context.Background(), "/missing")
	require.Error(t, err)
}

func TestClient_ServerFaultTriggersRefreshAndRetry(t *testing.T) {
	tr := &recordingTransport{codes: []metaproto.ErrorCode{metaproto.ServerFault, metaproto.OK}}
	c := newTestClient(t, tr)

	_, err := c.Stat(context.Background(), "/a")
	assert.NoError(t, err)
}
