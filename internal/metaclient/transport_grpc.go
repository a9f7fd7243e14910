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
	"sync"

	"github.com/falconfs/falcon/internal/grpcutil"
	"github.com/falconfs/falcon/internal/metaproto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const service = "falcon.metadata.Metadata"

// GRPCTransport implements metaproto.Transport over gRPC, keeping a
// keep-alive connection per endpoint (§4.9 "endpoint -> connection
// pool") so repeated calls to the same shard don't redial.
type GRPCTransport struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewGRPCTransport builds an empty transport; connections are dialed
// lazily on first use of an endpoint.
func NewGRPCTransport() *GRPCTransport {
	return &GRPCTransport{conns: make(map[string]*grpc.ClientConn)}
}

func (t *GRPCTransport) conn(endpoint string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[endpoint]; ok {
		return c, nil
	}
	c, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcutil.Name)),
	)
	if err != nil {
		return nil, err
	}
	t.conns[endpoint] = c
	return c, nil
}

func invoke[Req, Resp any](ctx context.Context, t *GRPCTransport, endpoint, method string, req Req) (Resp, error) {
	var resp Resp
	conn, err := t.conn(endpoint)
	if err != nil {
		return resp, err
	}
	err = conn.Invoke(ctx, "/"+service+"/"+method, req, &resp)
	return resp, err
}

func (t *GRPCTransport) Open(ctx context.Context, endpoint string, req metaproto.OpenRequest) (metaproto.OpenResponse, error) {
	return invoke[metaproto.OpenRequest, metaproto.OpenResponse](ctx, t, endpoint, "Open", req)
}

func (t *GRPCTransport) Create(ctx context.Context, endpoint string, req metaproto.CreateRequest) (metaproto.CreateResponse, error) {
	return invoke[metaproto.CreateRequest, metaproto.CreateResponse](ctx, t, endpoint, "Create", req)
}

func (t *GRPCTransport) Stat(ctx context.Context, endpoint string, req metaproto.StatRequest) (metaproto.StatResponse, error) {
	return invoke[metaproto.StatRequest, metaproto.StatResponse](ctx, t, endpoint, "Stat", req)
}

func (t *GRPCTransport) Close(ctx context.Context, endpoint string, req metaproto.CloseRequest) (metaproto.CloseResponse, error) {
	return invoke[metaproto.CloseRequest, metaproto.CloseResponse](ctx, t, endpoint, "Close", req)
}

func (t *GRPCTransport) Unlink(ctx context.Context, endpoint string, req metaproto.UnlinkRequest) (metaproto.UnlinkResponse, error) {
	return invoke[metaproto.UnlinkRequest, metaproto.UnlinkResponse](ctx, t, endpoint, "Unlink", req)
}

func (t *GRPCTransport) Mkdir(ctx context.Context, endpoint string, req metaproto.MkdirRequest) (metaproto.MkdirResponse, error) {
	return invoke[metaproto.MkdirRequest, metaproto.MkdirResponse](ctx, t, endpoint, "Mkdir", req)
}

func (t *GRPCTransport) Rmdir(ctx context.Context, endpoint string, req metaproto.RmdirRequest) (metaproto.RmdirResponse, error) {
	return invoke[metaproto.RmdirRequest, metaproto.RmdirResponse](ctx, t, endpoint, "Rmdir", req)
}

func (t *GRPCTransport) Rename(ctx context.Context, endpoint string, req metaproto.RenameRequest) (metaproto.RenameResponse, error) {
	return invoke[metaproto.RenameRequest, metaproto.RenameResponse](ctx, t, endpoint, "Rename", req)
}

func (t *GRPCTransport) Utimens(ctx context.Context, endpoint string, req metaproto.UtimensRequest) (metaproto.UtimensResponse, error) {
	return invoke[metaproto.UtimensRequest, metaproto.UtimensResponse](ctx, t, endpoint, "Utimens", req)
}

func (t *GRPCTransport) Chown(ctx context.Context, endpoint string, req metaproto.ChownRequest) (metaproto.ChownResponse, error) {
	return invoke[metaproto.ChownRequest, metaproto.ChownResponse](ctx, t, endpoint, "Chown", req)
}

func (t *GRPCTransport) Chmod(ctx context.Context, endpoint string, req metaproto.ChmodRequest) (metaproto.ChmodResponse, error) {
	return invoke[metaproto.ChmodRequest, metaproto.ChmodResponse](ctx, t, endpoint, "Chmod", req)
}

func (t *GRPCTransport) Opendir(ctx context.Context, endpoint string, req metaproto.OpendirRequest) (metaproto.OpendirResponse, error) {
	return invoke[metaproto.OpendirRequest, metaproto.OpendirResponse](ctx, t, endpoint, "Opendir", req)
}

func (t *GRPCTransport) Readdir(ctx context.Context, endpoint string, req metaproto.ReaddirRequest) (metaproto.ReaddirResponse, error) {
	return invoke[metaproto.ReaddirRequest, metaproto.ReaddirResponse](ctx, t, endpoint, "Readdir", req)
}

func (t *GRPCTransport) Closedir(ctx context.Context, endpoint string, req metaproto.ClosedirRequest) (metaproto.ClosedirResponse, error) {
	return invoke[metaproto.ClosedirRequest, metaproto.ClosedirResponse](ctx, t, endpoint, "Closedir", req)
}

func (t *GRPCTransport) CoordinatorInfo(ctx context.Context, coordinatorEndpoint string) (metaproto.CoordinatorInfo, error) {
	return invoke[struct{}, metaproto.CoordinatorInfo](ctx, t, coordinatorEndpoint, "CoordinatorInfo", struct{}{})
}
