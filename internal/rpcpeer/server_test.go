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

package rpcpeer

import (
	"context"
	"net"
	"testing"

	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/grpcutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeServer struct {
	openFile func(ctx context.Context, req OpenFileRequest) (OpenFileResponse, error)
}

func (f *fakeServer) OpenFile(ctx context.Context, req OpenFileRequest) (OpenFileResponse, error) {
	return f.openFile(ctx, req)
}
func (f *fakeServer) CloseFile(ctx context.Context, req CloseFileRequest) (CloseFileResponse, error) {
	return CloseFileResponse{}, nil
}
func (f *fakeServer) ReadFile(ctx context.Context, req ReadFileRequest) (ReadFileResponse, error) {
	return ReadFileResponse{}, nil
}
func (f *fakeServer) ReadSmallFile(ctx context.Context, req ReadSmallFileRequest) (ReadSmallFileResponse, error) {
	return ReadSmallFileResponse{}, nil
}
func (f *fakeServer) WriteFile(ctx context.Context, req WriteFileRequest) (WriteFileResponse, error) {
	return WriteFileResponse{}, nil
}
func (f *fakeServer) DeleteFile(ctx context.Context, req DeleteFileRequest) (DeleteFileResponse, error) {
	return DeleteFileResponse{}, nil
}
func (f *fakeServer) Statfs(ctx context.Context, req StatfsRequest) (StatfsResponse, error) {
	return StatfsResponse{}, nil
}
func (f *fakeServer) TruncateOpenInstance(ctx context.Context, req TruncateOpenInstanceRequest) (TruncateOpenInstanceResponse, error) {
	return TruncateOpenInstanceResponse{}, nil
}
func (f *fakeServer) TruncateFile(ctx context.Context, req TruncateFileRequest) (TruncateFileResponse, error) {
	return TruncateFileResponse{}, nil
}
func (f *fakeServer) CheckConnection(ctx context.Context, req CheckConnectionRequest) (CheckConnectionResponse, error) {
	return CheckConnectionResponse{}, nil
}
func (f *fakeServer) StatCluster(ctx context.Context, req StatClusterRequest) (StatClusterResponse, error) {
	return StatClusterResponse{}, nil
}

func newBufconnPair(t *testing.T, impl Server) (*Client, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)

	gs := grpc.NewServer()
	RegisterServer(gs, impl)
	go gs.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcutil.Name)),
	)
	require.NoError(t, err)

	return &Client{conn: conn}, func() {
		conn.Close()
		gs.Stop()
	}
}

func TestServer_RoundTripsOpenFile(t *testing.T) {
	impl := &fakeServer{
		openFile: func(ctx context.Context, req OpenFileRequest) (OpenFileResponse, error) {
			return OpenFileResponse{Code: 0, PhysicalFD: req.InodeID + 1, Size: 42}, nil
		},
	}
	client, cleanup := newBufconnPair(t, impl)
	defer cleanup()

	resp, err := client.OpenFile(context.Background(), OpenFileRequest{InodeID: 7, OFlags: 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), resp.PhysicalFD)
	assert.Equal(t, int64(42), resp.Size)
}

func TestTransportCodeOf_MapsUnavailableToNoService(t *testing.T) {
	impl := &fakeServer{}
	client, cleanup := newBufconnPair(t, impl)
	cleanup() // close the server immediately so the call fails transport-side

	_, err := client.CheckConnection(context.Background(), CheckConnectionRequest{})
	require.Error(t, err)
	e, ok := efs.As(err)
	require.True(t, ok)
	assert.NotEqual(t, efs.ClassArgument, e.Class)

	assert.Equal(t, efs.TransportNoService, transportCodeOf(status.Error(codes.Unavailable, "unavailable")))
}
