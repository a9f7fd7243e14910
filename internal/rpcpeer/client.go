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
	"time"

	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/grpcutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const peerService = "falcon.peer.Peer"

// rpcDeadline is the fixed transport deadline for every peer call
// (§5 "All peer RPCs use 10 s deadlines at the transport layer").
const rpcDeadline = 10 * time.Second

// Client is a typed peer RPC client (G) bound to one peer's endpoint.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a peer endpoint. Its signature matches
// roster.Dialer so a *Client can be stored directly as a roster node's
// Client field.
func Dial(endpoint string) (any, error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcutil.Name)),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func invoke[Req, Resp any](ctx context.Context, c *Client, op, method string, req Req) (Resp, error) {
	var resp Resp
	ctx, cancel := context.WithTimeout(ctx, rpcDeadline)
	defer cancel()

	err := c.conn.Invoke(ctx, "/"+peerService+"/"+method, req, &resp)
	if err != nil {
		return resp, efs.FromTransport(op, transportCodeOf(err), err)
	}
	return resp, nil
}

// transportCodeOf maps a gRPC status into the §4.7 transport taxonomy.
func transportCodeOf(err error) efs.TransportCode {
	st, ok := status.FromError(err)
	if !ok {
		return efs.TransportOther
	}
	switch st.Code() {
	case codes.Unimplemented:
		return efs.TransportNoMethod
	case codes.Unavailable:
		return efs.TransportNoService
	case codes.InvalidArgument:
		return efs.TransportBadRequest
	case codes.Unauthenticated, codes.PermissionDenied:
		return efs.TransportAuth
	case codes.DeadlineExceeded:
		return efs.TransportTimedOut
	case codes.Unknown:
		return efs.TransportSocketFailed
	case codes.Internal:
		return efs.TransportServerFault
	default:
		return efs.TransportOther
	}
}

func (c *Client) OpenFile(ctx context.Context, req OpenFileRequest) (OpenFileResponse, error) {
	return invoke[OpenFileRequest, OpenFileResponse](ctx, c, "rpcpeer.OpenFile", "OpenFile", req)
}

func (c *Client) CloseFile(ctx context.Context, req CloseFileRequest) (CloseFileResponse, error) {
	return invoke[CloseFileRequest, CloseFileResponse](ctx, c, "rpcpeer.CloseFile", "CloseFile", req)
}

func (c *Client) ReadFile(ctx context.Context, req ReadFileRequest) (ReadFileResponse, error) {
	return invoke[ReadFileRequest, ReadFileResponse](ctx, c, "rpcpeer.ReadFile", "ReadFile", req)
}

func (c *Client) ReadSmallFile(ctx context.Context, req ReadSmallFileRequest) (ReadSmallFileResponse, error) {
	return invoke[ReadSmallFileRequest, ReadSmallFileResponse](ctx, c, "rpcpeer.ReadSmallFile", "ReadSmallFile", req)
}

func (c *Client) WriteFile(ctx context.Context, req WriteFileRequest) (WriteFileResponse, error) {
	return invoke[WriteFileRequest, WriteFileResponse](ctx, c, "rpcpeer.WriteFile", "WriteFile", req)
}

func (c *Client) DeleteFile(ctx context.Context, req DeleteFileRequest) (DeleteFileResponse, error) {
	return invoke[DeleteFileRequest, DeleteFileResponse](ctx, c, "rpcpeer.DeleteFile", "DeleteFile", req)
}

func (c *Client) Statfs(ctx context.Context, req StatfsRequest) (StatfsResponse, error) {
	return invoke[StatfsRequest, StatfsResponse](ctx, c, "rpcpeer.Statfs", "Statfs", req)
}

func (c *Client) TruncateOpenInstance(ctx context.Context, req TruncateOpenInstanceRequest) (TruncateOpenInstanceResponse, error) {
	return invoke[TruncateOpenInstanceRequest, TruncateOpenInstanceResponse](ctx, c, "rpcpeer.TruncateOpenInstance", "TruncateOpenInstance", req)
}

func (c *Client) TruncateFile(ctx context.Context, req TruncateFileRequest) (TruncateFileResponse, error) {
	return invoke[TruncateFileRequest, TruncateFileResponse](ctx, c, "rpcpeer.TruncateFile", "TruncateFile", req)
}

func (c *Client) CheckConnection(ctx context.Context, req CheckConnectionRequest) (CheckConnectionResponse, error) {
	return invoke[CheckConnectionRequest, CheckConnectionResponse](ctx, c, "rpcpeer.CheckConnection", "CheckConnection", req)
}

func (c *Client) StatCluster(ctx context.Context, req StatClusterRequest) (StatClusterResponse, error) {
	return invoke[StatClusterRequest, StatClusterResponse](ctx, c, "rpcpeer.StatCluster", "StatCluster", req)
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
