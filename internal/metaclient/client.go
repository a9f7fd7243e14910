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

// Package metaclient is the typed metadata client facade (component
// L): it resolves a path to its owning shard through the router and
// dispatches the call over a metaproto.Transport, translating the
// protocol's positive status codes into errno-shaped errors.
package metaclient

import (
	"context"

	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/metaclient/router"
	"github.com/falconfs/falcon/internal/metaproto"
)

// Client is the metadata facade the storage engine core calls into.
type Client struct {
	transport metaproto.Transport
	router    *router.Router
}

// New builds a Client over transport, using router to resolve paths to
// shard endpoints.
func New(transport metaproto.Transport, r *router.Router) *Client {
	return &Client{transport: transport, router: r}
}

func (c *Client) endpoint(path string) (string, error) {
	endpoint, ok := c.router.Resolve(path)
	if !ok {
		return "", efs.MetadataFault("metaclient.resolve", nil)
	}
	return endpoint, nil
}

// withShardRetry dispatches fn against path's shard, and on a
// ServerFault response refreshes the router and retries, up to 3
// attempts total (§7 "router refresh-and-retry... up to 3 times").
func withShardRetry[Resp any](ctx context.Context, c *Client, path string, code func(Resp) metaproto.ErrorCode, fn func(endpoint string) (Resp, error)) (Resp, error) {
	var zero Resp
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		endpoint, err := c.endpoint(path)
		if err != nil {
			return zero, err
		}
		resp, err := fn(endpoint)
		if err != nil {
			return zero, efs.MetadataFault("metaclient.call", err)
		}
		if code(resp) != metaproto.ServerFault {
			return resp, nil
		}
		if refreshErr := c.router.Refresh(ctx); refreshErr != nil {
			return zero, efs.MetadataFault("metaclient.refresh", refreshErr)
		}
	}
	return zero, efs.MetadataFault("metaclient.call", nil)
}

func statusError(op string, code metaproto.ErrorCode) error {
	switch code {
	case metaproto.OK:
		return nil
	case metaproto.NotFound:
		return efs.ENOENT(op, nil)
	case metaproto.PermDenied:
		return efs.EPERM(op)
	case metaproto.Exists, metaproto.NotEmpty, metaproto.InvalidInput:
		return efs.Argument(op, nil)
	default:
		return efs.MetadataFault(op, nil)
	}
}

func (c *Client) Open(ctx context.Context, path string, oflags int32) (metaproto.OpenResponse, error) {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.OpenResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.OpenResponse, error) {
			return c.transport.Open(ctx, endpoint, metaproto.OpenRequest{Path: path, OFlags: oflags})
		})
	if err != nil {
		return resp, err
	}
	return resp, statusError("metaclient.Open", resp.Code)
}

func (c *Client) Create(ctx context.Context, path string, mode, uid, gid uint32) (metaproto.CreateResponse, error) {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.CreateResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.CreateResponse, error) {
			return c.transport.Create(ctx, endpoint, metaproto.CreateRequest{Path: path, Mode: mode, Uid: uid, Gid: gid})
		})
	if err != nil {
		return resp, err
	}
	return resp, statusError("metaclient.Create", resp.Code)
}

func (c *Client) Stat(ctx context.Context, path string) (metaproto.StatResponse, error) {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.StatResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.StatResponse, error) {
			return c.transport.Stat(ctx, endpoint, metaproto.StatRequest{Path: path})
		})
	if err != nil {
		return resp, err
	}
	return resp, statusError("metaclient.Stat", resp.Code)
}

func (c *Client) Close(ctx context.Context, path string, size, mtimeUs int64, nodeID uint32) error {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.CloseResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.CloseResponse, error) {
			return c.transport.Close(ctx, endpoint, metaproto.CloseRequest{Path: path, Size: size, MtimeUs: mtimeUs, NodeID: nodeID})
		})
	if err != nil {
		return err
	}
	return statusError("metaclient.Close", resp.Code)
}

func (c *Client) Unlink(ctx context.Context, path string) (metaproto.UnlinkResponse, error) {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.UnlinkResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.UnlinkResponse, error) {
			return c.transport.Unlink(ctx, endpoint, metaproto.UnlinkRequest{Path: path})
		})
	if err != nil {
		return resp, err
	}
	return resp, statusError("metaclient.Unlink", resp.Code)
}

func (c *Client) Mkdir(ctx context.Context, path string, mode, uid, gid uint32) error {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.MkdirResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.MkdirResponse, error) {
			return c.transport.Mkdir(ctx, endpoint, metaproto.MkdirRequest{Path: path, Mode: mode, Uid: uid, Gid: gid})
		})
	if err != nil {
		return err
	}
	return statusError("metaclient.Mkdir", resp.Code)
}

func (c *Client) Rmdir(ctx context.Context, path string) error {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.RmdirResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.RmdirResponse, error) {
			return c.transport.Rmdir(ctx, endpoint, metaproto.RmdirRequest{Path: path})
		})
	if err != nil {
		return err
	}
	return statusError("metaclient.Rmdir", resp.Code)
}

func (c *Client) Rename(ctx context.Context, oldPath, newPath string) error {
	resp, err := withShardRetry(ctx, c, oldPath,
		func(r metaproto.RenameResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.RenameResponse, error) {
			return c.transport.Rename(ctx, endpoint, metaproto.RenameRequest{OldPath: oldPath, NewPath: newPath})
		})
	if err != nil {
		return err
	}
	return statusError("metaclient.Rename", resp.Code)
}

func (c *Client) Utimens(ctx context.Context, path string, atimeUs, mtimeUs int64) error {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.UtimensResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.UtimensResponse, error) {
			return c.transport.Utimens(ctx, endpoint, metaproto.UtimensRequest{Path: path, AtimeUs: atimeUs, MtimeUs: mtimeUs})
		})
	if err != nil {
		return err
	}
	return statusError("metaclient.Utimens", resp.Code)
}

func (c *Client) Chown(ctx context.Context, path string, uid, gid uint32) error {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.ChownResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.ChownResponse, error) {
			return c.transport.Chown(ctx, endpoint, metaproto.ChownRequest{Path: path, Uid: uid, Gid: gid})
		})
	if err != nil {
		return err
	}
	return statusError("metaclient.Chown", resp.Code)
}

func (c *Client) Chmod(ctx context.Context, path string, mode uint32) error {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.ChmodResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.ChmodResponse, error) {
			return c.transport.Chmod(ctx, endpoint, metaproto.ChmodRequest{Path: path, Mode: mode})
		})
	if err != nil {
		return err
	}
	return statusError("metaclient.Chmod", resp.Code)
}

func (c *Client) Opendir(ctx context.Context, path string) (metaproto.OpendirResponse, error) {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.OpendirResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.OpendirResponse, error) {
			return c.transport.Opendir(ctx, endpoint, metaproto.OpendirRequest{Path: path})
		})
	if err != nil {
		return resp, err
	}
	return resp, statusError("metaclient.Opendir", resp.Code)
}

func (c *Client) Readdir(ctx context.Context, path string, dirFd uint64, offset int64) (metaproto.ReaddirResponse, error) {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.ReaddirResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.ReaddirResponse, error) {
			return c.transport.Readdir(ctx, endpoint, metaproto.ReaddirRequest{DirFd: dirFd, Offset: offset})
		})
	if err != nil {
		return resp, err
	}
	return resp, statusError("metaclient.Readdir", resp.Code)
}

func (c *Client) Closedir(ctx context.Context, path string, dirFd uint64) error {
	resp, err := withShardRetry(ctx, c, path,
		func(r metaproto.ClosedirResponse) metaproto.ErrorCode { return r.Code },
		func(endpoint string) (metaproto.ClosedirResponse, error) {
			return c.transport.Closedir(ctx, endpoint, metaproto.ClosedirRequest{DirFd: dirFd})
		})
	if err != nil {
		return err
	}
	return statusError("metaclient.Closedir", resp.Code)
}
