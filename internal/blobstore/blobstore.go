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

// Package blobstore is the object-storage backing tier the engine
// falls back to for durability (§6 "Blob store interface (consumed)").
// The SDK itself is an external collaborator; this package fixes the
// interface the engine depends on and a concrete Google Cloud Storage
// implementation.
package blobstore

import (
	"context"
	"io"
	"strings"
)

// FSStat mirrors what stat_fs reports back to the engine's statfs.
type FSStat struct {
	UsedBytes  int64
	TotalBytes int64
}

// Store is the blob store contract (§6).
type Store interface {
	// ReadRange streams length bytes starting at offset into w,
	// returning the count actually written (short on EOF).
	ReadRange(ctx context.Context, key string, offset, length int64, w io.Writer) (int64, error)
	PutFile(ctx context.Context, key, localPath string) error
	PutBuffer(ctx context.Context, key string, buf []byte, offset int64) error
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	StatFS(ctx context.Context) (FSStat, error)
}

// Key strips the leading slash from path per §6 ("Keys are
// path-stripped of a leading /").
func Key(path string) string {
	return strings.TrimPrefix(path, "/")
}
