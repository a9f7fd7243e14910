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
	"io"
	"os"

	"github.com/falconfs/falcon/internal/blobstore"
	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/logger"
)

// downloadSync runs the §4.8 single-flight blob download and blocks
// for the result, for callers (write-open, small-file read) that need
// the cache file populated before they can proceed.
func (e *Engine) downloadSync(ctx context.Context, inode uint64, path string, size int64, userBuf []byte) error {
	return e.withDownloadLock(inode, true, func() error {
		return e.download(ctx, inode, path, size, userBuf)
	})
}

// dispatchDownload fires a background fetch for the read-only
// persistent cache-miss path (§4.6 open_file): the caller proceeds
// without waiting, and reads on that instance are served by direct
// blob range gets.
func (e *Engine) dispatchDownload(inode uint64, path string, size int64) {
	task := func() {
		err := e.withDownloadLock(inode, false, func() error {
			return e.download(context.Background(), inode, path, size, nil)
		})
		if err != nil {
			logger.Warnf("engine: background download of inode %d failed: %v", inode, err)
		}
	}
	if e.workers != nil {
		e.workers.Submit(task)
		return
	}
	go task()
}

// download is the body of §4.8: preallocate, create/truncate the
// backing file, stream the blob range into it (and, for the
// small-file path, into userBuf too), then commit or roll back the
// cache entry.
func (e *Engine) download(ctx context.Context, inode uint64, path string, size int64, userBuf []byte) error {
	if e.blobs == nil {
		return efs.EOPNOTSUPP("engine.download")
	}

	// Re-check: another downloader may have finished while we waited
	// for the lock.
	if _, hit := e.cache.Find(inode, false); hit {
		if userBuf != nil {
			if f, err := os.Open(e.cache.Path(inode)); err == nil {
				io.ReadFull(f, userBuf)
				f.Close()
			}
		}
		return nil
	}

	if err := e.cache.PreAlloc(size); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			e.cache.FreePreAlloc(size)
		}
	}()

	cachePath := e.cache.Path(inode)
	f, err := os.OpenFile(cachePath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return efs.IO("engine.download", err)
	}

	var dst io.Writer = f
	if userBuf != nil {
		dst = io.MultiWriter(f, &sliceWriter{buf: userBuf})
	}

	n, err := e.blobs.ReadRange(ctx, blobstore.Key(path), 0, size, dst)
	f.Close()
	if err != nil {
		os.Remove(cachePath)
		return efs.Persistence("engine.download", err)
	}

	e.cache.InsertOrUpdate(inode, n, false)
	committed = true
	return nil
}

// sliceWriter writes sequentially into a fixed-size buffer, used to
// tee a blob download into the small-file read_buffer alongside the
// cache file.
type sliceWriter struct {
	buf []byte
	off int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.off:], p)
	w.off += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
