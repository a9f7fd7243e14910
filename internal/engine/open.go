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
	"errors"
	"os"
	"syscall"

	"github.com/falconfs/falcon/internal/efs"
	"github.com/falconfs/falcon/internal/filelock"
	"github.com/falconfs/falcon/internal/metaproto"
	"github.com/falconfs/falcon/internal/openfd"
)

// Open implements §4.6 open(): obtain an instance from J, ask the
// metadata client who owns the file, and either slurp it whole (the
// small-file read-only fast path) or just record the instance.
func (e *Engine) Open(ctx context.Context, path string, oflags int32) (uint64, metaproto.Stat, error) {
	if !e.instances.WaitNewInstance(ctx, true) {
		return 0, metaproto.Stat{}, efs.EMFILE("engine.Open")
	}
	fd := e.instances.ObtainFd()

	resp, err := e.meta.Open(ctx, path, oflags)
	if err != nil {
		e.instances.Delete(fd, true)
		return 0, metaproto.Stat{}, err
	}

	inst := &openfd.Instance{
		Fd:           fd,
		Inode:        resp.InodeID,
		NodeID:       resp.NodeID,
		Path:         path,
		OFlags:       int(oflags),
		OriginalSize: resp.Size,
	}
	inst.NodePicked.Store(resp.NodeID != metaproto.NodeIDUnset)
	inst.CurrentSize.Store(resp.Size)

	accmode := oflags & syscall.O_ACCMODE
	if resp.Size < e.cfg.SmallFileThreshold && accmode == syscall.O_RDONLY {
		buf := make([]byte, resp.Size)
		if err := e.readSmallFile(ctx, inst, buf); err != nil {
			e.instances.Delete(fd, true)
			return 0, metaproto.Stat{}, err
		}
		inst.ReadBuffer = buf
	}

	e.instances.Attach(inst)
	return fd, resp.Stat, nil
}

// Create implements §4.6 create(): metadata create, then a bare
// instance with no data movement yet.
func (e *Engine) Create(ctx context.Context, path string, oflags int32, mode, uid, gid uint32) (uint64, metaproto.Stat, error) {
	if !e.instances.WaitNewInstance(ctx, true) {
		return 0, metaproto.Stat{}, efs.EMFILE("engine.Create")
	}
	fd := e.instances.ObtainFd()

	resp, err := e.meta.Create(ctx, path, mode, uid, gid)
	if err != nil {
		e.instances.Delete(fd, true)
		return 0, metaproto.Stat{}, err
	}

	inst := &openfd.Instance{
		Fd:     fd,
		Inode:  resp.InodeID,
		NodeID: resp.NodeID,
		Path:   path,
		OFlags: int(oflags),
	}
	inst.NodePicked.Store(resp.NodeID != metaproto.NodeIDUnset)
	e.instances.Attach(inst)
	return fd, resp.Stat, nil
}

// openFile is §4.6 open_file: allocate a backing descriptor and, if
// necessary, warm the cache. It is idempotent once IsOpened is set.
func (e *Engine) openFile(ctx context.Context, inst *openfd.Instance) error {
	if inst.IsOpened.Load() {
		return nil
	}
	inst.FileMutex.Lock()
	defer inst.FileMutex.Unlock()
	if inst.IsOpened.Load() {
		return nil
	}

	if !inst.NodePicked.Load() {
		inst.NodeID = e.placer.Pick(inst.Path, inst.Inode, e.localHasSpace())
		inst.NodePicked.Store(true)
	}

	for !e.roster.IsLocal(inst.NodeID) {
		err := e.openFileRemote(ctx, inst)
		if err == nil {
			inst.IsOpened.Store(true)
			return nil
		}
		if !errors.Is(err, errRetryPlacement) {
			return err
		}
		// failoverNode already picked a new owner; loop re-checks
		// whether it landed on us.
	}

	if inst.NodeFail.Load() {
		e.cache.Delete(inst.Inode)
		inst.NodeFail.Store(false)
	}

	if _, hit := e.cache.Find(inst.Inode, true); hit {
		f, err := os.OpenFile(e.cache.Path(inst.Inode), osFlags(inst.OFlags), 0o644)
		if err != nil {
			e.cache.Unpin(inst.Inode)
			return efs.IO("engine.openFile", err)
		}
		setLocalFile(inst, f)
		inst.IsOpened.Store(true)
		return nil
	}
	e.cache.Unpin(inst.Inode)

	accmode := inst.OFlags & syscall.O_ACCMODE
	switch {
	case accmode == syscall.O_RDONLY && e.cfg.Persist:
		// Pin-less background fetch: no local file is attached to this
		// instance, so the read path serves it with direct blob range
		// gets.
		e.dispatchDownload(inst.Inode, inst.Path, inst.OriginalSize)
	case accmode != syscall.O_RDONLY && inst.OriginalSize > 0:
		if err := e.downloadSync(ctx, inst.Inode, inst.Path, inst.OriginalSize, nil); err != nil {
			return err
		}
		if _, hit := e.cache.Find(inst.Inode, true); !hit {
			return efs.IO("engine.openFile", os.ErrNotExist)
		}
		f, err := os.OpenFile(e.cache.Path(inst.Inode), osFlags(inst.OFlags), 0o644)
		if err != nil {
			e.cache.Unpin(inst.Inode)
			return efs.IO("engine.openFile", err)
		}
		setLocalFile(inst, f)
	default:
		f, err := os.OpenFile(e.cache.Path(inst.Inode), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
		if err != nil {
			return efs.IO("engine.openFile", err)
		}
		e.cache.InsertOrUpdate(inst.Inode, 0, true)
		setLocalFile(inst, f)
	}

	inst.IsOpened.Store(true)
	return nil
}

func osFlags(oflags int) int {
	// Local cache files are always readable and writable regardless
	// of the caller's flags; the cache owns persistence, not the fd.
	return os.O_RDWR
}

// withDownloadLock is the single-flight guard of §4.8: blocking
// acquisition guarantees one downloader; a failed try-acquire means
// another is already in flight.
func (e *Engine) withDownloadLock(inode uint64, blocking bool, fn func() error) error {
	var locker *filelock.Locker
	if blocking {
		locker = e.locks.Lock(inode, filelock.Exclusive)
	} else {
		locker = e.locks.TryLock(inode, filelock.Exclusive)
		if !locker.IsLocked() {
			return nil
		}
	}
	defer locker.Unlock()
	return fn()
}
