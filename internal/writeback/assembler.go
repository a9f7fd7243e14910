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

// Package writeback is the write assembler (component D): it coalesces
// ordered small writes into a single serial buffer, flushing
// out-of-order or oversized writes directly, and dispatches the
// terminal persist to either a local file or a remote peer.
package writeback

import (
	"time"

	"github.com/falconfs/falcon/internal/efs"
)

// StreamMax caps a SerialBuffer run (§3).
const StreamMax = 256 * 1024

// BRPCRetryNum is the retry budget for a remote persist on ETIMEDOUT
// (§4.4, §5).
const BRPCRetryNum = 3

const retryBackoff = time.Second

// Persister performs the actual byte transfer for one sink. Local and
// remote assemblers plug in different implementations; Persist must
// be idempotent under retry for the remote case.
type Persister interface {
	// Persist writes buf at offset against a file whose size was
	// currentSize before the call, returning the new current size.
	Persist(buf []byte, offset int64, currentSize int64) (newSize int64, err error)
	// Preallocate reserves capacity before a write lands, returning a
	// release func to call if the subsequent Persist fails.
	Preallocate(extra int64) (release func(), err error)
	// IsRemote reports whether Persist crosses the network, which
	// gates the ETIMEDOUT retry policy.
	IsRemote() bool
}

// SerialBuffer is the single in-flight append-only run (§3).
type serialBuffer struct {
	buf    []byte
	offset int64
}

func (s *serialBuffer) end() int64 { return s.offset + int64(len(s.buf)) }

// Assembler is the per-instance write assembler (D). It is not safe
// for concurrent use by multiple writers; the engine serializes writes
// against one instance the way it serializes all other instance state.
type Assembler struct {
	persister Persister

	active *serialBuffer
}

// New builds an Assembler over the given sink.
func New(p Persister) *Assembler {
	return &Assembler{persister: p}
}

// Push implements the three-way sink decision of §4.4: append to the
// in-flight run when contiguous and under STREAM_MAX, otherwise flush
// the run (if any) and either start a new run or persist directly when
// the incoming write is itself >= STREAM_MAX.
func (a *Assembler) Push(buf []byte, offset int64, currentSize int64) (newSize int64, err error) {
	if a.active != nil && a.active.end() == offset && int64(len(a.active.buf))+int64(len(buf)) <= StreamMax {
		a.active.buf = append(a.active.buf, buf...)
		return currentSize, nil
	}

	if a.active != nil {
		currentSize, err = a.flushActive(currentSize)
		if err != nil {
			return currentSize, err
		}
	}

	if int64(len(buf)) >= StreamMax {
		return a.persistToFile(buf, offset, currentSize)
	}

	a.active = &serialBuffer{buf: append([]byte(nil), buf...), offset: offset}
	return currentSize, nil
}

// flushActive persists the current run and clears it.
func (a *Assembler) flushActive(currentSize int64) (int64, error) {
	run := a.active
	a.active = nil
	return a.persistToFile(run.buf, run.offset, currentSize)
}

// persistToFile is §4.4's persist_to_file: preallocate the delta,
// write, and release the preallocation on failure. Remote persists
// retry up to BRPCRetryNum times with a 1s sleep, but only on a
// timeout; any other error (including a non-timeout remote fault)
// surfaces immediately.
func (a *Assembler) persistToFile(buf []byte, offset, currentSize int64) (int64, error) {
	needEnd := offset + int64(len(buf))
	extra := needEnd - currentSize
	var release func()
	if extra > 0 {
		r, err := a.persister.Preallocate(extra)
		if err != nil {
			return currentSize, err
		}
		release = r
	}

	attempts := 1
	if a.persister.IsRemote() {
		attempts = BRPCRetryNum
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		newSize, err := a.persister.Persist(buf, offset, currentSize)
		if err == nil {
			return newSize, nil
		}
		lastErr = err
		if !efs.IsTimeout(err) {
			break
		}
		time.Sleep(retryBackoff)
	}

	if release != nil {
		release()
	}
	return currentSize, lastErr
}

// Complete is the close-time flush (§4.4): drains any in-flight run.
// isFlush/isSync are accepted for parity with the engine's two-phase
// close contract; this package doesn't itself distinguish them beyond
// always draining the buffer, since a write assembler has nothing left
// to do once its run is empty.
func (a *Assembler) Complete(currentSize int64, isFlush, isSync bool) (int64, error) {
	if a.active == nil {
		return currentSize, nil
	}
	return a.flushActive(currentSize)
}

// Pending reports whether a run is currently buffered, so the engine
// can decide whether a read needs to flush first (§4.6).
func (a *Assembler) Pending() bool {
	return a.active != nil
}
