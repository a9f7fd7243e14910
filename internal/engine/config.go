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

// Package engine is the storage engine core (component H): it
// orchestrates the open-instance table (J), block cache (A), file
// locks (B), memory pool (C), write assembler (D), read pipeline (E),
// node roster and placement (F), peer RPC (G/I) and the metadata
// client (L/M) into the open/create/read/write close/unlink/truncate/
// statfs surface a mount adapter drives. The expiring cache (K) is not
// used by this package.
package engine

// Config carries every falcon_* / env knob the engine core reads
// (§6). Zero values are meaningful defaults only where noted.
type Config struct {
	// SmallFileThreshold is SMALL_FILE_THRESHOLD: files smaller than
	// this opened O_RDONLY are slurped whole at open time.
	SmallFileThreshold int64
	// ReadPipelineBlocks is PREBLOCK_NUM, the number of prefetch
	// blocks the read pipeline allocates (capped at 3 pipes, §4.5).
	ReadPipelineBlocks int
	// BlockSize is the size of one prefetch/write-assembler block.
	BlockSize int

	// Persist is falcon_persist: whether the blob store backs the
	// cache for durability and cold reads.
	Persist bool
	// Async is falcon_async: best-effort (fire-and-forget) blob
	// uploads versus a synchronous close-time upload.
	Async bool

	// ToLocal, IsInference, ParentPathLevel drive placement (§4.6,
	// mirrored in roster.Placer).
	ToLocal         bool
	IsInference     bool
	ParentPathLevel int

	// MaxOpenInstances sizes the open-instance semaphore (0 = default).
	MaxOpenInstances int64

	// BRPCRetryNum is BRPC_RETRY_NUM: how many times a timed-out peer
	// RPC retries in place before the engine gives up on that node
	// (0 = defaultBRPCRetryNum).
	BRPCRetryNum int
}
