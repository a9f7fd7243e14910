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

	"github.com/falconfs/falcon/internal/efs"
)

// Write implements §4.6 write(): stop any live prefetch, make sure
// open_file has run, push the bytes through the write assembler, and
// optimistically advance current_size.
func (e *Engine) Write(ctx context.Context, fd uint64, buf []byte, offset int64) (int, error) {
	inst := e.instances.Get(fd)
	if inst == nil {
		return 0, efs.EBADF("engine.Write")
	}

	e.stopPrefetch(inst)

	if err := e.openFile(ctx, inst); err != nil {
		inst.WriteFail.Store(true)
		return 0, err
	}

	inst.FileMutex.Lock()
	defer inst.FileMutex.Unlock()

	asm := e.assemblerFor(inst)
	newSize, err := asm.Push(buf, offset, inst.CurrentSize.Load())
	if err != nil {
		inst.WriteFail.Store(true)
		return 0, err
	}

	inst.CurrentSize.Store(newSize)
	inst.WriteCnt.Add(1)
	e.writeOps.Add(1)
	return len(buf), nil
}
