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

// Package membuf is the slab allocator of fixed-size aligned blocks shared
// by the read pipeline and the write assembler (component C). It is
// modeled on the free-list pattern of a message-buffer pool: a mutex
// guards a slice acting as a free-list queue (a single short critical
// section standing in for the reference system's spinlock -- Go's
// standard library has no spinlock primitive and the hold time here is a
// slice append/pop, so a Mutex is the idiomatic substitute), and misses
// lazily allocate a fresh, 512-byte-aligned block.
package membuf

import (
	"fmt"
	"sync"
	"unsafe"
)

const alignment = 512

// Block is a reusable, fixed-capacity byte buffer whose backing array
// starts on a 512-byte boundary, suitable for O_DIRECT writes.
type Block struct {
	aligned []byte // the full allocation, including the alignment slack
	buf     []byte // the aligned, capacity-sized window callers use
}

// Bytes returns the block's backing slice, always len(buf) == capacity.
func (b *Block) Bytes() []byte { return b.buf }

func newAlignedBlock(capacity int) *Block {
	raw := make([]byte, capacity+alignment)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := 0
	if pad := int(addr % alignment); pad != 0 {
		offset = alignment - pad
	}
	return &Block{aligned: raw, buf: raw[offset : offset+capacity : offset+capacity]}
}

// Pool is a bounded slab of blockSize-byte Blocks. At most maxBlocks may
// be outstanding (allocated and not yet returned) at any time.
type Pool struct {
	blockSize int
	maxBlocks int

	mu         sync.Mutex
	free       []*Block
	numCreated int
}

// New creates a Pool of blocks of blockSize bytes, capped at maxBlocks
// simultaneously-live blocks.
func New(blockSize, maxBlocks int) (*Pool, error) {
	if blockSize <= 0 || maxBlocks <= 0 {
		return nil, fmt.Errorf("membuf: invalid configuration, blockSize=%d maxBlocks=%d", blockSize, maxBlocks)
	}
	return &Pool{blockSize: blockSize, maxBlocks: maxBlocks}, nil
}

func (p *Pool) BlockSize() int { return p.blockSize }

// Get returns a zeroed block, reusing one from the free list when
// available and otherwise allocating a new one, up to maxBlocks. Get
// never blocks; once maxBlocks are outstanding it returns an error so
// callers degrade to a smaller prefetch depth instead of stalling.
func (p *Pool) Get() (*Block, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		clear(b.buf)
		return b, nil
	}
	if p.numCreated >= p.maxBlocks {
		p.mu.Unlock()
		return nil, fmt.Errorf("membuf: pool exhausted (%d blocks outstanding)", p.maxBlocks)
	}
	p.numCreated++
	p.mu.Unlock()

	return newAlignedBlock(p.blockSize), nil
}

// Put returns a block to the free list for reuse.
func (p *Pool) Put(b *Block) {
	if b == nil {
		return
	}
	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// Drain releases every block currently sitting on the free list,
// shrinking numCreated accordingly. Outstanding (checked-out) blocks are
// unaffected.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numCreated -= len(p.free)
	p.free = nil
}
