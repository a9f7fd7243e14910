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

// Package readpipe is the pipelined read-ahead engine (component E): a
// ring of Q prefetch pipes, each driven by its own worker, that a
// single consumer drains in file order.
package readpipe

import (
	"sync"

	"github.com/falconfs/falcon/internal/membuf"
)

// Q is the ring depth (§3).
const Q = 3

// Filler reads len(dst) bytes at offset into dst, returning the number
// of bytes actually read (< len(dst) signals EOF) or a negative-errno
// shaped error.
type Filler func(dst []byte, offset int64) (int, error)

type pipe struct {
	block *membuf.Block
	mu    sync.Mutex
	cond  *sync.Cond

	size    int // valid bytes after the last fill; -1 on error
	index   int // bytes already consumed
	stopped bool
	err     error
}

func newPipe(block *membuf.Block) *pipe {
	p := &pipe{block: block}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pipeline is the per-instance read-ahead state (E). One Pipeline
// serves one OpenInstance's large-file sequential reads.
type Pipeline struct {
	pool   *membuf.Pool
	fill   Filler
	pipes  []*pipe
	cap    int
	wg     sync.WaitGroup

	mu         sync.Mutex
	stopOffset int64 // -1 until a worker finds EOF/error
	stopped    bool

	readIndex int // which pipe the consumer is currently draining
}

// New allocates min(blocks, Q) pipe buffers from pool and returns a
// Pipeline ready for Start.
func New(pool *membuf.Pool, blocks int, fill Filler) (*Pipeline, error) {
	n := blocks
	if n > Q {
		n = Q
	}
	if n < 1 {
		n = 1
	}
	pipes := make([]*pipe, n)
	for i := 0; i < n; i++ {
		b, err := pool.Get()
		if err != nil {
			for j := 0; j < i; j++ {
				pool.Put(pipes[j].block)
			}
			return nil, err
		}
		pipes[i] = newPipe(b)
	}
	return &Pipeline{pool: pool, fill: fill, pipes: pipes, cap: pool.BlockSize(), stopOffset: -1}, nil
}

// Start spawns one worker goroutine per pipe.
func (p *Pipeline) Start(startOffset int64) {
	n := len(p.pipes)
	for k := 0; k < n; k++ {
		p.wg.Add(1)
		go p.worker(k, startOffset)
	}
}

// worker fills pipe k at strided offsets k*cap + iter*N*cap until it
// hits the file's stop_offset (§4.5).
func (p *Pipeline) worker(k int, startOffset int64) {
	defer p.wg.Done()

	n := int64(len(p.pipes))
	stride := int64(p.cap) * n
	iter := int64(0)

	for {
		offset := startOffset + int64(k)*int64(p.cap) + iter*stride

		p.mu.Lock()
		if p.stopped || (p.stopOffset >= 0 && offset >= p.stopOffset) {
			p.mu.Unlock()
			pp := p.pipes[k]
			pp.mu.Lock()
			// Let the consumer drain the last fill first: WaitPop treats
			// a drained, stopped pipe as the end of the stream.
			for pp.size > 0 && !pp.stopped {
				pp.cond.Wait()
			}
			pp.stopped = true
			pp.cond.Broadcast()
			pp.mu.Unlock()
			return
		}
		p.mu.Unlock()

		pp := p.pipes[k]

		// A pipe has exactly one buffer: wait for the consumer to drain
		// the previous fill before overwriting it with the next one.
		pp.mu.Lock()
		for pp.size != 0 && !pp.stopped {
			pp.cond.Wait()
		}
		if pp.stopped {
			pp.mu.Unlock()
			return
		}
		pp.mu.Unlock()

		n, err := p.fill(pp.block.Bytes(), offset)

		pp.mu.Lock()
		if err != nil {
			pp.size = -1
			pp.err = err
			pp.stopped = true
			pp.cond.Broadcast()
			pp.mu.Unlock()

			p.mu.Lock()
			if p.stopOffset < 0 || offset < p.stopOffset {
				p.stopOffset = offset
			}
			p.mu.Unlock()
			return
		}
		pp.size = n
		pp.index = 0
		short := n < p.cap
		pp.cond.Broadcast()
		pp.mu.Unlock()

		if short {
			p.mu.Lock()
			if p.stopOffset < 0 || offset < p.stopOffset {
				p.stopOffset = offset
			}
			p.mu.Unlock()

			pp.mu.Lock()
			pp.stopped = true
			pp.cond.Broadcast()
			pp.mu.Unlock()
			return
		}

		iter++
	}
}

// WaitPop drains up to len(dst) bytes from the current pipe in the
// ring, advancing to the next pipe when the current one is exhausted,
// looping within the call when dst is larger than one pipe's fill
// (§4.5 Consumption). It returns the bytes copied and whether the
// stream has ended.
func (p *Pipeline) WaitPop(dst []byte) (n int, end bool, err error) {
	for n < len(dst) {
		pp := p.pipes[p.readIndex]

		pp.mu.Lock()
		for pp.size == 0 && !pp.stopped {
			pp.cond.Wait()
		}
		if pp.size < 0 {
			e := pp.err
			pp.mu.Unlock()
			return n, true, e
		}
		if pp.size == 0 && pp.stopped {
			pp.mu.Unlock()
			return n, true, nil
		}

		avail := pp.size - pp.index
		want := len(dst) - n
		take := avail
		if take > want {
			take = want
		}
		copy(dst[n:n+take], pp.block.Bytes()[pp.index:pp.index+take])
		pp.index += take
		n += take

		drained := pp.index >= pp.size
		if drained {
			pp.size = 0
			pp.index = 0
			pp.cond.Broadcast() // wake the worker waiting to refill
		}
		stopped := pp.stopped
		pp.mu.Unlock()

		if drained {
			if stopped {
				p.readIndex = (p.readIndex + 1) % len(p.pipes)
				return n, true, nil
			}
			p.readIndex = (p.readIndex + 1) % len(p.pipes)
			continue
		}
	}
	return n, false, nil
}

// Stop signals every worker to exit and waits for them, then returns
// the pipe buffers to the pool.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	for _, pp := range p.pipes {
		pp.mu.Lock()
		pp.stopped = true
		pp.cond.Broadcast()
		pp.mu.Unlock()
	}
	p.wg.Wait()
	for _, pp := range p.pipes {
		p.pool.Put(pp.block)
	}
}
