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

// Package workerpool is the bounded thread pool that services
// background jobs the storage engine doesn't want on a request-handling
// goroutine: blob downloads, blob uploads, async cache writes (§5).
package workerpool

import (
	"fmt"
	"sync"
)

// DefaultQueueCapacity is the task queue cap named in §5.
const DefaultQueueCapacity = 100000

// Job is a unit of background work. It receives no context; callers
// that need cancellation should close over one.
type Job func()

// StaticWorkerPool runs two independent goroutine pools against two
// independent queues, so a flood of low-priority jobs (routine blob
// uploads) can never starve high-priority ones (synchronous blob
// fetches blocking a foreground read).
type StaticWorkerPool struct {
	priorityQueue chan Job
	normalQueue   chan Job

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewStaticWorkerPool starts priorityWorkers+normalWorkers goroutines.
// At least one worker across both pools is required.
func NewStaticWorkerPool(priorityWorkers, normalWorkers uint32) (*StaticWorkerPool, error) {
	if priorityWorkers == 0 && normalWorkers == 0 {
		return nil, fmt.Errorf("workerpool: at least one worker is required")
	}

	p := &StaticWorkerPool{
		priorityQueue: make(chan Job, DefaultQueueCapacity),
		normalQueue:   make(chan Job, DefaultQueueCapacity),
		stopCh:        make(chan struct{}),
	}

	for i := uint32(0); i < priorityWorkers; i++ {
		p.wg.Add(1)
		go p.run(p.priorityQueue)
	}
	for i := uint32(0); i < normalWorkers; i++ {
		p.wg.Add(1)
		go p.run(p.normalQueue)
	}
	return p, nil
}

func (p *StaticWorkerPool) run(queue chan Job) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case job, ok := <-queue:
			if !ok {
				return
			}
			job()
		}
	}
}

// Submit enqueues a normal-priority job. It blocks if the queue is at
// capacity rather than dropping work.
func (p *StaticWorkerPool) Submit(job Job) {
	select {
	case p.normalQueue <- job:
	case <-p.stopCh:
	}
}

// PrioritySubmit enqueues a high-priority job (e.g. a synchronous blob
// fetch another goroutine is blocked waiting on).
func (p *StaticWorkerPool) PrioritySubmit(job Job) {
	select {
	case p.priorityQueue <- job:
	case <-p.stopCh:
	}
}

// Stop signals every worker to exit after its current job and waits
// for them to drain. Queued-but-not-started jobs are discarded.
func (p *StaticWorkerPool) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}
