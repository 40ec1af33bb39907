// Package executor runs a bounded pool of goroutines that repeatedly
// pull the next runnable entry off a queue.ReplicatedQueue and hand it
// to a worker (spec §4.4, §8 "background execution loop"). Concurrency
// is capped with golang.org/x/sync/semaphore, the same weighted
// semaphore pattern used for bounded parallel fan-out across the
// examples corpus (e.g. a Kubernetes partition lister's ParallelPartitionLister).
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package executor

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/coldb/coldb/cmn/nlog"
	"github.com/coldb/coldb/coord"
	"github.com/coldb/coldb/queue"
)

// Pool repeatedly selects and runs runnable queue entries, bounded to
// at most Concurrency simultaneous workers.
type Pool struct {
	Queue       *queue.ReplicatedQueue
	Coord       coord.Coordinator
	Worker      queue.Worker
	Merger      queue.Merger
	Storage     queue.Storage
	Concurrency int64
	IdleBackoff time.Duration // how long to sleep when nothing is runnable
}

// Run blocks until ctx is cancelled, keeping up to Concurrency workers
// busy. Each selected entry's guard is released exactly once, even if
// the worker panics, mirroring the original's scope-guard destructor.
func (p *Pool) Run(ctx context.Context) {
	sem := semaphore.NewWeighted(p.Concurrency)
	backoff := p.IdleBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		guard := p.Queue.SelectEntryToProcess(p.Merger, p.Storage)
		if guard == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			guard.Release()
			return
		}
		go func() {
			defer sem.Release(1)
			defer guard.Release()
			defer func() {
				if r := recover(); r != nil {
					nlog.Errorf("executor: worker panicked on %s: %v", guard.Entry().NewPartName, r)
				}
			}()
			p.Queue.ProcessEntry(ctx, p.Coord, guard.Entry(), p.Worker)
		}()
	}
}
