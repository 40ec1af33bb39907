package queue

import (
	"context"
	"sync"

	"github.com/coldb/coldb/cmn/cos"
	"github.com/coldb/coldb/cmn/debug"
	"github.com/coldb/coldb/cmn/nlog"
	"github.com/coldb/coldb/coord"
	"github.com/coldb/coldb/logentry"
)

// Merger and Storage are the narrow collaborator contracts spec §6
// requires of the merge engine and the on-disk part store; both are
// implemented outside this package.
type Merger interface {
	IsCancelled() bool
	MaxPartsSizeForMerge() uint64
}

type PartHandle struct {
	SizeInBytes uint64
}

type Storage interface {
	GetPartIfExists(name string) (*PartHandle, bool)
}

// Worker applies one LogEntry and reports whether it has been fully
// applied; a non-nil error is a hard failure (spec §6).
type Worker func(ctx context.Context, entry *logentry.LogEntry) (bool, error)

// CurrentlyExecuting is the scoped execution guard of spec §4.4. Go has
// no destructors, so the RAII shape becomes a value returned by
// SelectEntryToProcess that the caller must Release (typically via
// defer) on every control-flow exit — including a worker panic, since
// Release is deferred before the worker runs.
type CurrentlyExecuting struct {
	entry    *logentry.LogEntry
	q        *ReplicatedQueue
	once     sync.Once
}

// newCurrentlyExecuting assumes q.mu is already held (called only from
// SelectEntryToProcess).
func newCurrentlyExecuting(entry *logentry.LogEntry, q *ReplicatedQueue) *CurrentlyExecuting {
	if _, already := q.futureParts[entry.NewPartName]; already {
		debug.Assertf(false, "tagging already tagged future part %s", entry.NewPartName)
	}
	q.futureParts[entry.NewPartName] = struct{}{}
	entry.SetExecuting(true)
	entry.IncTries()
	entry.SetLastAttemptTime(cos.NowUnix())
	return &CurrentlyExecuting{entry: entry, q: q}
}

// Release clears currently_executing, untags the future part, and wakes
// any removeGetsAndMergesInRange waiters (spec §4.4 destructor). Safe to
// call more than once; only the first call has effect.
func (g *CurrentlyExecuting) Release() {
	g.once.Do(func() {
		g.q.mu.Lock()
		defer g.q.mu.Unlock()
		g.entry.SetExecuting(false)
		g.entry.NotifyExecutionComplete()
		if _, ok := g.q.futureParts[g.entry.NewPartName]; !ok {
			nlog.Errorf("queue: untagging already untagged future part %s (bug)", g.entry.NewPartName)
			return
		}
		delete(g.q.futureParts, g.entry.NewPartName)
	})
}

// Entry returns the guarded entry, for callers that received the guard
// from SelectEntryToProcess and now need to run the worker.
func (g *CurrentlyExecuting) Entry() *logentry.LogEntry { return g.entry }

// ProcessEntry runs worker(entry); on success (no error) it removes the
// entry from both the coordinator and RAM when the worker reports full
// completion. A worker error is captured onto the entry and never
// propagated across the queue's public boundary (spec §4.3 processEntry,
// §9 "exception-as-control-flow").
func (q *ReplicatedQueue) ProcessEntry(ctx context.Context, cd coord.Coordinator, entry *logentry.LogEntry, worker Worker) bool {
	done, err := worker(ctx, entry)
	if err != nil {
		q.mu.Lock()
		entry.SetException(err)
		q.mu.Unlock()
		return false
	}
	if done {
		q.Remove(ctx, cd, entry)
	}
	return true
}
