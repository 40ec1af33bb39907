// Package queue implements the per-replica ReplicatedQueue: the
// in-memory mirror of the shared replication log, the virtual-parts and
// future-parts bookkeeping, the insert-time watermarks, and the
// scheduler (spec §3, §4.3–§4.5, §5). Grounded throughout on
// ReplicatedMergeTreeQueue.cpp, translated into the teacher's Go idiom
// (sync.Mutex + sync.Cond in place of std::mutex + condition_variable,
// container/list in place of std::list for its splice-to-tail scheduler).
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package queue

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coldb/coldb/cmn/cos"
	"github.com/coldb/coldb/cmn/nlog"
	"github.com/coldb/coldb/coord"
	"github.com/coldb/coldb/logentry"
	"github.com/coldb/coldb/parts"
)

// MaxMultiOps is the per-transaction batch cap the coordinator's wire
// protocol enforces (spec §6).
const MaxMultiOps = 100

// ReplicatedQueue is a per-replica object; process-wide concerns
// (logger, coordinator handle) are passed in, never held as globals
// (spec §9).
type ReplicatedQueue struct {
	zkPath      string
	replicaPath string

	// mu (inner): protects everything below it, plus every per-entry
	// execution flag reachable through the entries in queueList.
	mu       sync.Mutex
	queueList *list.List
	byZnode   map[string]*list.Element

	virtualParts  *parts.ActivePartSet
	futureParts   map[string]struct{}
	insertsByTime *insertsByTimeIndex
	znodeFilter   *znodeFilter

	minUnprocessedInsertTime int64
	maxProcessedInsertTime   int64
	lastQueueUpdate          int64

	// pullMu (outer, independent): held across one whole log-pull cycle
	// (spec §5) so two pullers never interleave coordinator transactions.
	pullMu sync.Mutex

	// absoluteMergeCeiling is max_bytes_to_merge_at_max_space_in_pool
	// (spec §6), supplied at construction from storage settings.
	absoluteMergeCeiling uint64
}

// New constructs an empty queue bound to the given coordinator paths.
// absoluteMergeCeiling is the storage-settings ceiling spec §4.3's merge
// size check exempts from the postpone rule.
func New(zkPath, replicaPath string, absoluteMergeCeiling uint64) *ReplicatedQueue {
	return &ReplicatedQueue{
		zkPath:               zkPath,
		replicaPath:          replicaPath,
		queueList:            list.New(),
		byZnode:              make(map[string]*list.Element),
		virtualParts:         parts.NewActivePartSet(),
		futureParts:          make(map[string]struct{}),
		insertsByTime:        newInsertsByTimeIndex(),
		znodeFilter:          newZnodeFilter(),
		absoluteMergeCeiling: absoluteMergeCeiling,
	}
}

// Initialize seeds virtual_parts from the currently-present on-disk
// parts, then loads the persisted queue (spec §4.3 initialize).
func (q *ReplicatedQueue) Initialize(ctx context.Context, cd coord.Coordinator, presentParts []string) error {
	q.mu.Lock()
	for _, p := range presentParts {
		if err := q.virtualParts.Add(p); err != nil {
			q.mu.Unlock()
			return fmt.Errorf("queue: seeding virtual parts: %w", err)
		}
	}
	q.mu.Unlock()
	return q.Load(ctx, cd)
}

// Load reads every child of /replica/queue, fetches payloads
// concurrently, and inserts them in coordinator-assigned order
// (spec §4.3 load).
func (q *ReplicatedQueue) Load(ctx context.Context, cd coord.Coordinator) error {
	children, err := cd.GetChildren(ctx, coord.QueuePath(q.replicaPath))
	if err != nil {
		return fmt.Errorf("queue: listing %s: %w", coord.QueuePath(q.replicaPath), err)
	}
	sort.Strings(children)

	type fetched struct {
		znode string
		res   coord.GetResult
		err   error
	}
	futures := make([]coord.Future, len(children))
	for i, child := range children {
		futures[i] = cd.AsyncGet(ctx, coord.QueuePath(q.replicaPath)+"/"+child)
	}
	results := make([]fetched, len(children))
	for i, f := range futures {
		res, ferr := f.Await(ctx)
		results[i] = fetched{znode: children[i], res: res, err: ferr}
	}

	q.mu.Lock()
	for _, r := range results {
		if r.err != nil {
			q.mu.Unlock()
			return fmt.Errorf("queue: fetching queue entry %s: %w", r.znode, r.err)
		}
		if !r.res.Exists {
			continue // removed between listing and fetch; benign
		}
		entry, perr := logentry.Parse(r.res.Value)
		if perr != nil {
			q.mu.Unlock()
			nlog.Fatalln("queue: fatal parse error loading", r.znode, perr)
			return perr // unreachable: Fatalln exits the process
		}
		entry.ZnodeName = r.znode
		q.insertUnlocked(entry)
	}
	q.mu.Unlock()

	q.updateTimesInZooKeeper(ctx, cd, true, false)
	return nil
}

// insertUnlocked assumes q.mu is held. It is idempotent against
// double-insertion by znode_name (spec §4.3 insert).
func (q *ReplicatedQueue) insertUnlocked(entry *logentry.LogEntry) {
	if entry.ZnodeName != "" {
		if q.znodeFilter.MightContain(entry.ZnodeName) {
			if _, exists := q.byZnode[entry.ZnodeName]; exists {
				return
			}
		}
	}

	if err := q.virtualParts.Add(entry.NewPartName); err != nil {
		nlog.Errorf("queue: %s has malformed new_part_name %q: %v", entry.ZnodeName, entry.NewPartName, err)
	}
	entry.BindCond(&q.mu)
	elem := q.queueList.PushBack(entry)
	if entry.ZnodeName != "" {
		q.byZnode[entry.ZnodeName] = elem
		q.znodeFilter.Add(entry.ZnodeName)
	}

	if entry.Type == logentry.GetPart && entry.CreateTime != 0 {
		q.insertsByTime.Insert(entry)
		if q.minUnprocessedInsertTime == 0 || entry.CreateTime < q.minUnprocessedInsertTime {
			q.minUnprocessedInsertTime = entry.CreateTime
		}
	}
}

// Insert appends an already-coordinator-created entry to the local
// queue (spec §4.3 insert) — used when this replica authored the entry.
func (q *ReplicatedQueue) Insert(ctx context.Context, cd coord.Coordinator, entry *logentry.LogEntry) {
	q.mu.Lock()
	prevMin := q.minUnprocessedInsertTime
	q.insertUnlocked(entry)
	changed := q.minUnprocessedInsertTime != prevMin
	q.mu.Unlock()

	if changed {
		q.updateTimesInZooKeeper(ctx, cd, true, false)
	}
}

// updateTimesOnRemovalLocked assumes q.mu is held.
func (q *ReplicatedQueue) updateTimesOnRemovalLocked(entry *logentry.LogEntry) (minChanged, maxChanged bool) {
	if entry.Type != logentry.GetPart {
		return false, false
	}
	q.insertsByTime.Delete(entry)

	if q.insertsByTime.Empty() {
		if q.minUnprocessedInsertTime != 0 {
			q.minUnprocessedInsertTime = 0
			minChanged = true
		}
	} else if min := q.insertsByTime.Min(); min.CreateTime > q.minUnprocessedInsertTime {
		q.minUnprocessedInsertTime = min.CreateTime
		minChanged = true
	}

	if entry.CreateTime > q.maxProcessedInsertTime {
		q.maxProcessedInsertTime = entry.CreateTime
		maxChanged = true
	}
	return minChanged, maxChanged
}

// updateTimesInZooKeeper mirrors changed watermarks to the coordinator
// (spec §3 watermarks). Failures are logged and tolerated (spec §7):
// the race between concurrent removers/pullers is acknowledged as
// unimportant over a bounded time window.
func (q *ReplicatedQueue) updateTimesInZooKeeper(ctx context.Context, cd coord.Coordinator, minChanged, maxChanged bool) {
	var ops []coord.Op
	if minChanged {
		q.mu.Lock()
		v := q.minUnprocessedInsertTime
		q.mu.Unlock()
		ops = append(ops, coord.SetDataOp{
			Path: coord.MinUnprocessedInsertTimePath(q.replicaPath), Data: []byte(cos.FormatUnixSeconds(v)), Version: -1,
		})
	}
	if maxChanged {
		q.mu.Lock()
		v := q.maxProcessedInsertTime
		q.mu.Unlock()
		ops = append(ops, coord.SetDataOp{
			Path: coord.MaxProcessedInsertTimePath(q.replicaPath), Data: []byte(cos.FormatUnixSeconds(v)), Version: -1,
		})
	}
	if len(ops) == 0 {
		return
	}
	if _, err := cd.Multi(ctx, ops); err != nil {
		nlog.Errorf("queue: couldn't set insert-time watermark nodes under %s: %v (shouldn't happen often)", q.replicaPath, err)
	}
}

// Remove removes both the coordinator child and the in-memory entry
// (spec §4.3 remove(entry)). Called only by the executor on success.
func (q *ReplicatedQueue) Remove(ctx context.Context, cd coord.Coordinator, entry *logentry.LogEntry) {
	if err := cd.TryRemove(ctx, coord.QueuePath(q.replicaPath)+"/"+entry.ZnodeName); err != nil {
		nlog.Errorf("queue: couldn't remove %s/%s: %v (shouldn't happen often)", q.replicaPath, entry.ZnodeName, err)
	}

	q.mu.Lock()
	minChanged, maxChanged := false, false
	if elem, ok := q.byZnode[entry.ZnodeName]; ok {
		q.queueList.Remove(elem)
		delete(q.byZnode, entry.ZnodeName)
		q.znodeFilter.Remove(entry.ZnodeName)
		minChanged, maxChanged = q.updateTimesOnRemovalLocked(entry)
	}
	q.mu.Unlock()

	q.updateTimesInZooKeeper(ctx, cd, minChanged, maxChanged)
}

// RemoveByPartName finds the queue entry producing partName (scanning
// from the head) and removes it if present (spec §4.3 remove(part_name)).
func (q *ReplicatedQueue) RemoveByPartName(ctx context.Context, cd coord.Coordinator, partName string) bool {
	q.mu.Lock()
	var found *logentry.LogEntry
	var foundElem *list.Element
	minChanged, maxChanged := false, false
	for e := q.queueList.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*logentry.LogEntry)
		if entry.NewPartName == partName {
			found = entry
			foundElem = e
			break
		}
	}
	if found != nil {
		q.queueList.Remove(foundElem)
		delete(q.byZnode, found.ZnodeName)
		q.znodeFilter.Remove(found.ZnodeName)
		minChanged, maxChanged = q.updateTimesOnRemovalLocked(found)
	}
	q.mu.Unlock()

	if found == nil {
		return false
	}
	if err := cd.TryRemove(ctx, coord.QueuePath(q.replicaPath)+"/"+found.ZnodeName); err != nil {
		nlog.Errorf("queue: couldn't remove %s/%s: %v", q.replicaPath, found.ZnodeName, err)
	}
	q.updateTimesInZooKeeper(ctx, cd, minChanged, maxChanged)
	return true
}

// DisableMergesInRange inserts part_name into virtual parts without a
// corresponding queue entry (spec §4.3), so scheduler queries treat the
// range as already covered after a DROP_RANGE.
func (q *ReplicatedQueue) DisableMergesInRange(partName string) error {
	return q.virtualParts.Add(partName)
}

// PartWillBeMergedOrMergesDisabled reports whether the virtual set
// already covers partName under a different name.
func (q *ReplicatedQueue) PartWillBeMergedOrMergesDisabled(partName string) bool {
	return q.virtualParts.GetContainingPart(partName) != partName
}

