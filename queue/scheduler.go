package queue

import (
	"container/list"
	"context"
	"fmt"

	"github.com/coldb/coldb/cmn/cos"
	"github.com/coldb/coldb/cmn/nlog"
	"github.com/coldb/coldb/coord"
	"github.com/coldb/coldb/logentry"
	"github.com/coldb/coldb/parts"
)

// ShouldExecuteLogEntry decides whether entry is safe to run right now
// (spec §4.4 shouldExecuteLogEntry). Assumes q.mu is held.
func (q *ReplicatedQueue) ShouldExecuteLogEntry(entry *logentry.LogEntry, merger Merger, storage Storage) (ok bool, postponeReason string) {
	switch entry.Type {
	case logentry.GetPart, logentry.AttachPart, logentry.MergeParts:
		// entry itself is tagged into futureParts only after this check
		// passes (see newCurrentlyExecuting), so every name seen here
		// belongs to some other, already-selected entry.
		for future := range q.futureParts {
			if future == entry.NewPartName || parts.Contains(future, entry.NewPartName) || parts.Contains(entry.NewPartName, future) {
				return false, fmt.Sprintf("part %s conflicts with already-scheduled part %s", entry.NewPartName, future)
			}
		}
	case logentry.DropRange, logentry.ClearColumn:
		// Always selectable; draining in-flight conflicts is
		// RemoveGetsAndMergesInRange's job, run before the entry is
		// inserted, not a reason to postpone it here.
	}

	if entry.Type == logentry.MergeParts {
		for _, src := range entry.PartsToMerge {
			if _, executing := q.futureParts[src]; executing {
				return false, fmt.Sprintf("source part %s is itself being produced", src)
			}
		}
		if merger != nil && merger.IsCancelled() {
			return false, "shutting down"
		}
		if merger != nil && storage != nil {
			maxSize := merger.MaxPartsSizeForMerge()
			if q.absoluteMergeCeiling == 0 || maxSize < q.absoluteMergeCeiling {
				var total uint64
				for _, src := range entry.PartsToMerge {
					if h, ok := storage.GetPartIfExists(src); ok {
						total += h.SizeInBytes
					} else {
						return false, fmt.Sprintf("source part %s not yet present", src)
					}
				}
				if total > maxSize {
					return false, fmt.Sprintf("merge of %d bytes exceeds current merge size limit %d", total, maxSize)
				}
			}
		}
	}

	return true, ""
}

// SelectEntryToProcess scans the queue front-to-back for the first
// entry that is neither already executing nor postponed, tags it, and
// returns a guard the caller must Release (spec §4.4
// selectQueueEntryToProcess). A nil guard means nothing is runnable
// right now.
func (q *ReplicatedQueue) SelectEntryToProcess(merger Merger, storage Storage) *CurrentlyExecuting {
	q.mu.Lock()
	defer q.mu.Unlock()

	for e := q.queueList.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*logentry.LogEntry)
		if entry.CurrentlyExecuting() {
			continue
		}
		ok, reason := q.ShouldExecuteLogEntry(entry, merger, storage)
		if !ok {
			entry.IncPostponed()
			entry.SetLastPostponeTime(cos.NowUnix())
			entry.SetPostponeReason(reason)
			continue
		}
		guard := newCurrentlyExecuting(entry, q)
		if entry.Type == logentry.MergeParts {
			q.moveSiblingPartsForMergeToEndOfQueueLocked(entry)
		}
		return guard
	}
	return nil
}

// moveSiblingPartsForMergeToEndOfQueueLocked moves every queue entry
// whose produced part overlaps one of entry's source parts to the back
// of the queue, after entry itself (spec §4.5 "sibling reordering"):
// once a merge has been selected, entries that would otherwise race it
// for the same source parts are pushed behind it so the next scheduler
// pass doesn't immediately re-collide with the in-flight merge. Assumes
// q.mu is held.
func (q *ReplicatedQueue) moveSiblingPartsForMergeToEndOfQueueLocked(entry *logentry.LogEntry) {
	if elem, ok := q.byZnode[entry.ZnodeName]; ok {
		q.queueList.MoveToBack(elem)
	}

	var siblings []*list.Element
	for cur := q.queueList.Front(); cur != nil; cur = cur.Next() {
		other := cur.Value.(*logentry.LogEntry)
		if other != entry {
			for _, src := range entry.PartsToMerge {
				if other.NewPartName == src || parts.Contains(src, other.NewPartName) {
					siblings = append(siblings, cur)
					break
				}
			}
		}
	}
	for _, s := range siblings {
		q.queueList.MoveToBack(s)
	}
}

// MoveSiblingPartsForMergeToEndOfQueue is the externally-triggered
// counterpart of the selection-time reordering above (spec §4.3
// moveSiblingPartsForMergeToEndOfQueue): called when partName is
// discovered missing (e.g. a fetch attempt fails), it finds the first
// queued MERGE_PARTS entry that consumes partName and pushes every
// other still-pending GET_PART/MERGE_PARTS entry producing one of that
// merge's input parts to the back of the queue — so a sibling
// acquisition for a part the merge already needs doesn't keep racing
// ahead of a merge that can't proceed yet. Only entries ahead of the
// merge itself are moved; the merge entry's own position is untouched.
// Returns the merge's full input-part set, or nil if no queued merge
// consumes partName.
func (q *ReplicatedQueue) MoveSiblingPartsForMergeToEndOfQueue(partName string) map[string]struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	var mergeElem *list.Element
	var partsForMerge map[string]struct{}
	for e := q.queueList.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*logentry.LogEntry)
		if entry.Type != logentry.MergeParts {
			continue
		}
		for _, src := range entry.PartsToMerge {
			if src == partName {
				mergeElem = e
				partsForMerge = make(map[string]struct{}, len(entry.PartsToMerge))
				for _, p := range entry.PartsToMerge {
					partsForMerge[p] = struct{}{}
				}
				break
			}
		}
		if mergeElem != nil {
			break
		}
	}
	if mergeElem == nil {
		return nil
	}

	for cur := q.queueList.Front(); cur != nil && cur != mergeElem; {
		next := cur.Next()
		entry := cur.Value.(*logentry.LogEntry)
		if entry.Type == logentry.MergeParts || entry.Type == logentry.GetPart {
			if _, ok := partsForMerge[entry.NewPartName]; ok {
				q.queueList.MoveToBack(cur)
			}
		}
		cur = next
	}
	return partsForMerge
}

// RemoveGetsAndMergesInRange forcibly evicts every queued GET_PART/
// MERGE_PARTS/ATTACH_PART entry whose produced part falls inside
// partName — including ones already executing — then waits for any
// that were executing to actually finish (spec §4.3
// removeGetsAndMergesInRange, §4.5 "may forcibly evict Enqueued entries
// and drain Executing ones", called before a DROP_RANGE is inserted).
// Eviction from RAM and the coordinator is unconditional: an executing
// entry's worker running to completion or failure afterward has no
// bearing on whether the entry is gone, matching the original, which
// calls tryRemove/queue.erase for every covered entry and only
// afterward waits on execution_complete.
//
// The original holds its single queue mutex across the whole operation,
// including the coordinator tryRemove calls. Spec §5 forbids issuing a
// coordinator call while holding this package's mutex except for
// watermark updates, so this is a deliberate three-phase deviation:
// collect and remove the doomed entries from RAM under the lock, issue
// their coordinator tryRemove calls with the lock released, then
// re-acquire the lock once more to wait out anything that was
// executing. Documented as an intentional divergence in DESIGN.md.
func (q *ReplicatedQueue) RemoveGetsAndMergesInRange(ctx context.Context, cd coord.Coordinator, partName string) {
	q.mu.Lock()
	var toRemove []*logentry.LogEntry
	var toWait []*logentry.LogEntry
	minChanged, maxChanged := false, false
	for cur := q.queueList.Front(); cur != nil; {
		next := cur.Next()
		entry := cur.Value.(*logentry.LogEntry)
		switch entry.Type {
		case logentry.GetPart, logentry.MergeParts, logentry.AttachPart:
		default:
			cur = next
			continue
		}
		if !parts.Contains(partName, entry.NewPartName) {
			cur = next
			continue
		}

		if entry.CurrentlyExecuting() {
			toWait = append(toWait, entry)
		}
		toRemove = append(toRemove, entry)
		q.queueList.Remove(cur)
		delete(q.byZnode, entry.ZnodeName)
		q.znodeFilter.Remove(entry.ZnodeName)
		mc, xc := q.updateTimesOnRemovalLocked(entry)
		minChanged = minChanged || mc
		maxChanged = maxChanged || xc
		cur = next
	}
	q.mu.Unlock()

	for _, entry := range toRemove {
		if err := cd.TryRemove(ctx, coord.QueuePath(q.replicaPath)+"/"+entry.ZnodeName); err != nil {
			nlog.Errorf("queue: couldn't remove %s/%s ahead of DROP_RANGE: %v", q.replicaPath, entry.ZnodeName, err)
		}
	}

	if len(toWait) > 0 {
		q.mu.Lock()
		for _, entry := range toWait {
			entry.WaitExecutionComplete()
		}
		q.mu.Unlock()
	}

	q.updateTimesInZooKeeper(ctx, cd, minChanged, maxChanged)
}
