package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/coldb/coldb/cmn/nlog"
	"github.com/coldb/coldb/coord"
	"github.com/coldb/coldb/logentry"
)

// PullLogsToQueue copies every /log entry this replica hasn't yet seen
// into its own /replica/queue, advancing log_pointer in the same
// coordinator transaction as the queue-entry creations (spec §4.3
// pullLogsToQueue). pullMu serializes whole pull cycles; it is
// independent of mu, which is only ever held for the bounded in-memory
// bookkeeping at the end of each batch (spec §5).
func (q *ReplicatedQueue) PullLogsToQueue(ctx context.Context, cd coord.Coordinator) error {
	q.pullMu.Lock()
	defer q.pullMu.Unlock()

	pointer, err := readLogPointer(ctx, cd, q.replicaPath)
	if err != nil {
		return fmt.Errorf("queue: reading log_pointer: %w", err)
	}

	children, err := cd.GetChildren(ctx, coord.LogPath(q.zkPath))
	if err != nil {
		return fmt.Errorf("queue: listing %s: %w", coord.LogPath(q.zkPath), err)
	}
	sort.Strings(children)

	var pending []string
	for _, c := range children {
		if !coord.IsLogEntryName(c) {
			continue
		}
		idx, perr := coord.ParseLogIndex(c)
		if perr != nil {
			continue
		}
		if idx < pointer {
			continue
		}
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		return nil
	}

	// MaxMultiOps bounds the number of /log children pulled per
	// transaction (spec §6 "batches of at most MAX_MULTI_OPS children");
	// the log_pointer advance rides along as one additional op in the
	// same transaction, not a child sharing that budget (spec §8: 100
	// pending entries is one batch, 101 is two, the second holding one).
	for start := 0; start < len(pending); start += MaxMultiOps {
		end := start + MaxMultiOps
		if end > len(pending) {
			end = len(pending)
		}
		if err := q.pullBatch(ctx, cd, pending[start:end], &pointer); err != nil {
			return err
		}
	}
	return nil
}

func readLogPointer(ctx context.Context, cd coord.Coordinator, replicaPath string) (uint64, error) {
	res, err := cd.Get(ctx, coord.LogPointerPath(replicaPath))
	if err != nil {
		return 0, err
	}
	if !res.Exists || len(res.Value) == 0 {
		return 0, nil
	}
	var idx uint64
	_, err = fmt.Sscanf(strings.TrimSpace(string(res.Value)), "%d", &idx)
	return idx, err
}

// pullBatch fetches, inserts, and commits one bounded batch of log
// entries as a single coordinator transaction.
func (q *ReplicatedQueue) pullBatch(ctx context.Context, cd coord.Coordinator, batch []string, pointer *uint64) error {
	futures := make([]coord.Future, len(batch))
	for i, name := range batch {
		futures[i] = cd.AsyncGet(ctx, coord.LogPath(q.zkPath)+"/"+name)
	}

	entries := make([]*logentry.LogEntry, 0, len(batch))
	nextIdx := *pointer
	ops := make([]coord.Op, 0, len(batch)+1)
	for i, name := range batch {
		res, err := futures[i].Await(ctx)
		if err != nil {
			return fmt.Errorf("queue: fetching log entry %s: %w", name, err)
		}
		idx, _ := coord.ParseLogIndex(name)
		if idx+1 > nextIdx {
			nextIdx = idx + 1
		}
		if !res.Exists {
			nlog.Warningf("queue: %s vanished between listing and fetch (benign)", name)
			continue
		}
		entry, perr := logentry.Parse(res.Value)
		if perr != nil {
			nlog.Fatalln("queue: fatal parse error pulling", name, perr)
			return perr
		}
		entries = append(entries, entry)
		ops = append(ops, coord.CreateOp{
			Path: coord.QueueEntryPathPrefix(q.replicaPath),
			Data: res.Value,
			Mode: coord.PersistentSequential,
		})
	}
	ops = append(ops, coord.SetDataOp{
		Path:    coord.LogPointerPath(q.replicaPath),
		Data:    []byte(fmt.Sprintf("%d", nextIdx)),
		Version: -1,
	})

	results, err := cd.Multi(ctx, ops)
	if err != nil {
		return fmt.Errorf("queue: pulling log entries into %s: %w", q.replicaPath, err)
	}

	q.mu.Lock()
	prevMin := q.minUnprocessedInsertTime
	for i, entry := range entries {
		if results[i].Err != nil {
			nlog.Errorf("queue: create for %s failed mid-batch: %v (bug)", entry.NewPartName, results[i].Err)
			continue
		}
		entry.ZnodeName = znodeNameFromPath(results[i].CreatedPath)
		q.insertUnlocked(entry)
	}
	changed := q.minUnprocessedInsertTime != prevMin
	q.mu.Unlock()

	*pointer = nextIdx
	q.updateTimesInZooKeeper(ctx, cd, changed, false)
	return nil
}

func znodeNameFromPath(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
