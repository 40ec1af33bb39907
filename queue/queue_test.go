package queue

import (
	"context"
	"testing"

	"github.com/coldb/coldb/coord"
	"github.com/coldb/coldb/logentry"
)

func mkEntry(typ logentry.Type, newPart string, createTime int64, parts ...string) *logentry.LogEntry {
	return &logentry.LogEntry{
		Type:         typ,
		NewPartName:  newPart,
		CreateTime:   createTime,
		PartsToMerge: parts,
	}
}

func TestColdLoadRestoresQueueAndWatermarks(t *testing.T) {
	ctx := context.Background()
	cd := coord.NewFake()
	replica := "/replicas/r1"

	for i, e := range []*logentry.LogEntry{
		mkEntry(logentry.GetPart, "p_0_0_0", 10),
		mkEntry(logentry.GetPart, "p_1_1_0", 20),
	} {
		_, err := cd.Create(ctx, coord.QueueEntryPathPrefix(replica), logentry.Serialize(e), coord.PersistentSequential)
		if err != nil {
			t.Fatalf("seed entry %d: %v", i, err)
		}
	}

	q := New("/shard", replica, 0)
	if err := q.Initialize(ctx, cd, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	st := q.GetStatus()
	if st.QueueSize != 2 {
		t.Fatalf("expected queue size 2, got %d", st.QueueSize)
	}
	if st.MinUnprocessedInsertTime != 10 {
		t.Fatalf("expected min_unprocessed_insert_time 10, got %d", st.MinUnprocessedInsertTime)
	}
}

func TestInsertThenRemoveUpdatesWatermarks(t *testing.T) {
	ctx := context.Background()
	cd := coord.NewFake()
	replica := "/replicas/r1"
	q := New("/shard", replica, 0)

	e1 := mkEntry(logentry.GetPart, "p_0_0_0", 5)
	path, err := cd.Create(ctx, coord.QueueEntryPathPrefix(replica), logentry.Serialize(e1), coord.PersistentSequential)
	if err != nil {
		t.Fatal(err)
	}
	e1.ZnodeName = znodeNameFromPath(path)
	q.Insert(ctx, cd, e1)

	e2 := mkEntry(logentry.GetPart, "p_1_1_0", 2)
	path2, err := cd.Create(ctx, coord.QueueEntryPathPrefix(replica), logentry.Serialize(e2), coord.PersistentSequential)
	if err != nil {
		t.Fatal(err)
	}
	e2.ZnodeName = znodeNameFromPath(path2)
	q.Insert(ctx, cd, e2)

	if q.minUnprocessedInsertTime != 2 {
		t.Fatalf("expected watermark 2 after both inserts, got %d", q.minUnprocessedInsertTime)
	}

	q.Remove(ctx, cd, e2)
	if q.minUnprocessedInsertTime != 5 {
		t.Fatalf("expected watermark to advance to 5 after removing the older entry, got %d", q.minUnprocessedInsertTime)
	}
	if q.maxProcessedInsertTime != 2 {
		t.Fatalf("expected max_processed_insert_time 2, got %d", q.maxProcessedInsertTime)
	}
}

func TestCreateTimeZeroDoesNotLowerWatermark(t *testing.T) {
	ctx := context.Background()
	cd := coord.NewFake()
	q := New("/shard", "/replicas/r1", 0)

	e1 := mkEntry(logentry.GetPart, "p_0_0_0", 7)
	q.Insert(ctx, cd, e1)
	e2 := mkEntry(logentry.GetPart, "p_1_1_0", 0) // synthetic/legacy entry, no create_time
	q.Insert(ctx, cd, e2)

	if q.minUnprocessedInsertTime != 7 {
		t.Fatalf("create_time=0 entry must not lower the watermark, got %d", q.minUnprocessedInsertTime)
	}
}

func TestSelectEntryToProcessSkipsConflictingFuturePart(t *testing.T) {
	ctx := context.Background()
	cd := coord.NewFake()
	q := New("/shard", "/replicas/r1", 0)

	e1 := mkEntry(logentry.GetPart, "p_0_10_0", 1)
	q.Insert(ctx, cd, e1)
	e2 := mkEntry(logentry.GetPart, "p_0_10_0", 2) // same target part, different entry
	q.Insert(ctx, cd, e2)

	g1 := q.SelectEntryToProcess(nil, nil)
	if g1 == nil {
		t.Fatal("expected first entry to be selectable")
	}
	defer g1.Release()

	g2 := q.SelectEntryToProcess(nil, nil)
	if g2 != nil {
		t.Fatal("expected second entry producing the same part to be postponed while the first is executing")
	}
}

func TestDisableMergesInRangeAndContainment(t *testing.T) {
	q := New("/shard", "/replicas/r1", 0)
	if err := q.DisableMergesInRange("p_0_100_5"); err != nil {
		t.Fatal(err)
	}
	if !q.PartWillBeMergedOrMergesDisabled("p_0_10_0") {
		t.Fatal("expected p_0_10_0 to be covered by the disabled range p_0_100_5")
	}
	if q.PartWillBeMergedOrMergesDisabled("q_1_10_0") {
		t.Fatal("a different partition must not be considered covered")
	}
}

// TestSiblingReordering reproduces the end-to-end scenario: a MERGE
// entry covering p1..p3 is selected while GET entries for p1, p2, p3,
// and an unrelated p4 sit behind it; selecting the merge must push the
// sibling GETs behind it, leaving p4 ahead of them.
func TestSiblingReordering(t *testing.T) {
	ctx := context.Background()
	cd := coord.NewFake()
	q := New("/shard", "/replicas/r1", 0)

	merge := mkEntry(logentry.MergeParts, "p_0_30_1", 1, "p_0_10_0", "p_0_20_0", "p_0_30_0")
	getP4 := mkEntry(logentry.GetPart, "q_1_1_0", 2)
	getP1 := mkEntry(logentry.GetPart, "p_0_10_0", 3)
	getP2 := mkEntry(logentry.GetPart, "p_0_20_0", 4)
	getP3 := mkEntry(logentry.GetPart, "p_0_30_0", 5)

	for _, e := range []*logentry.LogEntry{merge, getP4, getP1, getP2, getP3} {
		q.Insert(ctx, cd, e)
	}

	g := q.SelectEntryToProcess(nil, nil)
	if g == nil {
		t.Fatal("expected the merge to be selectable (no conflicting future parts yet)")
	}
	defer g.Release()
	if g.Entry() != merge {
		t.Fatalf("expected merge entry to be selected first, got %v", g.Entry().NewPartName)
	}

	var order []string
	q.mu.Lock()
	for e := q.queueList.Front(); e != nil; e = e.Next() {
		order = append(order, e.Value.(*logentry.LogEntry).NewPartName)
	}
	q.mu.Unlock()

	want := []string{"p_0_30_1", "q_1_1_0", "p_0_10_0", "p_0_20_0", "p_0_30_0"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

// TestMoveSiblingPartsForMergeToEndOfQueue reproduces scenario 5: a
// fetch for p2 is known to have failed (p2 is "missing"), and a queued
// merge of p1..p3 is sitting behind two sibling GETs for p1 and p3;
// the call must push both siblings behind the merge and report the
// merge's full input set.
func TestMoveSiblingPartsForMergeToEndOfQueue(t *testing.T) {
	ctx := context.Background()
	cd := coord.NewFake()
	q := New("/shard", "/replicas/r1", 0)

	getP1 := mkEntry(logentry.GetPart, "p_0_10_0", 1)
	getP3 := mkEntry(logentry.GetPart, "p_0_30_0", 2)
	merge := mkEntry(logentry.MergeParts, "p_0_30_1", 3, "p_0_10_0", "p_0_20_0", "p_0_30_0")
	unrelated := mkEntry(logentry.GetPart, "p_1_1_0", 4)

	for _, e := range []*logentry.LogEntry{getP1, getP3, merge, unrelated} {
		q.Insert(ctx, cd, e)
	}

	got := q.MoveSiblingPartsForMergeToEndOfQueue("p_0_20_0")
	want := map[string]struct{}{"p_0_10_0": {}, "p_0_20_0": {}, "p_0_30_0": {}}
	if len(got) != len(want) {
		t.Fatalf("expected input set %v, got %v", want, got)
	}
	for p := range want {
		if _, ok := got[p]; !ok {
			t.Fatalf("expected input set %v, got %v", want, got)
		}
	}

	var order []string
	q.mu.Lock()
	for e := q.queueList.Front(); e != nil; e = e.Next() {
		order = append(order, e.Value.(*logentry.LogEntry).NewPartName)
	}
	q.mu.Unlock()

	wantOrder := []string{"p_0_30_1", "p_1_1_0", "p_0_10_0", "p_0_30_0"}
	if len(order) != len(wantOrder) {
		t.Fatalf("expected order %v, got %v", wantOrder, order)
	}
	for i := range wantOrder {
		if order[i] != wantOrder[i] {
			t.Fatalf("expected order %v, got %v", wantOrder, order)
		}
	}
}

func TestMoveSiblingPartsForMergeToEndOfQueueNoMatchingMerge(t *testing.T) {
	ctx := context.Background()
	cd := coord.NewFake()
	q := New("/shard", "/replicas/r1", 0)
	q.Insert(ctx, cd, mkEntry(logentry.GetPart, "p_0_10_0", 1))

	if got := q.MoveSiblingPartsForMergeToEndOfQueue("p_0_20_0"); got != nil {
		t.Fatalf("expected nil when no queued merge consumes the part, got %v", got)
	}
}

func TestRemoveGetsAndMergesInRangeDrainsAndWaits(t *testing.T) {
	ctx := context.Background()
	cd := coord.NewFake()
	q := New("/shard", "/replicas/r1", 0)

	executing := mkEntry(logentry.GetPart, "p_0_15_0", 2)
	q.Insert(ctx, cd, executing)
	g := q.SelectEntryToProcess(nil, nil)
	if g == nil || g.Entry() != executing {
		t.Fatal("expected the executing entry to be selected")
	}

	queued := mkEntry(logentry.GetPart, "p_0_5_0", 1)
	q.Insert(ctx, cd, queued)

	done := make(chan struct{})
	go func() {
		q.RemoveGetsAndMergesInRange(ctx, cd, "p_0_100_5")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("RemoveGetsAndMergesInRange should block until the executing entry finishes")
	default:
	}

	g.Release()
	<-done

	st := q.GetStatus()
	if st.QueueSize != 0 {
		t.Fatalf("expected both entries drained, got queue size %d", st.QueueSize)
	}
}
