package queue

import (
	"github.com/tidwall/btree"

	"github.com/coldb/coldb/logentry"
)

// insertsByTimeIndex orders GET_PART entries with a non-zero create_time
// by (create_time, znode_name)
// — ties broken by znode_name (spec §3) — so that recomputing
// min_unprocessed_insert_time after a removal is O(log n), not O(n).
// Backed by tidwall/btree (already pulled in transitively by buntdb;
// promoted here to a direct, exercised dependency).
type insertsByTimeIndex struct {
	tr *btree.BTree
}

func newInsertsByTimeIndex() *insertsByTimeIndex {
	less := func(a, b any) bool {
		ea, eb := a.(*logentry.LogEntry), b.(*logentry.LogEntry)
		if ea.CreateTime != eb.CreateTime {
			return ea.CreateTime < eb.CreateTime
		}
		return ea.ZnodeName < eb.ZnodeName
	}
	return &insertsByTimeIndex{tr: btree.New(less)}
}

func (idx *insertsByTimeIndex) Insert(e *logentry.LogEntry) {
	idx.tr.Set(e)
}

func (idx *insertsByTimeIndex) Delete(e *logentry.LogEntry) {
	idx.tr.Delete(e)
}

func (idx *insertsByTimeIndex) Empty() bool {
	return idx.tr.Len() == 0
}

// Min returns the entry with the smallest (create_time, znode_name), or
// nil if the index is empty.
func (idx *insertsByTimeIndex) Min() *logentry.LogEntry {
	v := idx.tr.Min()
	if v == nil {
		return nil
	}
	return v.(*logentry.LogEntry)
}
