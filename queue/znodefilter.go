package queue

import (
	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// znodeFilter is a probabilistic pre-check for "have we already inserted
// this znode_name" (spec §4.3 insert's idempotence requirement). It can
// only produce false positives, never false negatives, so the exact
// byZnode map lookup in insertUnlocked always has the final word —
// the filter only ever saves a map probe on the common "definitely new"
// path.
type znodeFilter struct {
	f *cuckoo.Filter
}

func newZnodeFilter() *znodeFilter {
	return &znodeFilter{f: cuckoo.NewFilter(1 << 16)}
}

func (z *znodeFilter) MightContain(znode string) bool {
	return z.f.Lookup([]byte(znode))
}

func (z *znodeFilter) Add(znode string) {
	z.f.InsertUnique([]byte(znode))
}

func (z *znodeFilter) Remove(znode string) {
	z.f.Delete([]byte(znode))
}
