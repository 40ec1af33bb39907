package parts

import (
	"sort"
	"sync"

	"github.com/OneOfOne/xxhash"
)

// ActivePartSet is a canonical, non-overlapping set of part names:
// adding a part erases any existing member it contains. It backs both
// the concrete on-disk part set and the "virtual" present-or-planned
// set (spec §3, §4.1).
//
// Members are bucketed by a hash of the partition id (xxhash, the
// teacher's own choice of hash for sharded lookups) so that add/
// getContainingPart pay for a linear scan of one partition's members,
// not the whole set.
type ActivePartSet struct {
	mu      sync.RWMutex
	buckets map[uint64][]Name // each bucket kept sorted by Min, non-overlapping
}

func NewActivePartSet() *ActivePartSet {
	return &ActivePartSet{buckets: make(map[uint64][]Name)}
}

func bucketKey(partition string) uint64 {
	return xxhash.ChecksumString64(partition)
}

// Add inserts name, erasing any existing member name contains. If an
// existing member already contains name, Add is a no-op (spec §4.1).
func (s *ActivePartSet) Add(name string) error {
	n, err := Parse(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(n)
	return nil
}

func (s *ActivePartSet) addLocked(n Name) {
	key := bucketKey(n.Partition)
	bucket := s.buckets[key]

	for _, m := range bucket {
		if m.Contains(n) {
			return
		}
	}

	kept := bucket[:0:0]
	for _, m := range bucket {
		if !n.Contains(m) {
			kept = append(kept, m)
		}
	}
	kept = append(kept, n)
	sort.Slice(kept, func(i, j int) bool { return kept[i].Min < kept[j].Min })
	s.buckets[key] = kept
}

// GetContainingPart returns the member that contains name, or name
// itself, unchanged, if no member does (or if name does not parse).
func (s *ActivePartSet) GetContainingPart(name string) string {
	n, err := Parse(name)
	if err != nil {
		return name
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.buckets[bucketKey(n.Partition)]
	for _, m := range bucket {
		if m.Contains(n) {
			return m.String()
		}
	}
	return name
}

// Len returns the number of members across all partitions.
func (s *ActivePartSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lenLocked()
}

func (s *ActivePartSet) lenLocked() int {
	n := 0
	for _, b := range s.buckets {
		n += len(b)
	}
	return n
}

// Snapshot returns every member's canonical string, for status/debug
// output; the order is unspecified across partitions.
func (s *ActivePartSet) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, s.lenLocked())
	for _, b := range s.buckets {
		for _, m := range b {
			out = append(out, m.String())
		}
	}
	return out
}
