package coord

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Fake is an in-memory Coordinator used by tests in place of a live
// ZooKeeper ensemble. It honors the same version semantics and
// sequential-naming scheme (10-digit zero-padded suffixes) as Client.
type Fake struct {
	mu       sync.Mutex
	nodes    map[string]*fakeNode
	watchers map[string][]chan struct{}
	seq      map[string]int64 // next sequence number per parent path
}

type fakeNode struct {
	value   []byte
	version int32
}

func NewFake() *Fake {
	return &Fake{
		nodes:    make(map[string]*fakeNode),
		watchers: make(map[string][]chan struct{}),
		seq:      make(map[string]int64),
	}
}

func (f *Fake) Get(_ context.Context, p string) (GetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[p]
	if !ok {
		return GetResult{}, nil
	}
	return GetResult{Value: n.value, Version: n.version, Exists: true}, nil
}

type fakeFuture struct {
	res GetResult
	err error
}

func (ff fakeFuture) Await(context.Context) (GetResult, error) { return ff.res, ff.err }

func (f *Fake) AsyncGet(ctx context.Context, p string) Future {
	res, err := f.Get(ctx, p)
	return fakeFuture{res: res, err: err}
}

func (f *Fake) GetChildren(_ context.Context, p string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(p, "/") + "/"
	var out []string
	for k := range f.nodes {
		if strings.HasPrefix(k, prefix) {
			rest := k[len(prefix):]
			if !strings.Contains(rest, "/") && rest != "" {
				out = append(out, rest)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) Set(_ context.Context, p string, value []byte, version int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setLocked(p, value, version)
}

func (f *Fake) setLocked(p string, value []byte, version int32) error {
	n, ok := f.nodes[p]
	if !ok {
		f.nodes[p] = &fakeNode{value: value, version: 0}
		f.notifyLocked(p)
		return nil
	}
	if version != -1 && version != n.version {
		return ErrBadVersion
	}
	n.value = value
	n.version++
	f.notifyLocked(p)
	return nil
}

func (f *Fake) Create(_ context.Context, p string, value []byte, mode CreateMode) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createLocked(p, value, mode)
}

func (f *Fake) createLocked(p string, value []byte, mode CreateMode) (string, error) {
	created := p
	if mode == PersistentSequential || mode == EphemeralSequential {
		parent := path.Dir(p)
		base := path.Base(p)
		n := f.seq[parent]
		f.seq[parent] = n + 1
		created = fmt.Sprintf("%s%010d", p, n)
		_ = base
	} else if _, exists := f.nodes[p]; exists {
		return "", ErrNodeExists
	}
	f.nodes[created] = &fakeNode{value: value, version: 0}
	f.notifyLocked(created)
	return created, nil
}

func (f *Fake) TryRemove(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[p]; !ok {
		return nil // already removed: tolerated per spec §7
	}
	delete(f.nodes, p)
	f.notifyLocked(p)
	return nil
}

func (f *Fake) Multi(_ context.Context, ops []Op) ([]OpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Validate the whole batch against a staged copy before committing
	// any of it, the way a real multi-op transaction is all-or-nothing.
	staged := make(map[string]*fakeNode, len(f.nodes))
	for k, v := range f.nodes {
		cp := *v
		staged[k] = &cp
	}
	results := make([]OpResult, len(ops))
	for i, op := range ops {
		switch o := op.(type) {
		case CreateOp:
			created := o.Path
			if o.Mode == PersistentSequential || o.Mode == EphemeralSequential {
				parent := path.Dir(o.Path)
				n := f.seq[parent]
				created = fmt.Sprintf("%s%010d", o.Path, n)
				f.seq[parent] = n + 1
			} else if _, exists := staged[o.Path]; exists {
				return nil, ErrNodeExists
			}
			staged[created] = &fakeNode{value: o.Data}
			results[i] = OpResult{CreatedPath: created}
		case SetDataOp:
			n, ok := staged[o.Path]
			if !ok {
				staged[o.Path] = &fakeNode{value: o.Data}
				break
			}
			if o.Version != -1 && o.Version != n.version {
				return nil, ErrBadVersion
			}
			n.value = o.Data
			n.version++
		case RemoveOp:
			delete(staged, o.Path)
		case CheckOp:
			n, ok := staged[o.Path]
			if !ok {
				return nil, ErrNodeNotExist
			}
			if o.Version != -1 && o.Version != n.version {
				return nil, ErrBadVersion
			}
		}
	}

	f.nodes = staged
	for _, r := range results {
		if r.CreatedPath != "" {
			f.notifyLocked(r.CreatedPath)
		}
	}
	return results, nil
}

func (f *Fake) Exists(_ context.Context, p string, watch bool) (bool, <-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[p]
	if !watch {
		return ok, nil, nil
	}
	ch := make(chan struct{}, 1)
	f.watchers[p] = append(f.watchers[p], ch)
	return ok, ch, nil
}

func (f *Fake) notifyLocked(p string) {
	for _, ch := range f.watchers[p] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	delete(f.watchers, p)
}

var _ Coordinator = (*Fake)(nil)
