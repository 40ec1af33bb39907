// Package localcache is a read-through accelerator in front of the
// coordinator's /replica/queue children: a local buntdb database keyed
// by znode_name, msgp-encoded (spec §4.3 "load" — the cache speeds up a
// clean restart but is never itself authoritative; any entry the
// coordinator doesn't have is evicted, and any the coordinator has that
// the cache is missing gets fetched the slow way). Grounded on the
// teacher's own go.mod, which names both github.com/tidwall/buntdb and
// github.com/tinylib/msgp directly.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package localcache

import (
	"bytes"
	"fmt"

	"github.com/tidwall/buntdb"
	"github.com/tinylib/msgp/msgp"
)

// CachedEntry is the on-disk record: the raw wire payload plus the
// znode_name it was read under, so a cache hit never has to re-derive
// either.
type CachedEntry struct {
	ZnodeName string
	Payload   []byte
}

// DecodeMsg implements msgp.Decodable by hand, in the shape
// msgp-generated code takes: a length-prefixed map read field by field.
func (c *CachedEntry) DecodeMsg(r *msgp.Reader) error {
	n, err := r.ReadMapHeader()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		key, err := r.ReadString()
		if err != nil {
			return err
		}
		switch key {
		case "z":
			if c.ZnodeName, err = r.ReadString(); err != nil {
				return err
			}
		case "p":
			if c.Payload, err = r.ReadBytes(c.Payload); err != nil {
				return err
			}
		default:
			if err := r.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

// EncodeMsg implements msgp.Encodable, mirroring DecodeMsg's field set.
func (c *CachedEntry) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteMapHeader(2); err != nil {
		return err
	}
	if err := w.WriteString("z"); err != nil {
		return err
	}
	if err := w.WriteString(c.ZnodeName); err != nil {
		return err
	}
	if err := w.WriteString("p"); err != nil {
		return err
	}
	return w.WriteBytes(c.Payload)
}

// Cache wraps one buntdb database file.
type Cache struct {
	db *buntdb.DB
}

// Open opens (creating if absent) the buntdb file at path.
func Open(path string) (*Cache, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("localcache: opening %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Put writes one entry, keyed by znode_name.
func (c *Cache) Put(znode string, payload []byte) error {
	entry := CachedEntry{ZnodeName: znode, Payload: payload}
	buf, err := encode(&entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(znode, string(buf), nil)
		return err
	})
}

// Get returns the cached payload for znode, and whether it was present.
func (c *Cache) Get(znode string) ([]byte, bool) {
	var payload []byte
	err := c.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(znode)
		if err != nil {
			return err
		}
		var entry CachedEntry
		if derr := decode([]byte(val), &entry); derr != nil {
			return derr
		}
		payload = entry.Payload
		return nil
	})
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Delete evicts znode from the cache.
func (c *Cache) Delete(znode string) error {
	return c.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(znode)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// Keys returns every cached znode_name, for reconciliation against the
// coordinator's authoritative children listing.
func (c *Cache) Keys() ([]string, error) {
	var keys []string
	err := c.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
	})
	return keys, err
}

// Reconcile evicts any cached znode absent from liveChildren and
// returns the set of live children that are still missing from the
// cache (spec §4.3 load's cache-acceleration rule).
func (c *Cache) Reconcile(liveChildren []string) (missing []string, err error) {
	live := make(map[string]struct{}, len(liveChildren))
	for _, c := range liveChildren {
		live[c] = struct{}{}
	}
	cached, err := c.Keys()
	if err != nil {
		return nil, err
	}
	cachedSet := make(map[string]struct{}, len(cached))
	for _, k := range cached {
		cachedSet[k] = struct{}{}
		if _, ok := live[k]; !ok {
			if derr := c.Delete(k); derr != nil {
				return nil, derr
			}
		}
	}
	for _, child := range liveChildren {
		if _, ok := cachedSet[child]; !ok {
			missing = append(missing, child)
		}
	}
	return missing, nil
}

func encode(e *CachedEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := e.EncodeMsg(w); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, e *CachedEntry) error {
	r := msgp.NewReader(bytes.NewReader(data))
	return e.DecodeMsg(r)
}
