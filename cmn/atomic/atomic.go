// Package atomic mirrors the teacher's vendored 3rdparty/atomic: thin,
// typed wrappers over sync/atomic so call sites read as field accesses
// rather than package-qualified intrinsics.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package atomic

import "sync/atomic"

type Int64 struct{ v int64 }

func (i *Int64) Load() int64         { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(n int64)       { atomic.StoreInt64(&i.v, n) }
func (i *Int64) Add(n int64) int64   { return atomic.AddInt64(&i.v, n) }
func (i *Int64) Inc() int64          { return i.Add(1) }
func (i *Int64) CAS(old, new int64) bool {
	return atomic.CompareAndSwapInt64(&i.v, old, new)
}

type Int32 struct{ v int32 }

func (i *Int32) Load() int32       { return atomic.LoadInt32(&i.v) }
func (i *Int32) Store(n int32)     { atomic.StoreInt32(&i.v, n) }
func (i *Int32) Add(n int32) int32 { return atomic.AddInt32(&i.v, n) }
func (i *Int32) Inc() int32        { return i.Add(1) }

type Bool struct{ v int32 }

func (b *Bool) Load() bool {
	return atomic.LoadInt32(&b.v) != 0
}

func (b *Bool) Store(val bool) {
	var n int32
	if val {
		n = 1
	}
	atomic.StoreInt32(&b.v, n)
}
