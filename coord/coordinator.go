// Package coord is the thin abstraction over the external sequential-
// znode coordination service (spec §6): get/set with version,
// create-sequential, multi-op transaction, async get, children
// listing, and existence watches. Two implementations are provided:
// Client (backed by github.com/go-zookeeper/zk) for production, and
// Fake (an in-memory mirror) for tests — the rest of the repository
// only ever depends on the Coordinator interface.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package coord

import (
	"context"

	"github.com/pkg/errors"
)

// CreateMode mirrors the four znode creation modes the spec's external
// service offers.
type CreateMode int

const (
	Persistent CreateMode = iota
	Ephemeral
	PersistentSequential
	EphemeralSequential
)

// Error codes the spec's Coordinator contract distinguishes (§6, §7).
var (
	ErrNodeNotExist   = errors.New("coordinator: node does not exist")
	ErrNodeExists     = errors.New("coordinator: node already exists")
	ErrBadVersion     = errors.New("coordinator: bad version")
	ErrConnectionLoss = errors.New("coordinator: connection loss")
)

// GetResult is the value+version pair returned by Get/AsyncGet, mirroring
// zkutil::ZooKeeper::ValueAndStat.
type GetResult struct {
	Value   []byte
	Version int32
	Exists  bool
}

// Future is the handle returned by AsyncGet; the caller Awaits it once
// all futures in a batch have been issued (spec §9 "Futures from the
// coordinator").
type Future interface {
	Await(ctx context.Context) (GetResult, error)
}

// Op is one operation inside a Multi transaction.
type Op interface {
	isOp()
}

type CreateOp struct {
	Path string
	Data []byte
	Mode CreateMode
}

type SetDataOp struct {
	Path    string
	Data    []byte
	Version int32 // -1 means "any version"
}

type RemoveOp struct {
	Path    string
	Version int32
}

type CheckOp struct {
	Path    string
	Version int32
}

func (CreateOp) isOp()  {}
func (SetDataOp) isOp() {}
func (RemoveOp) isOp()  {}
func (CheckOp) isOp()   {}

// OpResult is the per-op outcome of a Multi call; CreatedPath is set
// only for CreateOp results (and, for sequential modes, carries the
// coordinator-assigned suffix).
type OpResult struct {
	CreatedPath string
	Err         error
}

// Coordinator is the collaborator contract of spec §6.
type Coordinator interface {
	Get(ctx context.Context, path string) (GetResult, error)
	AsyncGet(ctx context.Context, path string) Future
	GetChildren(ctx context.Context, path string) ([]string, error)
	Set(ctx context.Context, path string, value []byte, version int32) error
	Create(ctx context.Context, path string, value []byte, mode CreateMode) (string, error)
	TryRemove(ctx context.Context, path string) error
	Multi(ctx context.Context, ops []Op) ([]OpResult, error)
	// Exists reports whether path is present; if watch is true, the
	// returned channel fires once when the node's existence changes
	// (spec §4.3 step 2's next_update_event).
	Exists(ctx context.Context, path string, watch bool) (bool, <-chan struct{}, error)
}
