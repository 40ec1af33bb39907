// Package sessionlock takes out the ephemeral exclusive-writer lock a
// replica must hold before it is allowed to append to /log or mutate
// /replica/queue (spec §5 "single writer per replica"). The lock node's
// payload is a short random session token so a stale lock left behind
// by a crashed process (the coordinator's ephemeral-node cleanup lags
// slightly behind an actual disconnect) is distinguishable from the
// current holder's own. Grounded on the teacher's go.mod, which names
// github.com/teris-io/shortid directly.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package sessionlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/teris-io/shortid"

	"github.com/coldb/coldb/coord"
)

// ErrAlreadyHeld is returned when another session already holds the
// lock node.
var ErrAlreadyHeld = fmt.Errorf("sessionlock: lock already held by another session")

// Lock is one acquired exclusive-writer session.
type Lock struct {
	cd    coord.Coordinator
	path  string
	token string
}

// Acquire creates the ephemeral lock node at path with a fresh session
// token. If the node already exists (a live holder), it returns
// ErrAlreadyHeld; the coordinator's ephemeral-node semantics guarantee
// a crashed holder's node disappears on its own.
func Acquire(ctx context.Context, cd coord.Coordinator, path string) (*Lock, error) {
	token, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("sessionlock: generating session token: %w", err)
	}
	if _, err := cd.Create(ctx, path, []byte(token), coord.Ephemeral); err != nil {
		if errors.Is(err, coord.ErrNodeExists) {
			return nil, ErrAlreadyHeld
		}
		return nil, fmt.Errorf("sessionlock: acquiring %s: %w", path, err)
	}
	return &Lock{cd: cd, path: path, token: token}, nil
}

// StillHeld reports whether this session's token is still the one
// recorded at the lock path (it can have been evicted and re-created
// by a new session if the coordinator connection dropped and came back
// under a different ephemeral owner).
func (l *Lock) StillHeld(ctx context.Context) bool {
	res, err := l.cd.Get(ctx, l.path)
	if err != nil || !res.Exists {
		return false
	}
	return string(res.Value) == l.token
}

// Release removes the lock node, but only if this session's token is
// still the one present (never clobber a newer holder's lock).
func (l *Lock) Release(ctx context.Context) error {
	if !l.StillHeld(ctx) {
		return nil
	}
	return l.cd.TryRemove(ctx, l.path)
}
