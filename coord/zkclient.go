package coord

import (
	"context"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"

	"github.com/coldb/coldb/cmn/nlog"
)

// Client adapts github.com/go-zookeeper/zk's *zk.Conn to the
// Coordinator interface. It is the only package in the repository that
// imports the zk package directly (spec §6's narrow collaborator
// boundary).
type Client struct {
	conn *zk.Conn
	acl  []zk.ACL
}

// Dial connects to the ensemble and blocks until the session is
// established or ctx is done.
func Dial(ctx context.Context, servers []string, sessionTimeout time.Duration) (*Client, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "zk connect")
	}
	c := &Client{conn: conn, acl: zk.WorldACL(zk.PermAll)}
	go func() {
		for ev := range events {
			if ev.State == zk.StateDisconnected {
				nlog.Warningln("coordinator session disconnected", ev.Path)
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		default:
		}
		if conn.State() == zk.StateHasSession {
			return c, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (c *Client) Close() { c.conn.Close() }

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, zk.ErrNoNode):
		return ErrNodeNotExist
	case errors.Is(err, zk.ErrNodeExists):
		return ErrNodeExists
	case errors.Is(err, zk.ErrBadVersion):
		return ErrBadVersion
	case errors.Is(err, zk.ErrConnectionClosed):
		return ErrConnectionLoss
	default:
		return err
	}
}

func (c *Client) Get(_ context.Context, path string) (GetResult, error) {
	value, stat, err := c.conn.Get(path)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return GetResult{}, nil
		}
		return GetResult{}, errors.Wrapf(translateErr(err), "get %s", path)
	}
	return GetResult{Value: value, Version: stat.Version, Exists: true}, nil
}

func (c *Client) AsyncGet(_ context.Context, path string) Future {
	ch := make(chan zk.GetResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		value, stat, err := c.conn.Get(path)
		if err != nil {
			errCh <- err
			return
		}
		ch <- zk.GetResponse{Data: value, Stat: *stat}
	}()
	return &asyncGetFuture{ch: ch, errCh: errCh}
}

type asyncGetFuture struct {
	ch    chan zk.GetResponse
	errCh chan error
}

func (f *asyncGetFuture) Await(ctx context.Context) (GetResult, error) {
	select {
	case r := <-f.ch:
		return GetResult{Value: r.Data, Version: r.Stat.Version, Exists: true}, nil
	case err := <-f.errCh:
		if errors.Is(err, zk.ErrNoNode) {
			return GetResult{}, nil
		}
		return GetResult{}, translateErr(err)
	case <-ctx.Done():
		return GetResult{}, ctx.Err()
	}
}

func (c *Client) GetChildren(_ context.Context, path string) ([]string, error) {
	children, _, err := c.conn.Children(path)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return nil, nil
		}
		return nil, errors.Wrapf(translateErr(err), "children %s", path)
	}
	return children, nil
}

func (c *Client) Set(_ context.Context, path string, value []byte, version int32) error {
	_, err := c.conn.Set(path, value, version)
	return errors.Wrapf(translateErr(err), "set %s", path)
}

func zkFlags(mode CreateMode) int32 {
	switch mode {
	case Ephemeral:
		return zk.FlagEphemeral
	case PersistentSequential:
		return zk.FlagSequence
	case EphemeralSequential:
		return zk.FlagEphemeral | zk.FlagSequence
	default:
		return 0
	}
}

func (c *Client) Create(_ context.Context, path string, value []byte, mode CreateMode) (string, error) {
	created, err := c.conn.Create(path, value, zkFlags(mode), c.acl)
	if err != nil {
		return "", errors.Wrapf(translateErr(err), "create %s", path)
	}
	return created, nil
}

func (c *Client) TryRemove(_ context.Context, path string) error {
	err := c.conn.Delete(path, -1)
	if err != nil && errors.Is(err, zk.ErrNoNode) {
		nlog.Infof("tryRemove %s: already removed", path)
		return nil
	}
	return errors.Wrapf(translateErr(err), "remove %s", path)
}

func toZkOp(op Op, acl []zk.ACL) any {
	switch o := op.(type) {
	case CreateOp:
		return &zk.CreateRequest{Path: o.Path, Data: o.Data, Acl: acl, Flags: zkFlags(o.Mode)}
	case SetDataOp:
		return &zk.SetDataRequest{Path: o.Path, Data: o.Data, Version: o.Version}
	case RemoveOp:
		return &zk.DeleteRequest{Path: o.Path, Version: o.Version}
	case CheckOp:
		return &zk.CheckVersionRequest{Path: o.Path, Version: o.Version}
	default:
		panic("coord: unknown op type")
	}
}

func (c *Client) Multi(_ context.Context, ops []Op) ([]OpResult, error) {
	zkOps := make([]any, len(ops))
	for i, op := range ops {
		zkOps[i] = toZkOp(op, c.acl)
	}
	responses, err := c.conn.Multi(zkOps...)
	if err != nil {
		return nil, errors.Wrap(translateErr(err), "multi")
	}
	out := make([]OpResult, len(responses))
	for i, r := range responses {
		out[i] = OpResult{CreatedPath: r.String, Err: translateErr(r.Error)}
	}
	return out, nil
}

func (c *Client) Exists(_ context.Context, path string, watch bool) (bool, <-chan struct{}, error) {
	if !watch {
		ok, _, err := c.conn.Exists(path)
		return ok, nil, errors.Wrapf(translateErr(err), "exists %s", path)
	}
	ok, _, events, err := c.conn.ExistsW(path)
	if err != nil {
		return false, nil, errors.Wrapf(translateErr(err), "existsw %s", path)
	}
	ch := make(chan struct{}, 1)
	go func() {
		<-events
		ch <- struct{}{}
	}()
	return ok, ch, nil
}

var _ Coordinator = (*Client)(nil)
