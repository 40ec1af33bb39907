package coord

import (
	"context"
	"testing"
)

func TestFakeCreateSequentialOrdering(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	var created []string
	for i := 0; i < 3; i++ {
		p, err := f.Create(ctx, "/replica/queue/queue-", []byte("x"), PersistentSequential)
		if err != nil {
			t.Fatal(err)
		}
		created = append(created, p)
	}
	if created[0] == created[1] || created[1] == created[2] {
		t.Fatalf("expected distinct sequential paths, got %v", created)
	}
}

func TestFakeSetVersionCheck(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	if err := f.Set(ctx, "/x", []byte("a"), -1); err != nil {
		t.Fatal(err)
	}
	if err := f.Set(ctx, "/x", []byte("b"), 5); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
	if err := f.Set(ctx, "/x", []byte("b"), 0); err != nil {
		t.Fatalf("expected version-0 set to succeed, got %v", err)
	}
}

func TestFakeTryRemoveMissingIsNoop(t *testing.T) {
	f := NewFake()
	if err := f.TryRemove(context.Background(), "/nope"); err != nil {
		t.Fatalf("expected nil (tolerated), got %v", err)
	}
}

func TestFakeMultiAllOrNothing(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	_ = f.Set(ctx, "/a", []byte("1"), -1)

	_, err := f.Multi(ctx, []Op{
		SetDataOp{Path: "/a", Data: []byte("2"), Version: 0},
		CheckOp{Path: "/does-not-exist", Version: -1},
	})
	if err == nil {
		t.Fatal("expected multi to fail on missing check path")
	}
	res, _ := f.Get(ctx, "/a")
	if string(res.Value) != "1" {
		t.Fatalf("expected failed multi to leave /a untouched, got %q", res.Value)
	}
}
