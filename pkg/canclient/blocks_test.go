package canclient

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/canfetch/adapter/pkg/canclient/merkledag"
	"github.com/canfetch/adapter/pkg/canclient/storage"
	"github.com/canfetch/adapter/pkg/fetch"
)

const rawCodec = 0x55

func newTestBlockStore(t *testing.T) *blockStore {
	t.Helper()
	store, err := storage.NewBadgerStore(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return newBlockStore(store)
}

func TestBlockStorePutGetRoundTrip(t *testing.T) {
	b := newTestBlockStore(t)
	ctx := context.Background()

	c, err := b.Put(ctx, rawCodec, []byte("payload"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := b.Get(ctx, c)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("got %q, want %q", got, "payload")
	}
}

func TestBlockStoreGetMissingIsNotFound(t *testing.T) {
	b := newTestBlockStore(t)
	n := &merkledag.Node{Data: []byte("never stored")}
	c, err := n.CID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var nf *fetch.NotFoundError
	if _, err := b.Get(context.Background(), c); !errors.As(err, &nf) {
		t.Fatalf("expected a NotFoundError for a block that was never stored, got %v", err)
	}
}

func TestBlockStoreLinksOnOwnNodeEncoding(t *testing.T) {
	b := newTestBlockStore(t)
	ctx := context.Background()

	child := &merkledag.Node{Data: []byte("child")}
	childData, err := child.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	childCID, err := b.Put(ctx, rawCodec, childData)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	dir := &merkledag.Node{Dir: true, Links: []merkledag.Link{{Name: "child", CID: childCID}}}
	dirData, err := dir.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dirCID, err := b.Put(ctx, 0x71, dirData)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	links, err := b.Links(ctx, dirCID)
	if err != nil {
		t.Fatalf("Links failed: %v", err)
	}
	if len(links) != 1 || !links[0].Equals(childCID) {
		t.Errorf("got %v, want [%s]", links, childCID)
	}
}

func TestBlockStoreLinksOnOpaqueBlockIsNil(t *testing.T) {
	b := newTestBlockStore(t)
	ctx := context.Background()

	c, err := b.Put(ctx, rawCodec, []byte("raw bytes with no node structure"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	links, err := b.Links(ctx, c)
	if err != nil {
		t.Fatalf("Links failed: %v", err)
	}
	if links != nil {
		t.Errorf("expected no links for an opaque block, got %v", links)
	}
}
