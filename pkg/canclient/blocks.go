package canclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/canfetch/adapter/pkg/canclient/merkledag"
	"github.com/canfetch/adapter/pkg/canclient/storage"
	"github.com/canfetch/adapter/pkg/fetch"
)

// blockStore is the shared content-addressed block namespace backing
// fetch.BlockAPI: raw blocks (content:// "raw" format) and linked-data
// dag-cbor/dag-json nodes (linked://) both live here, keyed by the
// binary CID their content hashes to.
type blockStore struct {
	store storage.Store
}

func newBlockStore(store storage.Store) *blockStore {
	return &blockStore{store: store}
}

func (b *blockStore) Get(ctx context.Context, c fetch.CID) ([]byte, error) {
	data, err := b.store.Get(c.Bytes())
	if err != nil {
		if errors.Is(err, storage.ErrBlockNotFound) {
			return nil, fetch.NewNotFound("block %s not found", c)
		}
		return nil, err
	}
	return data, nil
}

func (b *blockStore) Put(ctx context.Context, codec uint64, data []byte) (fetch.CID, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash block: %w", err)
	}
	c := cid.NewCidV1(codec, mh)
	if err := b.store.Put(c.Bytes(), data); err != nil {
		return cid.Undef, fmt.Errorf("store block %s: %w", c, err)
	}
	return c, nil
}

// Links supports CAR export (§4.2) by recognizing this client's own
// unixfs node encoding; blocks from any other codec (raw leaves,
// dag-cbor linked-data nodes) report no children, so CAR export treats
// them as leaves of the archive.
func (b *blockStore) Links(ctx context.Context, c fetch.CID) ([]fetch.CID, error) {
	data, err := b.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	var node merkledag.Node
	if err := node.UnmarshalBinary(data); err != nil || len(node.Links) == 0 {
		return nil, nil
	}
	links := make([]fetch.CID, len(node.Links))
	for i, l := range node.Links {
		links[i] = l.CID
	}
	return links, nil
}
