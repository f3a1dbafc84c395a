// Package canclient is the reference CAN client: a concrete
// fetch.Client wiring a badger block store, the merkledag unixfs tree,
// the naming registry, and a NATS pubsub bus together, adapted from the
// teacher's BadgerStore/DAGBuilder/Resolver/contract.Client.
package canclient

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/canfetch/adapter/pkg/canclient/merkledag"
	"github.com/canfetch/adapter/pkg/canclient/naming"
	"github.com/canfetch/adapter/pkg/canclient/pubsub"
	"github.com/canfetch/adapter/pkg/canclient/storage"
	"github.com/canfetch/adapter/pkg/fetch"
)

var log = logging.Logger("canclient")

// Config collects everything needed to build a Client.
type Config struct {
	BlockStorePath string
	ChunkSize      int
	NameCacheSize  int
	NATSURL        string
	Anchor         naming.AnchorConfig
}

// Client is the reference fetch.Client.
type Client struct {
	store  *storage.BadgerStore
	blocks *blockStore
	unixfs *merkledag.Tree
	name   *naming.Registry
	bus    *pubsub.Bus
}

// New opens the block store and wires every subsystem into a Client.
func New(cfg Config) (*Client, error) {
	store, err := storage.NewBadgerStore(cfg.BlockStorePath)
	if err != nil {
		return nil, fmt.Errorf("open block store: %w", err)
	}

	var anchor *naming.AnchorClient
	if cfg.Anchor.RPCURL != "" {
		anchor, err = naming.NewAnchorClient(cfg.Anchor)
		if err != nil {
			log.Warnw("naming anchor unavailable, continuing without it", "err", err)
			anchor = nil
		}
	}

	cacheSize := cfg.NameCacheSize
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	registry, err := naming.NewRegistry(store, cacheSize, anchor)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open naming registry: %w", err)
	}

	bus, err := pubsub.Connect(cfg.NATSURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 256 * 1024
	}

	return &Client{
		store:  store,
		blocks: newBlockStore(store),
		unixfs: merkledag.NewTree(store, chunkSize),
		name:   registry,
		bus:    bus,
	}, nil
}

// Blocks implements fetch.Client.
func (c *Client) Blocks() fetch.BlockAPI { return c.blocks }

// Unixfs implements fetch.Client.
func (c *Client) Unixfs() fetch.UnixfsAPI { return c.unixfs }

// Name implements fetch.Client.
func (c *Client) Name() fetch.NameAPI { return c.name }

// Pubsub implements fetch.Client.
func (c *Client) Pubsub() fetch.PubsubAPI { return c.bus }

// Close releases the block store and pubsub connection.
func (c *Client) Close() error {
	c.bus.Close()
	return c.store.Close()
}

// Healthy reports whether the pubsub connection is usable, for the
// supplemented /healthz endpoint. The block store has no analogous
// liveness probe beyond having opened successfully at construction.
func (c *Client) Healthy() error {
	if !c.bus.Connected() {
		return fmt.Errorf("pubsub not connected")
	}
	return nil
}
