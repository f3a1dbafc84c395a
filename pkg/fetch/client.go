package fetch

import (
	"context"
	"io"
)

// Client is the embedded CAN client the adapter invokes but does not
// own (§1). Concrete implementations live outside this package — see
// pkg/canclient for the reference one backing tests and the default
// server binary.
type Client interface {
	Blocks() BlockAPI
	Unixfs() UnixfsAPI
	Name() NameAPI
	Pubsub() PubsubAPI
}

// BlockAPI is raw content-addressed block storage, shared by the raw
// block negotiation format (§4.2) and the linked-data graph (§4.7),
// exactly as a single blockstore backs both unixfs and dag-cbor views
// in a real CAN client.
type BlockAPI interface {
	Get(ctx context.Context, c CID) ([]byte, error)
	// Put stores data, deriving its CID under the given multicodec
	// (e.g. multicodec.Raw, multicodec.DagCbor).
	Put(ctx context.Context, codec uint64, data []byte) (CID, error)
	// Links extracts the child CIDs a block references, so CAR export
	// (§4.2 "car" format) can walk the DAG without this package needing
	// to understand any one node codec itself.
	Links(ctx context.Context, c CID) ([]CID, error)
}

// EntryKind is the Directory Entry kind from §3.
type EntryKind string

const (
	KindFile EntryKind = "file"
	KindDir  EntryKind = "directory"
	KindRaw  EntryKind = "raw"
)

// Stat is the entry descriptor §4.4 resolves a CAN-path to.
type Stat struct {
	Kind EntryKind
	Size int64
}

// DirEntry is a child of a directory node (§3).
type DirEntry struct {
	Name string
	Kind EntryKind
	Size int64
	CID  CID
}

// UnixfsAPI resolves and mutates the file/directory merkle tree rooted
// at a content CID — Stat/Export (§4.4) and the read side of the
// Mutable Tree Builder (§4.5).
type UnixfsAPI interface {
	Stat(ctx context.Context, root CID, relPath string) (Stat, error)
	Cat(ctx context.Context, root CID, relPath string, offset, length int64) (io.ReadCloser, error)
	Ls(ctx context.Context, root CID, relPath string) ([]DirEntry, error)
	// Resolve returns the CID of the node at relPath under root,
	// needed for raw-block and CAR negotiation.
	Resolve(ctx context.Context, root CID, relPath string) (CID, error)

	// NewScratch begins a scratch workspace (§4.5 step 1-2): if base is
	// defined, it is recursively copied in first.
	NewScratch(ctx context.Context, base CID) (ScratchHandle, error)
}

// ScratchHandle is the Scratch Workspace entity (§3): a temporary
// mutable tree used to build one new root.
type ScratchHandle interface {
	WriteFile(ctx context.Context, relPath string, r io.Reader) error
	Remove(ctx context.Context, relPath string) error
	// Finalize stats the workspace and returns its new root CID and
	// total size (§4.5 step 4).
	Finalize(ctx context.Context) (CID, int64, error)
	// Discard releases the workspace without requiring persistence
	// (§5): safe to call after Finalize, and safe to call more than
	// once.
	Discard()
}

// KeyInfo is the Key entity (§3).
type KeyInfo struct {
	Alias    string
	PublicID CID
}

// NameAPI is the key lifecycle and publication surface of the Naming
// Subsystem (§4.6).
type NameAPI interface {
	HasKey(ctx context.Context, alias string) (KeyInfo, bool, error)
	GenKey(ctx context.Context, alias string) (KeyInfo, error)
	RemoveKey(ctx context.Context, alias string) error
	// Publish maps alias to targetPath (a normalized CAN-path), at
	// most once per call (invariant 5).
	Publish(ctx context.Context, alias string, targetPath string) error
	// Resolve maps an alias, a base36 public-key id, or a dotted
	// DNS-style host to its current published CAN-path.
	Resolve(ctx context.Context, host string) (targetPath string, err error)
}

// Message is one pubsub delivery (§3, §4.8).
type Message struct {
	Seq  uint64
	From string
	Data []byte
}

// Subscription is an active pubsub listener (§3). Next blocks until a
// message arrives or ctx is done. Unsubscribe MUST be safe to call more
// than once.
type Subscription interface {
	Next(ctx context.Context) (*Message, error)
	Unsubscribe() error
}

// PubsubAPI is the publish/subscribe bus (§4.8).
type PubsubAPI interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Publish(ctx context.Context, topic string, data []byte) error
	LocalID() string
	IsSubscribed(topic string) bool
}
