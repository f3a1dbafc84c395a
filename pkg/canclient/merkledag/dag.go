package merkledag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/canfetch/adapter/pkg/canclient/storage"
	"github.com/canfetch/adapter/pkg/fetch"
)

// fanout bounds how many children a single chunk-list or directory node
// links to before the builder introduces another level, the same
// 174-link convention a unixfs balanced DAG uses.
const fanout = 174

// Tree resolves and mutates the file/directory Merkle DAG rooted at a
// content CID, grounding pkg/fetch.UnixfsAPI over a block Store.
type Tree struct {
	store   storage.Store
	chunker *Chunker
}

// NewTree builds a Tree backed by store, chunking writes at chunkSize
// bytes per leaf.
func NewTree(store storage.Store, chunkSize int) *Tree {
	return &Tree{store: store, chunker: NewChunker(chunkSize)}
}

// AddNode stores a node and returns its CID.
func (t *Tree) AddNode(n *Node) (cid.Cid, error) {
	c, err := n.CID()
	if err != nil {
		return cid.Undef, err
	}
	data, err := n.MarshalBinary()
	if err != nil {
		return cid.Undef, err
	}
	if err := t.store.Put(c.Bytes(), data); err != nil {
		return cid.Undef, fmt.Errorf("store node %s: %w", c, err)
	}
	return c, nil
}

// GetNode retrieves a node by CID.
func (t *Tree) GetNode(ctx context.Context, c cid.Cid) (*Node, error) {
	if fetch.IsSentinelEmptyDir(c) {
		return &Node{Dir: true}, nil
	}
	data, err := t.store.Get(c.Bytes())
	if err != nil {
		if errors.Is(err, storage.ErrBlockNotFound) {
			return nil, fetch.NewNotFound("block %s not found", c)
		}
		return nil, err
	}
	node := &Node{}
	if err := node.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", c, err)
	}
	return node, nil
}

func splitRelPath(relPath string) []string {
	trimmed := strings.Trim(relPath, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// ResolvePath walks root to the node named by relPath.
func (t *Tree) ResolvePath(ctx context.Context, root cid.Cid, relPath string) (cid.Cid, error) {
	segments := splitRelPath(relPath)
	if fetch.IsSentinelEmptyDir(root) {
		if len(segments) == 0 {
			return root, nil
		}
		return cid.Undef, fetch.NewNotFound("path %q not found", relPath)
	}
	cur := root
	for _, seg := range segments {
		node, err := t.GetNode(ctx, cur)
		if err != nil {
			return cid.Undef, err
		}
		if !node.Dir {
			return cid.Undef, fetch.NewNotFound("path component %q not found", seg)
		}
		found := false
		for _, l := range node.Links {
			if l.Name == seg {
				cur = l.CID
				found = true
				break
			}
		}
		if !found {
			return cid.Undef, fetch.NewNotFound("path component %q not found", seg)
		}
	}
	return cur, nil
}

// Resolve implements fetch.UnixfsAPI.
func (t *Tree) Resolve(ctx context.Context, root cid.Cid, relPath string) (cid.Cid, error) {
	return t.ResolvePath(ctx, root, relPath)
}

// Stat implements fetch.UnixfsAPI.
func (t *Tree) Stat(ctx context.Context, root cid.Cid, relPath string) (fetch.Stat, error) {
	target, err := t.ResolvePath(ctx, root, relPath)
	if err != nil {
		return fetch.Stat{}, err
	}
	node, err := t.GetNode(ctx, target)
	if err != nil {
		return fetch.Stat{}, err
	}
	if node.Dir {
		return fetch.Stat{Kind: fetch.KindDir, Size: int64(sumLinkSizes(node.Links))}, nil
	}
	if node.IsChunkList() {
		return fetch.Stat{Kind: fetch.KindFile, Size: int64(sumLinkSizes(node.Links))}, nil
	}
	return fetch.Stat{Kind: fetch.KindFile, Size: int64(len(node.Data))}, nil
}

func sumLinkSizes(links []Link) uint64 {
	var total uint64
	for _, l := range links {
		total += l.Size
	}
	return total
}

// Ls implements fetch.UnixfsAPI.
func (t *Tree) Ls(ctx context.Context, root cid.Cid, relPath string) ([]fetch.DirEntry, error) {
	target, err := t.ResolvePath(ctx, root, relPath)
	if err != nil {
		return nil, err
	}
	node, err := t.GetNode(ctx, target)
	if err != nil {
		return nil, err
	}
	if !node.Dir {
		return nil, fetch.NewInvalidInput("path %q is not a directory", relPath)
	}
	entries := make([]fetch.DirEntry, len(node.Links))
	for i, l := range node.Links {
		kind := fetch.KindFile
		if l.Dir {
			kind = fetch.KindDir
		}
		entries[i] = fetch.DirEntry{Name: l.Name, Kind: kind, Size: int64(l.Size), CID: l.CID}
	}
	return entries, nil
}
