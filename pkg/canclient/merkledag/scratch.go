package merkledag

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/ipfs/go-cid"

	"github.com/canfetch/adapter/pkg/fetch"
)

// mutableEntry is one node of a scratch workspace's copy-on-write tree.
// A subtree that hasn't been touched since NewScratch keeps pointing at
// its original, already-persisted CID (unchanged) instead of being
// reloaded eagerly.
type mutableEntry struct {
	isDir     bool
	unchanged cid.Cid
	size      uint64
	data      []byte
	children  map[string]*mutableEntry
}

type scratch struct {
	tree *Tree
	root *mutableEntry
}

// NewScratch implements fetch.UnixfsAPI: base, if defined, is lazily
// copied in as mutations descend into it.
func (t *Tree) NewScratch(ctx context.Context, base cid.Cid) (fetch.ScratchHandle, error) {
	root := &mutableEntry{isDir: true}
	if base.Defined() && !fetch.IsSentinelEmptyDir(base) {
		root.unchanged = base
	}
	return &scratch{tree: t, root: root}, nil
}

// materializeDir expands e's immediate children from its original node,
// if any, so they can be individually replaced or removed.
func (t *Tree) materializeDir(ctx context.Context, e *mutableEntry) error {
	if e.children != nil {
		return nil
	}
	e.children = map[string]*mutableEntry{}
	if !e.unchanged.Defined() {
		return nil
	}
	node, err := t.GetNode(ctx, e.unchanged)
	if err != nil {
		return err
	}
	if !node.Dir {
		return fetch.NewInvalidInput("path component is a file, not a directory")
	}
	for _, l := range node.Links {
		e.children[l.Name] = &mutableEntry{isDir: l.Dir, unchanged: l.CID, size: l.Size}
	}
	e.unchanged = cid.Undef
	return nil
}

// descend walks segments from e, materializing directories as it goes
// and, when create is true, creating any missing intermediate
// directories.
func (t *Tree) descend(ctx context.Context, e *mutableEntry, segments []string, create bool) (*mutableEntry, error) {
	cur := e
	for _, seg := range segments {
		if err := t.materializeDir(ctx, cur); err != nil {
			return nil, err
		}
		child, ok := cur.children[seg]
		if !ok {
			if !create {
				return nil, fetch.NewNotFound("path component %q not found", seg)
			}
			child = &mutableEntry{isDir: true}
			cur.children[seg] = child
		}
		if !child.isDir {
			return nil, fetch.NewInvalidInput("path component %q is a file, not a directory", seg)
		}
		cur = child
	}
	if err := t.materializeDir(ctx, cur); err != nil {
		return nil, err
	}
	return cur, nil
}

// WriteFile implements fetch.ScratchHandle.
func (s *scratch) WriteFile(ctx context.Context, relPath string, r io.Reader) error {
	segments := splitRelPath(relPath)
	if len(segments) == 0 {
		return fetch.NewInvalidInput("cannot write to the root path")
	}
	dir, err := s.tree.descend(ctx, s.root, segments[:len(segments)-1], true)
	if err != nil {
		return err
	}
	var data []byte
	if r != nil {
		data, err = io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read write body: %w", err)
		}
	}
	dir.children[segments[len(segments)-1]] = &mutableEntry{data: data}
	return nil
}

// Remove implements fetch.ScratchHandle.
func (s *scratch) Remove(ctx context.Context, relPath string) error {
	segments := splitRelPath(relPath)
	if len(segments) == 0 {
		s.root.children = map[string]*mutableEntry{}
		s.root.unchanged = cid.Undef
		return nil
	}
	dir, err := s.tree.descend(ctx, s.root, segments[:len(segments)-1], false)
	if err != nil {
		return err
	}
	name := segments[len(segments)-1]
	if _, ok := dir.children[name]; !ok {
		return fetch.NewNotFound("path %q not found", relPath)
	}
	delete(dir.children, name)
	return nil
}

// Finalize implements fetch.ScratchHandle.
func (s *scratch) Finalize(ctx context.Context) (cid.Cid, int64, error) {
	c, size, err := s.tree.persist(ctx, s.root)
	if err != nil {
		return cid.Undef, 0, err
	}
	return c, int64(size), nil
}

// Discard implements fetch.ScratchHandle. Nothing is persisted until
// Finalize, so there is nothing to release.
func (s *scratch) Discard() {}

func (t *Tree) persist(ctx context.Context, e *mutableEntry) (cid.Cid, uint64, error) {
	if e.unchanged.Defined() {
		return e.unchanged, e.size, nil
	}
	if !e.isDir {
		return t.persistFile(e.data)
	}

	names := make([]string, 0, len(e.children))
	for name := range e.children {
		names = append(names, name)
	}
	sort.Strings(names)

	dirNode := &Node{Dir: true}
	var total uint64
	for _, name := range names {
		child := e.children[name]
		childCID, childSize, err := t.persist(ctx, child)
		if err != nil {
			return cid.Undef, 0, err
		}
		dirNode.Links = append(dirNode.Links, Link{Name: name, CID: childCID, Size: childSize, Dir: child.isDir})
		total += childSize
	}
	c, err := t.AddNode(dirNode)
	return c, total, err
}

// persistFile chunks data with t.chunker and, for multi-chunk files,
// assembles a fanout-bounded chunk-list tree grouping leaves into
// parents.
func (t *Tree) persistFile(data []byte) (cid.Cid, uint64, error) {
	if len(data) <= t.chunker.Size() {
		c, err := t.AddNode(&Node{Data: data})
		return c, uint64(len(data)), err
	}
	leaves, err := t.chunker.Chunk(bytes.NewReader(data))
	if err != nil {
		return cid.Undef, 0, err
	}
	return t.buildFromLeaves(leaves)
}

type builtNode struct {
	cid  cid.Cid
	size uint64
}

func (t *Tree) buildFromLeaves(leaves []*Node) (cid.Cid, uint64, error) {
	current := make([]builtNode, len(leaves))
	for i, leaf := range leaves {
		c, err := t.AddNode(leaf)
		if err != nil {
			return cid.Undef, 0, err
		}
		current[i] = builtNode{cid: c, size: uint64(len(leaf.Data))}
	}
	for len(current) > 1 {
		var next []builtNode
		for i := 0; i < len(current); i += fanout {
			end := i + fanout
			if end > len(current) {
				end = len(current)
			}
			group := current[i:end]
			parent := &Node{}
			var total uint64
			for _, b := range group {
				parent.Links = append(parent.Links, Link{CID: b.cid, Size: b.size})
				total += b.size
			}
			c, err := t.AddNode(parent)
			if err != nil {
				return cid.Undef, 0, err
			}
			next = append(next, builtNode{cid: c, size: total})
		}
		current = next
	}
	return current[0].cid, current[0].size, nil
}
