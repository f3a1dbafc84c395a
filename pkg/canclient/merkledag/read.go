package merkledag

import (
	"context"
	"io"

	"github.com/ipfs/go-cid"

	"github.com/canfetch/adapter/pkg/fetch"
)

// Cat implements fetch.UnixfsAPI: it streams a file's bytes from offset
// for up to length bytes (length <= 0 means "to EOF"), fetching chunks
// lazily one at a time.
func (t *Tree) Cat(ctx context.Context, root cid.Cid, relPath string, offset, length int64) (io.ReadCloser, error) {
	target, err := t.ResolvePath(ctx, root, relPath)
	if err != nil {
		return nil, err
	}
	node, err := t.GetNode(ctx, target)
	if err != nil {
		return nil, err
	}
	if node.Dir {
		return nil, fetch.NewInvalidInput("path %q is a directory", relPath)
	}

	links := node.Links
	if len(links) == 0 {
		links = []Link{{CID: target, Size: uint64(len(node.Data))}}
	}

	remaining := length
	if length <= 0 {
		remaining = -1
	}
	return io.NopCloser(&chunkReader{ctx: ctx, tree: t, links: links, skip: offset, remaining: remaining}), nil
}

// chunkReader streams a file's chunk-list nodes in order, applying an
// initial byte skip and an optional total-length cap.
type chunkReader struct {
	ctx       context.Context
	tree      *Tree
	links     []Link
	idx       int
	skip      int64
	remaining int64 // -1 means unbounded
	buf       []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.remaining == 0 {
			return 0, io.EOF
		}
		if r.idx >= len(r.links) {
			return 0, io.EOF
		}
		link := r.links[r.idx]
		r.idx++
		if r.skip >= int64(link.Size) {
			r.skip -= int64(link.Size)
			continue
		}
		node, err := r.tree.GetNode(r.ctx, link.CID)
		if err != nil {
			return 0, err
		}
		if len(node.Links) > 0 {
			// An inner chunk-list node of a multi-level file: read its
			// children in place of it.
			r.links = append(append([]Link{}, node.Links...), r.links[r.idx:]...)
			r.idx = 0
			continue
		}
		chunk := node.Data
		if r.skip > 0 {
			if r.skip >= int64(len(chunk)) {
				r.skip -= int64(len(chunk))
				continue
			}
			chunk = chunk[r.skip:]
			r.skip = 0
		}
		if r.remaining >= 0 && int64(len(chunk)) > r.remaining {
			chunk = chunk[:r.remaining]
		}
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	if r.remaining > 0 {
		r.remaining -= int64(n)
	}
	return n, nil
}
