package merkledag

import "io"

// Chunker splits a byte stream into fixed-size leaf nodes, the unit
// persistFile assembles into a fanout-bounded chunk-list tree.
type Chunker struct {
	size int
}

// NewChunker creates a Chunker that emits leaves of at most size bytes.
func NewChunker(size int) *Chunker {
	return &Chunker{size: size}
}

// Size reports the configured leaf size.
func (c *Chunker) Size() int { return c.size }

// Chunk reads r to completion, returning one Node per size-byte leaf in
// stream order (the final leaf may be shorter). io.ReadFull is used
// instead of a bare Read so a reader that returns short reads without
// EOF (common over a pipe or network stream) can't split a single
// logical leaf across two undersized nodes.
func (c *Chunker) Chunk(r io.Reader) ([]*Node, error) {
	var nodes []*Node
	for {
		leaf := make([]byte, c.size)
		n, err := io.ReadFull(r, leaf)
		if n > 0 {
			nodes = append(nodes, &Node{Data: leaf[:n]})
		}
		switch err {
		case nil:
			continue
		case io.EOF, io.ErrUnexpectedEOF:
			return nodes, nil
		default:
			return nil, err
		}
	}
}
