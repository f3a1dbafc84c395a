package merkledag

import (
	"bytes"
	"io"
	"testing"
)

// shortReader returns at most max bytes per Read call without ever
// signaling EOF early, the kind of reader io.ReadFull (not a bare
// Read) is needed to chunk correctly.
type shortReader struct {
	data []byte
	max  int
}

func (r *shortReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.max
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestChunkerSplitsEvenly(t *testing.T) {
	c := NewChunker(4)
	nodes, err := c.Chunk(bytes.NewReader([]byte("abcdefgh")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d chunks, want 2", len(nodes))
	}
	if string(nodes[0].Data) != "abcd" || string(nodes[1].Data) != "efgh" {
		t.Errorf("unexpected chunk contents: %q %q", nodes[0].Data, nodes[1].Data)
	}
}

func TestChunkerSplitsWithRemainder(t *testing.T) {
	c := NewChunker(3)
	nodes, err := c.Chunk(bytes.NewReader([]byte("abcdefg")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("got %d chunks, want 3", len(nodes))
	}
	if string(nodes[2].Data) != "g" {
		t.Errorf("last chunk = %q, want %q", nodes[2].Data, "g")
	}
}

func TestChunkerAssemblesFullLeavesFromShortReads(t *testing.T) {
	c := NewChunker(4)
	r := &shortReader{data: []byte("abcdefgh"), max: 1}
	nodes, err := c.Chunk(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d chunks, want 2", len(nodes))
	}
	if string(nodes[0].Data) != "abcd" || string(nodes[1].Data) != "efgh" {
		t.Errorf("unexpected chunk contents: %q %q", nodes[0].Data, nodes[1].Data)
	}
}

func TestChunkerEmptyInput(t *testing.T) {
	c := NewChunker(4)
	nodes, err := c.Chunk(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("got %d chunks, want 0", len(nodes))
	}
}
