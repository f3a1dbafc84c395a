// Package merkledag builds and walks the content-addressed file/directory
// tree backing content:// (§4.2-§4.5): leaf chunks, chunk-list files, and
// directories, each identified by a CIDv1 over a sha2-256 multihash of its
// binary encoding.
package merkledag

import (
	"encoding/json"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// multicodecRaw and multicodecDagCbor tag leaf and structural nodes
// respectively, mirroring how a real unixfs/dag-pb store distinguishes
// raw chunk blocks from the nodes that link them together.
const (
	multicodecRaw     = 0x55
	multicodecDagCbor = 0x71
)

// Link is an edge from a directory or chunk-list node to a child block.
// Name is empty for chunk-list links — a file's chunks have no names of
// their own, only an order.
type Link struct {
	Name string  `json:"name,omitempty"`
	CID  cid.Cid `json:"cid"`
	Size uint64  `json:"size"`
	Dir  bool    `json:"dir,omitempty"`
}

// Node is one Merkle DAG node (§3 "Content Block"): a leaf chunk (Data
// set), a chunk-list pointing at a large file's chunks (Links set, Dir
// false), or a directory (Links set, Dir true).
type Node struct {
	Dir   bool   `json:"dir,omitempty"`
	Data  []byte `json:"data,omitempty"`
	Links []Link `json:"links,omitempty"`
}

// MarshalBinary is the node's wire encoding, also the input CID
// derivation hashes over.
func (n *Node) MarshalBinary() ([]byte, error) { return json.Marshal(n) }

// UnmarshalBinary is the inverse of MarshalBinary.
func (n *Node) UnmarshalBinary(data []byte) error { return json.Unmarshal(data, n) }

// CID derives the node's content identifier.
func (n *Node) CID() (cid.Cid, error) {
	data, err := n.MarshalBinary()
	if err != nil {
		return cid.Undef, err
	}
	codec := uint64(multicodecRaw)
	if len(n.Links) > 0 || n.Dir {
		codec = uint64(multicodecDagCbor)
	}
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(codec, mh), nil
}

// IsChunkList reports whether n is an internal file node pointing at
// ordered chunks rather than a leaf or a directory.
func (n *Node) IsChunkList() bool {
	return !n.Dir && len(n.Links) > 0
}
