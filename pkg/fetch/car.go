package fetch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-varint"
)

// LinksFunc extracts the child CIDs referenced by a stored block, so
// WriteCAR can walk the DAG without depending on any one node codec.
type LinksFunc func(block []byte) ([]CID, error)

// GetBlockFunc fetches one block by CID.
type GetBlockFunc func(ctx context.Context, c CID) ([]byte, error)

// WriteCAR streams a CARv1 archive of root and everything reachable
// from it (§4.2 "car" format). It's a breadth-first framer rather than
// a selector-driven traversal — see DESIGN.md for why go-car/v2's
// richer API wasn't adopted here.
func WriteCAR(ctx context.Context, w io.Writer, root CID, get GetBlockFunc, links LinksFunc) error {
	header := encodeCARHeader(root)
	if err := writeUvarintFramed(w, header); err != nil {
		return fmt.Errorf("car export: write header: %w", err)
	}

	seen := make(map[string]bool)
	queue := []CID{root}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		key := c.KeyString()
		if seen[key] {
			continue
		}
		seen[key] = true

		if err := ctx.Err(); err != nil {
			return err
		}

		block, err := get(ctx, c)
		if err != nil {
			return fmt.Errorf("car export: fetch %s: %w", c, err)
		}
		if err := writeCARFrame(w, c, block); err != nil {
			return fmt.Errorf("car export: write frame %s: %w", c, err)
		}
		if links == nil {
			continue
		}
		next, err := links(block)
		if err != nil {
			return fmt.Errorf("car export: parse links of %s: %w", c, err)
		}
		queue = append(queue, next...)
	}
	return nil
}

func writeUvarintFramed(w io.Writer, payload []byte) error {
	if _, err := w.Write(varint.ToUvarint(uint64(len(payload)))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func writeCARFrame(w io.Writer, c CID, block []byte) error {
	cidBytes := c.Bytes()
	frame := make([]byte, 0, len(cidBytes)+len(block))
	frame = append(frame, cidBytes...)
	frame = append(frame, block...)
	return writeUvarintFramed(w, frame)
}

// encodeCARHeader builds the minimal CBOR map {"version":1,"roots":[root]}
// the CARv1 header requires. The shape is fixed, so this hand-encodes
// the handful of CBOR items involved rather than pulling in a general
// CBOR encoder for one constant structure.
func encodeCARHeader(root CID) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0xA2) // map(2)
	writeCBORTextString(&buf, "version")
	buf.WriteByte(0x01) // unsigned(1)
	writeCBORTextString(&buf, "roots")
	buf.WriteByte(0x81) // array(1)
	writeCBORCIDLink(&buf, root)
	return buf.Bytes()
}

func writeCBORTextString(buf *bytes.Buffer, s string) {
	writeCBORHead(buf, 3, uint64(len(s)))
	buf.WriteString(s)
}

// writeCBORCIDLink encodes a CID the way DAG-CBOR encodes IPLD links:
// CBOR tag 42 over a byte string holding a leading 0x00
// multibase-identity marker followed by the binary CID.
func writeCBORCIDLink(buf *bytes.Buffer, c CID) {
	buf.Write([]byte{0xD8, 0x2A}) // tag(42)
	payload := append([]byte{0x00}, c.Bytes()...)
	writeCBORHead(buf, 2, uint64(len(payload)))
	buf.Write(payload)
}

func writeCBORHead(buf *bytes.Buffer, major byte, length uint64) {
	hi := major << 5
	switch {
	case length < 24:
		buf.WriteByte(hi | byte(length))
	case length < 1<<8:
		buf.WriteByte(hi | 24)
		buf.WriteByte(byte(length))
	case length < 1<<16:
		buf.WriteByte(hi | 25)
		buf.WriteByte(byte(length >> 8))
		buf.WriteByte(byte(length))
	default:
		buf.WriteByte(hi | 26)
		for i := 3; i >= 0; i-- {
			buf.WriteByte(byte(length >> (8 * i)))
		}
	}
}

// CARReader parses a CARv1 byte stream frame-by-frame: the read side of
// WriteCAR, used to import an archive uploaded to content://local/.
type CARReader struct {
	r     io.Reader
	Roots []CID
}

// NewCARReader reads and decodes the archive header.
func NewCARReader(r io.Reader) (*CARReader, error) {
	br := bufio.NewReader(r)
	header, err := readUvarintFrame(br)
	if err != nil {
		return nil, fmt.Errorf("car import: read header: %w", err)
	}
	root, err := decodeCARHeader(header)
	if err != nil {
		return nil, err
	}
	return &CARReader{r: br, Roots: []CID{root}}, nil
}

// Next returns the next (CID, block) pair, or io.EOF once the stream is
// exhausted.
func (cr *CARReader) Next() (CID, []byte, error) {
	frame, err := readUvarintFrame(cr.r)
	if err != nil {
		return UndefCID, nil, err
	}
	n, c, err := cid.CidFromBytes(frame)
	if err != nil {
		return UndefCID, nil, fmt.Errorf("car import: parse block CID: %w", err)
	}
	return c, frame[n:], nil
}

func readUvarintFrame(r io.Reader) ([]byte, error) {
	length, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readUvarint decodes one LEB128 varint a byte at a time, independent of
// any one varint library's reader interface.
func readUvarint(r io.Reader) (uint64, error) {
	var x uint64
	var s uint
	buf := make([]byte, 1)
	for i := 0; i < 10; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		b := buf[0]
		if b < 0x80 {
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, fmt.Errorf("car import: varint too long")
}

// decodeCARHeader parses the fixed {"version":1,"roots":[root]} shape
// encodeCARHeader writes; it isn't a general CBOR decoder.
func decodeCARHeader(data []byte) (CID, error) {
	c := &cborCursor{buf: data}
	if !c.consume(0xA2) {
		return UndefCID, fmt.Errorf("car import: unsupported header shape")
	}
	if _, err := c.readTextString(); err != nil {
		return UndefCID, err
	}
	if !c.consume(0x01) {
		return UndefCID, fmt.Errorf("car import: unsupported header version")
	}
	if _, err := c.readTextString(); err != nil {
		return UndefCID, err
	}
	if !c.consume(0x81) {
		return UndefCID, fmt.Errorf("car import: expected a single root")
	}
	return c.readCIDLink()
}

type cborCursor struct {
	buf []byte
	pos int
}

func (c *cborCursor) consume(b byte) bool {
	if c.pos >= len(c.buf) || c.buf[c.pos] != b {
		return false
	}
	c.pos++
	return true
}

func (c *cborCursor) readHead() (major byte, length uint64, err error) {
	if c.pos >= len(c.buf) {
		return 0, 0, io.ErrUnexpectedEOF
	}
	b := c.buf[c.pos]
	c.pos++
	major = b >> 5
	info := b & 0x1F
	switch {
	case info < 24:
		length = uint64(info)
	case info == 24:
		if c.pos >= len(c.buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		length = uint64(c.buf[c.pos])
		c.pos++
	case info == 25:
		if c.pos+2 > len(c.buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		length = uint64(c.buf[c.pos])<<8 | uint64(c.buf[c.pos+1])
		c.pos += 2
	case info == 26:
		if c.pos+4 > len(c.buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		for i := 0; i < 4; i++ {
			length = length<<8 | uint64(c.buf[c.pos])
			c.pos++
		}
	default:
		return 0, 0, fmt.Errorf("car import: unsupported CBOR length encoding")
	}
	return major, length, nil
}

func (c *cborCursor) readTextString() (string, error) {
	major, length, err := c.readHead()
	if err != nil {
		return "", err
	}
	if major != 3 {
		return "", fmt.Errorf("car import: expected a text string")
	}
	if c.pos+int(length) > len(c.buf) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(c.buf[c.pos : c.pos+int(length)])
	c.pos += int(length)
	return s, nil
}

func (c *cborCursor) readCIDLink() (CID, error) {
	if !c.consume(0xD8) || !c.consume(0x2A) {
		return UndefCID, fmt.Errorf("car import: expected a CID link tag")
	}
	major, length, err := c.readHead()
	if err != nil {
		return UndefCID, err
	}
	if major != 2 {
		return UndefCID, fmt.Errorf("car import: expected a byte string")
	}
	if c.pos+int(length) > len(c.buf) {
		return UndefCID, io.ErrUnexpectedEOF
	}
	payload := c.buf[c.pos : c.pos+int(length)]
	c.pos += int(length)
	if len(payload) == 0 || payload[0] != 0x00 {
		return UndefCID, fmt.Errorf("car import: unsupported CID link encoding")
	}
	return cid.Cast(payload[1:])
}
