package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/codec/dagjson"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/multiformats/go-multihash"
)

// fakeLinkedClient backs only Blocks() with a real in-memory
// content-addressed store, the only surface linked_handlers.go touches.
type fakeLinkedClient struct {
	blocks map[string][]byte
}

func newFakeLinkedClient() *fakeLinkedClient {
	return &fakeLinkedClient{blocks: map[string][]byte{}}
}

func (c *fakeLinkedClient) Blocks() BlockAPI  { return &fakeLinkedBlocks{c} }
func (c *fakeLinkedClient) Unixfs() UnixfsAPI { return fakeUnixfs{} }
func (c *fakeLinkedClient) Name() NameAPI     { return nil }
func (c *fakeLinkedClient) Pubsub() PubsubAPI { return fakePubsub{} }

type fakeLinkedBlocks struct{ c *fakeLinkedClient }

func (b *fakeLinkedBlocks) Get(ctx context.Context, id CID) ([]byte, error) {
	data, ok := b.c.blocks[id.KeyString()]
	if !ok {
		return nil, NewNotFound("no block")
	}
	return data, nil
}

func (b *fakeLinkedBlocks) Put(ctx context.Context, codec uint64, data []byte) (CID, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return UndefCID, err
	}
	id := cid.NewCidV1(codec, mh)
	b.c.blocks[id.KeyString()] = data
	return id, nil
}

func (b *fakeLinkedBlocks) Links(ctx context.Context, id CID) ([]CID, error) { return nil, nil }

func dagCBORBlock(t *testing.T, jsonDoc string) (*fakeLinkedClient, CID) {
	t.Helper()
	c := newFakeLinkedClient()
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := dagjson.Decode(nb, strings.NewReader(jsonDoc)); err != nil {
		t.Fatalf("decode fixture json: %v", err)
	}
	var buf bytes.Buffer
	if err := dagcbor.Encode(nb.Build(), &buf); err != nil {
		t.Fatalf("encode fixture cbor: %v", err)
	}
	id, err := c.Blocks().Put(context.Background(), 0x71, buf.Bytes())
	if err != nil {
		t.Fatalf("put fixture: %v", err)
	}
	return c, id
}

func TestHandleLinkedGetResolvesPath(t *testing.T) {
	c, root := dagCBORBlock(t, `{"name":"alice","tags":["a","b"]}`)
	a := New(c)

	resp, err := a.Fetch(&Request{Method: MethodGet, URL: "linked://" + EncodeContentCID(root) + "/tags/1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != `"b"` {
		t.Errorf("body = %q, want %q", body, `"b"`)
	}
}

func TestHandleLinkedGetMissingPathSegment(t *testing.T) {
	c, root := dagCBORBlock(t, `{"name":"alice"}`)
	a := New(c)

	resp, err := a.Fetch(&Request{Method: MethodGet, URL: "linked://" + EncodeContentCID(root) + "/missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Status)
	}
}

func TestHandleLinkedGetCBORNegotiation(t *testing.T) {
	c, root := dagCBORBlock(t, `{"name":"alice"}`)
	a := New(c)

	resp, err := a.Fetch(&Request{Method: MethodGet, URL: "linked://" + EncodeContentCID(root) + "/?format=dag-cbor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.Headers.Get("Content-Type"); got != "application/vnd.ipld.dag-cbor" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestHandleLinkedCreateStoresDagCBOR(t *testing.T) {
	c := newFakeLinkedClient()
	a := New(c, WithWritable(true))

	resp, err := a.Fetch(&Request{
		Method:  MethodPost,
		URL:     "linked://local/",
		Headers: headerWith("Content-Type", "application/json"),
		Body:    strings.NewReader(`{"x":1}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.Status)
	}
	if loc := resp.Headers.Get("Location"); !strings.HasPrefix(loc, "linked://") {
		t.Errorf("Location = %q", loc)
	}
}

func TestHandleLinkedPatchReplacesField(t *testing.T) {
	c, root := dagCBORBlock(t, `{"name":"alice","age":30}`)
	a := New(c, WithWritable(true))

	patch := `[{"op":"replace","path":"/age","value":31}]`
	resp, err := a.Fetch(&Request{
		Method: MethodPatch,
		URL:    "linked://" + EncodeContentCID(root) + "/",
		Body:   strings.NewReader(patch),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.Status)
	}
	loc := resp.Headers.Get("Location")
	newRootStr := strings.TrimSuffix(strings.TrimPrefix(loc, "linked://"), "/")

	getResp, err := a.Fetch(&Request{Method: MethodGet, URL: "linked://" + newRootStr + "/age"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(getResp.Body)
	if strings.TrimSpace(string(body)) != "31" {
		t.Errorf("age after patch = %q, want 31", body)
	}
}

func headerWith(key, value string) Header {
	h := NewHeader()
	h.Set(key, value)
	return h
}
