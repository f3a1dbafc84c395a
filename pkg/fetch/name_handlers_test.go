package fetch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

// fakeNameClient layers a key/publish registry over fakeContentClient's
// in-memory tree, so the name:// resolve-and-delegate path can be
// exercised end to end against a real (if tiny) content tree.
type fakeNameClient struct {
	*fakeContentClient
	keys       map[string]KeyInfo // alias -> info
	byPublicID map[string]string  // EncodeKeyCID(PublicID) -> alias
	published  map[string]string  // alias -> CAN-path
}

func newFakeNameClient() *fakeNameClient {
	return &fakeNameClient{
		fakeContentClient: newFakeContentClient(),
		keys:              map[string]KeyInfo{},
		byPublicID:        map[string]string{},
		published:         map[string]string{},
	}
}

func (c *fakeNameClient) Name() NameAPI { return c }

func (c *fakeNameClient) resolveAlias(host string) (string, bool) {
	if _, ok := c.keys[host]; ok {
		return host, true
	}
	if alias, ok := c.byPublicID[host]; ok {
		return alias, true
	}
	return "", false
}

func (c *fakeNameClient) HasKey(ctx context.Context, alias string) (KeyInfo, bool, error) {
	resolved, ok := c.resolveAlias(alias)
	if !ok {
		return KeyInfo{}, false, nil
	}
	return c.keys[resolved], true, nil
}

func (c *fakeNameClient) GenKey(ctx context.Context, alias string) (KeyInfo, error) {
	if info, ok := c.keys[alias]; ok {
		return info, nil
	}
	id := memCID([]byte("pubkey:" + alias))
	info := KeyInfo{Alias: alias, PublicID: id}
	c.keys[alias] = info
	c.byPublicID[EncodeKeyCID(id)] = alias
	c.published[alias] = "/content/" + SentinelEmptyDirCID + "/"
	return info, nil
}

func (c *fakeNameClient) RemoveKey(ctx context.Context, alias string) error {
	if info, ok := c.keys[alias]; ok {
		delete(c.byPublicID, EncodeKeyCID(info.PublicID))
	}
	delete(c.keys, alias)
	delete(c.published, alias)
	return nil
}

func (c *fakeNameClient) Publish(ctx context.Context, host, targetPath string) error {
	alias, ok := c.resolveAlias(host)
	if !ok {
		return NewNotFound("no such key %q", host)
	}
	c.published[alias] = targetPath
	return nil
}

func (c *fakeNameClient) Resolve(ctx context.Context, host string) (string, error) {
	alias, ok := c.resolveAlias(host)
	if !ok {
		return "", NewNotFound("no such key %q", host)
	}
	target, ok := c.published[alias]
	if !ok {
		return "", NewNotFound("key %q is not published", host)
	}
	return target, nil
}

func TestHandleNamePublishByURLThenResolve(t *testing.T) {
	c := newFakeNameClient()
	root := c.seedRoot(&memNode{isDir: true, children: map[string]*memNode{
		"hello.txt": {data: []byte("hello from a name")},
	}})
	info, err := c.GenKey(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GenKey failed: %v", err)
	}
	a := New(c, WithWritable(true))
	publicID := EncodeKeyCID(info.PublicID)

	publishResp, err := a.Fetch(&Request{
		Method: MethodPost,
		URL:    "name://" + publicID + "/",
		Body:   strings.NewReader("content://" + EncodeContentCID(root) + "/hello.txt"),
	})
	if err != nil {
		t.Fatalf("publish: unexpected error: %v", err)
	}
	if publishResp.Status != http.StatusCreated {
		t.Fatalf("publish status = %d, want 201", publishResp.Status)
	}

	getResp, err := a.Fetch(&Request{Method: MethodGet, URL: "name://" + publicID + "/"})
	if err != nil {
		t.Fatalf("resolve: unexpected error: %v", err)
	}
	if getResp.Status != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", getResp.Status)
	}
	body, _ := io.ReadAll(getResp.Body)
	if string(body) != "hello from a name" {
		t.Errorf("body = %q", body)
	}
}

func TestHandleNameResolveUnknownKeyIsNotFound(t *testing.T) {
	c := newFakeNameClient()
	a := New(c)

	resp, err := a.Fetch(&Request{Method: MethodGet, URL: "name://kunknownkey/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Status)
	}
}

func TestHandleNameWritePublishAgainstFreshKey(t *testing.T) {
	c := newFakeNameClient()
	info, err := c.GenKey(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GenKey failed: %v", err)
	}
	a := New(c, WithWritable(true))
	publicID := EncodeKeyCID(info.PublicID)

	putResp, err := a.Fetch(&Request{
		Method: MethodPut,
		URL:    "name://" + publicID + "/newfile.txt",
		Body:   strings.NewReader("new content"),
	})
	if err != nil {
		t.Fatalf("write: unexpected error: %v", err)
	}
	if putResp.Status != http.StatusCreated {
		t.Fatalf("write status = %d, want 201", putResp.Status)
	}

	getResp, err := a.Fetch(&Request{Method: MethodGet, URL: "name://" + publicID + "/newfile.txt"})
	if err != nil {
		t.Fatalf("resolve: unexpected error: %v", err)
	}
	body, _ := io.ReadAll(getResp.Body)
	if string(body) != "new content" {
		t.Errorf("body = %q, want %q", body, "new content")
	}
}

func TestHandleNameDeleteSubpathRepublishes(t *testing.T) {
	c := newFakeNameClient()
	info, err := c.GenKey(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GenKey failed: %v", err)
	}
	a := New(c, WithWritable(true))
	publicID := EncodeKeyCID(info.PublicID)

	if _, err := a.Fetch(&Request{
		Method: MethodPut,
		URL:    "name://" + publicID + "/keep.txt",
		Body:   strings.NewReader("keep"),
	}); err != nil {
		t.Fatalf("seed write: unexpected error: %v", err)
	}
	if _, err := a.Fetch(&Request{
		Method: MethodPut,
		URL:    "name://" + publicID + "/drop.txt",
		Body:   strings.NewReader("drop"),
	}); err != nil {
		t.Fatalf("seed write: unexpected error: %v", err)
	}

	delResp, err := a.Fetch(&Request{Method: MethodDelete, URL: "name://" + publicID + "/drop.txt"})
	if err != nil {
		t.Fatalf("delete: unexpected error: %v", err)
	}
	if delResp.Status != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", delResp.Status)
	}

	keepResp, err := a.Fetch(&Request{Method: MethodGet, URL: "name://" + publicID + "/keep.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(keepResp.Body)
	if string(body) != "keep" {
		t.Errorf("keep.txt after delete = %q, want %q", body, "keep")
	}

	dropResp, err := a.Fetch(&Request{Method: MethodGet, URL: "name://" + publicID + "/drop.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropResp.Status != http.StatusNotFound {
		t.Errorf("drop.txt after delete: status = %d, want 404", dropResp.Status)
	}
}
