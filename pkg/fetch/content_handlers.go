package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// handleContentGet implements GET for the content scheme (§4.4, §4.2,
// §4.3): Stat/Export, index.html resolution, content negotiation, and
// range serving.
func (a *Adapter) handleContentGet(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	return a.serveContent(ctx, req, p, false)
}

// handleContentHead mirrors handleContentGet without a body (§4.4).
func (a *Adapter) handleContentHead(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	return a.serveContent(ctx, req, p, true)
}

func (a *Adapter) serveContent(ctx context.Context, req *Request, p *ParsedURL, headOnly bool) (*Response, error) {
	root, err := p.RootCID()
	if err != nil {
		return nil, err
	}
	relPath := p.RelPath()

	stat, err := a.client.Unixfs().Stat(ctx, root, relPath)
	if err != nil {
		return nil, err
	}

	// Invariant 3: a directory with an index.html child resolves to it
	// unless noResolve is set, for both GET and HEAD.
	if stat.Kind == KindDir && !p.HasFlag("noResolve") {
		if entries, lsErr := a.client.Unixfs().Ls(ctx, root, relPath); lsErr == nil {
			if findEntry(entries, "index.html") != nil {
				indexPath := joinRelPath(relPath, "index.html")
				if indexStat, statErr := a.client.Unixfs().Stat(ctx, root, indexPath); statErr == nil {
					relPath, stat = indexPath, indexStat
				}
			}
		}
	}

	isDir := stat.Kind == KindDir
	enc := NegotiateContent(p, req.Headers.Get("Accept"), isDir)

	switch enc {
	case EncRaw:
		return a.serveRawBlock(ctx, root, relPath, headOnly)
	case EncCAR:
		return a.serveCAR(ctx, root, relPath, headOnly)
	case EncDagCBOR, EncDagJSON:
		return a.serveRawBlockAs(ctx, root, relPath, headOnly, dagContentType(enc))
	case EncHTML:
		return a.serveHTMLIndex(ctx, req, root, relPath, headOnly)
	case EncDirJSON:
		return a.serveDirJSON(ctx, root, relPath, headOnly)
	default:
		return a.serveFile(ctx, req, p, root, relPath, stat, headOnly)
	}
}

func (a *Adapter) serveRawBlock(ctx context.Context, root CID, relPath string, headOnly bool) (*Response, error) {
	return a.serveRawBlockAs(ctx, root, relPath, headOnly, "application/vnd.ipld.raw")
}

func dagContentType(enc Encoding) string {
	if enc == EncDagCBOR {
		return "application/vnd.ipld.dag-cbor"
	}
	return "application/vnd.ipld.dag-json"
}

func (a *Adapter) serveRawBlockAs(ctx context.Context, root CID, relPath string, headOnly bool, contentType string) (*Response, error) {
	c, err := a.client.Unixfs().Resolve(ctx, root, relPath)
	if err != nil {
		return nil, err
	}
	if headOnly {
		resp := NewResponse(200, nil)
		resp.Headers.Set("Content-Type", contentType)
		return resp, nil
	}
	data, err := a.client.Blocks().Get(ctx, c)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(200, data)
	resp.Headers.Set("Content-Type", contentType)
	resp.Headers.Set("Content-Length", strconv.Itoa(len(data)))
	return resp, nil
}

func (a *Adapter) serveCAR(ctx context.Context, root CID, relPath string, headOnly bool) (*Response, error) {
	target, err := a.client.Unixfs().Resolve(ctx, root, relPath)
	if err != nil {
		return nil, err
	}
	if headOnly {
		resp := NewResponse(200, nil)
		resp.Headers.Set("Content-Type", "application/vnd.ipld.car")
		return resp, nil
	}

	// WriteCAR calls get and then links for the same block, so links can
	// ask BlockAPI.Links about the CID that get last fetched.
	blocks := a.client.Blocks()
	var current CID
	get := func(ctx context.Context, c CID) ([]byte, error) {
		current = c
		return blocks.Get(ctx, c)
	}
	links := func([]byte) ([]CID, error) { return blocks.Links(ctx, current) }

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(WriteCAR(ctx, pw, target, get, links))
	}()
	resp := NewStreamingResponse(200, pr)
	resp.Headers.Set("Content-Type", "application/vnd.ipld.car")
	return resp, nil
}

func (a *Adapter) serveDirJSON(ctx context.Context, root CID, relPath string, headOnly bool) (*Response, error) {
	entries, err := a.client.Unixfs().Ls(ctx, root, relPath)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
		if e.Kind == KindDir {
			names[i] += "/"
		}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("encode directory listing: %w", err)
	}
	if headOnly {
		resp := NewResponse(200, nil)
		resp.Headers.Set("Content-Type", "application/json")
		return resp, nil
	}
	resp := NewResponse(200, data)
	resp.Headers.Set("Content-Type", "application/json")
	resp.Headers.Set("Content-Length", strconv.Itoa(len(data)))
	return resp, nil
}

func (a *Adapter) serveHTMLIndex(ctx context.Context, req *Request, root CID, relPath string, headOnly bool) (*Response, error) {
	entries, err := a.client.Unixfs().Ls(ctx, root, relPath)
	if err != nil {
		return nil, err
	}
	if headOnly {
		resp := NewResponse(200, nil)
		resp.Headers.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	}
	doFetch := func(ctx context.Context, r *Request) (*Response, error) {
		return a.Fetch(r.WithContext(ctx))
	}
	html, err := a.renderIndex(ctx, req.URL, entries, doFetch)
	if err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	resp := NewResponse(200, []byte(html))
	resp.Headers.Set("Content-Type", "text/html; charset=utf-8")
	return resp, nil
}

func (a *Adapter) serveFile(ctx context.Context, req *Request, p *ParsedURL, root CID, relPath string, stat Stat, headOnly bool) (*Response, error) {
	name := p.Query.Get("filename")
	if name == "" && len(p.Segments) > 0 {
		name = p.Segments[len(p.Segments)-1]
	}

	if headOnly {
		resp := NewResponse(200, nil)
		resp.Headers.Set("Content-Type", sniffByExtension(name))
		resp.Headers.Set("Content-Length", strconv.FormatInt(stat.Size, 10))
		resp.Headers.Set("Accept-Ranges", "bytes")
		return resp, nil
	}

	if rng, ok := ParseRange(req.Headers.Get("Range"), stat.Size); ok {
		body, err := a.client.Unixfs().Cat(ctx, root, relPath, rng.Start, rng.Length())
		if err != nil {
			return nil, err
		}
		resp := NewStreamingResponse(206, body)
		resp.Headers.Set("Content-Type", sniffByExtension(name))
		resp.Headers.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, stat.Size))
		resp.Headers.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
		resp.Headers.Set("Accept-Ranges", "bytes")
		return resp, nil
	}

	body, err := a.client.Unixfs().Cat(ctx, root, relPath, 0, stat.Size)
	if err != nil {
		return nil, err
	}
	contentType, body := sniffContentType(name, body)
	resp := NewStreamingResponse(200, body)
	resp.Headers.Set("Content-Type", contentType)
	resp.Headers.Set("Content-Length", strconv.FormatInt(stat.Size, 10))
	resp.Headers.Set("Accept-Ranges", "bytes")
	return resp, nil
}

func sniffByExtension(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// sniffContentType resolves MIME by pathname extension first (§4.2);
// when that's inconclusive it sniffs the leading bytes with mimetype,
// rebuilding the stream so no bytes are lost to the peek.
func sniffContentType(name string, rc io.ReadCloser) (string, io.ReadCloser) {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct, rc
	}
	peek := make([]byte, 512)
	n, _ := io.ReadFull(rc, peek)
	peek = peek[:n]
	detected := mimetype.Detect(peek)
	rebuilt := struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peek), rc), rc}
	return detected.String(), rebuilt
}

func findEntry(entries []DirEntry, name string) *DirEntry {
	for i := range entries {
		if entries[i].Name == name {
			return &entries[i]
		}
	}
	return nil
}

func joinRelPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// handleContentUpload serves POST content://local/ (§4.9): a CAR-archive
// import, or a fresh write (single file or multipart form) with no
// prior root.
func (a *Adapter) handleContentUpload(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	if strings.Contains(strings.ToLower(req.Headers.Get("Content-Type")), "vnd.ipld.car") {
		root, err := a.importCAR(ctx, req.Body)
		if err != nil {
			return nil, err
		}
		resp := NewResponse(201, nil)
		resp.Headers.Set("Location", "content://"+EncodeContentCID(root)+"/")
		return resp, nil
	}
	return a.writeTree(ctx, req, p, UndefCID)
}

func (a *Adapter) importCAR(ctx context.Context, body io.Reader) (CID, error) {
	if body == nil {
		return UndefCID, NewInvalidInput("missing CAR archive body")
	}
	cr, err := NewCARReader(body)
	if err != nil {
		return UndefCID, NewInvalidInput("%v", err)
	}
	for {
		c, data, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return UndefCID, NewInvalidInput("%v", err)
		}
		if _, err := a.client.Blocks().Put(ctx, c.Prefix().Codec, data); err != nil {
			return UndefCID, err
		}
	}
	if len(cr.Roots) == 0 {
		return UndefCID, NewInvalidInput("car import: archive has no roots")
	}
	return cr.Roots[0], nil
}

// handleContentPut implements PUT on a content root (§4.5): write-one or
// write-form against oldRoot (the sentinel empty directory counts as no
// root at all).
func (a *Adapter) handleContentPut(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	root, err := p.RootCID()
	if err != nil {
		return nil, err
	}
	if IsSentinelEmptyDir(root) {
		root = UndefCID
	}
	return a.writeTree(ctx, req, p, root)
}

func (a *Adapter) writeTree(ctx context.Context, req *Request, p *ParsedURL, base CID) (*Response, error) {
	scratch, err := a.client.Unixfs().NewScratch(ctx, base)
	if err != nil {
		return nil, err
	}
	defer scratch.Discard()

	relPath := p.RelPath()
	if req.MultipartForm != nil {
		if err := writeMultipart(ctx, scratch, relPath, req.MultipartForm); err != nil {
			return nil, err
		}
	} else if err := scratch.WriteFile(ctx, relPath, req.Body); err != nil {
		return nil, err
	}

	newRoot, _, err := scratch.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(201, nil)
	resp.Headers.Set("Location", "content://"+EncodeContentCID(newRoot)+"/"+p.EncodedRelPath())
	return resp, nil
}

// writeMultipart implements the write-form mode of §4.5: only parts
// submitted under the field name "file" are written, each under
// relPath keyed by its percent-encoded filename; later parts with a
// repeated filename win.
func writeMultipart(ctx context.Context, scratch ScratchHandle, relPath string, form *MultipartForm) error {
	for field, files := range form.Files {
		if field != "file" {
			continue
		}
		for _, f := range files {
			if f.Filename == "" {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return NewInvalidInput("multipart part %q: %v", f.Filename, err)
			}
			target := joinRelPath(relPath, url.PathEscape(f.Filename))
			err = scratch.WriteFile(ctx, target, rc)
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// handleContentDelete implements DELETE content://<CID>/<path> (§4.9):
// removes the sub-path and returns the new root.
func (a *Adapter) handleContentDelete(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	root, err := p.RootCID()
	if err != nil {
		return nil, err
	}
	scratch, err := a.client.Unixfs().NewScratch(ctx, root)
	if err != nil {
		return nil, err
	}
	defer scratch.Discard()

	if err := scratch.Remove(ctx, p.RelPath()); err != nil {
		return nil, err
	}
	newRoot, _, err := scratch.Finalize(ctx)
	if err != nil {
		return nil, err
	}

	var parent string
	if n := len(p.Segments); n > 1 {
		encoded := make([]string, n-1)
		for i, s := range p.Segments[:n-1] {
			encoded[i] = url.PathEscape(s)
		}
		parent = strings.Join(encoded, "/")
	}
	resp := NewResponse(200, nil)
	resp.Headers.Set("Location", "content://"+EncodeContentCID(newRoot)+"/"+parent)
	return resp, nil
}
