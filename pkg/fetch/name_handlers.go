package fetch

import (
	"context"
	"strings"
)

// handleNameLocalGet serves GET/HEAD name://local/?key=A (§4.6): 302 to
// the key's public-id URL, or 404 if the alias is unknown.
func (a *Adapter) handleNameLocalGet(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	key := p.Query.Get("key")
	if key == "" {
		return nil, NewInvalidInput("missing ?key= query parameter")
	}
	info, ok, err := a.client.Name().HasKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotFound("no such key %q", key)
	}
	resp := NewResponse(302, nil)
	resp.Headers.Set("Location", "name://"+EncodeKeyCID(info.PublicID)+"/")
	return resp, nil
}

// handleNameLocalCreate serves POST name://local/?key=A: create the key
// if it doesn't already exist (idempotent).
func (a *Adapter) handleNameLocalCreate(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	key := p.Query.Get("key")
	if key == "" {
		return nil, NewInvalidInput("missing ?key= query parameter")
	}
	info, ok, err := a.client.Name().HasKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		info, err = a.client.Name().GenKey(ctx, key)
		if err != nil {
			return nil, err
		}
	}
	resp := NewResponse(201, nil)
	resp.Headers.Set("Location", "name://"+EncodeKeyCID(info.PublicID)+"/")
	return resp, nil
}

// handleNameLocalDelete serves DELETE name://local/?key=A.
func (a *Adapter) handleNameLocalDelete(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	key := p.Query.Get("key")
	if key == "" {
		return nil, NewInvalidInput("missing ?key= query parameter")
	}
	if err := a.client.Name().RemoveKey(ctx, key); err != nil {
		return nil, err
	}
	return NewResponse(200, nil), nil
}

// handleNameResolveGet resolves name://<host>/rest and delegates to the
// same fetch pipeline a direct content:// GET would use, so publishing a
// URL under a key and then reading the name URL is observationally
// identical to reading the original URL.
func (a *Adapter) handleNameResolveGet(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	return a.resolveAndDelegate(ctx, req, p, MethodGet)
}

func (a *Adapter) handleNameResolveHead(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	return a.resolveAndDelegate(ctx, req, p, MethodHead)
}

func (a *Adapter) resolveAndDelegate(ctx context.Context, req *Request, p *ParsedURL, method Method) (*Response, error) {
	target, err := a.client.Name().Resolve(ctx, p.Host)
	if err != nil {
		return nil, err
	}
	targetURL, err := canPathToURL(target)
	if err != nil {
		return nil, err
	}
	if rel := p.EncodedRelPath(); rel != "" {
		targetURL = strings.TrimSuffix(targetURL, "/") + "/" + rel
	}
	if len(p.Query) > 0 {
		targetURL += "?" + p.Query.Encode()
	}
	sub := &Request{Method: method, URL: targetURL, Headers: req.Headers, Body: req.Body}
	return a.Fetch(sub.WithContext(ctx))
}

// handleNamePublishByURL serves POST name://<publicId>/ (§4.6): the
// request body is a content URL to publish under the key.
func (a *Adapter) handleNamePublishByURL(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	body, err := readAll(req.Body)
	if err != nil {
		return nil, NewInvalidInput("reading publish body: %v", err)
	}
	target, err := ParseURL(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, NewInvalidInput("invalid content URL in publish body: %v", err)
	}
	if err := a.client.Name().Publish(ctx, p.Host, target.CANPath()); err != nil {
		return nil, err
	}
	return a.namePublishLocation(ctx, p.Host, 201)
}

// handleNameWritePublish serves PUT name://<publicId>/<subpath>: resolve
// the key's current root, apply a mutable-tree write, then publish the
// new root.
func (a *Adapter) handleNameWritePublish(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	base, err := a.resolveBaseRoot(ctx, p.Host)
	if err != nil {
		return nil, err
	}

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
	if err := a.client.Name().Publish(ctx, p.Host, "/content/"+EncodeContentCID(newRoot)+"/"); err != nil {
		return nil, err
	}
	return a.namePublishLocation(ctx, p.Host, 201)
}

// handleNameDeleteSubpath serves DELETE name://<host>/<path>: remove the
// sub-path from the key's current root and republish.
func (a *Adapter) handleNameDeleteSubpath(ctx context.Context, req *Request, p *ParsedURL) (*Response, error) {
	base, err := a.resolveBaseRoot(ctx, p.Host)
	if err != nil {
		return nil, err
	}

	scratch, err := a.client.Unixfs().NewScratch(ctx, base)
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
	if err := a.client.Name().Publish(ctx, p.Host, "/content/"+EncodeContentCID(newRoot)+"/"); err != nil {
		return nil, err
	}
	return a.namePublishLocation(ctx, p.Host, 200)
}

func (a *Adapter) resolveBaseRoot(ctx context.Context, host string) (CID, error) {
	current, err := a.client.Name().Resolve(ctx, host)
	if err != nil {
		return UndefCID, err
	}
	currentURL, err := canPathToURL(current)
	if err != nil {
		return UndefCID, err
	}
	currentParsed, err := ParseURL(currentURL)
	if err != nil {
		return UndefCID, err
	}
	root, err := currentParsed.RootCID()
	if err != nil {
		return UndefCID, err
	}
	if IsSentinelEmptyDir(root) {
		return UndefCID, nil
	}
	return root, nil
}

func (a *Adapter) namePublishLocation(ctx context.Context, host string, status int) (*Response, error) {
	info, _, err := a.client.Name().HasKey(ctx, host)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(status, nil)
	resp.Headers.Set("Location", "name://"+EncodeKeyCID(info.PublicID)+"/")
	return resp, nil
}
