package fetch

import (
	"net/url"
	"strings"
)

// ParsedURL is the decomposition of a scheme://host/path?query Request
// URL into a root token and ordered, percent-decoded path segments, per
// §4.1.
type ParsedURL struct {
	Scheme   Scheme
	Host     string // the root token: a CID, a key alias, a DNS name, a topic, or "local"
	Segments []string
	Query    url.Values
}

// ParseURL decomposes a Request URL. The host is always the root token
// — "content://<CID>/example.txt" parses to Host=<CID>,
// Segments=["example.txt"], never treating a bare filename as a host.
func ParseURL(raw string) (*ParsedURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidInputError{Msg: "malformed URL: " + err.Error()}
	}

	scheme := Scheme(u.Scheme)
	switch scheme {
	case SchemeContent, SchemeName, SchemeLinked, SchemeBus:
	default:
		return nil, &InvalidInputError{Msg: "unsupported scheme: " + u.Scheme}
	}

	host := u.Host
	if host == "" {
		return nil, &InvalidInputError{Msg: "URL is missing a host/root token"}
	}

	segments, err := splitSegments(u.EscapedPath())
	if err != nil {
		return nil, err
	}

	return &ParsedURL{
		Scheme:   scheme,
		Host:     host,
		Segments: segments,
		Query:    u.Query(),
	}, nil
}

func splitSegments(escapedPath string) ([]string, error) {
	trimmed := strings.Trim(escapedPath, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		dec, err := url.PathUnescape(part)
		if err != nil {
			return nil, &InvalidInputError{Msg: "bad percent-encoding in path: " + err.Error()}
		}
		out = append(out, dec)
	}
	return out, nil
}

// IsReserved reports whether the root token is the reserved "local" host.
func (p *ParsedURL) IsReserved() bool {
	return p.Host == ReservedHost
}

// RootCID parses the host as a CID, for schemes where the root is
// content-addressed.
func (p *ParsedURL) RootCID() (CID, error) {
	c, err := ParseCID(p.Host)
	if err != nil {
		return UndefCID, &InvalidInputError{Msg: "invalid CID in URL host: " + err.Error()}
	}
	return c, nil
}

// RelPath joins the percent-decoded path segments with slashes, the form
// used for unixfs-style relative paths.
func (p *ParsedURL) RelPath() string {
	return strings.Join(p.Segments, "/")
}

// EncodedRelPath is RelPath with every segment percent-encoded again,
// for composing canonical CAN-paths and Location headers.
func (p *ParsedURL) EncodedRelPath() string {
	encoded := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		encoded[i] = url.PathEscape(s)
	}
	return strings.Join(encoded, "/")
}

// HasFlag reports whether a query parameter is present at all,
// regardless of its value — used for boolean toggles like noResolve.
func (p *ParsedURL) HasFlag(name string) bool {
	_, ok := p.Query[name]
	return ok
}

// canPathToURL turns a canonical CAN-path ("/content/<CID>/<seg>/…")
// into the URL form this package parses ("content://<CID>/<seg>/…"),
// the inverse of ParsedURL.CANPath.
func canPathToURL(canPath string) (string, error) {
	trimmed := strings.TrimPrefix(canPath, "/")
	scheme, rest, ok := strings.Cut(trimmed, "/")
	if !ok || scheme == "" || rest == "" {
		return "", NewInvalidInput("malformed resolved CAN-path %q", canPath)
	}
	return scheme + "://" + rest, nil
}

// CANPath renders the canonical CAN-path form from §3:
// "/content/<CID>/<seg>/…" or "/name/<key-or-dns>/<seg>/…".
func (p *ParsedURL) CANPath() string {
	b := strings.Builder{}
	b.WriteByte('/')
	b.WriteString(string(p.Scheme))
	b.WriteByte('/')
	b.WriteString(p.Host)
	if rel := p.EncodedRelPath(); rel != "" {
		b.WriteByte('/')
		b.WriteString(rel)
	}
	return b.String()
}
