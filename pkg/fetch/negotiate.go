package fetch

import "strings"

// Encoding is the response shape the Content Negotiator (§4.2) selects.
type Encoding string

const (
	EncRaw     Encoding = "raw"      // single raw block
	EncCAR     Encoding = "car"      // exported DAG archive
	EncDagCBOR Encoding = "dag-cbor" // deterministic CBOR
	EncDagJSON Encoding = "dag-json" // deterministic JSON
	EncHTML    Encoding = "html"     // rendered directory listing
	EncDirJSON Encoding = "dir-json" // JSON array of names
	EncFile    Encoding = "file"     // raw file bytes, MIME sniffed
)

// NegotiateContent selects a response shape for the content:// scheme.
// Precedence: ?format= query, then Accept header, then a default that
// depends on whether the resolved entry is a directory.
func NegotiateContent(p *ParsedURL, accept string, isDir bool) Encoding {
	if enc, ok := formatToken(p.Query.Get("format")); ok {
		return enc
	}
	if enc, ok := acceptToEncoding(accept, isDir); ok {
		return enc
	}
	if isDir {
		return EncDirJSON
	}
	return EncFile
}

// NegotiateLinked selects CBOR vs. deterministic JSON for the
// linked-data graph (§4.7); JSON is the default.
func NegotiateLinked(p *ParsedURL, accept string) Encoding {
	switch strings.ToLower(p.Query.Get("format")) {
	case "dag-cbor", "application/vnd.ipld.dag-cbor":
		return EncDagCBOR
	case "dag-json", "json", "application/json", "application/vnd.ipld.dag-json":
		return EncDagJSON
	}
	accept = strings.ToLower(accept)
	if strings.Contains(accept, "dag-cbor") {
		return EncDagCBOR
	}
	return EncDagJSON
}

func formatToken(format string) (Encoding, bool) {
	switch strings.ToLower(format) {
	case "raw", "application/vnd.ipld.raw":
		return EncRaw, true
	case "car", "application/vnd.ipld.car":
		return EncCAR, true
	case "dag-cbor", "application/vnd.ipld.dag-cbor":
		return EncDagCBOR, true
	case "dag-json", "json", "application/json", "application/vnd.ipld.dag-json":
		return EncDagJSON, true
	case "":
		return "", false
	default:
		return "", false
	}
}

func acceptToEncoding(accept string, isDir bool) (Encoding, bool) {
	accept = strings.ToLower(accept)
	if accept == "" {
		return "", false
	}
	switch {
	case strings.Contains(accept, "vnd.ipld.raw"):
		return EncRaw, true
	case strings.Contains(accept, "vnd.ipld.car"):
		return EncCAR, true
	case strings.Contains(accept, "vnd.ipld.dag-cbor"):
		return EncDagCBOR, true
	case strings.Contains(accept, "vnd.ipld.dag-json"):
		return EncDagJSON, true
	case strings.Contains(accept, "application/json"):
		return EncDagJSON, true
	case isDir && strings.Contains(accept, "text/html"):
		return EncHTML, true
	}
	return "", false
}
