package fetch

import "testing"

func parsedURLWithFormat(format string) *ParsedURL {
	p := &ParsedURL{Scheme: SchemeContent, Host: "bafy"}
	p.Query = make(map[string][]string)
	if format != "" {
		p.Query.Set("format", format)
	}
	return p
}

func TestNegotiateContentFormatQueryWins(t *testing.T) {
	p := parsedURLWithFormat("car")
	if enc := NegotiateContent(p, "text/html", false); enc != EncCAR {
		t.Errorf("got %v, want %v", enc, EncCAR)
	}
}

func TestNegotiateContentAcceptHeader(t *testing.T) {
	p := parsedURLWithFormat("")
	cases := []struct {
		accept string
		isDir  bool
		want   Encoding
	}{
		{"application/vnd.ipld.raw", false, EncRaw},
		{"application/vnd.ipld.car", false, EncCAR},
		{"application/json", false, EncDagJSON},
		{"text/html", true, EncHTML},
		{"text/html", false, EncFile},
	}
	for _, tc := range cases {
		if got := NegotiateContent(p, tc.accept, tc.isDir); got != tc.want {
			t.Errorf("accept=%q isDir=%v: got %v, want %v", tc.accept, tc.isDir, got, tc.want)
		}
	}
}

func TestNegotiateContentDefaults(t *testing.T) {
	p := parsedURLWithFormat("")
	if got := NegotiateContent(p, "", true); got != EncDirJSON {
		t.Errorf("directory default: got %v, want %v", got, EncDirJSON)
	}
	if got := NegotiateContent(p, "", false); got != EncFile {
		t.Errorf("file default: got %v, want %v", got, EncFile)
	}
}

func TestNegotiateLinked(t *testing.T) {
	if got := NegotiateLinked(parsedURLWithFormat("dag-cbor"), ""); got != EncDagCBOR {
		t.Errorf("got %v, want %v", got, EncDagCBOR)
	}
	if got := NegotiateLinked(parsedURLWithFormat(""), "application/vnd.ipld.dag-cbor"); got != EncDagCBOR {
		t.Errorf("got %v, want %v", got, EncDagCBOR)
	}
	if got := NegotiateLinked(parsedURLWithFormat(""), ""); got != EncDagJSON {
		t.Errorf("default: got %v, want %v", got, EncDagJSON)
	}
}
