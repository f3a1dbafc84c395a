package fetch

import (
	"context"
	"html/template"
	"strings"
)

// FetchFunc is the caller-visible fetch entry point, handed to
// RenderIndexFunc so a custom renderer can recursively resolve
// siblings (e.g. to detect thumbnails) without reaching back into the
// adapter's internals.
type FetchFunc func(ctx context.Context, req *Request) (*Response, error)

// RenderIndexFunc renders a directory listing as HTML (§6 construction
// parameter "renderIndex").
type RenderIndexFunc func(ctx context.Context, url string, entries []DirEntry, doFetch FetchFunc) (string, error)

var defaultIndexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Index of {{.URL}}</title></head>
<body>
<h1>Index of {{.URL}}</h1>
<ul>
{{range .Entries}}<li><a href="{{.Href}}">{{.Name}}</a></li>
{{end}}</ul>
</body>
</html>
`))

type indexTemplateData struct {
	URL     string
	Entries []indexEntryData
}

type indexEntryData struct {
	Name string
	Href string
}

// DefaultRenderIndex is the built-in renderIndex used when the adapter
// is constructed without one: an inline template, so there's no
// external asset that can fail to load.
func DefaultRenderIndex(_ context.Context, url string, entries []DirEntry, _ FetchFunc) (string, error) {
	data := indexTemplateData{URL: url}
	for _, e := range entries {
		name := e.Name
		href := name
		if e.Kind == KindDir {
			name += "/"
			href += "/"
		}
		data.Entries = append(data.Entries, indexEntryData{Name: name, Href: href})
	}
	var buf strings.Builder
	if err := defaultIndexTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
