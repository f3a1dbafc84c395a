package fetch

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var log = logging.Logger("fetch")

const (
	defaultTimeout     = 30 * time.Second
	defaultNameTimeout = 120 * time.Second
)

// Handler serves one routed request. p is the already-parsed URL, handed
// down so handlers never re-parse it.
type Handler func(ctx context.Context, req *Request, p *ParsedURL) (*Response, error)

// Adapter is the request-routing and semantic-translation engine (§2).
// It owns no state of its own beyond construction options — all mutable
// state lives behind Client.
type Adapter struct {
	client      Client
	timeout     time.Duration
	nameTimeout time.Duration
	writable    bool
	onNotFound  Handler
	renderIndex RenderIndexFunc
	defaultHdrs Header
	tracer      trace.Tracer
}

// Option configures an Adapter at construction time (§6).
type Option func(*Adapter)

func WithTimeout(d time.Duration) Option { return func(a *Adapter) { a.timeout = d } }

func WithNameTimeout(d time.Duration) Option { return func(a *Adapter) { a.nameTimeout = d } }

// WithWritable toggles whether mutating routes (POST/PUT/DELETE/PATCH)
// are served at all; false routes them to the not-found fallback.
func WithWritable(w bool) Option { return func(a *Adapter) { a.writable = w } }

func WithNotFoundHandler(h Handler) Option { return func(a *Adapter) { a.onNotFound = h } }

func WithRenderIndex(fn RenderIndexFunc) Option { return func(a *Adapter) { a.renderIndex = fn } }

func WithDefaultHeaders(h Header) Option { return func(a *Adapter) { a.defaultHdrs = h } }

// New builds an Adapter over client, the one required construction
// parameter.
func New(client Client, opts ...Option) *Adapter {
	a := &Adapter{
		client:      client,
		timeout:     defaultTimeout,
		nameTimeout: defaultNameTimeout,
		writable:    true,
		renderIndex: DefaultRenderIndex,
		defaultHdrs: NewHeader(),
		tracer:      otel.Tracer("github.com/canfetch/adapter"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.onNotFound == nil {
		a.onNotFound = defaultNotFoundHandler
	}
	return a
}

func defaultNotFoundHandler(_ context.Context, _ *Request, _ *ParsedURL) (*Response, error) {
	return nil, NewUnsupported("")
}

// Fetch is the adapter's sole entry point: Request in, Response out,
// exactly the translation §1 describes. Cancellation flows from
// req.Context() through every capability call the resolved handler
// makes.
func (a *Adapter) Fetch(req *Request) (resp *Response, err error) {
	ctx, span := a.tracer.Start(req.Context(), "fetch."+string(req.Method))
	defer span.End()

	p, err := ParseURL(req.URL)
	if err != nil {
		return withDefaultHeaders(mapError(err), a.defaultHdrs), nil
	}

	// §5's timeout/nameTimeout tunables bound block/DAG/export and naming
	// operations only; bus:// subscriptions live as long as the client
	// stays connected (invariant 4), so they keep req.Context() unbounded.
	if p.Scheme != SchemeBus {
		var cancel context.CancelFunc
		timeout := a.timeout
		if p.Scheme == SchemeName {
			timeout = a.nameTimeout
		}
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer func() {
			// Canceling after a streaming response is built would kill its
			// body mid-read, so cancel runs here only when no body was
			// returned. Every Response built by NewResponse or
			// NewStreamingResponse carries a Body, so ctx is otherwise
			// released when its timeout elapses, not here.
			if resp == nil || resp.Body == nil {
				cancel()
			}
		}()
	}

	handler := a.route(p, req.Method)
	resp, err = handler(ctx, req, p)
	if err != nil {
		log.Debugw("handler error", "scheme", p.Scheme, "method", req.Method, "err", err)
		return withDefaultHeaders(mapError(err), a.defaultHdrs), nil
	}
	return withDefaultHeaders(resp, a.defaultHdrs), nil
}

func withDefaultHeaders(resp *Response, defaults Header) *Response {
	if resp == nil {
		return resp
	}
	if resp.Headers == nil {
		resp.Headers = NewHeader()
	}
	for k, vs := range defaults {
		if _, exists := resp.Headers[k]; !exists {
			resp.Headers[k] = vs
		}
	}
	return resp
}
