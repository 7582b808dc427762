// Package proxy relays a request to an upstream and returns its response verbatim.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrBackendUnavailable wraps every transport-level failure: refused connections, timeouts,
// resets and truncated response bodies.
var ErrBackendUnavailable = errors.New("backend unavailable")

// DefaultTimeout bounds a single upstream exchange.
const DefaultTimeout = 30 * time.Second

// Hop-by-hop headers are connection-scoped and never forwarded.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Host":                {},
}

// ForwardRequest is the inbound request as seen by the gateway.
type ForwardRequest struct {
	Method string
	Target *url.URL
	// Path is the escaped request path, appended to Target as is.
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.Reader
	// ContentLength is the inbound length when known; zero or negative streams the body chunked.
	ContentLength int64
}

// Response is the upstream reply, fully buffered.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Forwarder issues upstream requests. Instances are safe for concurrent use.
type Forwarder struct {
	client *http.Client
}

// NewForwarder uses client when non-nil, otherwise a client with DefaultTimeout.
func NewForwarder(client *http.Client) *Forwarder {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	// Redirects are the caller's business; relay them untouched.
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Forwarder{client: &c}
}

// Forward sends req to Target + Path (+ "?" + RawQuery) with the same method, headers and body.
// Any upstream status, including 4xx and 5xx, is a successful forward.
func (f *Forwarder) Forward(ctx context.Context, req ForwardRequest) (*Response, error) {
	if req.Target == nil {
		return nil, fmt.Errorf("%w: no target", ErrBackendUnavailable)
	}
	target := strings.TrimSuffix(req.Target.Scheme+"://"+req.Target.Host+req.Target.EscapedPath(), "/") + req.Path
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}

	outbound, err := http.NewRequestWithContext(ctx, req.Method, target, req.Body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if req.ContentLength > 0 {
		outbound.ContentLength = req.ContentLength
	}
	copyHeaders(outbound.Header, req.Header)

	resp, err := f.client.Do(outbound)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, req.Target.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body from %s: %v", ErrBackendUnavailable, req.Target.Host, err)
	}

	header := make(http.Header, len(resp.Header))
	copyHeaders(header, resp.Header)

	return &Response{StatusCode: resp.StatusCode, Header: header, Body: body}, nil
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(k)]; hop {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
