package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestForwardRelaysRequestAndResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.URL.Path != "/users/u1" || r.URL.RawQuery != "a=1&b=x%20y" {
			t.Errorf("unexpected url %s", r.URL.String())
		}
		if r.Header.Get("X-Trace") != "abc" {
			t.Errorf("custom header not forwarded")
		}
		if r.Header.Get("Proxy-Authorization") != "" {
			t.Errorf("hop-by-hop header forwarded")
		}
		if string(body) != `{"emails":["a@x.com"]}` {
			t.Errorf("unexpected body %s", body)
		}
		w.Header().Set("X-Upstream", "v2")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer upstream.Close()

	header := http.Header{}
	header.Set("X-Trace", "abc")
	header.Set("Proxy-Authorization", "secret")

	resp, err := NewForwarder(nil).Forward(context.Background(), ForwardRequest{
		Method:   http.MethodPut,
		Target:   mustParse(t, upstream.URL),
		Path:     "/users/u1",
		RawQuery: "a=1&b=x%20y",
		Header:   header,
		Body:     strings.NewReader(`{"emails":["a@x.com"]}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Upstream") != "v2" {
		t.Fatalf("upstream header lost")
	}
	if string(resp.Body) != `{"status":"ok"}` {
		t.Fatalf("unexpected body %s", resp.Body)
	}
}

func TestForwardDoesNotFollowRedirects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer upstream.Close()

	resp, err := NewForwarder(nil).Forward(context.Background(), ForwardRequest{
		Method: http.MethodGet,
		Target: mustParse(t, upstream.URL),
		Path:   "/users",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/elsewhere" {
		t.Fatalf("expected relayed redirect, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestForwardUnreachableBackend(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := mustParse(t, upstream.URL)
	upstream.Close()

	_, err := NewForwarder(nil).Forward(context.Background(), ForwardRequest{
		Method: http.MethodGet,
		Target: target,
		Path:   "/users",
	})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
