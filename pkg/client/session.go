package client

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/dotcloud/go-client/pkg/client/trace"
)

// Session is the transport state shared by a Client, its clones and its prefix clients:
// the connection pool of the wrapped transport and the cookie jar.
// Session is safe for concurrent use if the wrapped transport is.
type Session struct {
	transport http.RoundTripper
	jar       http.CookieJar
}

// NewSession creates a Session over the transport.
func NewSession(transport http.RoundTripper) *Session {
	if transport == nil {
		panic(fmt.Errorf("transport cannot be nil"))
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		panic(fmt.Errorf("cannot create cookie jar: %w", err))
	}
	return &Session{transport: transport, jar: jar}
}

// Transport returns the wrapped transport.
func (s *Session) Transport() http.RoundTripper {
	return s.transport
}

// httpClient returns a native client, sending requests through the shared transport.
func (s *Session) httpClient(t *trace.ClientTrace) *http.Client {
	return &http.Client{
		Transport: roundTripper{trace: t, wrapped: s.transport},
		Jar:       s.jar,
	}
}

// roundTripper wraps a http.RoundTripper and calls trace hooks.
type roundTripper struct {
	trace   *trace.ClientTrace
	wrapped http.RoundTripper
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.trace != nil && rt.trace.HTTPRequestStart != nil {
		rt.trace.HTTPRequestStart(req)
	}

	res, err := rt.wrapped.RoundTrip(req)

	if rt.trace != nil && rt.trace.HTTPRequestDone != nil {
		rt.trace.HTTPRequestDone(res, err)
	}
	return res, err
}
