// Package client implements an HTTP client for the dotCloud REST API.
//
// Client builds request URLs against a configured endpoint, attaches authentication
// by an auth.Authenticator, encodes JSON payloads and classifies each response
// as a successful Response or a *RESTAPIError.
//
// Client is an immutable value, With* methods return a modified clone.
// Clones and prefix clients, see Client.WithPrefix, share one Session,
// so the connection pool, keep-alive connections and cookies are reused.
//
// Each request is synchronous and limited by the RequestTimeout, no retries are made.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dotcloud/go-client/pkg/client/auth"
	"github.com/dotcloud/go-client/pkg/client/counter"
	"github.com/dotcloud/go-client/pkg/client/decode"
	"github.com/dotcloud/go-client/pkg/client/trace"
)

// DefaultEndpoint of the dotCloud REST API.
const DefaultEndpoint = "https://rest.dotcloud.com/v1"

// RequestTimeout limits each request, it cannot be changed per call.
const RequestTimeout = 180 * time.Second

const (
	// TraceIDHeader contains the API trace ID for support and debugging.
	TraceIDHeader = "X-DotCloud-TraceID"
	// VersionMinHeader contains the minimal supported client version.
	VersionMinHeader = "X-DotCloud-CLI-Version-Min"
	// VersionCurHeader contains the current client version.
	VersionCurHeader = "X-DotCloud-CLI-Version-Cur"
)

// VersionChecker is called with the version headers of each successful response.
// It is a notification only, it cannot stop the response.
type VersionChecker func(minVersion, curVersion string)

var errRequestTimeout = errors.New("request timeout")

// Client is a configurable HTTP client for the dotCloud REST API.
type Client struct {
	session        *Session
	endpoint       string
	header         http.Header
	debug          bool
	authenticator  auth.Authenticator
	versionChecker VersionChecker
	logger         zerolog.Logger
	traceFactory   trace.Factory
}

// requestDef is a definition of one request.
type requestDef struct {
	method    string
	path      string
	header    http.Header
	body      []byte
	streaming bool
}

// New creates new Client with the DefaultEndpoint and no authentication.
func New() Client {
	c := Client{
		session:       NewSession(DefaultTransport()),
		endpoint:      DefaultEndpoint,
		header:        make(http.Header),
		authenticator: auth.None{},
		logger:        DefaultLogger(),
	}
	c.header.Set("Accept", ContentTypeApplicationJSON)
	c.header.Set("Accept-Encoding", "gzip, br")
	return c
}

// DefaultLogger writes human-readable logs to stderr.
func DefaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// WithEndpoint returns a clone of the Client with the API endpoint set.
func (c Client) WithEndpoint(endpoint string) Client {
	if _, err := url.Parse(endpoint); err != nil {
		panic(fmt.Errorf(`endpoint "%s" is not valid: %w`, endpoint, err))
	}
	c.endpoint = endpoint
	return c
}

// WithPrefix returns a derived Client with the prefix appended to the endpoint.
// The derived Client shares the Session and the authenticator with the parent.
func (c Client) WithPrefix(prefix string) Client {
	return c.WithEndpoint(c.endpoint + prefix)
}

// WithDebug returns a clone of the Client with debug logging enabled or disabled.
// Requests and responses are logged by the Client logger, see WithLogger.
func (c Client) WithDebug(debug bool) Client {
	c.debug = debug
	return c
}

// WithUserAgent returns a clone of the Client with user agent set.
func (c Client) WithUserAgent(v string) Client {
	return c.WithHeader("User-Agent", v)
}

// WithHeader returns a clone of the Client with common header set.
func (c Client) WithHeader(key, value string) Client {
	c.header = c.header.Clone()
	c.header.Set(key, value)
	return c
}

// WithAuthenticator returns a clone of the Client with the authenticator set.
func (c Client) WithAuthenticator(a auth.Authenticator) Client {
	if a == nil {
		a = auth.None{}
	}
	c.authenticator = a
	return c
}

// WithVersionChecker returns a clone of the Client with the version checker set.
func (c Client) WithVersionChecker(fn VersionChecker) Client {
	c.versionChecker = fn
	return c
}

// WithLogger returns a clone of the Client with the logger set.
func (c Client) WithLogger(logger zerolog.Logger) Client {
	c.logger = logger
	return c
}

// WithSession returns a clone of the Client using the session.
func (c Client) WithSession(s *Session) Client {
	if s == nil {
		panic(fmt.Errorf("session cannot be nil"))
	}
	c.session = s
	return c
}

// WithTransport returns a clone of the Client with a new Session over the transport.
func (c Client) WithTransport(transport http.RoundTripper) Client {
	return c.WithSession(NewSession(transport))
}

// WithTrace returns a clone of the Client with trace hooks set, previous hooks are replaced.
func (c Client) WithTrace(fn trace.Factory) Client {
	c.traceFactory = fn
	return c
}

// AndTrace returns a clone of the Client with trace hooks added, previous hooks are called first.
func (c Client) AndTrace(fn trace.Factory) Client {
	c.traceFactory = trace.Chain(c.traceFactory, fn)
	return c
}

// Endpoint returns the API endpoint.
func (c Client) Endpoint() string {
	return c.endpoint
}

// Session returns the shared transport state.
func (c Client) Session() *Session {
	return c.session
}

// Authenticator returns the configured authenticator.
func (c Client) Authenticator() auth.Authenticator {
	return c.authenticator
}

// Debug returns true if requests and responses are logged.
func (c Client) Debug() bool {
	return c.debug
}

// RequireAuthentication returns auth.ErrAuthenticationNotConfigured if the Client has no credentials.
// The Client never calls it implicitly, callers decide which operations need credentials.
func (c Client) RequireAuthentication() error {
	return auth.Require(c.authenticator)
}

// BuildURL converts the path to the request URL.
// An empty path or a path starting with "/" is appended to the endpoint,
// any other path is considered to be an absolute URL and is returned unchanged.
func (c Client) BuildURL(path string) string {
	if path == "" || strings.HasPrefix(path, "/") {
		return c.endpoint + path
	}
	return path
}

// Get sends GET request, the JSON body is read and decoded.
func (c Client) Get(ctx context.Context, path string) (Response, error) {
	return c.send(ctx, requestDef{method: http.MethodGet, path: path})
}

// GetStreaming sends GET request, the body is left unread, see Response.Next.
// The Response must be closed.
func (c Client) GetStreaming(ctx context.Context, path string) (Response, error) {
	return c.send(ctx, requestDef{method: http.MethodGet, path: path, streaming: true})
}

// Post sends POST request with the JSON encoded payload, nil payload is sent as an empty object.
func (c Client) Post(ctx context.Context, path string, payload any) (Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, payload)
}

// Put sends PUT request with the JSON encoded payload, nil payload is sent as an empty object.
func (c Client) Put(ctx context.Context, path string, payload any) (Response, error) {
	return c.sendJSON(ctx, http.MethodPut, path, payload)
}

// Patch sends PATCH request with the JSON encoded payload, nil payload is sent as an empty object.
func (c Client) Patch(ctx context.Context, path string, payload any) (Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, payload)
}

// Delete sends DELETE request with an empty body.
// The request has ContentLength 0, net/http does not write the header for a bodiless DELETE.
func (c Client) Delete(ctx context.Context, path string) (Response, error) {
	return c.send(ctx, requestDef{method: http.MethodDelete, path: path})
}

func (c Client) sendJSON(ctx context.Context, method, path string, payload any) (Response, error) {
	body, err := encodePayload(payload)
	if err != nil {
		return Response{}, fmt.Errorf(`request %s "%s": %w`, method, c.BuildURL(path), err)
	}
	header := make(http.Header)
	header.Set("Content-Type", ContentTypeApplicationJSON)
	return c.send(ctx, requestDef{method: method, path: path, header: header, body: body})
}

func (c Client) send(ctx context.Context, def requestDef) (out Response, err error) {
	// Method cannot be called on an empty value
	if c.session == nil {
		panic(fmt.Errorf("client value is not initialized"))
	}

	reqURL := c.BuildURL(def.path)

	// Init trace
	ctx, t := c.newTrace(ctx, def.method, reqURL)
	if t != nil {
		ctx = httptrace.WithClientTrace(ctx, &t.ClientTrace)
		if t.RequestProcessed != nil {
			defer func() {
				t.RequestProcessed(out, err)
			}()
		}
	}

	// Fixed timeout, for a streaming response it is stopped when the headers are received
	ctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(RequestTimeout, func() { cancel(errRequestTimeout) })
	keepOpen := false
	defer func() {
		if !keepOpen {
			timer.Stop()
			cancel(nil)
		}
	}()

	// Create request
	req, err := c.newRequest(ctx, def, reqURL)
	if err != nil {
		return Response{}, err
	}

	// Authentication
	if err := c.authenticator.DecorateRequest(req); err != nil {
		return Response{}, fmt.Errorf(`request %s "%s": cannot authenticate: %w`, req.Method, reqURL, err)
	}

	// Send request
	startedAt := time.Now()
	res, err := c.session.httpClient(t).Do(req)
	if err != nil {
		return Response{}, handleSendError(startedAt, req, err)
	}
	if def.streaming {
		timer.Stop()
		res.Body = c.streamingBody(res.Body, cancel)
	}

	if err := c.authenticator.DecorateResponse(res); err != nil {
		_ = res.Body.Close()
		return Response{}, fmt.Errorf(`request %s "%s": cannot authenticate: %w`, req.Method, reqURL, err)
	}

	out, err = c.makeResponse(res, def.streaming)
	keepOpen = err == nil && out.Streaming()
	return out, err
}

func (c Client) newTrace(ctx context.Context, method, reqURL string) (context.Context, *trace.ClientTrace) {
	factory := c.traceFactory
	if c.debug {
		factory = trace.Chain(trace.DebugTracer(c.logger, TraceIDHeader), factory)
	}
	if factory == nil {
		return ctx, nil
	}
	return factory(ctx, method, reqURL)
}

func (c Client) newRequest(ctx context.Context, def requestDef, reqURL string) (*http.Request, error) {
	var body io.Reader
	if def.body != nil {
		body = bytes.NewReader(def.body)
	}
	req, err := http.NewRequestWithContext(ctx, def.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf(`request %s "%s": %w`, def.method, reqURL, err)
	}

	// Global headers
	for k, values := range c.header {
		for _, v := range values {
			req.Header.Set(k, v)
		}
	}

	// Request headers
	for k, values := range def.header {
		req.Header.Del(k) // clear global values
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	return req, nil
}

// makeResponse classifies the raw response as a Response or a *RESTAPIError.
func (c Client) makeResponse(res *http.Response, streaming bool) (Response, error) {
	traceID := res.Header.Get(TraceIDHeader)

	// No content, a streaming response is empty
	if res.StatusCode == http.StatusNoContent {
		_ = res.Body.Close()
		return Response{raw: res, traceID: traceID, streaming: streaming}, nil
	}

	// Only JSON responses are supported
	contentType := res.Header.Get("Content-Type")
	if !isJSONContentType(contentType) {
		_ = res.Body.Close()
		return Response{}, &RESTAPIError{
			Code:        http.StatusInternalServerError,
			Description: fmt.Sprintf("Server responded with unsupported media type: %s (status: %d)", contentType, res.StatusCode),
			TraceID:     traceID,
		}
	}

	body, err := decode.Decode(res.Body, res.Header.Get("Content-Encoding"))
	if err != nil {
		_ = res.Body.Close()
		return Response{}, readBodyError(res.Request, err)
	}

	// Errors
	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer body.Close()
		content, err := io.ReadAll(body)
		if err != nil {
			return Response{}, readBodyError(res.Request, err)
		}
		apiErr := &RESTAPIError{Code: res.StatusCode, TraceID: traceID}
		desc, found := errorDescription(content)
		switch {
		case found:
			apiErr.Description = desc
		case res.StatusCode == http.StatusTeapot:
			apiErr.Description = MaintenanceMessage
		default:
			apiErr.Description = http.StatusText(res.StatusCode)
		}
		return Response{}, apiErr
	}

	// Version compatibility notification
	if c.versionChecker != nil {
		c.versionChecker(res.Header.Get(VersionMinHeader), res.Header.Get(VersionCurHeader))
	}

	if streaming {
		return newStreamingResponse(res, traceID, body), nil
	}

	defer body.Close()
	content, err := io.ReadAll(body)
	if err != nil {
		return Response{}, readBodyError(res.Request, err)
	}
	return newResponse(res, traceID, content)
}

// readBodyError rewords the fixed timeout, it cancels the context while the body is read.
func readBodyError(req *http.Request, err error) error {
	if req != nil && errors.Is(context.Cause(req.Context()), errRequestTimeout) {
		err = fmt.Errorf("timeout after %s", RequestTimeout)
	}
	return fmt.Errorf(`cannot read response body: %w`, err)
}

// streamingBody releases the request context when the streaming body is closed.
func (c Client) streamingBody(body io.ReadCloser, cancel context.CancelCauseFunc) io.ReadCloser {
	debug, logger := c.debug, c.logger
	return counter.NewBody(body, func(bytes int64, err error) {
		cancel(nil)
		if debug {
			logger.Debug().Int64("bytes", bytes).Err(err).Msg("HTTP stream closed")
		}
	})
}

func handleSendError(startedAt time.Time, req *http.Request, err error) error {
	// Timeout
	ctx := req.Context()
	if errors.Is(context.Cause(ctx), errRequestTimeout) {
		err = urlError(req, fmt.Errorf("timeout after %s", RequestTimeout))
	} else if deadline, ok := ctx.Deadline(); ok && errors.Is(err, context.DeadlineExceeded) {
		err = urlError(req, fmt.Errorf("timeout after %s", deadline.Sub(startedAt)))
	} else if errors.Is(err, context.Canceled) {
		err = urlError(req, fmt.Errorf("canceled after %s", time.Since(startedAt)))
	}

	// Url error
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = fmt.Errorf(`request %s "%s" failed: %w`, strings.ToUpper(urlErr.Op), urlErr.URL, urlErr.Err)
	}

	return err
}

func urlError(req *http.Request, err error) *url.Error {
	return &url.Error{Op: req.Method, URL: req.URL.String(), Err: err}
}
