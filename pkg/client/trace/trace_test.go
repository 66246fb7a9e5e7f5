package trace_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/dotcloud/go-client/pkg/client"
	. "github.com/dotcloud/go-client/pkg/client/trace"
)

func TestTrace(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com/redirect1`, func(request *http.Request) (*http.Response, error) {
		header := make(http.Header)
		header.Set("Location", "https://example.com/redirect2")
		return &http.Response{
			StatusCode: http.StatusMovedPermanently,
			Header:     header,
		}, nil
	})
	transport.RegisterResponder("GET", `https://example.com/redirect2`, func(request *http.Request) (*http.Response, error) {
		header := make(http.Header)
		header.Set("Location", "https://example.com/index")
		return &http.Response{
			StatusCode: http.StatusMovedPermanently,
			Header:     header,
		}, nil
	})
	transport.RegisterResponder("GET", `https://example.com/index`, httpmock.NewJsonResponderOrPanic(http.StatusOK, "OK"))

	// Logs for trace testing
	var logs strings.Builder

	// Create client
	ctx := context.Background()
	c := NewTestClient().
		WithTransport(transport).
		AndTrace(func(ctx context.Context, method, url string) (context.Context, *ClientTrace) {
			logs.WriteString(fmt.Sprintf("Factory           %s %s\n", method, url))
			return ctx, &ClientTrace{
				RequestProcessed: func(result any, err error) {
					logs.WriteString(fmt.Sprintf("RequestProcessed  result=%s err=%v\n", dumpBody(result), err))
				},
				HTTPRequestStart: func(request *http.Request) {
					logs.WriteString(fmt.Sprintf("HTTPRequestStart  %s %s\n", request.Method, request.URL))
				},
				HTTPRequestDone: func(response *http.Response, err error) {
					logs.WriteString(fmt.Sprintf("HttpRequestDone   %d %s err=%v\n", response.StatusCode, http.StatusText(response.StatusCode), err))
				},
			}
		})

	// Expected events
	expected := `
Factory           GET https://example.com/redirect1
HTTPRequestStart  GET https://example.com/redirect1
HttpRequestDone   301 Moved Permanently err=<nil>
HTTPRequestStart  GET https://example.com/redirect2
HttpRequestDone   301 Moved Permanently err=<nil>
HTTPRequestStart  GET https://example.com/index
HttpRequestDone   200 OK err=<nil>
RequestProcessed  result=(string) (len=2) "OK" err=<nil>
`

	// Test
	res, err := c.Get(ctx, "https://example.com/redirect1")
	assert.NoError(t, err)
	assert.Equal(t, "OK", res.Body())
	assert.Equal(t, strings.TrimLeft(expected, "\n"), logs.String())
}

func TestTrace_Multiple(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewJsonResponderOrPanic(http.StatusOK, "OK"))
	transport.RegisterResponder("GET", `https://example.com/missing`, httpmock.NewJsonResponderOrPanic(http.StatusNotFound, map[string]any{}))

	// Logs for trace testing
	var logs strings.Builder

	// Create client
	ctx := context.Background()
	c := NewTestClient().
		WithTransport(transport).
		AndTrace(func(ctx context.Context, method, url string) (context.Context, *ClientTrace) {
			logs.WriteString(fmt.Sprintf("1: Factory           %s %s\n", method, url))
			return ctx, &ClientTrace{
				RequestProcessed: func(result any, err error) {
					logs.WriteString(fmt.Sprintf("1: RequestProcessed  result=%s err=%v\n", dumpBody(result), err))
				},
				HTTPRequestStart: func(request *http.Request) {
					logs.WriteString(fmt.Sprintf("1: HTTPRequestStart  %s %s\n", request.Method, request.URL))
				},
				HTTPRequestDone: func(response *http.Response, err error) {
					logs.WriteString(fmt.Sprintf("1: HttpRequestDone   %d %s err=%v\n", response.StatusCode, http.StatusText(response.StatusCode), err))
				},
			}
		}).
		AndTrace(func(ctx context.Context, method, url string) (context.Context, *ClientTrace) {
			logs.WriteString(fmt.Sprintf("2: Factory           %s %s\n", method, url))
			return ctx, &ClientTrace{
				HTTPRequestStart: func(request *http.Request) {
					logs.WriteString(fmt.Sprintf("2: HTTPRequestStart  %s %s\n", request.Method, request.URL))
				},
				HTTPRequestDone: func(response *http.Response, err error) {
					logs.WriteString(fmt.Sprintf("2: HttpRequestDone   %d %s err=%v\n", response.StatusCode, http.StatusText(response.StatusCode), err))
				},
			}
		}).
		AndTrace(func(ctx context.Context, method, url string) (context.Context, *ClientTrace) {
			return ctx, &ClientTrace{
				RequestProcessed: func(result any, err error) {
					logs.WriteString(fmt.Sprintf("3: RequestProcessed  result=%s err=%v\n", dumpBody(result), err))
				},
				HTTPRequestStart: func(request *http.Request) {
					logs.WriteString(fmt.Sprintf("3: HTTPRequestStart  %s %s\n", request.Method, request.URL))
				},
			}
		})

	// Expected events
	expected := `
1: Factory           GET https://example.com
2: Factory           GET https://example.com
1: HTTPRequestStart  GET https://example.com
2: HTTPRequestStart  GET https://example.com
3: HTTPRequestStart  GET https://example.com
1: HttpRequestDone   200 OK err=<nil>
2: HttpRequestDone   200 OK err=<nil>
1: RequestProcessed  result=(string) (len=2) "OK" err=<nil>
3: RequestProcessed  result=(string) (len=2) "OK" err=<nil>
1: Factory           GET https://example.com/missing
2: Factory           GET https://example.com/missing
1: HTTPRequestStart  GET https://example.com/missing
2: HTTPRequestStart  GET https://example.com/missing
3: HTTPRequestStart  GET https://example.com/missing
1: HttpRequestDone   404 Not Found err=<nil>
2: HttpRequestDone   404 Not Found err=<nil>
1: RequestProcessed  result=(interface {}) <nil> err=Not Found (code: 404)
3: RequestProcessed  result=(interface {}) <nil> err=Not Found (code: 404)
`

	// Test
	res, err := c.Get(ctx, "https://example.com")
	assert.NoError(t, err)
	assert.Equal(t, "OK", res.Body())
	_, err = c.Get(ctx, "https://example.com/missing")
	assert.Error(t, err)
	assert.Equal(t, strings.TrimLeft(expected, "\n"), logs.String())

	// WithTrace replaces registered hooks
	logs.Reset()
	_, err = c.WithTrace(nil).Get(ctx, "https://example.com")
	assert.NoError(t, err)
	assert.Empty(t, logs.String())
}

func TestClientTrace_Compose(t *testing.T) {
	t.Parallel()

	var calls []string
	old := &ClientTrace{
		ClientTrace: httptrace.ClientTrace{
			GotFirstResponseByte: func() { calls = append(calls, "old: GotFirstResponseByte") },
			WroteHeaderField:     func(key string, _ []string) { calls = append(calls, "old: WroteHeaderField "+key) },
		},
		HTTPRequestDone: func(*http.Response, error) { calls = append(calls, "old: HTTPRequestDone") },
	}
	current := &ClientTrace{
		ClientTrace: httptrace.ClientTrace{
			GotFirstResponseByte: func() { calls = append(calls, "new: GotFirstResponseByte") },
		},
		HTTPRequestDone:  func(*http.Response, error) { calls = append(calls, "new: HTTPRequestDone") },
		HTTPRequestStart: func(*http.Request) { calls = append(calls, "new: HTTPRequestStart") },
	}
	current.Compose(old)
	current.Compose(nil)

	current.HTTPRequestStart(nil)
	current.WroteHeaderField("Accept", nil)
	current.GotFirstResponseByte()
	current.HTTPRequestDone(nil, nil)
	assert.Nil(t, current.RequestProcessed)
	assert.Equal(t, []string{
		"new: HTTPRequestStart",
		"old: WroteHeaderField Accept",
		"old: GotFirstResponseByte",
		"new: GotFirstResponseByte",
		"old: HTTPRequestDone",
		"new: HTTPRequestDone",
	}, calls)
}

func TestChain(t *testing.T) {
	t.Parallel()

	factory := func(ctx context.Context, _, _ string) (context.Context, *ClientTrace) {
		return ctx, &ClientTrace{}
	}
	nilTrace := func(ctx context.Context, _, _ string) (context.Context, *ClientTrace) {
		return ctx, nil
	}

	assert.Nil(t, Chain(nil, nil))
	require.NotNil(t, Chain(factory, nil))
	require.NotNil(t, Chain(nil, factory))

	// Nil trace of the second factory keeps the first trace
	_, ct := Chain(factory, nilTrace)(context.Background(), http.MethodGet, "https://example.com")
	assert.NotNil(t, ct)
}

// dumpBody dumps decoded body of the processed client.Response.
func dumpBody(result any) string {
	s := spew.NewDefaultConfig()
	s.DisablePointerAddresses = true
	s.DisableCapacities = true
	return strings.TrimSpace(s.Sdump(result.(Response).Body()))
}
