package client

import (
	"os"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"

	"github.com/dotcloud/go-client/pkg/client/trace"
)

// NewTestClient creates the Client for tests, logs are discarded.
//
// If the TEST_HTTP_CLIENT_VERBOSE environment variable is set to "true",
// then all HTTP requests and responses are dumped to stdout.
func NewTestClient() Client {
	c := New().WithLogger(zerolog.Nop())
	if os.Getenv("TEST_HTTP_CLIENT_VERBOSE") == "true" { //nolint:forbidigo
		c = c.WithTrace(trace.DumpTracer(os.Stdout))
	}
	return c
}

// NewMockedClient creates the Client with mocked HTTP transport.
func NewMockedClient() (Client, *httpmock.MockTransport) {
	mockTransport := httpmock.NewMockTransport()
	return NewTestClient().WithTransport(mockTransport), mockTransport
}
