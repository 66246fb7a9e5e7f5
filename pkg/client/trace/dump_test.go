package trace_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcloud/go-client/pkg/client"
	"github.com/dotcloud/go-client/pkg/client/auth"
	"github.com/dotcloud/go-client/pkg/client/trace"
)

func TestDumpTracer(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("POST", `https://example.com/apps`, func(req *http.Request) (*http.Response, error) {
		res, err := httpmock.NewJsonResponse(http.StatusCreated, map[string]any{"name": "x"})
		res.Header.Set("Set-Cookie", "session=abc")
		return res, err
	})
	transport.RegisterResponder("GET", `https://example.com/apps`, httpmock.NewErrorResponder(assert.AnError))

	// Logs for trace testing
	var logs strings.Builder

	// Create client
	ctx := context.Background()
	c := client.NewTestClient().
		WithTransport(transport).
		WithAuthenticator(auth.NewBasic("user", "secret")).
		AndTrace(trace.DumpTracer(&logs))

	// Test
	res, err := c.Post(ctx, "https://example.com/apps", map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "x"}, res.Body())
	_, err = c.Get(ctx, "https://example.com/apps")
	require.Error(t, err)

	out := logs.String()
	for _, line := range []string{
		"HTTP_DUMP[0001] >>>>>> HTTP DUMP\n",
		"HTTP_DUMP[0001] POST /apps HTTP/1.1\n",
		"HTTP_DUMP[0001] Host: example.com\n",
		"HTTP_DUMP[0001] Authorization: *****\n",
		"HTTP_DUMP[0001] Content-Type: application/json\n",
		"HTTP_DUMP[0001] {\"name\":\"x\"}\n",
		"HTTP_DUMP[0001] ------\n",
		"HTTP_DUMP[0001] Set-Cookie: *****\n",
		"HTTP_DUMP[0001] <<<<<< HTTP DUMP END | ",
		"HTTP_DUMP[0002] GET /apps HTTP/1.1\n",
		"HTTP_DUMP[0002] ERROR: ",
	} {
		assert.Contains(t, out, line)
	}
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "dXNlcjpzZWNyZXQ=")
	assert.NotContains(t, out, "session=abc")
	assert.NotContains(t, out, "\r")
}
