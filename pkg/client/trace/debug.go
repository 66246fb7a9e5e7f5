package trace

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

const debugBodyMaxLength = 2000

// DebugTracer logs each outgoing request and incoming response at the debug level.
// Request: method, URL and body. Response: status code and the API trace ID read from traceIDHeader.
func DebugTracer(logger zerolog.Logger, traceIDHeader string) Factory {
	return func(ctx context.Context, _, _ string) (context.Context, *ClientTrace) {
		t := &ClientTrace{}
		t.HTTPRequestStart = func(req *http.Request) {
			logger.Debug().
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Str("data", requestBody(req)).
				Msg("HTTP request")
		}
		t.HTTPRequestDone = func(res *http.Response, err error) {
			if err != nil {
				logger.Debug().Err(err).Msg("HTTP request failed")
				return
			}
			logger.Debug().
				Int("code", res.StatusCode).
				Str("trace_id", res.Header.Get(traceIDHeader)).
				Msg("HTTP response")
		}
		return ctx, t
	}
}

// requestBody reads a copy of the request body, the original body is not consumed.
func requestBody(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil || body == nil {
		return ""
	}
	defer body.Close()
	content, err := io.ReadAll(io.LimitReader(body, debugBodyMaxLength+1))
	if err != nil {
		return ""
	}
	if len(content) > debugBodyMaxLength {
		return string(content[:debugBodyMaxLength]) + "..."
	}
	return string(content)
}
