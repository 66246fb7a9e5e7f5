package trace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotcloud/go-client/pkg/client/decode"
)

const dumpTraceMaxLength = 2000

const maskedValue = "*****"

// maskedHeaders are replaced in the dump output.
var maskedHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie", "Set-Cookie"} //nolint:gochecknoglobals

// DumpTracer dumps HTTP requests and responses to a writer.
// Credentials in the Authorization and Cookie headers are masked.
// Set env HTTP_DUMP_TRACE_FULL=true to disable truncation of long bodies.
// Response bodies are buffered for the dump, so streaming responses are read to the end before they are returned.
func DumpTracer(wr io.Writer) Factory {
	var idGenerator uint64
	lock := &sync.Mutex{}
	return func(ctx context.Context, _, _ string) (context.Context, *ClientTrace) {
		d := &dumper{wr: wr, lock: lock, id: atomic.AddUint64(&idGenerator, 1)}
		var startTime time.Time
		var requestDump []byte

		t := &ClientTrace{}
		t.HTTPRequestStart = func(r *http.Request) {
			startTime = time.Now()
			requestDump, _ = httputil.DumpRequestOut(maskRequest(r), true)
		}
		t.HTTPRequestDone = func(r *http.Response, err error) {
			var out strings.Builder
			out.WriteString(">>>>>> HTTP DUMP\n")
			out.WriteString(d.truncate(string(requestDump)))
			out.WriteString("\n------\n")
			if err != nil {
				fmt.Fprintf(&out, "ERROR: %s\n", err)
			} else {
				if v, err := httputil.DumpResponse(maskResponse(r), false); err == nil {
					out.WriteString(strings.TrimSpace(string(v)))
				} else {
					fmt.Fprintf(&out, "cannot dump response headers: %s", err)
				}
				out.WriteString("\n------\n")
				out.WriteString(d.truncate(readResponseBody(r)))
				out.WriteString("\n")
			}
			fmt.Fprintf(&out, "<<<<<< HTTP DUMP END | %s", time.Since(startTime))
			d.log(out.String())
		}
		return ctx, t
	}
}

type dumper struct {
	wr   io.Writer
	lock *sync.Mutex
	id   uint64
}

func (d *dumper) truncate(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > dumpTraceMaxLength && os.Getenv("HTTP_DUMP_TRACE_FULL") != "true" { //nolint:forbidigo
		return body[:dumpTraceMaxLength] + "\n... (set env HTTP_DUMP_TRACE_FULL=true to see full output)"
	}
	return body
}

func (d *dumper) log(msg string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	for _, line := range strings.Split(msg, "\n") {
		_, _ = fmt.Fprintf(d.wr, "HTTP_DUMP[%04d] %s\n", d.id, line)
	}
}

// readResponseBody reads decoded response body and puts the raw body back to the response.
func readResponseBody(r *http.Response) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	raw, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return fmt.Sprintf("cannot read response body: %s", err)
	}
	decoded, err := decode.Decode(io.NopCloser(bytes.NewReader(raw)), r.Header.Get("Content-Encoding"))
	if err != nil {
		return fmt.Sprintf("cannot decode response body: %s", err)
	}
	content, err := io.ReadAll(decoded)
	if err != nil {
		return fmt.Sprintf("cannot decode response body: %s", err)
	}
	return string(content)
}

func maskRequest(r *http.Request) *http.Request {
	clone := r.Clone(r.Context())
	maskHeader(clone.Header)
	if r.GetBody != nil {
		if body, err := r.GetBody(); err == nil {
			clone.Body = body
		}
	} else {
		clone.Body = nil
	}
	return clone
}

func maskResponse(r *http.Response) *http.Response {
	clone := *r
	clone.Header = r.Header.Clone()
	maskHeader(clone.Header)
	return &clone
}

func maskHeader(h http.Header) {
	for _, name := range maskedHeaders {
		if h.Get(name) != "" {
			h.Set(name, maskedValue)
		}
	}
}
