package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Response is a successful API response.
//
// A regular response has the JSON body already read and decoded, see Body and Decode.
// A streaming response has the body unread; values are read by Next and the body must be closed by Close.
type Response struct {
	raw       *http.Response
	traceID   string
	streaming bool
	body      []byte
	value     any
	stream    streamDecoder
	closer    io.Closer
}

type streamDecoder interface {
	More() bool
	Decode(v any) error
}

// newResponse creates a regular response from the read body.
func newResponse(raw *http.Response, traceID string, body []byte) (Response, error) {
	out := Response{raw: raw, traceID: traceID, body: body}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &out.value); err != nil {
			return Response{}, fmt.Errorf(`cannot decode JSON result: %w`, err)
		}
	}
	return out, nil
}

// newStreamingResponse creates a streaming response, the body is read later.
func newStreamingResponse(raw *http.Response, traceID string, body io.ReadCloser) Response {
	return Response{raw: raw, traceID: traceID, streaming: true, stream: json.NewDecoder(body), closer: body}
}

// Body returns the decoded JSON body, it is nil for an empty or a streaming response.
func (r Response) Body() any {
	return r.value
}

// Bytes returns the raw JSON body, it must not be modified.
func (r Response) Bytes() []byte {
	return r.body
}

// Data returns the "data" member of the API envelope if present, otherwise the whole Body.
func (r Response) Data() any {
	if m, ok := r.value.(map[string]any); ok {
		if data, found := m["data"]; found {
			return data
		}
	}
	return r.value
}

// Decode maps the JSON body to the target value.
func (r Response) Decode(target any) error {
	if r.streaming {
		return errors.New("streaming response must be read by the Next method")
	}
	if len(bytes.TrimSpace(r.body)) == 0 {
		return errors.New("response body is empty")
	}
	return json.Unmarshal(r.body, target)
}

// TraceID returns the API trace ID, empty if the header was missing.
func (r Response) TraceID() string {
	return r.traceID
}

// Streaming returns true if the body is read by the Next method.
func (r Response) Streaming() bool {
	return r.streaming
}

// StatusCode returns HTTP status code.
func (r Response) StatusCode() int {
	if r.raw == nil {
		return 0
	}
	return r.raw.StatusCode
}

// Header returns HTTP response headers.
func (r Response) Header() http.Header {
	if r.raw == nil {
		return http.Header{}
	}
	return r.raw.Header
}

// RawResponse returns the standard HTTP response.
func (r Response) RawResponse() *http.Response {
	return r.raw
}

// Next decodes the next JSON value of a streaming response to the target.
// It returns io.EOF when the stream is exhausted.
func (r Response) Next(target any) error {
	if !r.streaming {
		return errors.New("response is not streaming")
	}
	if r.stream == nil || !r.stream.More() {
		return io.EOF
	}
	if err := r.stream.Decode(target); err != nil {
		return fmt.Errorf(`cannot decode JSON stream: %w`, err)
	}
	return nil
}

// Close releases the body of a streaming response, it is a no-op for a regular response.
func (r Response) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
