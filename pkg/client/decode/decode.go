// Package decode unwraps HTTP bodies encoded by the Content-Encoding header.
package decode

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// Decode wraps the body by decoders for all listed encodings.
// Encodings are applied by the server in the listed order, so they are decoded in the reverse order.
// Closing the returned reader closes the original body.
func Decode(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	encodings := strings.Split(strings.ToLower(contentEncoding), ",")
	var reader io.Reader = body
	wrapped := false
	for i := len(encodings) - 1; i >= 0; i-- {
		switch strings.TrimSpace(encodings[i]) {
		case "", "identity":
			// nop
		case "gzip", "x-gzip":
			v, err := gzip.NewReader(reader)
			if err != nil {
				return nil, fmt.Errorf("cannot decode gzip: %w", err)
			}
			reader, wrapped = v, true
		case "deflate":
			reader, wrapped = flate.NewReader(reader), true
		case "br":
			reader, wrapped = brotli.NewReader(reader), true
		default:
			return nil, fmt.Errorf(`unsupported content encoding "%s"`, strings.TrimSpace(encodings[i]))
		}
	}
	if !wrapped {
		return body, nil
	}
	return readCloser{Reader: reader, Closer: body}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
