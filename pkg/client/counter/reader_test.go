package counter_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dotcloud/go-client/pkg/client/counter"
)

func TestBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		content       string
		readErr       error
		closeErr      error
		expectedErr   string
		expectedClose string
	}{
		{name: "empty"},
		{name: "no error", content: `{"a":1}{"a":2}`},
		{name: "close error", content: "abc", closeErr: errors.New("close error"), expectedErr: "close error", expectedClose: "close error"},
		{name: "read error", content: "abc", readErr: errors.New("read error"), expectedErr: "read error"},
		{name: "read error has priority", content: "abc", readErr: errors.New("read error"), closeErr: errors.New("close error"), expectedErr: "read error", expectedClose: "close error"},
	}

	for _, tc := range cases {
		calls := 0
		body := counter.NewBody(
			&testReader{content: strings.NewReader(tc.content), readErr: tc.readErr, closeErr: tc.closeErr},
			func(bytes int64, err error) {
				calls++
				assert.Equal(t, int64(len(tc.content)), bytes, tc.name)
				if tc.expectedErr == "" {
					assert.NoError(t, err, tc.name)
				} else if assert.Error(t, err, tc.name) {
					assert.Equal(t, tc.expectedErr, err.Error(), tc.name)
				}
			},
		)

		out, _ := io.ReadAll(body)
		assert.Equal(t, tc.content, string(out), tc.name)
		assert.Equal(t, int64(len(tc.content)), body.Bytes(), tc.name)

		// Close is idempotent, the callback is called once
		for i := 0; i < 2; i++ {
			err := body.Close()
			if tc.expectedClose == "" {
				assert.NoError(t, err, tc.name)
			} else if assert.Error(t, err, tc.name) {
				assert.Equal(t, tc.expectedClose, err.Error(), tc.name)
			}
		}
		assert.Equal(t, 1, calls, tc.name)
	}
}

func TestBody_CloseBeforeEOF(t *testing.T) {
	t.Parallel()

	var closedBytes int64
	body := counter.NewBody(io.NopCloser(strings.NewReader("abcdef")), func(bytes int64, err error) {
		closedBytes = bytes
		assert.NoError(t, err)
	})

	buf := make([]byte, 2)
	n, err := body.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, body.Close())
	assert.Equal(t, int64(2), closedBytes)
}

type testReader struct {
	content  io.Reader
	readErr  error
	closeErr error
}

func (r *testReader) Read(p []byte) (n int, err error) {
	n, err = r.content.Read(p)
	if err == nil {
		err = r.readErr
	}
	return n, err
}

func (r *testReader) Close() error {
	return r.closeErr
}
