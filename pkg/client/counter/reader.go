// Package counter counts bytes read from a streaming response body.
package counter

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// OnClose is called once, when the body is closed the first time.
// The err is the last read error other than io.EOF, or the close error.
type OnClose func(bytes int64, err error)

// Body wraps a streaming response body.
// Close may be called repeatedly and concurrently with Read, only the first call closes the wrapped body.
type Body struct {
	wrapped   io.ReadCloser
	onClose   OnClose
	bytes     atomic.Int64
	lock      sync.Mutex
	readErr   error
	closeOnce sync.Once
	closeErr  error
}

func NewBody(wrapped io.ReadCloser, onClose OnClose) *Body {
	return &Body{wrapped: wrapped, onClose: onClose}
}

// Bytes returns the number of bytes read so far.
func (b *Body) Bytes() int64 {
	return b.bytes.Load()
}

func (b *Body) Read(p []byte) (int, error) {
	n, err := b.wrapped.Read(p)
	b.bytes.Add(int64(n))
	if err != nil && !errors.Is(err, io.EOF) {
		b.lock.Lock()
		b.readErr = err
		b.lock.Unlock()
	}
	return n, err
}

func (b *Body) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.wrapped.Close()
		if b.onClose == nil {
			return
		}
		b.lock.Lock()
		err := b.readErr
		b.lock.Unlock()
		if err == nil {
			err = b.closeErr
		}
		b.onClose(b.Bytes(), err)
	})
	return b.closeErr
}
