package base

import (
	"io"
	"sync"
	"time"

	"github.com/ValentinKolb/ibgw/rpc/common"
)

// connectionWriter serializes frame writes on the write half of a connection.
// Frames of concurrent senders never interleave.
type connectionWriter struct {
	mu      sync.Mutex
	w       io.Writer
	timeout time.Duration
}

func newConnectionWriter(w io.Writer, timeout time.Duration) *connectionWriter {
	return &connectionWriter{w: w, timeout: timeout}
}

// send writes one frame (header and payload) and flushes buffered writers
func (cw *connectionWriter) send(payload []byte) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.timeout > 0 {
		if d, ok := cw.w.(interface{ SetWriteDeadline(time.Time) error }); ok {
			if err := d.SetWriteDeadline(time.Now().Add(cw.timeout)); err != nil {
				return &common.TransportError{Op: "write", Err: err}
			}
		}
	}

	if err := writeFrame(cw.w, payload); err != nil {
		return &common.TransportError{Op: "write", Err: err}
	}

	if f, ok := cw.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return &common.TransportError{Op: "write", Err: err}
		}
	}
	return nil
}
