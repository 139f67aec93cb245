package stream

import (
	"fmt"
	"os"
)

// Pipe creates a connected reader/writer handle pair. Bytes written to the
// writer are delivered, in order and without loss, to the reader; after the
// writer is closed the reader observes end-of-stream once buffered bytes are
// drained.
//
// Both ends are created with inheritance disabled so that unrelated children
// spawned concurrently cannot capture a stray pipe end and keep the stream
// alive past its owner.
func Pipe() (r, w *Handle, err error) {
	rf, wf, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("pipe: %w", err)
	}
	return FromFile(rf, true), FromFile(wf, true), nil
}
