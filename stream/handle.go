// Package stream provides the handle and redirection primitives used to wire
// a child process's standard streams.
//
// A Handle normalizes the platform's I/O resource representations (raw
// descriptor or kernel handle, buffered *os.File stream) behind one type with
// a uniform read/write/close/inheritance surface. Redirection policies are
// expressed as Spec values and evaluated exactly once, at process start, into
// concrete handles.
package stream

import (
	"fmt"
	"io"
	"os"
)

// readChunk is the granularity used when draining a stream to end-of-stream.
const readChunk = 4096

// Handle is an opaque reference to an OS-managed I/O resource.
//
// A Handle is either invalid (no resource) or refers to exactly one live
// resource. Closing an invalid handle is a no-op. A non-owning handle never
// closes the underlying resource; Close merely invalidates it.
type Handle struct {
	f    *os.File
	raw  bool
	owns bool
}

// FromFile wraps an open file. If owns is true the handle closes the file
// when Close is called.
func FromFile(f *os.File, owns bool) *Handle {
	if f == nil {
		return &Handle{}
	}
	return &Handle{f: f, owns: owns}
}

// FromFd wraps a raw descriptor or kernel handle. The name is used only for
// diagnostics. If owns is true the handle closes the descriptor on Close.
func FromFd(fd uintptr, name string, owns bool) *Handle {
	return &Handle{f: os.NewFile(fd, name), raw: true, owns: owns}
}

// Valid reports whether the handle refers to a live resource.
func (h *Handle) Valid() bool {
	return h != nil && h.f != nil
}

// Fd returns the native descriptor or kernel handle. The result is
// meaningless for an invalid handle.
func (h *Handle) Fd() uintptr {
	if !h.Valid() {
		return ^uintptr(0)
	}
	return h.f.Fd()
}

// File returns the buffered-stream view of the handle, or nil if invalid.
func (h *Handle) File() *os.File {
	if !h.Valid() {
		return nil
	}
	return h.f
}

// IsRaw reports whether the handle was constructed from a raw descriptor
// rather than an already-open stream.
func (h *Handle) IsRaw() bool { return h.raw }

// Owns reports whether Close will release the underlying resource.
func (h *Handle) Owns() bool { return h.owns }

// Borrow returns a non-owning view of the same resource. Closing the borrowed
// handle never closes the resource.
func (h *Handle) Borrow() *Handle {
	if !h.Valid() {
		return &Handle{}
	}
	return &Handle{f: h.f, raw: h.raw, owns: false}
}

// Release disarms ownership: the resource stays open and the caller becomes
// responsible for it. The handle remains usable for I/O.
func (h *Handle) Release() {
	if h != nil {
		h.owns = false
	}
}

// Close invalidates the handle, releasing the underlying resource only when
// the handle owns it. Closing an invalid handle is a no-op.
func (h *Handle) Close() error {
	if !h.Valid() {
		return nil
	}
	f := h.f
	h.f = nil
	if !h.owns {
		return nil
	}
	h.owns = false
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.Name(), err)
	}
	return nil
}

// Read fills p, retrying on short reads until p is full or the stream ends
// or fails. It returns the number of bytes read. io.EOF is returned only
// when no bytes were read at all.
func (h *Handle) Read(p []byte) (int, error) {
	if !h.Valid() {
		return 0, os.ErrInvalid
	}
	n := 0
	for n < len(p) {
		m, err := h.f.Read(p[n:])
		n += m
		if err == io.EOF {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Write writes all of p, retrying on short writes until everything is
// delivered or the stream fails.
func (h *Handle) Write(p []byte) (int, error) {
	if !h.Valid() {
		return 0, os.ErrInvalid
	}
	n := 0
	for n < len(p) {
		m, err := h.f.Write(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadAll drains the stream to end-of-stream, growing the buffer
// geometrically, and returns the accumulated bytes.
func (h *Handle) ReadAll() ([]byte, error) {
	if !h.Valid() {
		return nil, os.ErrInvalid
	}
	buf := make([]byte, 0, readChunk)
	for {
		n, err := h.f.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
		if len(buf) == cap(buf) {
			// Let append pick the growth factor.
			buf = append(buf, 0)[:len(buf)]
		}
	}
}
