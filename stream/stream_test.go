package stream

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPipeRoundTrip(t *testing.T) {
	r, w, err := Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()

	msg := []byte("through the pipe")
	if _, err := w.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close writer: %v", err)
	}

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("ReadAll = %q, want %q", got, msg)
	}
}

func TestReadAllGrowsPastChunk(t *testing.T) {
	r, w, err := Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()

	// Cross the initial buffer capacity so the growth path runs.
	payload := bytes.Repeat([]byte("x"), 3*readChunk+17)
	go func() {
		w.Write(payload)
		w.Close()
	}()

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadAll length = %d, want %d", len(got), len(payload))
	}
}

func TestHandleOwnership(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "handle")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}

	owner := FromFile(f, true)
	borrowed := owner.Borrow()

	if !borrowed.Valid() || borrowed.Owns() {
		t.Fatalf("Borrow: valid=%v owns=%v, want valid non-owning", borrowed.Valid(), borrowed.Owns())
	}

	// Closing the borrow must not close the file.
	if err := borrowed.Close(); err != nil {
		t.Fatalf("Close borrow: %v", err)
	}
	if borrowed.Valid() {
		t.Error("borrowed handle still valid after Close")
	}
	if _, err := f.WriteString("still open"); err != nil {
		t.Errorf("file closed by non-owning handle: %v", err)
	}

	if err := owner.Close(); err != nil {
		t.Fatalf("Close owner: %v", err)
	}
	// Double close is a no-op.
	if err := owner.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestInvalidHandle(t *testing.T) {
	h := &Handle{}
	if h.Valid() {
		t.Error("zero handle reports valid")
	}
	if _, err := h.Read(make([]byte, 1)); !errors.Is(err, os.ErrInvalid) {
		t.Errorf("Read on invalid = %v, want os.ErrInvalid", err)
	}
	if _, err := h.Write([]byte("x")); !errors.Is(err, os.ErrInvalid) {
		t.Errorf("Write on invalid = %v, want os.ErrInvalid", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close on invalid = %v, want nil", err)
	}
}

func TestRelease(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "release")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	h := FromFile(f, true)
	h.Release()
	if h.Owns() {
		t.Error("handle still owning after Release")
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.WriteString("kept open"); err != nil {
		t.Errorf("file closed despite Release: %v", err)
	}
}

func TestDevNull(t *testing.T) {
	h, err := DevNull()
	if err != nil {
		t.Fatalf("DevNull: %v", err)
	}
	if h.Owns() {
		t.Error("DevNull returned an owning view")
	}
	if _, err := h.Write([]byte("discarded")); err != nil {
		t.Errorf("Write to null device: %v", err)
	}
	h.Close()

	// The process-wide device survives a closed view.
	again, err := DevNull()
	if err != nil {
		t.Fatalf("DevNull second call: %v", err)
	}
	if _, err := again.Write([]byte("still there")); err != nil {
		t.Errorf("Write after view close: %v", err)
	}
}

func TestSpecResolve(t *testing.T) {
	t.Run("inherit resolves to nothing", func(t *testing.T) {
		res, err := Inherit().Resolve(Stdout, nil)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Parent != nil || res.Child != nil {
			t.Error("inherit produced handles")
		}
	})

	t.Run("pipe sides follow the stream direction", func(t *testing.T) {
		in, err := UsePipe().Resolve(Stdin, nil)
		if err != nil {
			t.Fatalf("Resolve stdin: %v", err)
		}
		defer in.Close()

		// Parent writes stdin; child reads it.
		if _, err := in.Parent.Write([]byte("fed")); err != nil {
			t.Errorf("write parent side: %v", err)
		}
		buf := make([]byte, 3)
		if _, err := in.Child.Read(buf); err != nil {
			t.Errorf("read child side: %v", err)
		}

		out, err := UsePipe().Resolve(Stdout, nil)
		if err != nil {
			t.Fatalf("Resolve stdout: %v", err)
		}
		defer out.Close()

		if _, err := out.Child.Write([]byte("got")); err != nil {
			t.Errorf("write child side: %v", err)
		}
		if _, err := out.Parent.Read(buf); err != nil {
			t.Errorf("read parent side: %v", err)
		}
	})

	t.Run("discard resolves to the null device", func(t *testing.T) {
		res, err := Discard().Resolve(Stderr, nil)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Child == nil || !res.Child.Valid() {
			t.Fatal("discard produced no child handle")
		}
		if res.Child.Owns() {
			t.Error("discard child owns the process-wide null device")
		}
	})

	t.Run("merge borrows the resolved stdout", func(t *testing.T) {
		out, err := UsePipe().Resolve(Stdout, nil)
		if err != nil {
			t.Fatalf("Resolve stdout: %v", err)
		}
		defer out.Close()

		res, err := MergeWithStdout().Resolve(Stderr, out.Child)
		if err != nil {
			t.Fatalf("Resolve stderr: %v", err)
		}
		if res.Child.Fd() != out.Child.Fd() {
			t.Error("merged stderr does not share stdout's handle")
		}
		if res.Child.Owns() {
			t.Error("merged stderr owns stdout's handle")
		}
	})

	t.Run("merge rejected off stderr", func(t *testing.T) {
		if _, err := MergeWithStdout().Resolve(Stdout, nil); !errors.Is(err, ErrMergeNotStderr) {
			t.Errorf("Resolve = %v, want ErrMergeNotStderr", err)
		}
	})

	t.Run("use file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "redirect")
		f, err := os.Create(path)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		res, err := UseFile(f, true).Resolve(Stdout, nil)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Child == nil || res.Child.Fd() != f.Fd() {
			t.Error("use-file child is not the supplied file")
		}
		res.Close()
	})
}
