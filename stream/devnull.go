package stream

import (
	"fmt"
	"os"
	"sync"
)

// The process-wide null-device handle is opened on first use and never
// closed; it lives for the remainder of the process so there is no teardown
// ordering to get wrong. Callers only ever see non-owning views of it.
var devNull struct {
	once sync.Once
	h    *Handle
	err  error
}

// DevNull returns a non-owning handle on the process-wide null device,
// opening it on first use.
func DevNull() (*Handle, error) {
	devNull.once.Do(func() {
		f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			devNull.err = fmt.Errorf("open %s: %w", os.DevNull, err)
			return
		}
		devNull.h = FromFile(f, true)
	})
	if devNull.err != nil {
		return nil, devNull.err
	}
	return devNull.h.Borrow(), nil
}
