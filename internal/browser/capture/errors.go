// internal/browser/capture/errors.go
package capture

import (
	"errors"
	"fmt"
)

// ErrCaptureIO matches every *IOError.
var ErrCaptureIO = errors.New("capture: output I/O failed")

// IOError is a failure to open, write or close the capture output. It ends
// the stream it happened on.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("capture %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error        { return e.Err }
func (e *IOError) Is(target error) bool { return target == ErrCaptureIO }
