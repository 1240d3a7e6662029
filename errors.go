package diesel

import (
	"fmt"
	"runtime"

	"github.com/andewx/diesel/driver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Error is a failed platform call.
type Error struct {
	Op     string
	Status driver.Status
	// Detail carries platform diagnostics such as compiler output.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// NewError returns nil when status succeeded.
func NewError(op string, status driver.Status) error {
	if status.Succeeded() {
		return nil
	}
	return &Error{Op: op, Status: status}
}

// StatusOf digs the platform status out of err. It returns StatusOK for nil
// and ErrFail for errors that did not come from a platform call.
func StatusOf(err error) driver.Status {
	if err == nil {
		return driver.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return driver.ErrFail
}

// PreconditionError is the panic value for programmer errors: sizes that do
// not fit the platform's 32-bit fields and use of released objects.
type PreconditionError struct {
	Msg   string
	Frame string
}

func (e *PreconditionError) Error() string {
	if e.Frame != "" {
		return "diesel: precondition violated: " + e.Msg + " (" + e.Frame + ")"
	}
	return "diesel: precondition violated: " + e.Msg
}

func precondition(format string, args ...interface{}) *PreconditionError {
	e := &PreconditionError{Msg: fmt.Sprintf(format, args...)}
	if pc, _, _, ok := runtime.Caller(2); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			file, line := fn.FileLine(pc)
			e.Frame = fmt.Sprintf("%s:%d %s", file, line, fn.Name())
		}
	}
	return e
}

// Fatal runs finalizers in order, then logs err at fatal level, which exits
// the process.
func Fatal(log logrus.FieldLogger, err error, finalizers ...func()) {
	if err == nil {
		return
	}
	for _, fn := range finalizers {
		fn()
	}
	log.WithField("status", StatusOf(err)).Fatal(err)
}
