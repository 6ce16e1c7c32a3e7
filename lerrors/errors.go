// Package lerrors holds the small amount of cross-package error-wrapping
// glue the domain packages build their errors with (next to the few
// concrete types such as kdi.OpErr and arcmsg.SafetyError): a context that identifies
// (device id, operation, parameters), wrapped with
// golang.org/x/xerrors so a frame is always attached.
package lerrors

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Context identifies the device/operation/parameters a failing call was
// attempting, so a caller several layers up can still report what failed.
type Context struct {
	DeviceID  int
	Operation string
	Params    string
}

func (c Context) String() string {
	if c.Params == "" {
		return fmt.Sprintf("device %d: %s", c.DeviceID, c.Operation)
	}
	return fmt.Sprintf("device %d: %s(%s)", c.DeviceID, c.Operation, c.Params)
}

// Wrap attaches ctx to err with a captured frame, via xerrors.Errorf's %w.
func Wrap(ctx Context, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %w", ctx, err)
}

// Errorf is xerrors.Errorf re-exported so domain packages don't need a
// second import for the common case of building a brand new leaf error.
func Errorf(format string, args ...interface{}) error {
	return xerrors.Errorf(format, args...)
}
