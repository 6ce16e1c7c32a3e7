package initstate

import (
	"time"

	"github.com/tenstorrent/luwen-go/lerrors"
)

// CallbackError wraps an error a WaitForInit callback returned.
type CallbackError struct {
	Err error
}

func (e *CallbackError) Error() string { return "initstate: callback error: " + e.Err.Error() }
func (e *CallbackError) Unwrap() error { return e.Err }

// WaitForInit repeatedly calls Update, delivering a DetectState to
// callback after each tick, until every subsystem completes or a fatal
// error aborts the run. allowFailure controls whether a subsystem error
// degrades to ErrorContinue (keep polling the others) or aborts
// immediately.
func WaitForInit(cfg Config, chipID int, is *InitStatus, callback func(DetectState) error, allowFailure bool, overallTimeout time.Duration) error {
	deadline := time.Now().Add(overallTimeout)
	for {
		if _, err := Update(cfg, is); err != nil {
			return err
		}
		if callback != nil {
			if err := callback(DetectState{ChipID: chipID, Status: is}); err != nil {
				return &CallbackError{Err: err}
			}
		}
		if is.InitComplete() {
			return nil
		}
		if is.HasError() {
			if !allowFailure {
				return lerrors.Errorf("initstate: chip %d: subsystem error, aborting", chipID)
			}
			// ErrorContinue: keep polling the subsystems that have not
			// errored, in case they still reach Done.
		}
		if time.Now().After(deadline) {
			return lerrors.Errorf("initstate: chip %d: timed out after %s", chipID, overallTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}
