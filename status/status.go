// Package status formats per-subsystem initialization progress lines.
package status

import (
	"fmt"
	"time"
)

// Line is one subsystem's progress snapshot.
type Line struct {
	Elapsed   time.Duration
	Timeout   time.Duration
	Completed int
	Total     int
	Name      string
	Message   string
}

// String renders "([elapsed/timeout] [completed/total] name: message)",
// with a distinct rendering once every subsystem has completed.
func (l Line) String() string {
	if l.Completed >= l.Total && l.Total > 0 {
		return fmt.Sprintf("(%s: all %d subsystems ready)", l.Name, l.Total)
	}
	return fmt.Sprintf("([%s/%s] [%d/%d] %s: %s)",
		l.Elapsed.Round(time.Millisecond),
		l.Timeout.Round(time.Millisecond),
		l.Completed, l.Total, l.Name, l.Message)
}
