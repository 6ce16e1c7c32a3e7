// Package initstate tracks per-subsystem chip initialization progress: a
// WaitStatus history per subsystem, aggregated into an InitStatus that the
// topology driver polls to completion.
package initstate

import (
	"time"

	"github.com/tenstorrent/luwen-go/status"
)

// Kind is one WaitStatus variant.
type Kind int

const (
	NotPresent Kind = iota
	Waiting
	JustFinished
	Done
	NoCheck
	Timeout
	NotInitialized
	Error
)

func (k Kind) String() string {
	switch k {
	case NotPresent:
		return "NotPresent"
	case Waiting:
		return "Waiting"
	case JustFinished:
		return "JustFinished"
	case Done:
		return "Done"
	case NoCheck:
		return "NoCheck"
	case Timeout:
		return "Timeout"
	case NotInitialized:
		return "NotInitialized"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// WaitStatus is one tick's outcome for a subsystem. Description carries
// the Waiting(Option<description>) payload; TimeoutAfter carries
// Timeout(duration); Reason carries NotInitialized(P); Err carries
// Error(E).
type WaitStatus struct {
	Kind         Kind
	Description  string
	TimeoutAfter time.Duration
	Reason       string
	Err          error
}

func (w WaitStatus) String() string {
	switch w.Kind {
	case Waiting:
		if w.Description != "" {
			return "Waiting(" + w.Description + ")"
		}
		return "Waiting"
	case Timeout:
		return "Timeout(" + w.TimeoutAfter.String() + ")"
	case NotInitialized:
		return "NotInitialized(" + w.Reason + ")"
	case Error:
		if w.Err != nil {
			return "Error(" + w.Err.Error() + ")"
		}
		return "Error"
	default:
		return w.Kind.String()
	}
}

// Subsystem names the five tracked initialization phases.
type Subsystem int

const (
	Comms Subsystem = iota
	ARC
	DRAM
	Ethernet
	CPU
)

func (s Subsystem) String() string {
	switch s {
	case Comms:
		return "Comms"
	case ARC:
		return "ARC"
	case DRAM:
		return "DRAM"
	case Ethernet:
		return "Ethernet"
	case CPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

var allSubsystems = [...]Subsystem{Comms, ARC, DRAM, Ethernet, CPU}

// ComponentStatusInfo is one subsystem's full wait history.
type ComponentStatusInfo struct {
	Name      string
	Timeout   time.Duration
	StartTime time.Time
	History   []WaitStatus
}

// Latest returns the most recent WaitStatus, or NotPresent if none yet.
func (c *ComponentStatusInfo) Latest() WaitStatus {
	if len(c.History) == 0 {
		return WaitStatus{Kind: NotPresent}
	}
	return c.History[len(c.History)-1]
}

// Push appends a new tick's status.
func (c *ComponentStatusInfo) Push(w WaitStatus) { c.History = append(c.History, w) }

// HasError reports whether the latest tick is Error or Timeout.
func (c *ComponentStatusInfo) HasError() bool {
	k := c.Latest().Kind
	return k == Error || k == Timeout
}

// IsWaiting reports whether the latest tick is still Waiting.
func (c *ComponentStatusInfo) IsWaiting() bool {
	return c.Latest().Kind == Waiting
}

// StatusLine renders this subsystem's progress in the standard
// "([elapsed/timeout] [completed/total] name: message)" form.
func (c *ComponentStatusInfo) StatusLine(completed, total int) string {
	elapsed := time.Duration(0)
	if !c.StartTime.IsZero() {
		elapsed = time.Since(c.StartTime)
	}
	return status.Line{
		Elapsed: elapsed, Timeout: c.Timeout,
		Completed: completed, Total: total,
		Name: c.Name, Message: c.Latest().String(),
	}.String()
}

// InitStatus aggregates all five subsystems for one chip.
type InitStatus struct {
	Components map[Subsystem]*ComponentStatusInfo
	NocSafe    bool
}

// NewInitStatus builds a fresh InitStatus with the five subsystems seeded
// at NotPresent and the given per-subsystem timeout.
func NewInitStatus(timeout time.Duration, start time.Time) *InitStatus {
	is := &InitStatus{Components: make(map[Subsystem]*ComponentStatusInfo, len(allSubsystems))}
	for _, s := range allSubsystems {
		is.Components[s] = &ComponentStatusInfo{Name: s.String(), Timeout: timeout, StartTime: start}
	}
	return is
}

// HasError reports whether any subsystem's latest tick is Error or Timeout.
func (is *InitStatus) HasError() bool {
	for _, c := range is.Components {
		if c.HasError() {
			return true
		}
	}
	return false
}

// IsWaiting reports whether any subsystem is still Waiting.
func (is *InitStatus) IsWaiting() bool {
	for _, c := range is.Components {
		if c.IsWaiting() {
			return true
		}
	}
	return false
}

// InitComplete holds iff no subsystem is waiting.
func (is *InitStatus) InitComplete() bool { return !is.IsWaiting() }

// Result is the outer driver's per-tick outcome.
type Result int

const (
	NoError Result = iota
	ErrorContinue
	ErrorAbort
)

// DetectState is delivered to a WaitForInit callback once per tick.
type DetectState struct {
	ChipID int
	Status *InitStatus
}
