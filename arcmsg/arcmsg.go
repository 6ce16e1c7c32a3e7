// Package arcmsg implements the ARC mailbox protocol: scratch-register
// request/response with a multi-step pre-flight safety check and a
// bounded-timeout exchange.
package arcmsg

import (
	"context"
	"time"

	"github.com/tenstorrent/luwen-go/comms"
	"github.com/tenstorrent/luwen-go/lerrors"
	"golang.org/x/time/rate"
)

// pollLimiter caps the ARC-scratch poll cadence of Exchange's wait loop at
// one check per millisecond, regardless of how fast the caller's chip
// interface can service reads.
var pollLimiter = rate.NewLimiter(rate.Every(time.Millisecond), 1)

// Addr locates the ARC mailbox registers for one chip.
type Addr struct {
	ScratchBase uint64 // ARC_RESET.SCRATCH[0] address; SCRATCH[i] = ScratchBase + 4*i
	MiscCntl    uint64 // ARC_MISC_CNTL address
	PostCode    uint64 // ARC post-code address
}

// Slot is a (msg_reg, return_reg) scratch register pair. The default slot
// is (5, 3); an alternate slot (2, 4) may be selected when the default is
// in use by another caller.
type Slot struct {
	MsgReg, ReturnReg int
}

var DefaultSlot = Slot{MsgReg: 5, ReturnReg: 3}
var AltSlot = Slot{MsgReg: 2, ReturnReg: 4}

func (a Addr) scratch(i int) uint64 { return a.ScratchBase + 4*uint64(i) }

// Code is an ARC message opcode, 16 bits wide: the wire value written to
// the scratch register is 0xAA00 | Code.
type Code uint16

const (
	Nop                   Code = 0x00
	Test                  Code = 0x90
	GoToSleep             Code = 0x55
	SetPowerState         Code = 0x20
	SetArcState           Code = 0x21
	TriggerReset          Code = 0x67
	FwVersion             Code = 0xB9
	GetSmbusTelemetryAddr Code = 0x2C
	GetAiclk              Code = 0x34
	GetHarvesting         Code = 0x57
	GetSpiDumpAddr        Code = 0x50
	SpiRead               Code = 0x51
	SpiWrite              Code = 0x52
	Raw                   Code = 0xFF
)

// Msg is one outbound ARC message with its two 16-bit arguments.
type Msg struct {
	Code       Code
	Arg0, Arg1 uint16
}

// wireCode is the 32-bit value written to SCRATCH[msg_reg]: 0xAA00 | code
// in the low 16 bits.
func (m Msg) wireCode() uint32 { return 0xAA00 | uint32(m.Code) }

// PowerState values for SetPowerState.
const (
	Busy      uint16 = 0
	ShortIdle uint16 = 1
	LongIdle  uint16 = 2
)

// ArcState values for SetArcState.
const (
	A0 uint16 = 0
	A1 uint16 = 1
	A2 uint16 = 2
	A3 uint16 = 3
	A4 uint16 = 4
	A5 uint16 = 5
)

// postCodeBoot is the post-code value ARC reports before its firmware has
// booted; postCodeInitDone, arcMsgHandleDone, and arcTimeLast bound the
// idle range during which s5=0 is a safe, accepted state.
const (
	postCodeBoot     = 0x11110000
	postCodeInitDone = 0xC0DE0001
	arcMsgHandleDone = 0xA0A2
	arcTimeLast      = 0xA0FF
)

const (
	watchdogTriggered = 0xDEADC0DE
	fwNotYetBooted    = 0x60
)

// SafetyError describes why a message is currently unsafe to send.
type SafetyError struct {
	Reason string
}

func (e *SafetyError) Error() string { return "arcmsg: unsafe to send: " + e.Reason }

// CheckArgMsgSafe runs the nine-step pre-flight safety check against the
// given slot before a message is sent. dmaTriggerBit is the bit within
// MiscCntl that reports an outstanding PCIe DMA request.
func CheckArgMsgSafe(ci comms.ChipInterface, addr Addr, slot Slot, dmaTriggerBit uint32) error {
	s5, err := comms.AxiRead32(ci, addr.scratch(slot.MsgReg))
	if err != nil {
		return &SafetyError{Reason: "scratch register access failed"}
	}
	pc, err := comms.AxiRead32(ci, addr.PostCode)
	if err != nil {
		return &SafetyError{Reason: "scratch register access failed"}
	}
	miscCntl, err := comms.AxiRead32(ci, addr.MiscCntl)
	if err != nil {
		return &SafetyError{Reason: "scratch register access failed"}
	}
	// Only the post code is checked for all-ones here: s5 = 0xFFFFFFFF is
	// an accepted mailbox state further down, and a genuinely hung link is
	// caught by the PCI layer's liveness probe instead.
	if pc == 0xFFFFFFFF {
		return &SafetyError{Reason: "scratch register access failed"}
	}

	if s5 == watchdogTriggered {
		return &SafetyError{Reason: "ARC watchdog has triggered"}
	}
	if s5 == fwNotYetBooted || pc == postCodeBoot {
		return &SafetyError{Reason: "ARC FW has not yet booted"}
	}
	if s5&0xFFFF == 0xAA00 || s5&0xFFFF == uint32(GoToSleep) {
		return &SafetyError{Reason: "ARC is asleep"}
	}
	if miscCntl&dmaTriggerBit != 0 {
		return &SafetyError{Reason: "outstanding PCIE DMA request"}
	}
	// Step 6: a message id is "pending" when the low byte still carries a
	// prior request's opcode pattern rather than a completion code; we
	// treat any low-16 value in [0xAA00, 0xAAFF] still carrying a message
	// id as queued/in-flight.
	if s5&0xFF00 == 0xAA00 {
		return &SafetyError{Reason: "another message is queued or being processed (id " + itoa(s5&0xFF) + ")"}
	}

	switch s5 {
	case 0x01, 0xFFFFFFFF, 0xFFFFDEAD:
		return nil
	}
	if s5&0xFFFF > 1 {
		return nil
	}
	if s5 == 0 {
		if pc == postCodeInitDone || (pc >= arcMsgHandleDone && pc <= arcTimeLast) {
			return nil
		}
		return &SafetyError{Reason: "ARC is not idle"}
	}
	return &SafetyError{Reason: "unrecognized mailbox state"}
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Result is the (rc, arg) pair a completed exchange returns: rc is the
// high 16 bits of the final scratch value, arg is SCRATCH[return_reg].
type Result struct {
	Rc  uint16
	Arg uint16
}

var ErrFwIntFailed = lerrors.Errorf("arcmsg: trigger_fw_int failed: interrupt already pending")
var ErrMsgNotRecognized = lerrors.Errorf("arcmsg: message not recognized by ARC firmware")

// TimeoutError reports that a poll exceeded its deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string { return "arcmsg: timed out after " + e.Timeout.String() }

// Exchange writes msg's arguments and opcode to the slot, triggers the ARC
// firmware interrupt, and if waitForDone polls for completion. The
// interrupt is raised by a read-modify-write of MiscCntl bit 16.
func Exchange(ci comms.ChipInterface, addr Addr, slot Slot, msg Msg, waitForDone bool, timeout time.Duration) (Result, error) {
	argWord := uint32(msg.Arg0) | uint32(msg.Arg1)<<16
	if err := comms.AxiWrite32(ci, addr.scratch(slot.ReturnReg), argWord); err != nil {
		return Result{}, err
	}
	if err := comms.AxiWrite32(ci, addr.scratch(slot.MsgReg), msg.wireCode()); err != nil {
		return Result{}, err
	}

	miscCntl, err := comms.AxiRead32(ci, addr.MiscCntl)
	if err != nil {
		return Result{}, err
	}
	const fwInt0Bit = 1 << 16
	if miscCntl&fwInt0Bit != 0 {
		return Result{}, ErrFwIntFailed
	}
	if err := comms.AxiWrite32(ci, addr.MiscCntl, miscCntl|fwInt0Bit); err != nil {
		return Result{}, err
	}

	if !waitForDone {
		return Result{}, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		status, err := comms.AxiRead32(ci, addr.scratch(slot.MsgReg))
		if err != nil {
			return Result{}, err
		}
		if status == 0xFFFFFFFF {
			return Result{}, ErrMsgNotRecognized
		}
		if status&0xFF == uint32(msg.Code)&0xFF {
			arg, err := comms.AxiRead32(ci, addr.scratch(slot.ReturnReg))
			if err != nil {
				return Result{}, err
			}
			return Result{Rc: uint16(status >> 16), Arg: uint16(arg)}, nil
		}
		if time.Now().After(deadline) {
			return Result{}, &TimeoutError{Timeout: timeout}
		}
		if err := pollLimiter.Wait(context.Background()); err != nil {
			return Result{}, err
		}
	}
}
