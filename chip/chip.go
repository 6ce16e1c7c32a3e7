// Package chip exposes the per-architecture capability surface
// (initialization, ARC messaging, neighbour discovery, telemetry, device
// info) behind a single tagged Chip value rather than an interface with
// downcasting: callers match on Kind when they need arch-specific
// behavior, and otherwise treat every Chip identically through ChipImpl.
package chip

import (
	"time"

	"github.com/tenstorrent/luwen-go/arch"
	"github.com/tenstorrent/luwen-go/arcmsg"
	"github.com/tenstorrent/luwen-go/comms"
	"github.com/tenstorrent/luwen-go/initstate"
	"github.com/tenstorrent/luwen-go/kdi"
	"github.com/tenstorrent/luwen-go/lerrors"
	"github.com/tenstorrent/luwen-go/telemetry"
	"github.com/tenstorrent/luwen-go/topology"
)

// telemetryOffsets is the fixed tag->offset layout every supported
// firmware generation publishes for the tags this module understands.
var telemetryOffsets = map[uint16]int{
	telemetry.TagBoardID:        0,
	telemetry.TagHarvestingMask: 4,
	telemetry.TagAiclk:          8,
}

const telemetryTableBytes = 64

// ChipImpl is the capability set every concrete architecture provides.
// It mirrors the Rust source's dyn ChipImpl trait object, collapsed here
// into the method set a tagged Chip forwards to.
type ChipImpl interface {
	UpdateInitState(is *initstate.InitStatus) (initstate.Result, error)
	Arch() arch.Arch
	ArcMsg(msg arcmsg.Msg, waitForDone bool, timeout time.Duration) (arcmsg.Result, error)
	NeighbouringChips() ([]topology.NeighbouringChip, error)
	Telemetry() (telemetry.Table, error)
	DeviceInfo() (kdi.DeviceInfo, error)

	// selfReportedCoord and openRemote back the topology.Chip interface;
	// they are unexported because only Wormhole/Blackhole in this package
	// implement ChipImpl, and topology discovery always goes through the
	// tagged Chip rather than a raw ChipImpl.
	selfReportedCoord() (comms.EthAddr, error)
	openRemote(eth comms.EthAddr) (topology.Chip, error)
}

// Kind discriminates the two concrete architectures a Chip can wrap.
type Kind int

const (
	W Kind = iota
	B
)

// Chip is the tagged union Chip = {W(Wormhole), B(Blackhole)}: a single
// concrete type whose behavior is entirely delegated to the wrapped
// ChipImpl, so callers needing arch-specific behavior match on Kind
// instead of type-asserting an interface.
type Chip struct {
	Kind Kind
	impl ChipImpl
}

// NewWormhole wraps a Wormhole chip.
func NewWormhole(w *Wormhole) Chip { return Chip{Kind: W, impl: w} }

// NewBlackhole wraps a Blackhole chip.
func NewBlackhole(b *Blackhole) Chip { return Chip{Kind: B, impl: b} }

func (c Chip) UpdateInitState(is *initstate.InitStatus) (initstate.Result, error) {
	return c.impl.UpdateInitState(is)
}
func (c Chip) Arch() arch.Arch { return c.impl.Arch() }
func (c Chip) ArcMsg(msg arcmsg.Msg, waitForDone bool, timeout time.Duration) (arcmsg.Result, error) {
	return c.impl.ArcMsg(msg, waitForDone, timeout)
}
func (c Chip) NeighbouringChips() ([]topology.NeighbouringChip, error) {
	return c.impl.NeighbouringChips()
}
func (c Chip) Telemetry() (telemetry.Table, error) { return c.impl.Telemetry() }
func (c Chip) DeviceInfo() (kdi.DeviceInfo, error) { return c.impl.DeviceInfo() }

// WaitForInit, BoardID, Neighbours, SelfReportedCoord and OpenRemote
// implement topology.Chip, letting detection code drive a Chip without
// depending on the concrete Wormhole/Blackhole type.
func (c Chip) WaitForInit(cfg initstate.Config, callback func(initstate.DetectState) error, allowFailure bool) (*initstate.InitStatus, error) {
	is := initstate.NewInitStatus(cfg.PerSubsystemTimeout, time.Now())
	return is, initstate.WaitForInit(cfg, 0, is, callback, allowFailure, cfg.OverallTimeout)
}

func (c Chip) BoardID() (uint32, error) {
	t, err := c.Telemetry()
	if err != nil {
		return 0, err
	}
	id, ok := t.BoardID()
	if !ok {
		return 0, lerrors.Errorf("chip: telemetry has no board id tag")
	}
	return id, nil
}

func (c Chip) Neighbours() ([]topology.NeighbouringChip, error) { return c.NeighbouringChips() }

func (c Chip) SelfReportedCoord() (comms.EthAddr, error) {
	return c.impl.selfReportedCoord()
}

func (c Chip) OpenRemote(eth comms.EthAddr) (topology.Chip, error) {
	return c.impl.openRemote(eth)
}
