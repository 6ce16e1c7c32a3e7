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

// Blackhole is the second-generation chip. It carries a CPUProbe that
// Wormhole never has, reflecting the extra subsystem initstate.Update
// tracks only on this architecture.
type Blackhole struct {
	CI            comms.ChipInterface
	CC            comms.ChipComms
	ArcAddr       arcmsg.Addr
	ArcSlot       arcmsg.Slot
	DmaTriggerBit uint32
	Cpu           initstate.CPUProbe

	Info      kdi.DeviceInfo
	SelfCoord comms.EthAddr
}

func (b *Blackhole) Arch() arch.Arch { return arch.Blackhole }

func (b *Blackhole) UpdateInitState(is *initstate.InitStatus) (initstate.Result, error) {
	return initstate.Update(initstate.Config{
		Arch: arch.Blackhole, CI: b.CI, CC: b.CC,
		ArcAddr: b.ArcAddr, ArcSlot: b.ArcSlot, DmaTriggerBit: b.DmaTriggerBit,
		Cpu: b.Cpu,
	}, is)
}

func (b *Blackhole) ArcMsg(msg arcmsg.Msg, waitForDone bool, timeout time.Duration) (arcmsg.Result, error) {
	return arcmsg.Exchange(b.CI, b.ArcAddr, b.ArcSlot, msg, waitForDone, timeout)
}

func (b *Blackhole) DeviceInfo() (kdi.DeviceInfo, error) { return b.Info, nil }

func (b *Blackhole) Telemetry() (telemetry.Table, error) {
	res, err := b.ArcMsg(arcmsg.Msg{Code: arcmsg.GetSmbusTelemetryAddr}, true, time.Second)
	if err != nil {
		return telemetry.Table{}, lerrors.Errorf("blackhole: telemetry address request failed: %w", err)
	}
	raw := make([]byte, telemetryTableBytes)
	if err := b.CI.AxiRead(uint64(res.Arg), raw); err != nil {
		return telemetry.Table{}, lerrors.Errorf("blackhole: telemetry table read failed: %w", err)
	}
	return telemetry.Decode(raw, telemetryOffsets)
}

// NeighbouringChips: Blackhole's Ethernet mesh discovery is not yet wired
// to a concrete ERISC generation in this module; PCIe-attached Blackhole
// boards in the currently supported configurations are always roots.
func (b *Blackhole) NeighbouringChips() ([]topology.NeighbouringChip, error) { return nil, nil }

func (b *Blackhole) selfReportedCoord() (comms.EthAddr, error) { return b.SelfCoord, nil }

func (b *Blackhole) openRemote(eth comms.EthAddr) (topology.Chip, error) {
	return nil, lerrors.Errorf("blackhole: remote chip access is not supported")
}
