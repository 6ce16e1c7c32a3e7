package chip

import (
	"time"

	"github.com/tenstorrent/luwen-go/arch"
	"github.com/tenstorrent/luwen-go/arcmsg"
	"github.com/tenstorrent/luwen-go/axi"
	"github.com/tenstorrent/luwen-go/comms"
	"github.com/tenstorrent/luwen-go/erisc"
	"github.com/tenstorrent/luwen-go/initstate"
	"github.com/tenstorrent/luwen-go/kdi"
	"github.com/tenstorrent/luwen-go/lerrors"
	"github.com/tenstorrent/luwen-go/telemetry"
	"github.com/tenstorrent/luwen-go/topology"
)

// Wormhole is a first-generation chip: a PCIe-local ARC mailbox plus up
// to 16 ERISC cores providing the Ethernet mesh a RemoteArcIf tunnels
// through.
type Wormhole struct {
	CI            comms.ChipInterface
	CC            comms.ChipComms
	ArcAddr       arcmsg.Addr
	ArcSlot       arcmsg.Slot
	DmaTriggerBit uint32

	Tunnels   []*erisc.Tunnel
	Info      kdi.DeviceInfo
	SelfCoord comms.EthAddr
	NocCoord  comms.NocCoord
	NocID     uint8
}

func (w *Wormhole) Arch() arch.Arch { return arch.Wormhole }

func (w *Wormhole) UpdateInitState(is *initstate.InitStatus) (initstate.Result, error) {
	return initstate.Update(initstate.Config{
		Arch: arch.Wormhole, CI: w.CI, CC: w.CC,
		ArcAddr: w.ArcAddr, ArcSlot: w.ArcSlot, DmaTriggerBit: w.DmaTriggerBit,
	}, is)
}

func (w *Wormhole) ArcMsg(msg arcmsg.Msg, waitForDone bool, timeout time.Duration) (arcmsg.Result, error) {
	return arcmsg.Exchange(w.CI, w.ArcAddr, w.ArcSlot, msg, waitForDone, timeout)
}

func (w *Wormhole) DeviceInfo() (kdi.DeviceInfo, error) { return w.Info, nil }

func (w *Wormhole) Telemetry() (telemetry.Table, error) {
	res, err := w.ArcMsg(arcmsg.Msg{Code: arcmsg.GetSmbusTelemetryAddr}, true, time.Second)
	if err != nil {
		return telemetry.Table{}, lerrors.Errorf("wormhole: telemetry address request failed: %w", err)
	}
	tableAddr := uint64(res.Arg)
	raw := make([]byte, telemetryTableBytes)
	if err := w.CI.AxiRead(tableAddr, raw); err != nil {
		return telemetry.Table{}, lerrors.Errorf("wormhole: telemetry table read failed: %w", err)
	}
	return telemetry.Decode(raw, telemetryOffsets)
}

// NeighbouringChips reads each local ERISC core's connection-info block
// over the NoC and reports the reachable neighbours.
func (w *Wormhole) NeighbouringChips() ([]topology.NeighbouringChip, error) {
	var out []topology.NeighbouringChip
	for coreIdx := 0; coreIdx < len(w.Tunnels); coreIdx++ {
		t := w.Tunnels[coreIdx]
		if t == nil {
			continue
		}
		version, err := comms.NocRead32(w.CI, t.Coord, t.NocID, erisc.NewEthAddresses(0).NodeInfo)
		if err != nil {
			return nil, err
		}
		addrs := erisc.NewEthAddresses(version)
		connWord, err := comms.NocRead32(w.CI, t.Coord, t.NocID, addrs.EthConnInfo)
		if err != nil {
			return nil, err
		}
		if connWord == 0 {
			continue
		}
		enabled := connWord&1 != 0
		remoteCoord := [2]uint8{uint8(connWord >> 8), uint8(connWord >> 16)}
		out = append(out, topology.NeighbouringChip{
			LocalNocAddr:   [2]uint8{uint8(t.Coord.X), uint8(t.Coord.Y)},
			RemoteNocAddr:  remoteCoord,
			EthAddr:        w.SelfCoord,
			RoutingEnabled: enabled,
		})
	}
	return out, nil
}

func (w *Wormhole) selfReportedCoord() (comms.EthAddr, error) { return w.SelfCoord, nil }

// openRemote builds a new Wormhole handle routed through RemoteArcIf, the
// Ethernet-tunneled ChipComms strategy: all AXI access to the remote
// chip's ARC mailbox is carried over the local ERISC tunnel rather than a
// second PCIe BAR.
func (w *Wormhole) openRemote(eth comms.EthAddr) (topology.Chip, error) {
	if len(w.Tunnels) == 0 {
		return nil, lerrors.Errorf("wormhole: no ERISC tunnel available to reach %+v", eth)
	}
	var table axi.Table
	if arcIf, ok := w.CC.(*comms.ArcIf); ok {
		table = arcIf.Table
	}
	remote := &Wormhole{
		CI:            w.CI,
		CC:            &comms.RemoteArcIf{Table: table, Eth: eth, Coord: w.NocCoord, NocID: w.NocID},
		ArcAddr:       w.ArcAddr,
		ArcSlot:       w.ArcSlot,
		DmaTriggerBit: w.DmaTriggerBit,
		SelfCoord:     eth,
		NocCoord:      w.NocCoord,
		NocID:         w.NocID,
	}
	return NewWormhole(remote), nil
}
