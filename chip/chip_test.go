package chip_test

import (
	"testing"
	"time"

	"github.com/kr/pretty"
	. "gopkg.in/check.v1"

	"github.com/tenstorrent/luwen-go/arch"
	"github.com/tenstorrent/luwen-go/arcmsg"
	"github.com/tenstorrent/luwen-go/axi"
	"github.com/tenstorrent/luwen-go/chip"
	"github.com/tenstorrent/luwen-go/comms"
	"github.com/tenstorrent/luwen-go/erisc"
	"github.com/tenstorrent/luwen-go/kdi"
)

func Test(t *testing.T) { TestingT(t) }

type chipSuite struct{}

var _ = Suite(&chipSuite{})

// fakeArc is a memory-backed ChipInterface whose write hook plays the ARC
// firmware's half of a mailbox exchange.
type fakeArc struct {
	mem     [64 << 10]byte
	onWrite func(f *fakeArc, addr uint64, src []byte)
}

func (f *fakeArc) GetDeviceInfo() (kdi.DeviceInfo, error) { return kdi.DeviceInfo{}, nil }
func (f *fakeArc) AxiRead(addr uint64, dst []byte) error {
	copy(dst, f.mem[addr:])
	return nil
}
func (f *fakeArc) AxiWrite(addr uint64, src []byte) error {
	copy(f.mem[addr:], src)
	if f.onWrite != nil {
		f.onWrite(f, addr, src)
	}
	return nil
}
func (f *fakeArc) NocRead(coord comms.NocCoord, nocID uint8, addr uint64, dst []byte) error {
	return f.AxiRead(addr, dst)
}
func (f *fakeArc) NocWrite(coord comms.NocCoord, nocID uint8, addr uint64, src []byte) error {
	return f.AxiWrite(addr, src)
}
func (f *fakeArc) NocMulticast(xStart, yStart, xEnd, yEnd comms.NocCoord, nocID uint8, addr uint64, src []byte) error {
	return nil
}
func (f *fakeArc) NocBroadcast(nocID uint8, addr uint64, src []byte) error { return nil }
func (f *fakeArc) EthNocRead(eth comms.EthAddr, coord comms.NocCoord, nocID uint8, addr uint64, dst []byte) error {
	return f.AxiRead(addr, dst)
}
func (f *fakeArc) EthNocWrite(eth comms.EthAddr, coord comms.NocCoord, nocID uint8, addr uint64, src []byte) error {
	return f.AxiWrite(addr, src)
}

var testArcAddr = arcmsg.Addr{ScratchBase: 0x1000, MiscCntl: 0x2000, PostCode: 0x3000}

const telemetryTableAddr = 0x4000

func putLe32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

// newFakeArc seeds a telemetry table and installs a write hook that
// answers GetSmbusTelemetryAddr with its address.
func newFakeArc() *fakeArc {
	f := &fakeArc{}
	putLe32(f.mem[telemetryTableAddr:], 0x35000123)   // board id
	putLe32(f.mem[telemetryTableAddr+4:], 0x00000003) // harvesting mask
	putLe32(f.mem[telemetryTableAddr+8:], 800)        // aiclk MHz
	msgReg := testArcAddr.ScratchBase + 4*uint64(arcmsg.DefaultSlot.MsgReg)
	returnReg := testArcAddr.ScratchBase + 4*uint64(arcmsg.DefaultSlot.ReturnReg)
	f.onWrite = func(f *fakeArc, addr uint64, src []byte) {
		if addr == msgReg && len(src) == 4 && src[0] == byte(arcmsg.GetSmbusTelemetryAddr) {
			putLe32(f.mem[returnReg:], telemetryTableAddr)
		}
	}
	return f
}

func newTestWormhole(f *fakeArc) *chip.Wormhole {
	return &chip.Wormhole{
		CI:      f,
		CC:      &comms.ArcIf{Table: axi.Table{}},
		ArcAddr: testArcAddr,
		ArcSlot: arcmsg.DefaultSlot,
		Tunnels: []*erisc.Tunnel{{CI: f}},
	}
}

func (s *chipSuite) TestTaggedDispatch(c *C) {
	w := chip.NewWormhole(newTestWormhole(newFakeArc()))
	c.Check(w.Kind, Equals, chip.W)
	c.Check(w.Arch(), Equals, arch.Wormhole)

	b := chip.NewBlackhole(&chip.Blackhole{})
	c.Check(b.Kind, Equals, chip.B)
	c.Check(b.Arch(), Equals, arch.Blackhole)
}

func (s *chipSuite) TestWormholeTelemetry(c *C) {
	f := newFakeArc()
	w := chip.NewWormhole(newTestWormhole(f))

	table, err := w.Telemetry()
	c.Assert(err, IsNil)

	boardID, ok := table.BoardID()
	c.Assert(ok, Equals, true, Commentf("table: %s", pretty.Sprint(table)))
	c.Check(boardID, Equals, uint32(0x35000123))

	mask, ok := table.HarvestingMask()
	c.Assert(ok, Equals, true, Commentf("table: %s", pretty.Sprint(table)))
	c.Check(mask, Equals, uint32(0x3))

	aiclk, ok := table.Aiclk()
	c.Assert(ok, Equals, true)
	c.Check(aiclk, Equals, uint32(800))
}

func (s *chipSuite) TestWormholeArcMsgTestRoundTrip(c *C) {
	f := newFakeArc()
	w := chip.NewWormhole(newTestWormhole(f))

	res, err := w.ArcMsg(arcmsg.Msg{Code: arcmsg.Test, Arg0: 101}, true, time.Second)
	c.Assert(err, IsNil)
	c.Check(res.Arg, Equals, uint16(101))
}

func (s *chipSuite) TestWormholeOpenRemoteReportsAddressedCoord(c *C) {
	w := chip.NewWormhole(newTestWormhole(newFakeArc()))

	eth := comms.EthAddr{RackX: 1, ShelfX: 2, ShelfY: 3}
	remote, err := w.OpenRemote(eth)
	c.Assert(err, IsNil)

	coord, err := remote.SelfReportedCoord()
	c.Assert(err, IsNil)
	c.Check(coord, Equals, eth)
}

func (s *chipSuite) TestBlackholeOpenRemoteUnsupported(c *C) {
	b := chip.NewBlackhole(&chip.Blackhole{})
	_, err := b.OpenRemote(comms.EthAddr{})
	c.Assert(err, ErrorMatches, "blackhole: remote chip access is not supported")
}

func (s *chipSuite) TestBoardIDFromTelemetry(c *C) {
	w := chip.NewWormhole(newTestWormhole(newFakeArc()))
	id, err := w.BoardID()
	c.Assert(err, IsNil)
	c.Check(id, Equals, uint32(0x35000123))
}
