package initstate_test

import (
	"testing"
	"time"

	"github.com/tenstorrent/luwen-go/arch"
	"github.com/tenstorrent/luwen-go/arcmsg"
	"github.com/tenstorrent/luwen-go/axi"
	"github.com/tenstorrent/luwen-go/comms"
	"github.com/tenstorrent/luwen-go/initstate"
	"github.com/tenstorrent/luwen-go/kdi"
	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type initSuite struct{}

var _ = Suite(&initSuite{})

type fakeInterface struct {
	mem  map[uint64]uint32
	fail bool
}

func newFake() *fakeInterface { return &fakeInterface{mem: map[uint64]uint32{}} }

func (f *fakeInterface) GetDeviceInfo() (kdi.DeviceInfo, error) { return kdi.DeviceInfo{}, nil }
func (f *fakeInterface) AxiRead(addr uint64, dst []byte) error {
	if f.fail {
		return lerrorsStub{}
	}
	v := f.mem[addr]
	dst[0], dst[1], dst[2], dst[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	return nil
}
func (f *fakeInterface) AxiWrite(addr uint64, src []byte) error {
	f.mem[addr] = uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
	return nil
}
func (f *fakeInterface) NocRead(comms.NocCoord, uint8, uint64, []byte) error  { return nil }
func (f *fakeInterface) NocWrite(comms.NocCoord, uint8, uint64, []byte) error { return nil }
func (f *fakeInterface) NocMulticast(comms.NocCoord, comms.NocCoord, comms.NocCoord, comms.NocCoord, uint8, uint64, []byte) error {
	return nil
}
func (f *fakeInterface) NocBroadcast(uint8, uint64, []byte) error { return nil }
func (f *fakeInterface) EthNocRead(comms.EthAddr, comms.NocCoord, uint8, uint64, []byte) error {
	return nil
}
func (f *fakeInterface) EthNocWrite(comms.EthAddr, comms.NocCoord, uint8, uint64, []byte) error {
	return nil
}

type lerrorsStub struct{}

func (lerrorsStub) Error() string { return "simulated read failure" }

type fakeDram struct{ statuses []initstate.DramChannelStatus }

func (d *fakeDram) ChannelCount() int { return len(d.statuses) }
func (d *fakeDram) ChannelStatus(ch int) (initstate.DramChannelStatus, error) {
	return d.statuses[ch], nil
}

type fakeEth struct{ cores []int }

func (e *fakeEth) EnabledCores() []int                { return e.cores }
func (e *fakeEth) Heartbeat(core int) (uint32, error) { return 1, nil } // unchanging: still training
func (e *fakeEth) FwCorrupted(core int) (bool, error) { return false, nil }

func baseConfig(ci comms.ChipInterface) initstate.Config {
	tbl := axi.Table{"ARC_RESET.SCRATCH[0]": {Addr: 0x10, Size: 4}}
	return initstate.Config{
		Arch:    arch.Wormhole,
		CI:      ci,
		CC:      &comms.ArcIf{Table: tbl},
		ArcAddr: arcmsg.Addr{ScratchBase: 0x1000, MiscCntl: 0x2000, PostCode: 0x3000},
		ArcSlot: arcmsg.DefaultSlot,
	}
}

func (s *initSuite) TestCommsFailureDoesNotAbortImmediately(c *C) {
	ci := newFake()
	ci.fail = true
	is := initstate.NewInitStatus(time.Second, time.Now())
	res, err := initstate.Update(baseConfig(ci), is)
	c.Assert(err, IsNil)
	c.Check(res, Equals, initstate.NoError)
	c.Check(is.Components[initstate.Comms].Latest().Kind, Equals, initstate.Error)
}

func (s *initSuite) TestArcTransitionsWaitingToJustFinishedToDone(c *C) {
	ci := newFake()
	// s5 = 0, pc = postCodeInitDone -> safe.
	ci.mem[0x1000+4*uint64(arcmsg.DefaultSlot.MsgReg)] = 0
	ci.mem[0x3000] = 0xC0DE0001

	is := initstate.NewInitStatus(time.Second, time.Now())
	cfg := baseConfig(ci)

	initstate.Update(cfg, is)
	c.Check(is.Components[initstate.ARC].Latest().Kind, Equals, initstate.JustFinished)

	initstate.Update(cfg, is)
	c.Check(is.Components[initstate.ARC].Latest().Kind, Equals, initstate.Done)
}

func (s *initSuite) TestNocSafeDegradesToNoCheck(c *C) {
	ci := newFake()
	is := initstate.NewInitStatus(time.Second, time.Now())
	is.NocSafe = true
	cfg := baseConfig(ci)
	initstate.Update(cfg, is)
	c.Check(is.Components[initstate.ARC].Latest().Kind, Equals, initstate.NoCheck)
	c.Check(is.Components[initstate.DRAM].Latest().Kind, Equals, initstate.NoCheck)
}

func (s *initSuite) TestDramAllPassIsDone(c *C) {
	ci := newFake()
	is := initstate.NewInitStatus(time.Second, time.Now())
	cfg := baseConfig(ci)
	cfg.Dram = &fakeDram{statuses: []initstate.DramChannelStatus{initstate.TrainingPass, initstate.TrainingSkip}}
	initstate.Update(cfg, is)
	c.Check(is.Components[initstate.DRAM].Latest().Kind, Equals, initstate.Done)
}

func (s *initSuite) TestDramFailIsError(c *C) {
	ci := newFake()
	is := initstate.NewInitStatus(time.Second, time.Now())
	cfg := baseConfig(ci)
	cfg.Dram = &fakeDram{statuses: []initstate.DramChannelStatus{initstate.TrainingFail}}
	initstate.Update(cfg, is)
	c.Check(is.Components[initstate.DRAM].Latest().Kind, Equals, initstate.Error)
}

func (s *initSuite) TestEthernetUnchangingHeartbeatIsWaiting(c *C) {
	ci := newFake()
	is := initstate.NewInitStatus(time.Second, time.Now())
	cfg := baseConfig(ci)
	cfg.Eth = &fakeEth{cores: []int{0, 1}}
	initstate.Update(cfg, is)
	c.Check(is.Components[initstate.Ethernet].Latest().Kind, Equals, initstate.Waiting)
}

func (s *initSuite) TestCpuNoCheckOnWormhole(c *C) {
	ci := newFake()
	is := initstate.NewInitStatus(time.Second, time.Now())
	cfg := baseConfig(ci)
	initstate.Update(cfg, is)
	c.Check(is.Components[initstate.CPU].Latest().Kind, Equals, initstate.NoCheck)
}

func (s *initSuite) TestWaitForInitCompletesWhenNoSubsystemWaiting(c *C) {
	ci := newFake()
	ci.mem[0x1000+4*uint64(arcmsg.DefaultSlot.MsgReg)] = 0
	ci.mem[0x3000] = 0xC0DE0001
	is := initstate.NewInitStatus(time.Second, time.Now())
	cfg := baseConfig(ci)
	cfg.Dram = &fakeDram{statuses: []initstate.DramChannelStatus{initstate.TrainingPass}}

	var ticks int
	err := initstate.WaitForInit(cfg, 0, is, func(ds initstate.DetectState) error {
		ticks++
		return nil
	}, true, time.Second)
	c.Assert(err, IsNil)
	c.Check(ticks >= 1, Equals, true)
	c.Check(is.InitComplete(), Equals, true)
}
