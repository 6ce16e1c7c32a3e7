package kdi_test

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	. "gopkg.in/check.v1"

	"golang.org/x/sys/unix"

	"github.com/tenstorrent/luwen-go/dirs"
	"github.com/tenstorrent/luwen-go/kdi"
)

func Test(t *testing.T) { TestingT(t) }

type kdiSuite struct {
	root string
}

var _ = Suite(&kdiSuite{})

func (s *kdiSuite) SetUpTest(c *C) {
	s.root = c.MkDir()
	dirs.SetRootDir(s.root)
}

func (s *kdiSuite) TearDownTest(c *C) {
	dirs.SetRootDir("")
}

func (s *kdiSuite) TestEnumerateDevicesEmpty(c *C) {
	indices, err := kdi.EnumerateDevices()
	c.Assert(err, IsNil)
	c.Check(indices, HasLen, 0)
}

func (s *kdiSuite) TestEnumerateDevicesSortsNumericNames(c *C) {
	c.Assert(os.MkdirAll(dirs.ChipCharDeviceDir(), 0755), IsNil)
	for _, name := range []string{"2", "0", "1", "not-a-number"} {
		c.Assert(os.WriteFile(filepath.Join(dirs.ChipCharDeviceDir(), name), nil, 0644), IsNil)
	}
	indices, err := kdi.EnumerateDevices()
	c.Assert(err, IsNil)
	c.Check(indices, DeepEquals, []int{0, 1, 2})
}

type wireDeviceInfo struct {
	OutSize      uint32
	VendorID     uint16
	DeviceID     uint16
	SubsysVendor uint16
	SubsysID     uint16
	BusDevFn     uint16
	MaxDmaLog2   uint8
	_            uint8
	PCIDomain    uint16
	_            uint16
}

func (s *kdiSuite) TestQueryDeviceInfo(c *C) {
	dev := kdi.NewTestDevice(0, 42)
	restore := kdi.MockRawSyscall(func(trap, a1, a2, a3 uintptr) (uintptr, uintptr, unix.Errno) {
		c.Check(trap, Equals, uintptr(unix.SYS_IOCTL))
		c.Check(a1, Equals, uintptr(42))
		c.Check(a2, Equals, kdi.OpGetDeviceInfo)
		info := (*wireDeviceInfo)(unsafe.Pointer(a3))
		info.VendorID = 0x1e52
		info.DeviceID = 0x401e
		// bus=0x17, device=0, function=0 -> bits [8:15]=bus
		info.BusDevFn = 0x17 << 8
		info.MaxDmaLog2 = 28
		info.PCIDomain = 0
		return 0, 0, 0
	})
	defer restore()

	di, err := dev.QueryDeviceInfo()
	c.Assert(err, IsNil)
	c.Check(di.VendorID, Equals, uint16(0x1e52))
	c.Check(di.DeviceID, Equals, uint16(0x401e))
	c.Check(di.Bus(), Equals, uint8(0x17))
	c.Check(di.Device(), Equals, uint8(0))
	c.Check(di.Function(), Equals, uint8(0))
	c.Check(di.MaxDmaLog2, Equals, uint8(28))
}

func (s *kdiSuite) TestQueryDeviceInfoErrorPreservesErrno(c *C) {
	dev := kdi.NewTestDevice(3, 42)
	restore := kdi.MockRawSyscall(func(trap, a1, a2, a3 uintptr) (uintptr, uintptr, unix.Errno) {
		return 0, 0, unix.EIO
	})
	defer restore()

	_, err := dev.QueryDeviceInfo()
	c.Assert(err, ErrorMatches, "device 3: ioctl GetDeviceInfo failed:.*")
	opErr, ok := err.(*kdi.OpErr)
	c.Assert(ok, Equals, true)
	c.Check(opErr.DeviceID, Equals, 3)
	c.Check(opErr.Op, Equals, "GetDeviceInfo")
	c.Check(opErr.Errno, Equals, unix.EIO)
}

func (s *kdiSuite) TestAllocateDmaBufferClampsToPageSize(c *C) {
	dev := kdi.NewTestDevice(0, 1)
	var gotSize uint32
	restore := kdi.MockRawSyscall(func(trap, a1, a2, a3 uintptr) (uintptr, uintptr, unix.Errno) {
		type req struct {
			RequestedSize uint32
			BufIndex      uint8
		}
		r := (*req)(unsafe.Pointer(a3))
		gotSize = r.RequestedSize
		return 0, 0, 0
	})
	defer restore()

	_, err := dev.AllocateDmaBuffer(16, 28, 0)
	c.Assert(err, IsNil)
	c.Check(gotSize, Equals, uint32(kdi.PageSize))
}

func (s *kdiSuite) TestAllocateDmaBufferClampsToMax(c *C) {
	dev := kdi.NewTestDevice(0, 1)
	var gotSize uint32
	restore := kdi.MockRawSyscall(func(trap, a1, a2, a3 uintptr) (uintptr, uintptr, unix.Errno) {
		type req struct {
			RequestedSize uint32
			BufIndex      uint8
		}
		r := (*req)(unsafe.Pointer(a3))
		gotSize = r.RequestedSize
		return 0, 0, 0
	})
	defer restore()

	_, err := dev.AllocateDmaBuffer(1<<30, 16, 0) // max = 1<<16
	c.Assert(err, IsNil)
	c.Check(gotSize, Equals, uint32(1<<16))
}

func (s *kdiSuite) TestResetDeviceNonZeroResultIsError(c *C) {
	dev := kdi.NewTestDevice(0, 1)
	restore := kdi.MockRawSyscall(func(trap, a1, a2, a3 uintptr) (uintptr, uintptr, unix.Errno) {
		type resetReq struct {
			OutSize uint32
			Flags   uint32
			Result  uint32
		}
		r := (*resetReq)(unsafe.Pointer(a3))
		r.Result = 1
		return 0, 0, 0
	})
	defer restore()

	err := dev.ResetDevice(kdi.ResetRestoreState)
	c.Assert(err, ErrorMatches, ".*ResetDevice: result=1")
}

func (s *kdiSuite) TestFreeTlbBusy(c *C) {
	dev := kdi.NewTestDevice(0, 1)
	restore := kdi.MockRawSyscall(func(trap, a1, a2, a3 uintptr) (uintptr, uintptr, unix.Errno) {
		return 0, 0, unix.EBUSY
	})
	defer restore()

	err := dev.FreeTlb(7)
	c.Assert(err, NotNil)
	opErr := err.(*kdi.OpErr)
	c.Check(opErr.Errno, Equals, unix.EBUSY)
}
