// Package kdi implements the kernel-driver interface: it opens a chip's
// character device, issues the ioctl surface the in-tree driver exposes,
// and maps BARs and DMA buffers. This is the lowest layer of the stack;
// everything above treats it as the only place that talks to the kernel.
package kdi

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tenstorrent/luwen-go/dirs"
	"github.com/tenstorrent/luwen-go/lerrors"
)

// MappingID identifies a BAR/resource mapping recognized by the driver.
type MappingID uint32

const (
	MappingUnused MappingID = 0
	MappingRes0UC MappingID = 1
	MappingRes0WC MappingID = 2
	MappingRes1UC MappingID = 3
	MappingRes1WC MappingID = 4
	MappingRes2UC MappingID = 5
	MappingRes2WC MappingID = 6
)

// ResetFlag selects the behavior of ResetDevice.
type ResetFlag uint32

const (
	ResetRestoreState ResetFlag = 0
	ResetPCIeLink     ResetFlag = 1
	ResetConfigWrite  ResetFlag = 2
)

// DeviceInfo mirrors the GetDeviceInfo ioctl response.
type DeviceInfo struct {
	VendorID     uint16
	DeviceID     uint16
	SubsysVendor uint16
	SubsysID     uint16
	// BusDevFn packs bits [0:2]=function, [3:7]=device, [8:15]=bus.
	BusDevFn   uint16
	MaxDmaLog2 uint8
	PCIDomain  uint16
}

// Bus, Device, Function unpack BusDevFn.
func (d DeviceInfo) Bus() uint8      { return uint8(d.BusDevFn >> 8) }
func (d DeviceInfo) Device() uint8   { return uint8((d.BusDevFn >> 3) & 0x1f) }
func (d DeviceInfo) Function() uint8 { return uint8(d.BusDevFn & 0x7) }

// Mapping is one entry of a QueryMappings response.
type Mapping struct {
	ID   MappingID
	Base uint64
	Size uint64
}

// DmaBufferInfo is the AllocateDmaBuffer response.
type DmaBufferInfo struct {
	PhysicalAddress uint64
	MappingOffset   uint64
	Size            uint32
}

// TlbAllocation is the AllocateTlb response; FreeTlb(ID) must be called
// exactly once before the owning device is closed.
type TlbAllocation struct {
	ID           uint32
	MmapOffsetUC uint64
	Size         uint64
}

// NocTlbConfig is the hardware-encoded descriptor passed to ConfigureTlb;
// see pci.TlbDescriptor for the higher-level, not-yet-packed form.
type NocTlbConfig struct {
	LocalOffset    uint64
	XEnd, YEnd     uint8
	XStart, YStart uint8
	NocSel         uint8
	Mcast          bool
	Ordering       uint8
	Linked         bool
}

// OpErr preserves (device id, ioctl name, source errno).
type OpErr struct {
	DeviceID int
	Op       string
	Errno    unix.Errno
}

func (e *OpErr) Error() string {
	return fmt.Sprintf("device %d: ioctl %s failed: %s", e.DeviceID, e.Op, e.Errno.Error())
}

func (e *OpErr) Unwrap() error { return e.Errno }

// ioctl numbers: a fixed magic in the high byte and the operations numbered
// sequentially in the low byte, with no direction or size bits. They are
// baked in rather than computed from unix.IOW/IOWR because the response
// structs are variable-length (QueryMappings) in a way
// the stock macros don't model cleanly.
const (
	ioctlMagic = 0xFA

	opGetDeviceInfo     = ioctlMagic<<8 | 0
	opQueryMappings     = ioctlMagic<<8 | 1
	opAllocateDmaBuffer = ioctlMagic<<8 | 2
	opFreeDmaBuffer     = ioctlMagic<<8 | 3
	opResetDevice       = ioctlMagic<<8 | 4
	opAllocateTlb       = ioctlMagic<<8 | 5
	opFreeTlb           = ioctlMagic<<8 | 6
	opConfigureTlb      = ioctlMagic<<8 | 7
	opGetDriverInfo     = ioctlMagic<<8 | 8
)

// syscallFunc lets tests trap the raw syscall the way
// cmd/snap-gpio-helper's export_test.go traps unix.Syscall for ioctl
// testing.
type syscallFunc func(trap, a1, a2, a3 uintptr) (uintptr, uintptr, unix.Errno)

var rawSyscall syscallFunc = func(trap, a1, a2, a3 uintptr) (uintptr, uintptr, unix.Errno) {
	r1, r2, errno := unix.Syscall(trap, a1, a2, a3)
	return r1, r2, errno
}

func ioctl(fd int, op uintptr, ptr unsafe.Pointer) error {
	_, _, errno := rawSyscall(unix.SYS_IOCTL, uintptr(fd), op, uintptr(ptr))
	if errno != 0 {
		return errno
	}
	return nil
}

// Device is an open handle to /dev/tenstorrent/N.
type Device struct {
	Index int
	fd    int

	mu sync.Mutex
}

// EnumerateDevices scans dirs.ChipCharDeviceDir for children whose names
// parse as a non-negative integer, returning the sorted index list.
func EnumerateDevices() ([]int, error) {
	entries, err := os.ReadDir(dirs.ChipCharDeviceDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var indices []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || n < 0 {
			continue
		}
		indices = append(indices, n)
	}
	sort.Ints(indices)
	return indices, nil
}

// Open opens the character device for chip index n.
func Open(n int) (*Device, error) {
	path := filepath.Join(dirs.ChipCharDeviceDir(), strconv.Itoa(n))
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, lerrors.Wrap(lerrors.Context{DeviceID: n, Operation: "open"}, err)
	}
	return &Device{Index: n, fd: fd}, nil
}

// Close closes the underlying file descriptor. Callers must have already
// freed every TlbAllocation and DmaBuffer.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}

// FD returns the raw file descriptor, for mmap callers in package pci.
func (d *Device) FD() int { return d.fd }

var (
	mmapFunc   = unix.Mmap
	munmapFunc = unix.Munmap
)

// MapRegion memory-maps length bytes of the device at the given mmap
// offset (as reported by QueryMappings or AllocateTlb/AllocateDmaBuffer),
// read/write shared.
func (d *Device) MapRegion(offset uint64, length uint64) ([]byte, error) {
	b, err := mmapFunc(d.fd, int64(offset), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, lerrors.Wrap(lerrors.Context{DeviceID: d.Index, Operation: "mmap"}, err)
	}
	return b, nil
}

// UnmapRegion releases a mapping returned by MapRegion. TLB windows must
// be unmapped before FreeTlb or the free fails EBUSY.
func (d *Device) UnmapRegion(b []byte) error {
	return munmapFunc(b)
}

type deviceInfoWire struct {
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

// QueryDeviceInfo issues the GetDeviceInfo ioctl.
func (d *Device) QueryDeviceInfo() (DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var wire deviceInfoWire
	wire.OutSize = uint32(unsafe.Sizeof(wire))
	if err := ioctl(d.fd, opGetDeviceInfo, unsafe.Pointer(&wire)); err != nil {
		return DeviceInfo{}, &OpErr{DeviceID: d.Index, Op: "GetDeviceInfo", Errno: err.(unix.Errno)}
	}
	return DeviceInfo{
		VendorID:     wire.VendorID,
		DeviceID:     wire.DeviceID,
		SubsysVendor: wire.SubsysVendor,
		SubsysID:     wire.SubsysID,
		BusDevFn:     wire.BusDevFn,
		MaxDmaLog2:   wire.MaxDmaLog2,
		PCIDomain:    wire.PCIDomain,
	}, nil
}

type mappingWire struct {
	ID   uint32
	_    uint32
	Base uint64
	Size uint64
}

// QueryMappings issues the QueryMappings(N) ioctl, returning all n entries
// as the driver filled them, MappingUnused slots included.
func (d *Device) QueryMappings(n int) ([]Mapping, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wires := make([]mappingWire, n)
	if len(wires) == 0 {
		return nil, nil
	}
	if err := ioctl(d.fd, opQueryMappings, unsafe.Pointer(&wires[0])); err != nil {
		return nil, &OpErr{DeviceID: d.Index, Op: "QueryMappings", Errno: err.(unix.Errno)}
	}
	out := make([]Mapping, 0, n)
	for _, w := range wires {
		out = append(out, Mapping{ID: MappingID(w.ID), Base: w.Base, Size: w.Size})
	}
	return out, nil
}

type allocDmaReq struct {
	RequestedSize uint32
	BufIndex      uint8
	_             [3]byte
	_             [16]byte
}

type allocDmaResp struct {
	PhysAddr      uint64
	MappingOffset uint64
	Size          uint32
	_             uint32
	_             [16]byte
}

// PageSize is assumed 4 KiB, matching the host platforms this driver ships
// on; AllocateDmaBuffer clamps the requested size to [PageSize, 1<<maxLog2].
const PageSize = 4096

// AllocateDmaBuffer issues AllocateDmaBuffer, clamping requestedSize between
// PageSize and 1<<maxDmaBufSizeLog2.
func (d *Device) AllocateDmaBuffer(requestedSize uint32, maxDmaBufSizeLog2 uint8, index uint8) (DmaBufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	max := uint32(1) << maxDmaBufSizeLog2
	size := requestedSize
	if size < PageSize {
		size = PageSize
	}
	if size > max {
		size = max
	}

	req := allocDmaReq{RequestedSize: size, BufIndex: index}
	var resp allocDmaResp
	// The ioctl takes one buffer holding the request followed by the
	// response; combined lays the two out back to back, the kernel reads
	// the request half and fills in the response half.
	combined := struct {
		allocDmaReq
		allocDmaResp
	}{allocDmaReq: req}
	if err := ioctl(d.fd, opAllocateDmaBuffer, unsafe.Pointer(&combined)); err != nil {
		return DmaBufferInfo{}, &OpErr{DeviceID: d.Index, Op: "AllocateDmaBuffer", Errno: err.(unix.Errno)}
	}
	resp = combined.allocDmaResp
	return DmaBufferInfo{
		PhysicalAddress: resp.PhysAddr,
		MappingOffset:   resp.MappingOffset,
		Size:            resp.Size,
	}, nil
}

// FreeDmaBuffer issues FreeDmaBuffer for the given buffer index.
func (d *Device) FreeDmaBuffer(index uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	req := struct {
		Index uint8
		_     [7]byte
	}{Index: index}
	if err := ioctl(d.fd, opFreeDmaBuffer, unsafe.Pointer(&req)); err != nil {
		return &OpErr{DeviceID: d.Index, Op: "FreeDmaBuffer", Errno: err.(unix.Errno)}
	}
	return nil
}

// ResetDevice issues ResetDevice(flags).
func (d *Device) ResetDevice(flags ResetFlag) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	req := struct {
		OutSize uint32
		Flags   uint32
		Result  uint32
		_       uint32
	}{OutSize: 12, Flags: uint32(flags)}
	if err := ioctl(d.fd, opResetDevice, unsafe.Pointer(&req)); err != nil {
		return &OpErr{DeviceID: d.Index, Op: "ResetDevice", Errno: err.(unix.Errno)}
	}
	if req.Result != 0 {
		return lerrors.Errorf("device %d: ResetDevice: result=%d", d.Index, req.Result)
	}
	return nil
}

type allocTlbReq struct {
	Size uint64
}

type allocTlbResp struct {
	ID           uint32
	_            uint32
	MmapOffsetUC uint64
}

// AllocateTlb issues AllocateTlb(size).
func (d *Device) AllocateTlb(size uint64) (TlbAllocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	combined := struct {
		allocTlbReq
		allocTlbResp
	}{allocTlbReq: allocTlbReq{Size: size}}
	if err := ioctl(d.fd, opAllocateTlb, unsafe.Pointer(&combined)); err != nil {
		return TlbAllocation{}, &OpErr{DeviceID: d.Index, Op: "AllocateTlb", Errno: err.(unix.Errno)}
	}
	return TlbAllocation{ID: combined.ID, MmapOffsetUC: combined.MmapOffsetUC, Size: size}, nil
}

// FreeTlb issues FreeTlb(id); fails EBUSY if the window is still mapped.
func (d *Device) FreeTlb(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	req := struct{ ID uint32 }{ID: id}
	if err := ioctl(d.fd, opFreeTlb, unsafe.Pointer(&req)); err != nil {
		return &OpErr{DeviceID: d.Index, Op: "FreeTlb", Errno: err.(unix.Errno)}
	}
	return nil
}

// ConfigureTlb issues ConfigureTlb(id, config).
func (d *Device) ConfigureTlb(id uint32, cfg NocTlbConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	req := struct {
		ID     uint32
		_      uint32
		Config NocTlbConfig
	}{ID: id, Config: cfg}
	if err := ioctl(d.fd, opConfigureTlb, unsafe.Pointer(&req)); err != nil {
		return &OpErr{DeviceID: d.Index, Op: "ConfigureTlb", Errno: err.(unix.Errno)}
	}
	return nil
}

// QueryDriverVersion issues GetDriverInfo. pci.Open stores the returned
// version on its Device; no DMA or TLB path in this module checks it.
func (d *Device) QueryDriverVersion() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	req := struct {
		OutSize       uint32
		DriverVersion uint32
	}{OutSize: 8}
	if err := ioctl(d.fd, opGetDriverInfo, unsafe.Pointer(&req)); err != nil {
		return 0, &OpErr{DeviceID: d.Index, Op: "GetDriverInfo", Errno: err.(unix.Errno)}
	}
	return req.DriverVersion, nil
}
