// Package pci implements the PCI device abstraction: TLB window
// programming, aligned MMIO, scatter-gather DMA engine programming, and
// block read/write, layered over package kdi.
package pci

import (
	"encoding/binary"
	"sync"

	"github.com/tenstorrent/luwen-go/arch"
	"github.com/tenstorrent/luwen-go/kdi"
	"github.com/tenstorrent/luwen-go/lerrors"
)

// MaxDmaBytes bounds the lazily-allocated transfer DMA buffer.
const MaxDmaBytes = 4 << 20 // 4 MiB

// DmaBuffer is host-side staging memory for DMA and ERISC block transfers.
// It is owned by the Device for its lifetime.
type DmaBuffer struct {
	Buffer          []byte
	PhysicalAddress uint64
	Size            uint64
}

// Device is a local chip reached through BAR0 MMIO, TLB windows, and the
// PCIe DMA engine. Exactly one goroutine may mutate its TLB window at a
// time; mu enforces that.
type Device struct {
	Arch arch.Arch

	// bar0 is the mapped BAR0-UC region backing every TLB window. In
	// production this is a slice over an mmap'd region from package kdi;
	// tests back it with a plain byte slice, which is the same shape the
	// hardware path requires (a flat, randomly addressable byte range).
	bar0 []byte

	// kd is set when the device was built by Open and owns the BAR0
	// mapping's lifetime; nil for test devices over a plain slice.
	kd *kdi.Device

	driverVersion uint32

	readCheckingEnabled bool
	livenessRegister    uint64

	dmaConfigured  bool
	dmaThreshold   uint64
	completionFlag *DmaBuffer
	transferBuffer *DmaBuffer

	mu sync.Mutex
}

// NewDevice wires a Device over an already-mapped BAR0 region. Production
// callers obtain bar0 by mmap'ing the UC mapping kdi.Device.QueryMappings
// returns; tests pass a plain slice.
func NewDevice(a arch.Arch, bar0 []byte, driverVersion uint32) *Device {
	return &Device{
		Arch:                a,
		bar0:                bar0,
		driverVersion:       driverVersion,
		readCheckingEnabled: true,
		livenessRegister:    livenessRegisterOffset(a),
	}
}

func livenessRegisterOffset(a arch.Arch) uint64 {
	// ARC_RESET.SCRATCH[6] serves as the liveness probe register; it must
	// stay distinct from the mailbox msg_reg (SCRATCH[5]) or the probe is
	// skipped on the register the mailbox protocol polls most.
	switch a {
	case arch.Blackhole:
		return 0x80030060 + 6*4
	default:
		return 0x1ff30060 + 6*4 // ARC_SCRATCH6_ADDR
	}
}

// SetReadChecking toggles the FFFFFFFF liveness probe.
func (d *Device) SetReadChecking(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readCheckingEnabled = enabled
}

// ErrBrokenConnection is returned when the downstream link is hung: a
// read32 returned all-ones and the liveness probe confirmed it. This is
// catastrophic and callers must not continue using the device.
var ErrBrokenConnection = lerrors.Errorf("pci: broken connection (downstream link hung)")

// rawRead32/rawWrite32 are the u32 MMIO accessors behind Read32/Write32 and
// the block copies; TLB config writes touch bar0 directly. FFFFFFFF
// detection lives in read32Locked, so Read32 performs it and ReadBlock
// does not.
func (d *Device) rawRead32(offset uint64) (uint32, error) {
	if offset+4 > uint64(len(d.bar0)) {
		return 0, lerrors.Errorf("pci: MMIO read at %#x out of range", offset)
	}
	return binary.LittleEndian.Uint32(d.bar0[offset:]), nil
}

func (d *Device) rawWrite32(offset uint64, v uint32) error {
	if offset+4 > uint64(len(d.bar0)) {
		return lerrors.Errorf("pci: MMIO write at %#x out of range", offset)
	}
	binary.LittleEndian.PutUint32(d.bar0[offset:], v)
	return nil
}

// Read32 reads a u32 at an arbitrary byte offset. When offset is not
// 4-byte aligned, it performs two aligned u32 accesses and recombines them
// by byte-shift — it never issues a
// sub-word MMIO transaction.
func (d *Device) Read32(offset uint64) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read32Locked(offset)
}

func (d *Device) read32Locked(offset uint64) (uint32, error) {
	misalign := offset % 4
	var v uint32
	var err error
	if misalign == 0 {
		v, err = d.rawRead32(offset)
	} else {
		base := offset - misalign
		lo, e := d.rawRead32(base)
		if e != nil {
			return 0, e
		}
		hi, e := d.rawRead32(base + 4)
		if e != nil {
			return 0, e
		}
		shift := misalign * 8
		v = (lo >> shift) | (hi << (32 - shift))
	}
	if err != nil {
		return 0, err
	}
	if v == 0xFFFFFFFF && d.readCheckingEnabled {
		if offset != d.livenessRegister {
			alive, perr := d.rawRead32(d.livenessRegister)
			if perr == nil && alive == 0xFFFFFFFF {
				return v, ErrBrokenConnection
			}
		}
	}
	return v, nil
}

// Write32 writes a u32 at an arbitrary byte offset. A misaligned write
// straddling the boundary performs read-modify-write on the two aligned
// words it spans.
func (d *Device) Write32(offset uint64, val uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write32Locked(offset, val)
}

func (d *Device) write32Locked(offset uint64, val uint32) error {
	misalign := offset % 4
	if misalign == 0 {
		return d.rawWrite32(offset, val)
	}
	base := offset - misalign
	lo, err := d.rawRead32(base)
	if err != nil {
		return err
	}
	hi, err := d.rawRead32(base + 4)
	if err != nil {
		return err
	}
	shift := misalign * 8
	loMask := uint32(1)<<shift - 1
	newLo := (lo & loMask) | (val << shift)
	newHi := (hi &^ (uint32(1)<<shift - 1)) | (val >> (32 - shift))
	if err := d.rawWrite32(base, newLo); err != nil {
		return err
	}
	return d.rawWrite32(base+4, newHi)
}

// ReadBlock copies n bytes starting at offset into dst, decomposing any
// misalignment at head and tail into a read-modify-write of a single u32
// and a bulk u32-wise copy through the middle.
func (d *Device) ReadBlock(offset uint64, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blockCopyLocked(offset, dst, false)
}

// WriteBlock is the write-direction counterpart of ReadBlock.
func (d *Device) WriteBlock(offset uint64, src []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blockCopyLocked(offset, src, true)
}

func (d *Device) blockCopyLocked(offset uint64, buf []byte, write bool) error {
	n := len(buf)
	i := 0
	cur := offset
	for i < n {
		misalign := cur % 4
		if misalign != 0 || n-i < 4 {
			// head/tail: single-word read-modify-write
			word, err := d.rawRead32(cur - misalign)
			if err != nil {
				return err
			}
			shift := misalign * 8
			avail := 4 - int(misalign)
			take := avail
			if n-i < take {
				take = n - i
			}
			if write {
				w := word
				for b := 0; b < take; b++ {
					bitOff := shift + uint64(b)*8
					w = (w &^ (0xFF << bitOff)) | uint32(buf[i+b])<<bitOff
				}
				if err := d.rawWrite32(cur-misalign, w); err != nil {
					return err
				}
			} else {
				for b := 0; b < take; b++ {
					bitOff := shift + uint64(b)*8
					buf[i+b] = byte(word >> bitOff)
				}
			}
			i += take
			cur += uint64(take)
			continue
		}
		// bulk u32-wise copy through the middle
		if write {
			v := binary.LittleEndian.Uint32(buf[i:])
			if err := d.rawWrite32(cur, v); err != nil {
				return err
			}
		} else {
			v, err := d.rawRead32(cur)
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint32(buf[i:], v)
		}
		i += 4
		cur += 4
	}
	return nil
}

// SetupTlb divides the requested local_offset by the TLB window size to
// obtain the high "TLB address" bits; the remainder is the byte offset
// within the window. It returns the directly-addressable MMIO sub-range
// (mmio_addr+remainder, size-remainder).
func (d *Device) SetupTlb(index int, desc TlbDescriptor) (mmioAddr uint64, size uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	win, err := resolveWindow(d.Arch, index)
	if err != nil {
		return 0, 0, err
	}
	remainder := desc.LocalOffset % win.Size
	words := setupTlbWords(desc, win.Size)
	configBase := uint64(tlbConfigBaseWormhole)
	if d.Arch == arch.Blackhole {
		configBase = tlbConfigBaseBlackhole
	}
	if err := writeTlbConfig(d.bar0, configBase, index, words); err != nil {
		return 0, 0, err
	}
	if strideCapable(d.Arch, index) && desc.StrideSize != 0 {
		if err := writeTlbStride(d.bar0, configBase, index, desc.StrideSize, desc.StrideHops); err != nil {
			return 0, 0, err
		}
	}
	return win.BaseOffset + remainder, win.Size - remainder, nil
}
