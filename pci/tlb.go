package pci

import (
	"encoding/binary"
	"fmt"

	"github.com/tenstorrent/luwen-go/arch"
)

// Ordering is the TLB descriptor's ordering mode. PostedStrict
// only exists on Blackhole.
type Ordering uint8

const (
	OrderingRelaxed Ordering = iota
	OrderingStrict
	OrderingPosted
	OrderingPostedStrict
)

// TlbDescriptor is the software form of a TLB window programming request,
// before it is packed into the hardware bit layout by setupTlbWords.
type TlbDescriptor struct {
	LocalOffset            uint64
	XEnd, YEnd             uint8
	XStart, YStart         uint8
	NocSel                 uint8
	Mcast                  bool
	Ordering               Ordering
	Linked                 bool
	StrideSize, StrideHops uint8 // only meaningful for Blackhole class-1 index<32
}

// windowClass describes one TLB size class: how many windows of that size
// exist and their individual size in bytes.
type windowClass struct {
	count int
	size  uint64
}

func windowClasses(a arch.Arch) ([]windowClass, error) {
	switch a {
	case arch.Wormhole:
		return []windowClass{
			{count: 156, size: 1 << 20}, // class 1: 156 x 1 MiB
			{count: 10, size: 2 << 20},  // class 2: 10 x 2 MiB
			{count: 20, size: 16 << 20}, // class 3: 20 x 16 MiB
		}, nil
	case arch.Blackhole:
		return []windowClass{
			{count: 202, size: 2 << 20}, // class 1: 202 x 2 MiB (first 32 stride-capable)
			{count: 8, size: 4 << 30},   // class 2: 8 x 4 GiB
		}, nil
	default:
		return nil, fmt.Errorf("pci: unsupported arch %v", a)
	}
}

// windowLayout resolves TLB index to its size class, byte size, and the
// cumulative base offset into the TLB-mapped BAR region where that window's
// MMIO range begins.
type windowLayout struct {
	Size       uint64
	BaseOffset uint64
	ClassIndex int
}

func resolveWindow(a arch.Arch, index int) (windowLayout, error) {
	classes, err := windowClasses(a)
	if err != nil {
		return windowLayout{}, err
	}
	var base uint64
	remaining := index
	for ci, cls := range classes {
		if remaining < cls.count {
			return windowLayout{
				Size:       cls.size,
				BaseOffset: base + uint64(remaining)*cls.size,
				ClassIndex: ci,
			}, nil
		}
		remaining -= cls.count
		base += uint64(cls.count) * cls.size
	}
	total := 0
	for _, c := range classes {
		total += c.count
	}
	return windowLayout{}, fmt.Errorf("pci: TLB index %d out of range (0..%d) for %v", index, total-1, a)
}

// strideCapable reports whether this index supports the stride register
// pair (Blackhole class-1 indices below 32).
func strideCapable(a arch.Arch, index int) bool {
	return a == arch.Blackhole && index < 32
}

const (
	tlbConfigBaseWormhole  = 0x1FC00000
	tlbConfigBaseBlackhole = 0x1FC00000
	tlbConfigEntrySize     = 8 // bytes per descriptor slot; arch/class specific in hardware, uniform here
	tlbStrideRegSize       = 4
)

// setupTlbWords packs a TlbDescriptor into the wire words written to
// TLB_CONFIG_BASE + index*entrySize. The exact hardware bit layout differs
// per arch and per size class; this packing is one layout used for both
// arches and preserves every field the descriptor carries.
func setupTlbWords(d TlbDescriptor, windowSize uint64) [2]uint32 {
	tlbAddr := d.LocalOffset / windowSize
	var w0, w1 uint32
	w0 = uint32(tlbAddr)
	w1 = uint32(d.XEnd) | uint32(d.YEnd)<<8 | uint32(d.XStart)<<16 | uint32(d.YStart)<<24
	w1 |= uint32(d.NocSel&0x3) << 30
	if d.Mcast {
		w1 |= 1 << 29
	}
	if d.Linked {
		w1 |= 1 << 28
	}
	w1 |= uint32(d.Ordering&0x3) << 26
	return [2]uint32{w0, w1}
}

func writeTlbConfig(bar []byte, configBase uint64, index int, words [2]uint32) error {
	off := configBase + uint64(index)*tlbConfigEntrySize
	if off+8 > uint64(len(bar)) {
		return fmt.Errorf("pci: TLB config write at %#x out of range", off)
	}
	binary.LittleEndian.PutUint32(bar[off:], words[0])
	binary.LittleEndian.PutUint32(bar[off+4:], words[1])
	return nil
}

func writeTlbStride(bar []byte, configBase uint64, index int, strideSize, strideHops uint8) error {
	off := configBase + uint64(index)*tlbStrideRegSize + 0x10000 // stride regs live in an adjoining region
	if off+4 > uint64(len(bar)) {
		return fmt.Errorf("pci: TLB stride write at %#x out of range", off)
	}
	binary.LittleEndian.PutUint32(bar[off:], uint32(strideSize)|uint32(strideHops)<<8)
	return nil
}
