package pci

import (
	"encoding/binary"
	"time"

	"github.com/tenstorrent/luwen-go/lerrors"
)

// completionSentinel is written by ARC firmware into the completion-flag
// DMA buffer once a turbo transfer finishes.
const completionSentinel = 0xFACA

// arcMiscCntl and the CSM base are fixed scratch/control offsets within
// BAR0; unlike the liveness register, the same offsets are used for every
// arch.
func arcMiscCntlOffset(bar0Len int) uint64 { return 0x1ff30100 }
func csmBaseOffset() uint64                { return 0x1fe00000 }

// arcPcieCtrlDmaRequest mirrors the bit-packed request the ARC DMA
// controller firmware expects.
type arcPcieCtrlDmaRequest struct {
	ChipAddr           uint32
	HostPhysAddrLow    uint32
	CompletionFlagAddr uint32
	// Packed: size_bytes:28, write:1, msi:1, pcie_write_on_done:1, trigger:1
	Packed uint32
	// Repeat word; bit 31 indicates a 64-bit host address is in use, in
	// which case HostPhysAddrHigh must already be programmed separately.
	Repeat uint32
}

func packDmaWord(sizeBytes uint32, write, msi, writeOnDone, trigger bool) uint32 {
	v := sizeBytes & 0x0FFFFFFF
	if write {
		v |= 1 << 28
	}
	if msi {
		v |= 1 << 29
	}
	if writeOnDone {
		v |= 1 << 30
	}
	if trigger {
		v |= 1 << 31
	}
	return v
}

// ConfigureDma records the DMA buffers and the read_block/write_block
// chunking threshold. Both buffers are lazily allocated by the caller
// (typically backed by kdi.Device.AllocateDmaBuffer) and reused across
// transfers.
func (d *Device) ConfigureDma(completion, transfer *DmaBuffer, threshold uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completionFlag = completion
	d.transferBuffer = transfer
	d.dmaThreshold = threshold
	d.dmaConfigured = true
}

// writeNoDma is a raw u32-wise copy into CSM that bypasses the DMA path
// entirely — used to hand the ARC firmware its own DMA request.
func (d *Device) writeNoDma(csmOffset uint64, words []uint32) error {
	for i, w := range words {
		if err := d.rawWrite32(csmOffset+uint64(i)*4, w); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) triggerFwInt0() error {
	off := arcMiscCntlOffset(len(d.bar0))
	v, err := d.rawRead32(off)
	if err != nil {
		return err
	}
	return d.rawWrite32(off, v|(1<<16))
}

// PcieDmaTransferTurbo programs the ARC-mediated scatter-gather DMA engine
// to move size bytes between chipAddr (a NoC/CSM address) and the host
// buffer at hostBufferAddr, then polls the completion flag for 0xFACA.
func (d *Device) PcieDmaTransferTurbo(chipAddr uint32, hostBufferAddr uint64, size uint32, write bool, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.dmaConfigured || d.completionFlag == nil {
		return lerrors.Errorf("pci: DMA not configured")
	}
	is64Bit := hostBufferAddr > 0xFFFFFFFF

	// Completion flag must read something other than the sentinel before
	// we trigger, or a stale value from a previous transfer could be
	// mistaken for "done".
	binary.LittleEndian.PutUint32(d.completionFlag.Buffer, 0)

	req := arcPcieCtrlDmaRequest{
		ChipAddr:           chipAddr,
		HostPhysAddrLow:    uint32(hostBufferAddr),
		CompletionFlagAddr: uint32(d.completionFlag.PhysicalAddress),
		Packed:             packDmaWord(size, write, false, true, true),
	}
	if is64Bit {
		req.Repeat = 1 << 31
	}
	words := []uint32{req.ChipAddr, req.HostPhysAddrLow, req.CompletionFlagAddr, req.Packed, req.Repeat}
	if err := d.writeNoDma(csmBaseOffset(), words); err != nil {
		return err
	}
	if err := d.triggerFwInt0(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		v := binary.LittleEndian.Uint32(d.completionFlag.Buffer)
		if v == completionSentinel {
			return nil
		}
		if time.Now().After(deadline) {
			return lerrors.Errorf("pci: DMA transfer timed out after %s", timeout)
		}
		time.Sleep(time.Microsecond * 50)
	}
}

// ReadBlockAuto chooses between DMA-staged transfer and a direct TLB-window
// memcpy based on length and whether DMA is configured.
func (d *Device) ReadBlockAuto(offset uint64, dst []byte, chipSysAddr uint32, dmaTimeout time.Duration) error {
	if d.dmaConfigured && uint64(len(dst)) > d.dmaThreshold {
		return d.dmaChunked(chipSysAddr, dst, false, dmaTimeout)
	}
	return d.ReadBlock(offset, dst)
}

// WriteBlockAuto is the write-direction counterpart of ReadBlockAuto.
func (d *Device) WriteBlockAuto(offset uint64, src []byte, chipSysAddr uint32, dmaTimeout time.Duration) error {
	if d.dmaConfigured && uint64(len(src)) > d.dmaThreshold {
		return d.dmaChunked(chipSysAddr, src, true, dmaTimeout)
	}
	return d.WriteBlock(offset, src)
}

func (d *Device) dmaChunked(chipAddr uint32, buf []byte, write bool, timeout time.Duration) error {
	d.mu.Lock()
	tb := d.transferBuffer
	d.mu.Unlock()
	if tb == nil {
		return lerrors.Errorf("pci: DMA transfer buffer not configured")
	}
	remaining := buf
	addr := chipAddr
	for len(remaining) > 0 {
		chunk := len(remaining)
		if uint64(chunk) > tb.Size {
			chunk = int(tb.Size)
		}
		if write {
			copy(tb.Buffer[:chunk], remaining[:chunk])
		}
		if err := d.PcieDmaTransferTurbo(addr, tb.PhysicalAddress, uint32(chunk), write, timeout); err != nil {
			return err
		}
		if !write {
			copy(remaining[:chunk], tb.Buffer[:chunk])
		}
		remaining = remaining[chunk:]
		addr += uint32(chunk)
	}
	return nil
}
