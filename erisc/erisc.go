// Package erisc implements the remote-chip tunneling protocol: a
// fixed-capacity command-queue handshake with an Ethernet RISC core that
// performs system-addressed reads, writes, and DMA block transfers on
// behalf of the host.
package erisc

import (
	"fmt"
	"strings"
	"time"

	"github.com/juju/ratelimit"
	"github.com/tenstorrent/luwen-go/comms"
	"github.com/tenstorrent/luwen-go/lerrors"
	"github.com/tenstorrent/luwen-go/pci"
)

// fullQueueBucket throttles the command-queue-full retry loop so a stuck
// remote core doesn't turn waitNotFull into an unbounded CPU spin; bursts
// up to 50 immediate retries before settling to 1000/s.
var fullQueueBucket = ratelimit.NewBucketWithRate(1000, 50)

// Per-core queue base offsets, in bytes, each queue occupying 48 words
// (192 bytes): 2 header words (WR_PTR, RD_PTR) followed by 4 command
// entries of 8 words, with the remainder unused.
const (
	queueSizeBytes = 192
	reqQOffset     = 0x80
	ethInOffset    = reqQOffset + queueSizeBytes
	respQOffset    = reqQOffset + 2*queueSizeBytes
	ethOutOffset   = reqQOffset + 3*queueSizeBytes
)

// CmdBufSize is the fixed capacity of each command queue.
const CmdBufSize = 4

// Flag bits for a command entry's flags word.
const (
	CmdWrReq                = 1
	CmdRdReq                = 4
	CmdRdData               = 8
	CmdDataBlockDram        = 0x10
	CmdLastDataBlockDram    = 0x20
	CmdDataBlock            = 0x40
	cmdNocIDShift           = 9
	CmdDataBlockUnavailable = 1 << 30
	CmdDestUnreachable      = 1 << 31
)

// Tunnel is one ERISC core's command-queue endpoint, reached over the
// local chip's NoC at a fixed coordinate.
type Tunnel struct {
	CI       comms.ChipInterface
	Coord    comms.NocCoord
	NocID    uint8
	CoreBase uint64

	// Scratch is a local DMA buffer sliced into NumberOfSlices equal
	// parts, used to stage block reads/writes through the tunnel.
	Scratch *pci.DmaBuffer
}

const NumberOfSlices = 4

func (t *Tunnel) read32(offset uint64) (uint32, error) {
	return comms.NocRead32(t.CI, t.Coord, t.NocID, t.CoreBase+offset)
}

func (t *Tunnel) write32(offset uint64, v uint32) error {
	return comms.NocWrite32(t.CI, t.Coord, t.NocID, t.CoreBase+offset, v)
}

// queuePtrs reads a queue's (wr, rd) header words.
func (t *Tunnel) queuePtrs(qBase uint64) (wr, rd uint32, err error) {
	wr, err = t.read32(qBase + 0)
	if err != nil {
		return 0, 0, err
	}
	rd, err = t.read32(qBase + 4)
	if err != nil {
		return 0, 0, err
	}
	return wr, rd, nil
}

// full reports whether a queue with the given (wptr, rptr) pair has no
// free slot: (wptr mod CmdBufSize) == (rptr mod CmdBufSize) and wptr !=
// rptr. Pointers advance modulo 2*CmdBufSize.
func full(wptr, rptr uint32) bool {
	return wptr != rptr && wptr%CmdBufSize == rptr%CmdBufSize
}

func advance(ptr uint32) uint32 { return (ptr + 1) % (2 * CmdBufSize) }

func entryOffset(qBase uint64, slot uint32) uint64 {
	return qBase + 8 + uint64(slot)*32 // 8 words * 4 bytes per entry
}

// cmdEntry is the 8-word command slot: addr_lo, addr_hi, data (or
// block_len for block transfers), flags, src_resp_buf_idx (or rack_addr),
// lcl_buf_idx, src_resp_q_id, src_addr_tag (or dma_phys_pointer for block
// transfers).
type cmdEntry struct {
	AddrLo, AddrHi   uint32
	Data             uint32
	Flags            uint32
	RackOrRespBufIdx uint32
	LclBufIdx        uint32
	SrcRespQID       uint32
	TagOrDmaPtr      uint32
}

func (t *Tunnel) writeEntry(qBase uint64, slot uint32, e cmdEntry) error {
	off := entryOffset(qBase, slot)
	words := [8]uint32{e.AddrLo, e.AddrHi, e.Data, e.Flags, e.RackOrRespBufIdx, e.LclBufIdx, e.SrcRespQID, e.TagOrDmaPtr}
	for i, w := range words {
		if err := t.write32(off+uint64(i)*4, w); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tunnel) readEntry(qBase uint64, slot uint32) (cmdEntry, error) {
	off := entryOffset(qBase, slot)
	var words [8]uint32
	for i := range words {
		v, err := t.read32(off + uint64(i)*4)
		if err != nil {
			return cmdEntry{}, err
		}
		words[i] = v
	}
	return cmdEntry{
		AddrLo: words[0], AddrHi: words[1], Data: words[2], Flags: words[3],
		RackOrRespBufIdx: words[4], LclBufIdx: words[5], SrcRespQID: words[6], TagOrDmaPtr: words[7],
	}, nil
}

// SysAddr packs a NoC coordinate and byte offset into the 64-bit
// system-addressed form the remote core expects.
func SysAddr(coord comms.NocCoord, offset uint64) uint64 {
	return uint64(coord.Y)<<46 | uint64(coord.X)<<40 | (offset & 0xFFFFFFFFF)
}

// ShelfSysAddr additionally encodes the shelf coordinate, for addressing
// across a multi-shelf rack.
func ShelfSysAddr(eth comms.EthAddr, coord comms.NocCoord, offset uint64) uint64 {
	return uint64(eth.ShelfY)<<58 | uint64(eth.ShelfX)<<52 | SysAddr(coord, offset)
}

// RackAddr packs the rack coordinate of eth into the 16-bit form written
// to a command entry's rack_addr slot.
func RackAddr(eth comms.EthAddr) uint32 {
	return uint32(eth.RackY)<<8 | uint32(eth.RackX)
}

func waitNotFull(getPtrs func() (uint32, uint32, error), timeout time.Duration) (wr, rd uint32, err error) {
	deadline := time.Now().Add(timeout)
	for {
		wr, rd, err = getPtrs()
		if err != nil {
			return 0, 0, err
		}
		if !full(wr, rd) {
			return wr, rd, nil
		}
		if time.Now().After(deadline) {
			return 0, 0, lerrors.Errorf("erisc: queue full, timed out after %s", timeout)
		}
		time.Sleep(fullQueueBucket.Take(1))
	}
}

func respFlagsError(flags uint32) error {
	if flags&CmdDestUnreachable != 0 {
		return lerrors.Errorf("erisc: destination unreachable")
	}
	if flags&CmdDataBlockUnavailable != 0 {
		return lerrors.Errorf("erisc: data block temporarily unavailable")
	}
	return nil
}

// Read32 issues a single-word remote read: program REQ_Q, advance its
// write pointer, poll RESP_Q for a new entry, and return its data word.
func (t *Tunnel) Read32(eth comms.EthAddr, coord comms.NocCoord, addr uint64, timeout time.Duration) (uint32, error) {
	wr, _, err := waitNotFull(func() (uint32, uint32, error) { return t.queuePtrs(reqQOffset) }, timeout)
	if err != nil {
		return 0, err
	}
	sysAddr := ShelfSysAddr(eth, coord, addr)
	slot := wr % CmdBufSize
	entry := cmdEntry{
		AddrLo: uint32(sysAddr), AddrHi: uint32(sysAddr >> 32),
		Flags:            CmdRdReq | uint32(t.NocID)<<cmdNocIDShift,
		RackOrRespBufIdx: RackAddr(eth),
	}
	if err := t.writeEntry(reqQOffset, slot, entry); err != nil {
		return 0, err
	}
	if err := t.write32(reqQOffset+0, advance(wr)); err != nil {
		return 0, err
	}

	_, respRd, err := pollRespNotEmpty(t, timeout)
	if err != nil {
		return 0, err
	}
	respSlot := respRd % CmdBufSize
	if err := waitFlagsNonzero(t, respQOffset, respSlot, timeout); err != nil {
		return 0, err
	}
	resp, err := t.readEntry(respQOffset, respSlot)
	if err != nil {
		return 0, err
	}
	if err := respFlagsError(resp.Flags); err != nil {
		return 0, err
	}
	if err := t.write32(respQOffset+4, advance(respRd)); err != nil {
		return 0, err
	}
	return resp.Data, nil
}

func pollRespNotEmpty(t *Tunnel, timeout time.Duration) (wr, rd uint32, err error) {
	deadline := time.Now().Add(timeout)
	for {
		wr, rd, err = t.queuePtrs(respQOffset)
		if err != nil {
			return 0, 0, err
		}
		if wr != rd {
			return wr, rd, nil
		}
		if time.Now().After(deadline) {
			return 0, 0, lerrors.Errorf("erisc: response queue timed out after %s", timeout)
		}
	}
}

func waitFlagsNonzero(t *Tunnel, qBase uint64, slot uint32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		e, err := t.readEntry(qBase, slot)
		if err != nil {
			return err
		}
		if e.Flags != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return lerrors.Errorf("erisc: response flags timed out after %s", timeout)
		}
	}
}

// Write32 mirrors Read32 with CMD_WR_REQ; there is no response dequeue,
// acknowledgement is implicit once the queue accepts the write.
func (t *Tunnel) Write32(eth comms.EthAddr, coord comms.NocCoord, addr uint64, data uint32, timeout time.Duration) error {
	wr, _, err := waitNotFull(func() (uint32, uint32, error) { return t.queuePtrs(reqQOffset) }, timeout)
	if err != nil {
		return err
	}
	sysAddr := ShelfSysAddr(eth, coord, addr)
	slot := wr % CmdBufSize
	entry := cmdEntry{
		AddrLo: uint32(sysAddr), AddrHi: uint32(sysAddr >> 32),
		Data:             data,
		Flags:            CmdWrReq | uint32(t.NocID)<<cmdNocIDShift,
		RackOrRespBufIdx: RackAddr(eth),
	}
	if err := t.writeEntry(reqQOffset, slot, entry); err != nil {
		return err
	}
	return t.write32(reqQOffset+0, advance(wr))
}

// BlockRead slices a local DMA buffer into NumberOfSlices equal parts and
// issues one block-read command per slice, copying each completed slice
// into dst.
func (t *Tunnel) BlockRead(eth comms.EthAddr, coord comms.NocCoord, addr uint64, dst []byte, timeout time.Duration) error {
	if t.Scratch == nil {
		return lerrors.Errorf("erisc: block transfer requires a scratch DMA buffer")
	}
	sliceSize := t.Scratch.Size / NumberOfSlices
	remaining := dst
	curAddr := addr
	for len(remaining) > 0 {
		chunk := uint64(len(remaining))
		if chunk > sliceSize {
			chunk = sliceSize
		}
		wr, _, err := waitNotFull(func() (uint32, uint32, error) { return t.queuePtrs(reqQOffset) }, timeout)
		if err != nil {
			return err
		}
		slot := wr % CmdBufSize
		dmaPtr := t.Scratch.PhysicalAddress + uint64(wr%NumberOfSlices)*sliceSize
		sysAddr := ShelfSysAddr(eth, coord, curAddr)
		entry := cmdEntry{
			AddrLo: uint32(sysAddr), AddrHi: uint32(sysAddr >> 32),
			Data:             uint32(chunk),
			Flags:            CmdRdReq | CmdDataBlock | CmdDataBlockDram | uint32(t.NocID)<<cmdNocIDShift,
			RackOrRespBufIdx: RackAddr(eth),
			TagOrDmaPtr:      uint32(dmaPtr),
		}
		if err := t.writeEntry(reqQOffset, slot, entry); err != nil {
			return err
		}
		if err := t.write32(reqQOffset+0, advance(wr)); err != nil {
			return err
		}

		_, respRd, err := pollRespNotEmpty(t, timeout)
		if err != nil {
			return err
		}
		respSlot := respRd % CmdBufSize
		if err := waitFlagsNonzero(t, respQOffset, respSlot, timeout); err != nil {
			return err
		}
		resp, err := t.readEntry(respQOffset, respSlot)
		if err != nil {
			return err
		}
		if err := respFlagsError(resp.Flags); err != nil {
			return err
		}
		if resp.Flags&(CmdDataBlock|CmdRdData) != CmdDataBlock|CmdRdData {
			return lerrors.Errorf("erisc: found non block read response")
		}
		if err := t.write32(respQOffset+4, advance(respRd)); err != nil {
			return err
		}

		sliceOff := uint64(wr%NumberOfSlices) * sliceSize
		copy(remaining[:chunk], t.Scratch.Buffer[sliceOff:sliceOff+chunk])
		remaining = remaining[chunk:]
		curAddr += chunk
	}
	return nil
}

// BlockWrite mirrors BlockRead: the host fills the DMA slice before
// programming the command.
func (t *Tunnel) BlockWrite(eth comms.EthAddr, coord comms.NocCoord, addr uint64, src []byte, timeout time.Duration) error {
	if t.Scratch == nil {
		return lerrors.Errorf("erisc: block transfer requires a scratch DMA buffer")
	}
	sliceSize := t.Scratch.Size / NumberOfSlices
	remaining := src
	curAddr := addr
	for len(remaining) > 0 {
		chunk := uint64(len(remaining))
		if chunk > sliceSize {
			chunk = sliceSize
		}
		wr, _, err := waitNotFull(func() (uint32, uint32, error) { return t.queuePtrs(reqQOffset) }, timeout)
		if err != nil {
			return err
		}
		sliceOff := uint64(wr%NumberOfSlices) * sliceSize
		copy(t.Scratch.Buffer[sliceOff:sliceOff+chunk], remaining[:chunk])

		slot := wr % CmdBufSize
		dmaPtr := t.Scratch.PhysicalAddress + sliceOff
		sysAddr := ShelfSysAddr(eth, coord, curAddr)
		entry := cmdEntry{
			AddrLo: uint32(sysAddr), AddrHi: uint32(sysAddr >> 32),
			Data:             uint32(chunk),
			Flags:            CmdWrReq | CmdDataBlock | CmdDataBlockDram | uint32(t.NocID)<<cmdNocIDShift,
			RackOrRespBufIdx: RackAddr(eth),
			TagOrDmaPtr:      uint32(dmaPtr),
		}
		if err := t.writeEntry(reqQOffset, slot, entry); err != nil {
			return err
		}
		if err := t.write32(reqQOffset+0, advance(wr)); err != nil {
			return err
		}
		remaining = remaining[chunk:]
		curAddr += chunk
	}
	return nil
}

// DumpQueues renders all four queues for diagnostics, skipping queues
// whose pointer pair is aligned (wr == rd, nothing in flight).
func (t *Tunnel) DumpQueues() (string, error) {
	queues := []struct {
		name string
		base uint64
	}{
		{"REQ_Q", reqQOffset},
		{"ETH_IN", ethInOffset},
		{"RESP_Q", respQOffset},
		{"ETH_OUT", ethOutOffset},
	}
	var b strings.Builder
	for _, q := range queues {
		wr, rd, err := t.queuePtrs(q.base)
		if err != nil {
			return "", err
		}
		if wr == rd {
			continue
		}
		fmt.Fprintf(&b, "%s: wr=%d rd=%d\n", q.name, wr, rd)
		for slot := uint32(0); slot < CmdBufSize; slot++ {
			e, err := t.readEntry(q.base, slot)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "  [%d] addr=%#x_%08x data=%#x flags=%#x rack=%#x tag=%#x\n",
				slot, e.AddrHi, e.AddrLo, e.Data, e.Flags, e.RackOrRespBufIdx, e.TagOrDmaPtr)
		}
	}
	return b.String(), nil
}

// FixupQueues detects a mismatched RESP_Q (wr, rd) pair left over from a
// prior session and resynchronizes rd := wr, the queue's self-heal step.
func (t *Tunnel) FixupQueues() error {
	wr, rd, err := t.queuePtrs(respQOffset)
	if err != nil {
		return err
	}
	if wr != rd {
		return t.write32(respQOffset+4, wr)
	}
	return nil
}
