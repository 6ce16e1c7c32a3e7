// Package comms implements the layered communication stack: axi/noc/eth_noc
// primitives dispatched to a local PCI device or to a remote chip tunneler,
// oblivious at the call site to which one is actually backing the chip.
package comms

import (
	"github.com/tenstorrent/luwen-go/axi"
	"github.com/tenstorrent/luwen-go/kdi"
	"github.com/tenstorrent/luwen-go/lerrors"
)

// EthAddr identifies a chip within a mesh of boards.
type EthAddr struct {
	RackX, RackY   uint8
	ShelfX, ShelfY uint8
}

// NocCoord is a fixed (x, y) NoC coordinate.
type NocCoord struct {
	X, Y uint8
}

// ChipInterface is the lowest addressable surface: raw axi/noc/eth_noc byte
// access. LocalInterface and NocInterface are its two implementations.
type ChipInterface interface {
	GetDeviceInfo() (kdi.DeviceInfo, error)

	AxiRead(addr uint64, dst []byte) error
	AxiWrite(addr uint64, src []byte) error

	NocRead(coord NocCoord, nocID uint8, addr uint64, dst []byte) error
	NocWrite(coord NocCoord, nocID uint8, addr uint64, src []byte) error
	NocMulticast(xStart, yStart, xEnd, yEnd NocCoord, nocID uint8, addr uint64, src []byte) error
	NocBroadcast(nocID uint8, addr uint64, src []byte) error

	EthNocRead(eth EthAddr, coord NocCoord, nocID uint8, addr uint64, dst []byte) error
	EthNocWrite(eth EthAddr, coord NocCoord, nocID uint8, addr uint64, src []byte) error
}

// ChipComms layers axi_translate and the read/write primitives over a
// ChipInterface. ArcIf, NocIf, and RemoteArcIf are its three
// implementations, one per routing strategy.
type ChipComms interface {
	AxiTranslate(path string) (axi.Data, error)
	Read(ci ChipInterface, addr uint64, dst []byte) error
	Write(ci ChipInterface, addr uint64, src []byte) error
}

// AxiRead32/AxiWrite32 are the 32-bit convenience forms layered over any
// ChipInterface's AxiRead/AxiWrite.
func AxiRead32(ci ChipInterface, addr uint64) (uint32, error) {
	var buf [4]byte
	if err := ci.AxiRead(addr, buf[:]); err != nil {
		return 0, err
	}
	return le32(buf[:]), nil
}

func AxiWrite32(ci ChipInterface, addr uint64, v uint32) error {
	var buf [4]byte
	putLe32(buf[:], v)
	return ci.AxiWrite(addr, buf[:])
}

func NocRead32(ci ChipInterface, coord NocCoord, nocID uint8, addr uint64) (uint32, error) {
	var buf [4]byte
	if err := ci.NocRead(coord, nocID, addr, buf[:]); err != nil {
		return 0, err
	}
	return le32(buf[:]), nil
}

func NocWrite32(ci ChipInterface, coord NocCoord, nocID uint8, addr uint64, v uint32) error {
	var buf [4]byte
	putLe32(buf[:], v)
	return ci.NocWrite(coord, nocID, addr, buf[:])
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// AxiSRead32/AxiSWrite32 are the string-addressed 32-bit forms: translate
// the path through a ChipComms, then read/write through a ChipInterface.
func AxiSRead32(cc ChipComms, ci ChipInterface, path string) (uint32, error) {
	d, err := cc.AxiTranslate(path)
	if err != nil {
		return 0, err
	}
	var buf [4]byte
	if err := cc.Read(ci, d.Addr, buf[:]); err != nil {
		return 0, err
	}
	return le32(buf[:]), nil
}

func AxiSWrite32(cc ChipComms, ci ChipInterface, path string, v uint32) error {
	d, err := cc.AxiTranslate(path)
	if err != nil {
		return err
	}
	var buf [4]byte
	putLe32(buf[:], v)
	return cc.Write(ci, d.Addr, buf[:])
}

// AxiFieldRead reads a string-addressed field honoring AxiData.Mask: the
// extracted bytes are shifted right by lsb%8 after dropping leading bytes
// and masked to the field width.
func AxiFieldRead(cc ChipComms, ci ChipInterface, path string) (uint64, error) {
	d, err := cc.AxiTranslate(path)
	if err != nil {
		return 0, err
	}
	word := make([]byte, d.Size)
	if err := cc.Read(ci, d.Addr, word); err != nil {
		return 0, err
	}
	if !d.HasMask {
		return uint64(le32(padTo4(word))), nil
	}
	return axi.FieldRead(d, word)
}

// AxiFieldWrite writes a string-addressed field; val's length must equal
// the resolved field size.
func AxiFieldWrite(cc ChipComms, ci ChipInterface, path string, val []byte) error {
	d, err := cc.AxiTranslate(path)
	if err != nil {
		return err
	}
	if uint64(len(val)) != d.Size {
		return lerrors.Errorf("comms: write buffer mismatch: field %q is %d bytes, got %d", path, d.Size, len(val))
	}
	return cc.Write(ci, d.Addr, val)
}

func padTo4(b []byte) []byte {
	if len(b) >= 4 {
		return b[:4]
	}
	out := make([]byte, 4)
	copy(out, b)
	return out
}
