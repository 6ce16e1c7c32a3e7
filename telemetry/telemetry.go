// Package telemetry decodes the SMBus telemetry table ARC firmware
// publishes, including the harvesting mask and its NOC-coordinate
// translation.
package telemetry

import "github.com/tenstorrent/luwen-go/lerrors"

// Table is a decoded telemetry snapshot, keyed by the tag values the ARC
// telemetry table carries.
type Table struct {
	Entries map[uint16]uint32
}

// tag values this package understands; the full table carries many more
// that callers read directly out of Entries.
const (
	TagHarvestingMask uint16 = 0x0E
	TagAiclk          uint16 = 0x0F
	TagBoardID        uint16 = 0x01
)

// Decode parses a raw SMBus telemetry buffer as fixed-offset little-endian
// u32 values, one per tag, using the explicit tag->offset map the caller
// already knows from the chip's telemetry version. An offset that runs past
// the buffer is an error.
func Decode(raw []byte, offsets map[uint16]int) (Table, error) {
	t := Table{Entries: make(map[uint16]uint32, len(offsets))}
	for tag, off := range offsets {
		if off+4 > len(raw) {
			return Table{}, lerrors.Errorf("telemetry: tag %#x offset %d out of range (%d bytes)", tag, off, len(raw))
		}
		t.Entries[tag] = uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16 | uint32(raw[off+3])<<24
	}
	return t, nil
}

// HarvestingMask returns the raw per-row/column harvesting bitmask, with
// bit i set meaning row/column i is permanently disabled.
func (t Table) HarvestingMask() (uint32, bool) {
	v, ok := t.Entries[TagHarvestingMask]
	return v, ok
}

// NocTranslate maps a logical row/column index to its physical NoC
// coordinate given a harvesting mask: it returns the logical-th (0-based)
// physical index whose mask bit is clear, since harvested
// rows/columns are skipped in the logical addressing space but still
// occupy a physical NoC coordinate.
func NocTranslate(logical uint8, mask uint32) uint8 {
	phys := logical
	for i := uint8(0); i <= phys; i++ {
		if mask&(1<<i) != 0 {
			phys++
		}
	}
	return phys
}

// Aiclk returns the reported AI clock in MHz.
func (t Table) Aiclk() (uint32, bool) {
	v, ok := t.Entries[TagAiclk]
	return v, ok
}

// BoardID returns the 64-bit-in-practice-32-bit board identifier tag.
func (t Table) BoardID() (uint32, bool) {
	v, ok := t.Entries[TagBoardID]
	return v, ok
}
