// Package axi resolves dotted textual register paths such as
// "ARC_RESET.SCRATCH[0]" to a hardware (offset, size, bit-mask) triple,
// against either a flat lookup table or a MemorySlice tree.
package axi

import (
	"strconv"
	"strings"

	"github.com/tenstorrent/luwen-go/lerrors"
)

// BitMask is an inclusive (lsb, msb) bit range within the resolved word.
type BitMask struct {
	Lsb, Msb int
}

// Data is a fully resolved register: its absolute byte offset, its size in
// bytes, and an optional sub-word bit mask.
type Data struct {
	Addr    uint64
	Size    uint64
	Mask    *BitMask
	HasMask bool
}

// Slice is one node of a MemorySlice tree: a named region with an offset,
// a size, an optional array count (non-zero for arrays), an optional bit
// mask, and children keyed by name.
type Slice struct {
	Name       string
	Offset     uint64
	Size       uint64
	ArrayCount int // 0 means "not an array"
	Mask       *BitMask
	Children   map[string]*Slice
}

// Table is a flat, build-time-embedded map from dotted path to Data.
type Table map[string]Data

// Resolve looks up path in a flat table. Resolution is deterministic:
// resolving the same path twice yields an identical Data.
func (t Table) Resolve(path string) (Data, error) {
	d, ok := t[path]
	if !ok {
		return Data{}, lerrors.Errorf("axi: invalid path %q", path)
	}
	return d, nil
}

// segment is one dotted-path component, optionally carrying an "[index]"
// array subscript.
type segment struct {
	name    string
	index   int
	indexed bool
}

func parseSegment(raw string) (segment, error) {
	open := strings.IndexByte(raw, '[')
	if open < 0 {
		return segment{name: raw}, nil
	}
	if !strings.HasSuffix(raw, "]") {
		return segment{}, lerrors.Errorf("axi: malformed array segment %q", raw)
	}
	idxStr := raw[open+1 : len(raw)-1]
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return segment{}, lerrors.Errorf("axi: bad array index in %q: %w", raw, err)
	}
	return segment{name: raw[:open], index: idx, indexed: true}, nil
}

// Resolve walks the tree following path's dotted, optionally-indexed
// segments and accumulates offset, finally returning the leaf's
// (offset, size, bit mask).
func (root *Slice) Resolve(path string) (Data, error) {
	cur := root
	var offset uint64
	for _, raw := range strings.Split(path, ".") {
		seg, err := parseSegment(raw)
		if err != nil {
			return Data{}, err
		}
		child, ok := cur.Children[seg.name]
		if !ok {
			return Data{}, lerrors.Errorf("axi: invalid path %q: no such field %q", path, seg.name)
		}
		if seg.indexed && child.ArrayCount == 0 {
			return Data{}, lerrors.Errorf("axi: invalid array path %q: %q is not an array", path, seg.name)
		}
		if !seg.indexed && child.ArrayCount > 0 {
			return Data{}, lerrors.Errorf("axi: invalid array path %q: %q requires an index", path, seg.name)
		}
		if seg.indexed {
			if seg.index < 0 || seg.index >= child.ArrayCount {
				return Data{}, lerrors.Errorf("axi: invalid array path %q: index %d out of range [0,%d)", path, seg.index, child.ArrayCount)
			}
			offset += child.Offset + uint64(seg.index)*child.Size
		} else {
			offset += child.Offset
		}
		cur = child
	}
	d := Data{Addr: offset, Size: cur.Size}
	if cur.Mask != nil {
		d.Mask = cur.Mask
		d.HasMask = true
	}
	return d, nil
}

// FieldRead extracts a sub-word field from a little-endian word buffer per
// d.Mask: shift right by lsb%8 after dropping whole leading bytes, then
// mask to msb-lsb+1 bits.
func FieldRead(d Data, word []byte) (uint64, error) {
	if !d.HasMask {
		return 0, lerrors.Errorf("axi: field read on %#x has no bit mask", d.Addr)
	}
	m := d.Mask
	dropBytes := m.Lsb / 8
	if dropBytes >= len(word) {
		return 0, lerrors.Errorf("axi: field read buffer too small for mask %+v", *m)
	}
	var v uint64
	for i := len(word) - 1; i >= dropBytes; i-- {
		v = v<<8 | uint64(word[i])
	}
	v >>= uint(m.Lsb % 8)
	width := m.Msb - m.Lsb + 1
	if width < 64 {
		v &= (uint64(1) << uint(width)) - 1
	}
	return v, nil
}

// FieldWrite copies val into buf; val's length must equal the field's
// byte size d.Size.
func FieldWrite(d Data, buf []byte, val []byte) error {
	if uint64(len(val)) != d.Size {
		return lerrors.Errorf("axi: write buffer mismatch: field is %d bytes, got %d", d.Size, len(val))
	}
	copy(buf, val)
	return nil
}
