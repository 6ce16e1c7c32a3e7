// Package bootfs reads the on-chip SPI boot-filesystem directory: a
// sequence of fixed-size tagged firmware-descriptor entries, and removes
// the padding protobuf-encoded payloads carry.
package bootfs

import (
	"encoding/binary"

	"github.com/tenstorrent/luwen-go/lerrors"
)

// EntrySize is the fixed byte size of one TtBootFsFd directory entry.
const EntrySize = 40

// Fd is one boot-filesystem directory entry.
type Fd struct {
	SpiAddr       uint32
	CopyDest      uint32
	ImageSize     uint32 // 24 bits
	Invalid       bool
	Executable    bool
	DataCrc       uint32
	SecurityFlags uint32
	ImageTag      [8]byte
	FdCrc         uint32
}

// ImageTagString trims trailing NUL bytes from ImageTag.
func (fd Fd) ImageTagString() string {
	n := len(fd.ImageTag)
	for n > 0 && fd.ImageTag[n-1] == 0 {
		n--
	}
	return string(fd.ImageTag[:n])
}

// decodeFd parses one 40-byte little-endian entry.
func decodeFd(b []byte) (Fd, error) {
	if len(b) < EntrySize {
		return Fd{}, lerrors.Errorf("bootfs: short entry: %d bytes", len(b))
	}
	flags := binary.LittleEndian.Uint32(b[8:12])
	var fd Fd
	fd.SpiAddr = binary.LittleEndian.Uint32(b[0:4])
	fd.CopyDest = binary.LittleEndian.Uint32(b[4:8])
	fd.ImageSize = flags & 0x00FFFFFF
	fd.Invalid = flags&(1<<24) != 0
	fd.Executable = flags&(1<<25) != 0
	fd.DataCrc = binary.LittleEndian.Uint32(b[12:16])
	fd.SecurityFlags = binary.LittleEndian.Uint32(b[16:20])
	copy(fd.ImageTag[:], b[20:28])
	fd.FdCrc = binary.LittleEndian.Uint32(b[36:40])
	return fd, nil
}

// Reader is the minimal SPI access surface read_tag/read_fd need: a
// random-access byte source.
type Reader interface {
	ReadAt(p []byte, off int64) (int, error)
}

// ReadTag walks directory entries starting at addr (curr_addr +=
// EntrySize each step) until either an invalid entry marks end-of-directory
// or a tag match is found.
func ReadTag(r Reader, addr uint32, tag string) (Fd, error) {
	cur := addr
	for {
		var buf [EntrySize]byte
		if _, err := r.ReadAt(buf[:], int64(cur)); err != nil {
			return Fd{}, lerrors.Errorf("bootfs: read entry at %#x: %w", cur, err)
		}
		fd, err := decodeFd(buf[:])
		if err != nil {
			return Fd{}, err
		}
		if fd.Invalid {
			return Fd{}, lerrors.Errorf("bootfs: tag %q not found before end of directory", tag)
		}
		if fd.ImageTagString() == tag {
			return fd, nil
		}
		cur += EntrySize
	}
}

// ReadFd reads the image bytes a directory entry describes.
func ReadFd(r Reader, fd Fd) ([]byte, error) {
	buf := make([]byte, fd.ImageSize)
	if _, err := r.ReadAt(buf, int64(fd.SpiAddr)); err != nil {
		return nil, lerrors.Errorf("bootfs: read image at %#x: %w", fd.SpiAddr, err)
	}
	return buf, nil
}

// Checksum is a wrapping u32 sum of the little-endian words of data. len(data)
// must be a multiple of 4.
func Checksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i+4 <= len(data); i += 4 {
		sum += binary.LittleEndian.Uint32(data[i : i+4])
	}
	return sum
}

// RemovePadding strips the protobuf padding a firmware image carries: the
// last byte holds "remove N+1 trailing bytes". Some firmware additionally
// pads the image to a multiple of 8 bytes with trailing zeros; those four
// zero bytes are dropped first, then the usual N+1 rule is applied to
// what remains.
func RemovePadding(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	if len(data)%8 == 0 && len(data) >= 4 &&
		data[len(data)-1] == 0 && data[len(data)-2] == 0 &&
		data[len(data)-3] == 0 && data[len(data)-4] == 0 {
		data = data[:len(data)-4]
	}
	if len(data) == 0 {
		return data
	}
	n := int(data[len(data)-1])
	remove := n + 1
	if remove > len(data) {
		remove = len(data)
	}
	return data[:len(data)-remove]
}
