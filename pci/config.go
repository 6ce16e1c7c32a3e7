package pci

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tenstorrent/luwen-go/dirs"
)

// ConfigSpace wraps a chip's PCI config-space file,
// read/written via pread/pwrite at
// /sys/bus/pci/devices/DDDD:BB:DD.F/config.
type ConfigSpace struct {
	f *os.File
}

// OpenConfigSpace opens the config-space file for a BDF.
func OpenConfigSpace(domain, bus, device, function uint16) (*ConfigSpace, error) {
	f, err := os.OpenFile(dirs.PCIConfigPath(domain, bus, device, function), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pci: open config space: %w", err)
	}
	return &ConfigSpace{f: f}, nil
}

func (c *ConfigSpace) Close() error { return c.f.Close() }

// Bar0Base reads bits [63:4] of the 8-byte value at config offset 0x10,
// the BAR0 base address.
func (c *ConfigSpace) Bar0Base() (uint64, error) {
	var buf [8]byte
	if _, err := c.f.ReadAt(buf[:], 0x10); err != nil {
		return 0, fmt.Errorf("pci: read BAR0 base: %w", err)
	}
	raw := binary.LittleEndian.Uint64(buf[:])
	return raw &^ 0xF, nil
}

// ReadAt/WriteAt expose the raw config-space pread/pwrite for callers that
// need arbitrary offsets, such as capability walking.
func (c *ConfigSpace) ReadAt(p []byte, off int64) (int, error)  { return c.f.ReadAt(p, off) }
func (c *ConfigSpace) WriteAt(p []byte, off int64) (int, error) { return c.f.WriteAt(p, off) }

// LinkSpeedToGeneration maps a PCIe GT/s link-speed string to its
// generation number.
func LinkSpeedToGeneration(speed string) (int, error) {
	speed = strings.TrimSpace(speed)
	speed = strings.TrimSuffix(speed, " GT/s")
	speed = strings.TrimSuffix(speed, "GT/s")
	speed = strings.TrimSpace(speed)
	switch speed {
	case "2.5":
		return 1, nil
	case "5.0", "5":
		return 2, nil
	case "8.0", "8":
		return 3, nil
	case "16.0", "16":
		return 4, nil
	case "32.0", "32":
		return 5, nil
	case "64.0", "64":
		return 6, nil
	default:
		return 0, fmt.Errorf("pci: unrecognized link speed %q", speed)
	}
}

// LinkInfo is the current/max width and generation read from sysfs
// current_link_width/max_link_width and current_link_speed/max_link_speed.
type LinkInfo struct {
	CurrentWidth      int
	MaxWidth          int
	CurrentGeneration int
	MaxGeneration     int
}

// ReadLinkInfo reads the four sysfs attributes for a BDF's PCIe link.
func ReadLinkInfo(domain, bus, device, function uint16) (LinkInfo, error) {
	base := strings.TrimSuffix(dirs.PCIConfigPath(domain, bus, device, function), "/config")

	readInt := func(name string) (int, error) {
		b, err := os.ReadFile(base + "/" + name)
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(strings.TrimSpace(string(b)))
	}
	readSpeed := func(name string) (int, error) {
		b, err := os.ReadFile(base + "/" + name)
		if err != nil {
			return 0, err
		}
		return LinkSpeedToGeneration(string(b))
	}

	cw, err := readInt("current_link_width")
	if err != nil {
		return LinkInfo{}, err
	}
	mw, err := readInt("max_link_width")
	if err != nil {
		return LinkInfo{}, err
	}
	cg, err := readSpeed("current_link_speed")
	if err != nil {
		return LinkInfo{}, err
	}
	mg, err := readSpeed("max_link_speed")
	if err != nil {
		return LinkInfo{}, err
	}
	return LinkInfo{CurrentWidth: cw, MaxWidth: mw, CurrentGeneration: cg, MaxGeneration: mg}, nil
}
