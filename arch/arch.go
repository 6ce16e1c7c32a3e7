// Package arch defines the closed set of silicon architectures this module
// talks to.
package arch

import "fmt"

// Arch is a closed sum type identifying a chip generation.
type Arch int

const (
	// Wormhole ("Arch-W") is the first generation covered by this module.
	Wormhole Arch = iota + 1
	// Blackhole ("Arch-B") is the second generation.
	Blackhole

	// grayskull is a legacy generation present in the history of the
	// upstream source but explicitly unsupported: any caller that manages
	// to construct it (e.g. decoding an old telemetry blob) must be
	// rejected rather than silently handled.
	grayskull Arch = -1
)

func (a Arch) String() string {
	switch a {
	case Wormhole:
		return "wormhole"
	case Blackhole:
		return "blackhole"
	case grayskull:
		return "grayskull"
	default:
		return fmt.Sprintf("arch(%d)", int(a))
	}
}

// Valid reports whether a is a supported architecture.
func (a Arch) Valid() bool {
	return a == Wormhole || a == Blackhole
}

// FromPCIDeviceID maps a PCI device ID to an Arch. Returns an error for the
// legacy grayskull ID and for anything unrecognized.
func FromPCIDeviceID(deviceID uint16) (Arch, error) {
	switch deviceID {
	case 0x401E, 0x401C:
		return Wormhole, nil
	case 0xB140:
		return Blackhole, nil
	case 0x3007:
		return grayskull, fmt.Errorf("grayskull (device id %#04x) is not a supported architecture", deviceID)
	default:
		return 0, fmt.Errorf("unrecognized PCI device id %#04x", deviceID)
	}
}
