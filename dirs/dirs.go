// Package dirs centralizes every filesystem path the rest of the module
// touches, so tests can redirect the library at a scratch tree instead of
// the real /dev and /sys.
package dirs

import (
	"fmt"
	"path/filepath"
)

var (
	// GlobalRootDir is prefixed onto every path below. Empty means "/".
	GlobalRootDir = "/"

	DevDir         string
	SysBusPCIDir   string
	SysClassInfDir string
	EtcDir         string
)

func init() {
	SetRootDir("")
}

// SetRootDir overrides the root all paths are computed against. Passing ""
// resets to "/".
func SetRootDir(root string) {
	if root == "" {
		root = "/"
	}
	GlobalRootDir = root

	DevDir = filepath.Join(root, "/dev")
	SysBusPCIDir = filepath.Join(root, "/sys/bus/pci/devices")
	SysClassInfDir = filepath.Join(root, "/sys/class/infiniband")
	EtcDir = filepath.Join(root, "/etc")
}

// HostConfigFile is the ini file host-side defaults are read from.
func HostConfigFile() string {
	return filepath.Join(EtcDir, "tenstorrent/luwen.conf")
}

// ChipCharDeviceDir is the directory KDI scans for chip device nodes.
func ChipCharDeviceDir() string {
	return filepath.Join(DevDir, "tenstorrent")
}

// ChipCharDevice returns the path to the character device node for chip
// index n, e.g. /dev/tenstorrent/0.
func ChipCharDevice(n uint) string {
	return filepath.Join(ChipCharDeviceDir(), fmt.Sprintf("%d", n))
}

// PCIConfigPath returns the sysfs config-space file for a BDF.
func PCIConfigPath(domain, bus, device, function uint16) string {
	return filepath.Join(SysBusPCIDir, bdf(domain, bus, device, function), "config")
}

// PCIResourcePath returns the sysfs resourceN file, the fallback mmap path
// when the kernel driver does not own the BAR mapping.
func PCIResourcePath(domain, bus, device, function uint16, resource int) string {
	return filepath.Join(SysBusPCIDir, bdf(domain, bus, device, function), fmt.Sprintf("resource%d", resource))
}

func bdf(domain, bus, device, function uint16) string {
	return fmt.Sprintf("%04x:%02x:%02x.%d", domain, bus, device, function)
}
