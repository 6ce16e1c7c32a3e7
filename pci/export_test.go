package pci

import (
	"github.com/tenstorrent/luwen-go/arch"
	"github.com/tenstorrent/luwen-go/kdi"
	"github.com/tenstorrent/luwen-go/testutil"
)

func NewTestDeviceRaw(a arch.Arch, bar0 []byte) *Device {
	return NewDevice(a, bar0, 0)
}

func (d *Device) Bar0ForTest() []byte { return d.bar0 }

var ResolveWindow = resolveWindow
var StrideCapable = strideCapable

func MockQueryDeviceInfo(f func(*kdi.Device) (kdi.DeviceInfo, error)) (restore func()) {
	return testutil.Mock(&queryDeviceInfo, f)
}

func MockQueryMappings(f func(*kdi.Device, int) ([]kdi.Mapping, error)) (restore func()) {
	return testutil.Mock(&queryMappings, f)
}

func MockQueryDriverVersion(f func(*kdi.Device) (uint32, error)) (restore func()) {
	return testutil.Mock(&queryDriverVersion, f)
}

func MockMapRegion(f func(*kdi.Device, uint64, uint64) ([]byte, error)) (restore func()) {
	return testutil.Mock(&mapRegion, f)
}

func MockUnmapRegion(f func(*kdi.Device, []byte) error) (restore func()) {
	return testutil.Mock(&unmapRegion, f)
}
