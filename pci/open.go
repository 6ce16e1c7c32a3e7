package pci

import (
	"github.com/tenstorrent/luwen-go/arch"
	"github.com/tenstorrent/luwen-go/kdi"
	"github.com/tenstorrent/luwen-go/lerrors"
)

// Seams for the kdi calls Open makes, swappable in tests.
var (
	queryDeviceInfo    = (*kdi.Device).QueryDeviceInfo
	queryMappings      = (*kdi.Device).QueryMappings
	queryDriverVersion = (*kdi.Device).QueryDriverVersion
	mapRegion          = (*kdi.Device).MapRegion
	unmapRegion        = (*kdi.Device).UnmapRegion
)

// requiredSysReg is the arch-specific system-register resource that must be
// present alongside BAR0: Resource2-UC on Wormhole, Resource1-UC on
// Blackhole.
func requiredSysReg(a arch.Arch) kdi.MappingID {
	if a == arch.Blackhole {
		return kdi.MappingRes1UC
	}
	return kdi.MappingRes2UC
}

// Open wires a Device over an already-open kernel-driver handle: query the
// device info, classify the architecture from the PCI device id, locate
// and mmap the BAR0-UC region, and record the driver version. The Device
// co-owns the kdi handle; Close unmaps BAR0 but leaves closing the file
// descriptor to the caller that opened it.
func Open(kd *kdi.Device) (*Device, error) {
	info, err := queryDeviceInfo(kd)
	if err != nil {
		return nil, err
	}
	a, err := arch.FromPCIDeviceID(info.DeviceID)
	if err != nil {
		return nil, lerrors.Wrap(lerrors.Context{DeviceID: kd.Index, Operation: "classify"}, err)
	}

	mappings, err := queryMappings(kd, 6)
	if err != nil {
		return nil, err
	}
	byID := make(map[kdi.MappingID]kdi.Mapping, len(mappings))
	for _, m := range mappings {
		if m.ID != kdi.MappingUnused {
			byID[m.ID] = m
		}
	}
	bar0, ok := byID[kdi.MappingRes0UC]
	if !ok {
		return nil, lerrors.Errorf("device %d: BAR0-UC mapping missing", kd.Index)
	}
	if _, ok := byID[requiredSysReg(a)]; !ok {
		return nil, lerrors.Errorf("device %d: required system-register mapping %d missing on %s", kd.Index, requiredSysReg(a), a)
	}

	mem, err := mapRegion(kd, bar0.Base, bar0.Size)
	if err != nil {
		return nil, err
	}

	version, err := queryDriverVersion(kd)
	if err != nil {
		// Old drivers predate the info ioctl; treat the version as zero
		// rather than failing the open.
		version = 0
	}

	d := NewDevice(a, mem, version)
	d.kd = kd
	return d, nil
}

// Close releases the BAR0 mapping. The caller still owns the kdi handle
// and must free any TLB allocations before closing it.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.kd == nil || d.bar0 == nil {
		return nil
	}
	err := unmapRegion(d.kd, d.bar0)
	d.bar0 = nil
	return err
}
