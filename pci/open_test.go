package pci_test

import (
	. "gopkg.in/check.v1"

	"github.com/tenstorrent/luwen-go/arch"
	"github.com/tenstorrent/luwen-go/kdi"
	"github.com/tenstorrent/luwen-go/pci"
	"github.com/tenstorrent/luwen-go/testutil"
)

type openSuite struct {
	testutil.BaseTest

	bar []byte
}

var _ = Suite(&openSuite{})

func (s *openSuite) SetUpTest(c *C) {
	s.BaseTest.SetUpTest(c)
	s.bar = make([]byte, 1<<20)

	s.AddCleanup(pci.MockQueryDeviceInfo(func(*kdi.Device) (kdi.DeviceInfo, error) {
		return kdi.DeviceInfo{VendorID: 0x1E52, DeviceID: 0x401E}, nil
	}))
	s.AddCleanup(pci.MockQueryMappings(func(*kdi.Device, int) ([]kdi.Mapping, error) {
		return []kdi.Mapping{
			{ID: kdi.MappingRes0UC, Base: 0, Size: uint64(len(s.bar))},
			{ID: kdi.MappingRes2UC, Base: 1 << 28, Size: 1 << 20},
		}, nil
	}))
	s.AddCleanup(pci.MockQueryDriverVersion(func(*kdi.Device) (uint32, error) {
		return 0x00052101, nil // 1.33.5 packed
	}))
	s.AddCleanup(pci.MockMapRegion(func(_ *kdi.Device, offset, length uint64) ([]byte, error) {
		c.Check(offset, Equals, uint64(0))
		c.Check(length, Equals, uint64(len(s.bar)))
		return s.bar, nil
	}))
	s.AddCleanup(pci.MockUnmapRegion(func(*kdi.Device, []byte) error { return nil }))
}

func (s *openSuite) TestOpenClassifiesAndMapsBar0(c *C) {
	d, err := pci.Open(&kdi.Device{Index: 0})
	c.Assert(err, IsNil)
	c.Check(d.Arch, Equals, arch.Wormhole)

	c.Assert(d.Write32(0x100, 0x12345678), IsNil)
	v, err := d.Read32(0x100)
	c.Assert(err, IsNil)
	c.Check(v, Equals, uint32(0x12345678))

	c.Check(d.Close(), IsNil)
}

func (s *openSuite) TestOpenRejectsGrayskull(c *C) {
	s.AddCleanup(pci.MockQueryDeviceInfo(func(*kdi.Device) (kdi.DeviceInfo, error) {
		return kdi.DeviceInfo{DeviceID: 0x3007}, nil
	}))
	_, err := pci.Open(&kdi.Device{Index: 0})
	c.Assert(err, ErrorMatches, ".*grayskull.*not a supported architecture.*")
}

func (s *openSuite) TestOpenRequiresBar0(c *C) {
	s.AddCleanup(pci.MockQueryMappings(func(*kdi.Device, int) ([]kdi.Mapping, error) {
		return []kdi.Mapping{{ID: kdi.MappingRes2UC, Base: 0, Size: 1 << 20}}, nil
	}))
	_, err := pci.Open(&kdi.Device{Index: 0})
	c.Assert(err, ErrorMatches, ".*BAR0-UC mapping missing.*")
}

func (s *openSuite) TestOpenRequiresArchSystemRegisters(c *C) {
	s.AddCleanup(pci.MockQueryMappings(func(*kdi.Device, int) ([]kdi.Mapping, error) {
		return []kdi.Mapping{{ID: kdi.MappingRes0UC, Base: 0, Size: uint64(len(s.bar))}}, nil
	}))
	_, err := pci.Open(&kdi.Device{Index: 0})
	c.Assert(err, ErrorMatches, ".*system-register mapping.*missing.*")
}

func (s *openSuite) TestOpenToleratesMissingDriverInfoIoctl(c *C) {
	s.AddCleanup(pci.MockQueryDriverVersion(func(d *kdi.Device) (uint32, error) {
		return 0, &kdi.OpErr{DeviceID: d.Index, Op: "GetDriverInfo"}
	}))
	d, err := pci.Open(&kdi.Device{Index: 0})
	c.Assert(err, IsNil)
	c.Check(d, NotNil)
}
