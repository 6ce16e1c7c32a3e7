package arch_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/tenstorrent/luwen-go/arch"
)

func Test(t *testing.T) { TestingT(t) }

type archSuite struct{}

var _ = Suite(&archSuite{})

func (s *archSuite) TestValid(c *C) {
	c.Check(arch.Wormhole.Valid(), Equals, true)
	c.Check(arch.Blackhole.Valid(), Equals, true)
}

func (s *archSuite) TestFromPCIDeviceID(c *C) {
	a, err := arch.FromPCIDeviceID(0x401E)
	c.Assert(err, IsNil)
	c.Check(a, Equals, arch.Wormhole)

	a, err = arch.FromPCIDeviceID(0xB140)
	c.Assert(err, IsNil)
	c.Check(a, Equals, arch.Blackhole)
}

func (s *archSuite) TestFromPCIDeviceIDRejectsGrayskull(c *C) {
	a, err := arch.FromPCIDeviceID(0x3007)
	c.Assert(err, ErrorMatches, "grayskull.*not a supported architecture")
	c.Check(a.Valid(), Equals, false)
}

func (s *archSuite) TestFromPCIDeviceIDUnknown(c *C) {
	_, err := arch.FromPCIDeviceID(0xDEAD)
	c.Assert(err, ErrorMatches, "unrecognized PCI device id.*")
}

func (s *archSuite) TestString(c *C) {
	c.Check(arch.Wormhole.String(), Equals, "wormhole")
	c.Check(arch.Blackhole.String(), Equals, "blackhole")
}
