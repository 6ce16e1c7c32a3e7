package erisc_test

import (
	"github.com/tenstorrent/luwen-go/erisc"
	. "gopkg.in/check.v1"
)

func (s *eriscSuite) TestEthAddressesLegacyLayout(c *C) {
	a := erisc.NewEthAddresses(0x020000)
	c.Check(a.BootParams, Equals, uint64(0x5000))
	c.Check(a.NodeInfo, Equals, uint64(0x5100))
	c.Check(a.EthConnInfo, Equals, uint64(0x5200))
	c.Check(a.DebugBuf, Equals, uint64(0x5240))
	c.Check(a.ResultsBuf, Equals, uint64(0x5E40))
	c.Check(a.ShelfRackRouting, Equals, false)
	c.Check(a.Heartbeat, Equals, uint64(0x1F80))
	c.Check(a.EriscApp, Equals, uint64(0x8020))
}

func (s *eriscSuite) TestEthAddressesMidLayoutVariesDebugAndResults(c *C) {
	mid := erisc.NewEthAddresses(0x030000)
	newer := erisc.NewEthAddresses(0x050000)
	c.Check(mid.BootParams, Equals, newer.BootParams)
	c.Check(mid.DebugBuf, Equals, uint64(0x1240))
	c.Check(newer.DebugBuf, Equals, uint64(0x12C0))
	c.Check(mid.ResultsBuf, Equals, uint64(0x1E40))
	c.Check(newer.ResultsBuf, Equals, uint64(0x1EC0))
	c.Check(mid.ShelfRackRouting, Equals, false)
	c.Check(newer.ShelfRackRouting, Equals, true)
}

func (s *eriscSuite) TestEthAddressesHeartbeatMovesAtV6(c *C) {
	below := erisc.NewEthAddresses(0x050000)
	above := erisc.NewEthAddresses(0x060000)
	c.Check(below.Heartbeat, Equals, uint64(0x1F80))
	c.Check(above.Heartbeat, Equals, uint64(0x1C))
	c.Check(below.EriscApp, Equals, uint64(0x8020))
	c.Check(above.EriscApp, Equals, uint64(0x9040))
	c.Check(below.EriscAppConfig, Equals, above.EriscAppConfig)
}

func (s *eriscSuite) TestEthAddressesMasksHighByte(c *C) {
	// The top byte is not part of the comparable version.
	a := erisc.NewEthAddresses(0xFF050000)
	c.Check(a.MaskedVersion, Equals, uint32(0x050000))
	c.Check(a.ShelfRackRouting, Equals, true)
}
