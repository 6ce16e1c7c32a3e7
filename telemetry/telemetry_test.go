package telemetry_test

import (
	"encoding/binary"
	"testing"

	"github.com/tenstorrent/luwen-go/telemetry"
	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type telemetrySuite struct{}

var _ = Suite(&telemetrySuite{})

func (s *telemetrySuite) TestDecodeAndHarvestingMask(c *C) {
	raw := make([]byte, 16)
	binary.LittleEndian.PutUint32(raw[0:4], 0b101) // harvesting mask at offset 0
	binary.LittleEndian.PutUint32(raw[4:8], 800)   // aiclk at offset 4

	offsets := map[uint16]int{
		telemetry.TagHarvestingMask: 0,
		telemetry.TagAiclk:          4,
	}
	tbl, err := telemetry.Decode(raw, offsets)
	c.Assert(err, IsNil)

	mask, ok := tbl.HarvestingMask()
	c.Assert(ok, Equals, true)
	c.Check(mask, Equals, uint32(0b101))

	aiclk, ok := tbl.Aiclk()
	c.Assert(ok, Equals, true)
	c.Check(aiclk, Equals, uint32(800))
}

func (s *telemetrySuite) TestDecodeOutOfRangeOffset(c *C) {
	_, err := telemetry.Decode(make([]byte, 2), map[uint16]int{telemetry.TagAiclk: 0})
	c.Check(err, ErrorMatches, ".*out of range.*")
}

func (s *telemetrySuite) TestNocTranslateSkipsHarvestedRows(c *C) {
	// rows 0 and 2 harvested; logical row 0 maps to physical row 1.
	mask := uint32(0b101)
	c.Check(telemetry.NocTranslate(0, mask), Equals, uint8(1))
}

func (s *telemetrySuite) TestNocTranslateNoHarvesting(c *C) {
	c.Check(telemetry.NocTranslate(3, 0), Equals, uint8(3))
}
