package board_test

import (
	"testing"

	"github.com/tenstorrent/luwen-go/board"
	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type boardSuite struct{}

var _ = Suite(&boardSuite{})

func (s *boardSuite) TestIsUbbGalaxy(c *C) {
	id := uint32(board.UbbGalaxyUPI) << 24
	c.Check(board.IsUbbGalaxy(id), Equals, true)
}

func (s *boardSuite) TestNotUbbGalaxy(c *C) {
	id := uint32(0x10) << 24
	c.Check(board.IsUbbGalaxy(id), Equals, false)
}
