package dirs_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/tenstorrent/luwen-go/dirs"
)

func Test(t *testing.T) { TestingT(t) }

type dirsSuite struct{}

var _ = Suite(&dirsSuite{})

func (s *dirsSuite) TearDownTest(c *C) {
	dirs.SetRootDir("")
}

func (s *dirsSuite) TestDefaultRoot(c *C) {
	c.Check(dirs.ChipCharDeviceDir(), Equals, "/dev/tenstorrent")
	c.Check(dirs.ChipCharDevice(3), Equals, "/dev/tenstorrent/3")
}

func (s *dirsSuite) TestSetRootDir(c *C) {
	root := c.MkDir()
	dirs.SetRootDir(root)
	c.Check(dirs.ChipCharDevice(0), Equals, root+"/dev/tenstorrent/0")
}

func (s *dirsSuite) TestHostConfigFile(c *C) {
	c.Check(dirs.HostConfigFile(), Equals, "/etc/tenstorrent/luwen.conf")
}

func (s *dirsSuite) TestPCIConfigPath(c *C) {
	c.Check(dirs.PCIConfigPath(0, 0x17, 0x00, 0), Equals, "/sys/bus/pci/devices/0000:17:00.0/config")
}

func (s *dirsSuite) TestPCIResourcePath(c *C) {
	c.Check(dirs.PCIResourcePath(0, 0x17, 0x00, 0, 0), Equals, "/sys/bus/pci/devices/0000:17:00.0/resource0")
}
