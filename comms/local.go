package comms

import (
	"github.com/tenstorrent/luwen-go/kdi"
	"github.com/tenstorrent/luwen-go/lerrors"
	"github.com/tenstorrent/luwen-go/pci"
)

// LocalInterface is a ChipInterface backed directly by a PCI device: axi
// reads/writes go straight to MMIO, noc reads/writes program a TLB window
// first, and eth_noc reads/writes are rejected with an error.
type LocalInterface struct {
	Device *pci.Device
	Info   kdi.DeviceInfo

	// TlbIndex is the scratch TLB window this interface programs for
	// noc_*/eth_noc_* access. A LocalInterface owns it exclusively.
	TlbIndex int
}

func (l *LocalInterface) GetDeviceInfo() (kdi.DeviceInfo, error) { return l.Info, nil }

func (l *LocalInterface) AxiRead(addr uint64, dst []byte) error {
	return l.Device.ReadBlock(addr, dst)
}

func (l *LocalInterface) AxiWrite(addr uint64, src []byte) error {
	return l.Device.WriteBlock(addr, src)
}

func (l *LocalInterface) nocWindow(coord NocCoord, nocID uint8, addr uint64, mcast bool, xEnd, yEnd NocCoord) (mmioAddr, size uint64, err error) {
	desc := pci.TlbDescriptor{
		LocalOffset: addr,
		XStart:      coord.X, YStart: coord.Y,
		XEnd: xEnd.X, YEnd: yEnd.Y,
		NocSel: nocID,
		Mcast:  mcast,
	}
	return l.Device.SetupTlb(l.TlbIndex, desc)
}

func (l *LocalInterface) NocRead(coord NocCoord, nocID uint8, addr uint64, dst []byte) error {
	mmio, size, err := l.nocWindow(coord, nocID, addr, false, coord, coord)
	if err != nil {
		return err
	}
	if uint64(len(dst)) > size {
		return lerrors.Errorf("comms: noc read of %d bytes exceeds TLB window of %d", len(dst), size)
	}
	return l.Device.ReadBlock(mmio, dst)
}

func (l *LocalInterface) NocWrite(coord NocCoord, nocID uint8, addr uint64, src []byte) error {
	mmio, size, err := l.nocWindow(coord, nocID, addr, false, coord, coord)
	if err != nil {
		return err
	}
	if uint64(len(src)) > size {
		return lerrors.Errorf("comms: noc write of %d bytes exceeds TLB window of %d", len(src), size)
	}
	return l.Device.WriteBlock(mmio, src)
}

func (l *LocalInterface) NocMulticast(xStart, yStart, xEnd, yEnd NocCoord, nocID uint8, addr uint64, src []byte) error {
	mmio, size, err := l.nocWindow(xStart, nocID, addr, true, xEnd, yEnd)
	if err != nil {
		return err
	}
	if uint64(len(src)) > size {
		return lerrors.Errorf("comms: noc multicast of %d bytes exceeds TLB window of %d", len(src), size)
	}
	return l.Device.WriteBlock(mmio, src)
}

func (l *LocalInterface) NocBroadcast(nocID uint8, addr uint64, src []byte) error {
	return l.NocMulticast(NocCoord{}, NocCoord{}, NocCoord{X: 0xFF, Y: 0xFF}, NocCoord{X: 0xFF, Y: 0xFF}, nocID, addr, src)
}

// EthNocRead/EthNocWrite are not meaningful on a purely local interface: a
// LocalInterface only reaches directly-attached silicon over MMIO. Both
// return an error. RemoteArcIf routes through these two methods of the
// ChipInterface it is given, so it cannot cross an Ethernet hop over a
// LocalInterface; no ChipInterface in this package is backed by the erisc
// tunnel.
func (l *LocalInterface) EthNocRead(eth EthAddr, coord NocCoord, nocID uint8, addr uint64, dst []byte) error {
	return lerrors.Errorf("comms: eth_noc_read not supported on a local interface")
}

func (l *LocalInterface) EthNocWrite(eth EthAddr, coord NocCoord, nocID uint8, addr uint64, src []byte) error {
	return lerrors.Errorf("comms: eth_noc_write not supported on a local interface")
}

// NocInterface re-addresses another ChipInterface's axi_* calls as noc_*
// calls at a fixed coordinate — used to reach the ARC core via NoC on
// architectures where ARC is not directly AXI-mapped.
type NocInterface struct {
	Inner ChipInterface
	Coord NocCoord
	NocID uint8
}

func (n *NocInterface) GetDeviceInfo() (kdi.DeviceInfo, error) { return n.Inner.GetDeviceInfo() }

func (n *NocInterface) AxiRead(addr uint64, dst []byte) error {
	return n.Inner.NocRead(n.Coord, n.NocID, addr, dst)
}

func (n *NocInterface) AxiWrite(addr uint64, src []byte) error {
	return n.Inner.NocWrite(n.Coord, n.NocID, addr, src)
}

func (n *NocInterface) NocRead(coord NocCoord, nocID uint8, addr uint64, dst []byte) error {
	return n.Inner.NocRead(coord, nocID, addr, dst)
}

func (n *NocInterface) NocWrite(coord NocCoord, nocID uint8, addr uint64, src []byte) error {
	return n.Inner.NocWrite(coord, nocID, addr, src)
}

func (n *NocInterface) NocMulticast(xStart, yStart, xEnd, yEnd NocCoord, nocID uint8, addr uint64, src []byte) error {
	return n.Inner.NocMulticast(xStart, yStart, xEnd, yEnd, nocID, addr, src)
}

func (n *NocInterface) NocBroadcast(nocID uint8, addr uint64, src []byte) error {
	return n.Inner.NocBroadcast(nocID, addr, src)
}

func (n *NocInterface) EthNocRead(eth EthAddr, coord NocCoord, nocID uint8, addr uint64, dst []byte) error {
	return n.Inner.EthNocRead(eth, coord, nocID, addr, dst)
}

func (n *NocInterface) EthNocWrite(eth EthAddr, coord NocCoord, nocID uint8, addr uint64, src []byte) error {
	return n.Inner.EthNocWrite(eth, coord, nocID, addr, src)
}
