package comms

import "github.com/tenstorrent/luwen-go/axi"

// ArcIf translates paths directly through a local AXI table and issues
// plain axi_* reads/writes — the routing strategy for a directly-attached
// chip whose ARC is AXI-mapped.
type ArcIf struct {
	Table axi.Table
}

func (a *ArcIf) AxiTranslate(path string) (axi.Data, error) { return a.Table.Resolve(path) }

func (a *ArcIf) Read(ci ChipInterface, addr uint64, dst []byte) error {
	return ci.AxiRead(addr, dst)
}

func (a *ArcIf) Write(ci ChipInterface, addr uint64, src []byte) error {
	return ci.AxiWrite(addr, src)
}

// NocIf translates through the same table but routes every read/write via
// NoC at a fixed coordinate, for chips whose ARC must be reached over the
// mesh rather than directly over AXI.
type NocIf struct {
	Table axi.Table
	Coord NocCoord
	NocID uint8
}

func (n *NocIf) AxiTranslate(path string) (axi.Data, error) { return n.Table.Resolve(path) }

func (n *NocIf) Read(ci ChipInterface, addr uint64, dst []byte) error {
	return ci.NocRead(n.Coord, n.NocID, addr, dst)
}

func (n *NocIf) Write(ci ChipInterface, addr uint64, src []byte) error {
	return ci.NocWrite(n.Coord, n.NocID, addr, src)
}

// RemoteArcIf translates through the remote chip's own AXI table but
// routes every operation through eth_noc_* at a fixed EthAddr, reaching a
// chip that is not locally attached but is visible across one or more
// Ethernet hops.
type RemoteArcIf struct {
	Table axi.Table
	Eth   EthAddr
	Coord NocCoord
	NocID uint8
}

func (r *RemoteArcIf) AxiTranslate(path string) (axi.Data, error) { return r.Table.Resolve(path) }

func (r *RemoteArcIf) Read(ci ChipInterface, addr uint64, dst []byte) error {
	return ci.EthNocRead(r.Eth, r.Coord, r.NocID, addr, dst)
}

func (r *RemoteArcIf) Write(ci ChipInterface, addr uint64, src []byte) error {
	return ci.EthNocWrite(r.Eth, r.Coord, r.NocID, addr, src)
}
