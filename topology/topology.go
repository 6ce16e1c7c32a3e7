// Package topology performs depth-first discovery of the Ethernet mesh
// reachable from a set of locally attached root chips, deduplicating
// chips by (board ID, coordinate).
package topology

import (
	"github.com/tenstorrent/luwen-go/arch"
	"github.com/tenstorrent/luwen-go/board"
	"github.com/tenstorrent/luwen-go/comms"
	"github.com/tenstorrent/luwen-go/initstate"
	"github.com/tenstorrent/luwen-go/lerrors"
	"gopkg.in/yaml.v3"
)

// NeighbouringChip is one edge discovered from a chip's ERISC connection
// table.
type NeighbouringChip struct {
	LocalNocAddr   [2]uint8
	RemoteNocAddr  [2]uint8
	EthAddr        comms.EthAddr
	RoutingEnabled bool
}

// Identity is the deduplication key: two chips collapse iff they share it.
// InterfaceID is used for locally attached (MMIO-visible) roots instead
// of a coordinate.
type Identity struct {
	BoardID     uint32
	Eth         comms.EthAddr
	HasEth      bool
	InterfaceID int
}

// Chip is the minimal capability surface detect_chips needs from a chip
// object, independent of its concrete arch.
type Chip interface {
	Arch() arch.Arch
	WaitForInit(cfg initstate.Config, callback func(initstate.DetectState) error, allowFailure bool) (*initstate.InitStatus, error)
	BoardID() (uint32, error)
	Neighbours() ([]NeighbouringChip, error)
	SelfReportedCoord() (comms.EthAddr, error)
	OpenRemote(eth comms.EthAddr) (Chip, error)
}

// UninitChip wraps a chip that has completed (possibly partial)
// initialization, preserving its status for inspection without implying
// it is safe to use for general traffic.
type UninitChip struct {
	Chip     Chip
	Status   *initstate.InitStatus
	Partial  bool
	Identity Identity
}

// DetectCallback is invoked for every root and for every remote chip the
// walk opens, with notNew == true when that chip's identity was already
// recorded. A neighbour whose pre-open key (its Ethernet address with the
// current chip's board id) is already recorded is skipped without opening
// it and without a callback.
type DetectCallback func(chip Chip, status *initstate.InitStatus, notNew bool)

func interfaceIdentity(interfaceID int, boardID uint32) Identity {
	return Identity{BoardID: boardID, InterfaceID: interfaceID}
}

func ethIdentity(eth comms.EthAddr, boardID uint32) Identity {
	return Identity{BoardID: boardID, Eth: eth, HasEth: true}
}

// DetectChips runs wait_for_init on every root, then walks the Ethernet
// mesh depth-first from roots whose Ethernet is healthy, skipping UBB
// boards (board UPI 0x35) which are not enumerable by Ethernet.
func DetectChips(roots []Chip, cfg func(Chip) initstate.Config, callback DetectCallback, allowFailure bool) ([]UninitChip, error) {
	seen := make(map[Identity]bool)
	var result []UninitChip
	var work []UninitChip

	for i, root := range roots {
		status, err := root.WaitForInit(cfg(root), nil, allowFailure)
		if err != nil {
			return nil, err
		}
		uc := UninitChip{Chip: root, Status: status, Partial: status.HasError() || status.IsWaiting()}

		boardID, err := root.BoardID()
		if err != nil {
			return nil, err
		}
		id := interfaceIdentity(i, boardID)
		uc.Identity = id
		if seen[id] {
			if callback != nil {
				callback(root, status, true)
			}
			continue
		}
		seen[id] = true
		result = append(result, uc)
		if callback != nil {
			callback(root, status, false)
		}

		if root.Arch() != arch.Wormhole {
			continue
		}
		if board.IsUbbGalaxy(boardID) {
			continue
		}
		if uc.Status.Components[initstate.Ethernet].Latest().Kind != initstate.Done {
			continue
		}
		work = append(work, uc)
	}

	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		neighbours, err := cur.Chip.Neighbours()
		if err != nil {
			return nil, err
		}
		for _, n := range neighbours {
			if !n.RoutingEnabled {
				continue
			}
			remoteBoardID, _ := cur.Chip.BoardID() // best-effort: real board id comes after init below
			id := ethIdentity(n.EthAddr, remoteBoardID)
			if seen[id] {
				continue
			}

			remoteChip, err := cur.Chip.OpenRemote(n.EthAddr)
			if err != nil {
				return nil, err
			}
			status, err := remoteChip.WaitForInit(cfg(remoteChip), nil, allowFailure)
			if err != nil {
				return nil, err
			}

			reportedCoord, err := remoteChip.SelfReportedCoord()
			if err != nil {
				return nil, err
			}
			if reportedCoord != n.EthAddr {
				return nil, lerrors.Errorf("topology: coord mismatch: expected %+v, remote reports %+v", n.EthAddr, reportedCoord)
			}

			realBoardID, err := remoteChip.BoardID()
			if err != nil {
				return nil, err
			}
			id = ethIdentity(n.EthAddr, realBoardID)
			if seen[id] {
				if callback != nil {
					callback(remoteChip, status, true)
				}
				continue
			}
			seen[id] = true

			newUc := UninitChip{Chip: remoteChip, Status: status, Partial: status.HasError() || status.IsWaiting(), Identity: id}
			result = append(result, newUc)
			if callback != nil {
				callback(remoteChip, status, false)
			}
			if status.Components[initstate.Ethernet].Latest().Kind == initstate.Done {
				work = append(work, newUc)
			}
		}
	}

	return result, nil
}

// snapshotChip is the YAML-serializable record of one discovered chip,
// independent of the live Chip handle.
type snapshotChip struct {
	BoardID     uint32         `yaml:"board_id"`
	InterfaceID int            `yaml:"interface_id,omitempty"`
	EthAddr     *comms.EthAddr `yaml:"eth_addr,omitempty"`
	Partial     bool           `yaml:"partial"`
}

// Snapshot is the list of discovered chips (board id, interface id or
// Ethernet address, partial flag) in the form a local debugging dump or a
// future create-ethernet-map-style collaborator can consume. It records no
// Ethernet edges between chips.
type Snapshot struct {
	Chips []snapshotChip `yaml:"chips"`
}

// MarshalYAML renders the result of DetectChips for local inspection or
// snapshot comparison across runs. It does not replace the protobuf/YAML
// wire format produced by the external ethernet-map collaborator; it is a
// debugging aid built from the same chip/coord data.
func MarshalYAML(chips []UninitChip) ([]byte, error) {
	snap := Snapshot{Chips: make([]snapshotChip, 0, len(chips))}
	for _, uc := range chips {
		sc := snapshotChip{BoardID: uc.Identity.BoardID, InterfaceID: uc.Identity.InterfaceID, Partial: uc.Partial}
		if uc.Identity.HasEth {
			eth := uc.Identity.Eth
			sc.EthAddr = &eth
		}
		snap.Chips = append(snap.Chips, sc)
	}
	return yaml.Marshal(snap)
}
