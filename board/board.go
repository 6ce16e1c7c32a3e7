// Package board identifies chip board types from their telemetry-reported
// board ID, in particular the Wormhole UBB/Galaxy boards that bypass
// Ethernet-based topology discovery.
package board

// UPI is the board's universal product identifier, the high byte of the
// telemetry board ID.
type UPI uint8

// UbbGalaxyUPI is the board UPI whose mesh is not enumerable by Ethernet
// from the host and is instead addressed via IPMI.
const UbbGalaxyUPI UPI = 0x35

// UPIFromBoardID extracts the UPI byte from a telemetry board ID.
func UPIFromBoardID(boardID uint32) UPI {
	return UPI(boardID >> 24)
}

// IsUbbGalaxy reports whether boardID names the UBB/Galaxy board type.
func IsUbbGalaxy(boardID uint32) bool {
	return UPIFromBoardID(boardID) == UbbGalaxyUPI
}
