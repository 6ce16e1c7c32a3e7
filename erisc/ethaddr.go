package erisc

// EthAddresses are version-gated offsets into one ERISC core's local
// address space. Firmware has moved these buffers twice; the offsets in
// use depend on the core's reported version.
type EthAddresses struct {
	BootParams       uint64
	NodeInfo         uint64
	EthConnInfo      uint64
	DebugBuf         uint64
	ResultsBuf       uint64
	ShelfRackRouting bool
	Heartbeat        uint64
	EriscApp         uint64
	EriscAppConfig   uint64
	MaskedVersion    uint32
}

// NewEthAddresses computes the offset table for the given ERISC firmware
// version. The low three bytes carry the comparable version; the buffer
// block moved at 0x030000 and again at 0x050000 (which also introduced
// shelf/rack routing), and the heartbeat/app block moved at 0x060000.
func NewEthAddresses(version uint32) EthAddresses {
	masked := version & 0x00FFFFFF
	a := EthAddresses{MaskedVersion: masked}

	switch {
	case masked >= 0x050000:
		a.BootParams = 0x1000
		a.NodeInfo = 0x1100
		a.EthConnInfo = 0x1200
		a.DebugBuf = 0x12C0
		a.ResultsBuf = 0x1EC0
		a.ShelfRackRouting = true
	case masked >= 0x030000:
		a.BootParams = 0x1000
		a.NodeInfo = 0x1100
		a.EthConnInfo = 0x1200
		a.DebugBuf = 0x1240
		a.ResultsBuf = 0x1E40
	default:
		a.BootParams = 0x5000
		a.NodeInfo = 0x5100
		a.EthConnInfo = 0x5200
		a.DebugBuf = 0x5240
		a.ResultsBuf = 0x5E40
	}

	if masked >= 0x060000 {
		a.Heartbeat = 0x1C
		a.EriscApp = 0x9040
	} else {
		a.Heartbeat = 0x1F80
		a.EriscApp = 0x8020
	}
	a.EriscAppConfig = 0x12000

	return a
}
