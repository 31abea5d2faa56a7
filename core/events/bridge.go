package events

import "math/big"

const (
	// TypeBridgeLocked is emitted when value is burned on this ledger for an
	// outbound cross-ledger transfer.
	TypeBridgeLocked = "bridge.locked"
	// TypeBridgeReleased is emitted when an inbound transfer mints value on
	// this ledger.
	TypeBridgeReleased = "bridge.released"
	// TypeBridgeDuplicate is emitted when a replayed delivery is rejected.
	TypeBridgeDuplicate = "bridge.duplicate"
)

// BridgeLocked records an outbound lock on the source ledger.
type BridgeLocked struct {
	MessageID  [32]byte
	DestDomain uint32
	Sender     [20]byte
	Recipient  [20]byte
	Amount     *big.Int
	OriginRate *big.Int
}

func (BridgeLocked) EventType() string { return TypeBridgeLocked }

// BridgeReleased records an inbound mint on the destination ledger.
type BridgeReleased struct {
	MessageID    [32]byte
	SourceDomain uint32
	Recipient    [20]byte
	Amount       *big.Int
	AppliedRate  *big.Int
}

func (BridgeReleased) EventType() string { return TypeBridgeReleased }

// BridgeDuplicate records a rejected replay of a previously applied message.
type BridgeDuplicate struct {
	MessageID    [32]byte
	SourceDomain uint32
}

func (BridgeDuplicate) EventType() string { return TypeBridgeDuplicate }
