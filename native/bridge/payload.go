package bridge

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TransferPayload is the opaque message body a bridge pool emits on lock and
// consumes on release. OriginRate is the sender's accrual-rate snapshot at the
// moment of lock, not the source ledger's global rate.
type TransferPayload struct {
	Nonce      uint64
	Recipient  [20]byte
	Amount     *big.Int
	OriginRate *big.Int
}

// Encode renders the payload with RLP.
func (p *TransferPayload) Encode() ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("bridge: payload must not be nil")
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("bridge: payload amount must be positive")
	}
	if p.OriginRate == nil || p.OriginRate.Sign() < 0 {
		return nil, fmt.Errorf("bridge: payload rate must not be negative")
	}
	return rlp.EncodeToBytes(p)
}

// DecodePayload parses an RLP payload and validates its fields.
func DecodePayload(raw []byte) (*TransferPayload, error) {
	payload := new(TransferPayload)
	if err := rlp.DecodeBytes(raw, payload); err != nil {
		return nil, fmt.Errorf("bridge: malformed payload: %w", err)
	}
	if payload.Amount == nil || payload.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("bridge: payload amount must be positive")
	}
	if payload.OriginRate == nil {
		payload.OriginRate = big.NewInt(0)
	}
	return payload, nil
}

// MessageID derives the idempotency key for a transfer: the keccak256 digest
// over both domain identifiers and the encoded payload. Source and destination
// compute identical IDs for identical messages, so a replayed delivery is
// recognisable without any shared storage.
func MessageID(sourceDomain, destDomain uint32, encodedPayload []byte) [32]byte {
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], sourceDomain)
	binary.BigEndian.PutUint32(header[4:8], destDomain)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(header, encodedPayload))
	return id
}
