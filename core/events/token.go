package events

import (
	"math/big"
	"strings"
)

const (
	// TypeTokenSupply is emitted whenever the token supply changes.
	TypeTokenSupply = "token.supply"
	// TypeInterestAccrued is emitted when virtual interest is materialized
	// into principal for a holder.
	TypeInterestAccrued = "token.accrued"
	// TypeGlobalRateUpdated is emitted when the global accrual rate is lowered.
	TypeGlobalRateUpdated = "token.rateUpdated"
	// TypeTransfer is emitted for same-ledger transfers.
	TypeTransfer = "token.transfer"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
	// SupplyReasonAccrual identifies supply increases caused by interest
	// materialization.
	SupplyReasonAccrual = "accrual"
)

// TokenSupply captures a supply delta for the token.
type TokenSupply struct {
	Token  string
	Holder [20]byte
	Total  *big.Int
	Delta  *big.Int
	Reason string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Attributes renders the structured supply change for downstream consumers.
func (e TokenSupply) Attributes() map[string]string {
	attrs := map[string]string{}
	token := strings.ToUpper(strings.TrimSpace(e.Token))
	if token == "" {
		token = "UNKNOWN"
	}
	attrs["token"] = token
	total := big.NewInt(0)
	if e.Total != nil {
		total = new(big.Int).Set(e.Total)
	}
	attrs["total"] = total.String()
	if e.Delta != nil {
		attrs["delta"] = new(big.Int).Set(e.Delta).String()
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return attrs
}

// InterestAccrued records materialized interest for a holder.
type InterestAccrued struct {
	Holder [20]byte
	Delta  *big.Int
	Rate   *big.Int
}

func (InterestAccrued) EventType() string { return TypeInterestAccrued }

// GlobalRateUpdated records a monotonic decrease of the global rate.
type GlobalRateUpdated struct {
	Previous *big.Int
	Current  *big.Int
}

func (GlobalRateUpdated) EventType() string { return TypeGlobalRateUpdated }

// Transfer records a same-ledger principal movement.
type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }
