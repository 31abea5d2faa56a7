package ledger

import "math/big"

// Precision is the fixed-point scale shared by every ledger implementation.
// Two independently operated ledgers must agree on this scale and on floor
// division to produce identical balances for identical inputs.
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// MaxSentinel is the burn-all / transfer-all amount. Supplying it resolves to
// the holder's full post-materialization principal.
var MaxSentinel = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// accruedBalance computes principal * (Precision + rate*elapsed) / Precision
// with floor division. Truncation always favours the ledger, never the holder;
// the rounding mode is part of the wire-level contract and must not change.
func accruedBalance(principal, rate *big.Int, elapsed uint64) *big.Int {
	if principal == nil || principal.Sign() == 0 {
		return big.NewInt(0)
	}
	if rate == nil || rate.Sign() == 0 || elapsed == 0 {
		return new(big.Int).Set(principal)
	}
	factor := new(big.Int).Mul(rate, new(big.Int).SetUint64(elapsed))
	factor.Add(factor, Precision)
	out := new(big.Int).Mul(principal, factor)
	return out.Quo(out, Precision)
}

// isSentinel reports whether the supplied amount requests the full balance.
func isSentinel(amount *big.Int) bool {
	return amount != nil && amount.Cmp(MaxSentinel) == 0
}
