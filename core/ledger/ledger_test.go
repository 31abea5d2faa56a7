package ledger

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"yieldnet/core/state"
	"yieldnet/storage"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLedger(t *testing.T) (*Ledger, *fakeClock) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	clock := newFakeClock()
	l := NewLedger(manager, "YLD", nil)
	l.SetClock(clock.Now)
	return l, clock
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Precision)
}

func TestMintCreatesRecordWithFreshRate(t *testing.T) {
	l, _ := newTestLedger(t)
	holder := addr(1)
	rate := big.NewInt(50_000_000_000)
	if err := l.Mint(holder, tokens(100), rate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	record, ok, err := l.HolderRecordOf(holder)
	if err != nil || !ok {
		t.Fatalf("expected record, ok=%v err=%v", ok, err)
	}
	if record.Rate.Cmp(rate) != 0 {
		t.Fatalf("rate snapshot mismatch: %s", record.Rate)
	}
	if record.Principal.Cmp(tokens(100)) != 0 {
		t.Fatalf("principal mismatch: %s", record.Principal)
	}
	supply, err := l.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(tokens(100)) != 0 {
		t.Fatalf("supply mismatch: %s", supply)
	}
}

func TestDisplayedBalanceAccruesLinearly(t *testing.T) {
	l, clock := newTestLedger(t)
	holder := addr(1)
	rate := big.NewInt(50_000_000_000)
	if err := l.Mint(holder, tokens(100000), rate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	base, _ := l.DisplayedBalanceOf(holder)

	clock.Advance(time.Hour)
	afterHour, _ := l.DisplayedBalanceOf(holder)
	if afterHour.Cmp(base) <= 0 {
		t.Fatalf("expected balance growth after an hour: %s vs %s", afterHour, base)
	}

	clock.Advance(time.Hour)
	afterTwo, _ := l.DisplayedBalanceOf(holder)
	firstDelta := new(big.Int).Sub(afterHour, base)
	secondDelta := new(big.Int).Sub(afterTwo, afterHour)
	diff := new(big.Int).Sub(firstDelta, secondDelta)
	if diff.CmpAbs(big.NewInt(1)) > 0 {
		t.Fatalf("hourly accrual not linear: %s vs %s", firstDelta, secondDelta)
	}
}

func TestMaterializeIdempotentAtSameInstant(t *testing.T) {
	l, clock := newTestLedger(t)
	holder := addr(1)
	if err := l.Mint(holder, tokens(1000), big.NewInt(50_000_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(6 * time.Hour)
	first, err := l.Materialize(holder)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if first.Sign() <= 0 {
		t.Fatalf("expected positive accrual delta, got %s", first)
	}
	second, err := l.Materialize(holder)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if second.Sign() != 0 {
		t.Fatalf("second materialization at the same instant must be a no-op, got %s", second)
	}
}

func TestMaterializationPreservesDisplayedBalance(t *testing.T) {
	l, clock := newTestLedger(t)
	holder := addr(1)
	if err := l.Mint(holder, tokens(12345), big.NewInt(40_000_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(90 * time.Minute)
	before, _ := l.DisplayedBalanceOf(holder)
	if _, err := l.Materialize(holder); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	after, _ := l.DisplayedBalanceOf(holder)
	if before.Cmp(after) != 0 {
		t.Fatalf("materialization changed the displayed balance: %s vs %s", before, after)
	}
	principal, _ := l.PrincipalOf(holder)
	if principal.Cmp(after) != 0 {
		t.Fatalf("principal should equal displayed right after materialization: %s vs %s", principal, after)
	}
}

func TestBurnThenMintConservesBalance(t *testing.T) {
	l, clock := newTestLedger(t)
	holder := addr(1)
	rate := big.NewInt(50_000_000_000)
	if err := l.Mint(holder, tokens(500), rate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(time.Hour)
	before, _ := l.DisplayedBalanceOf(holder)
	amount := tokens(200)
	if _, err := l.Burn(holder, amount); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := l.Mint(holder, amount, rate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	after, _ := l.DisplayedBalanceOf(holder)
	if before.Cmp(after) != 0 {
		t.Fatalf("burn+mint of equal amount changed balance: %s vs %s", before, after)
	}
}

func TestBurnSentinelZeroesPrincipal(t *testing.T) {
	l, clock := newTestLedger(t)
	holder := addr(1)
	if err := l.Mint(holder, tokens(100000), big.NewInt(50_000_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(2 * time.Hour)
	displayed, _ := l.DisplayedBalanceOf(holder)
	burned, err := l.Burn(holder, new(big.Int).Set(MaxSentinel))
	if err != nil {
		t.Fatalf("burn all: %v", err)
	}
	if burned.Cmp(displayed) != 0 {
		t.Fatalf("sentinel burn should resolve to displayed balance: %s vs %s", burned, displayed)
	}
	principal, _ := l.PrincipalOf(holder)
	if principal.Sign() != 0 {
		t.Fatalf("principal should be zero after burn-all, got %s", principal)
	}
	supply, _ := l.TotalSupply()
	if supply.Sign() != 0 {
		t.Fatalf("supply should be zero after burn-all, got %s", supply)
	}
}

func TestBurnInsufficientLeavesStateUntouched(t *testing.T) {
	l, clock := newTestLedger(t)
	holder := addr(1)
	if err := l.Mint(holder, tokens(10), big.NewInt(50_000_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(time.Hour)
	recordBefore, _, _ := l.HolderRecordOf(holder)
	_, err := l.Burn(holder, tokens(10_000))
	if !errors.Is(err, ErrInsufficientPrincipal) {
		t.Fatalf("expected ErrInsufficientPrincipal, got %v", err)
	}
	recordAfter, _, _ := l.HolderRecordOf(holder)
	if recordBefore.Principal.Cmp(recordAfter.Principal) != 0 || recordBefore.LastUpdated != recordAfter.LastUpdated {
		t.Fatal("failed burn must not mutate the holder record")
	}
}

func TestTransferInheritsRateForNewRecipient(t *testing.T) {
	l, _ := newTestLedger(t)
	sender, recipient := addr(1), addr(2)
	senderRate := big.NewInt(50_000_000_000)
	if err := l.Mint(sender, tokens(100), senderRate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(sender, recipient, tokens(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	record, ok, _ := l.HolderRecordOf(recipient)
	if !ok {
		t.Fatal("recipient record missing")
	}
	if record.Rate.Cmp(senderRate) != 0 {
		t.Fatalf("recipient should inherit sender rate, got %s", record.Rate)
	}
}

func TestTransferKeepsExistingRecipientRate(t *testing.T) {
	l, _ := newTestLedger(t)
	sender, recipient := addr(1), addr(2)
	if err := l.Mint(sender, tokens(100), big.NewInt(10_000_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	recipientRate := big.NewInt(90_000_000_000)
	if err := l.Mint(recipient, tokens(5), recipientRate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(sender, recipient, tokens(50)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	record, _, _ := l.HolderRecordOf(recipient)
	if record.Rate.Cmp(recipientRate) != 0 {
		t.Fatalf("existing recipient rate must not change, got %s", record.Rate)
	}
}

func TestTransferToZeroPrincipalRecipientKeepsTheirRate(t *testing.T) {
	l, _ := newTestLedger(t)
	sender, recipient := addr(1), addr(2)
	if err := l.Mint(sender, tokens(100), big.NewInt(10_000_000_000)); err != nil {
		t.Fatalf("mint sender: %v", err)
	}
	recipientRate := big.NewInt(90_000_000_000)
	if err := l.Mint(recipient, tokens(5), recipientRate); err != nil {
		t.Fatalf("mint recipient: %v", err)
	}
	if _, err := l.Burn(recipient, new(big.Int).Set(MaxSentinel)); err != nil {
		t.Fatalf("burn recipient: %v", err)
	}
	// The recipient holds zero principal but their record survives; a
	// transfer does not re-seed the rate from the sender.
	if err := l.Transfer(sender, recipient, tokens(50)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	record, _, _ := l.HolderRecordOf(recipient)
	if record.Rate.Cmp(recipientRate) != 0 {
		t.Fatalf("zero-principal recipient must keep their snapshot, got %s", record.Rate)
	}
}

func TestRemintAfterFullRedemptionResumesHistoricalRate(t *testing.T) {
	l, _ := newTestLedger(t)
	holder := addr(1)
	historical := big.NewInt(70_000_000_000)
	if err := l.Mint(holder, tokens(10), historical); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := l.Burn(holder, new(big.Int).Set(MaxSentinel)); err != nil {
		t.Fatalf("burn all: %v", err)
	}
	// A later mint passes the lower rate now current, but the retained
	// snapshot wins: the record already exists.
	if err := l.Mint(holder, tokens(10), big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("remint: %v", err)
	}
	record, _, _ := l.HolderRecordOf(holder)
	if record.Rate.Cmp(historical) != 0 {
		t.Fatalf("remint should resume historical snapshot rate, got %s", record.Rate)
	}
}

func TestTransferSentinelMovesFullBalance(t *testing.T) {
	l, clock := newTestLedger(t)
	sender, recipient := addr(1), addr(2)
	if err := l.Mint(sender, tokens(300), big.NewInt(50_000_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(time.Hour)
	displayed, _ := l.DisplayedBalanceOf(sender)
	if err := l.Transfer(sender, recipient, new(big.Int).Set(MaxSentinel)); err != nil {
		t.Fatalf("transfer all: %v", err)
	}
	senderPrincipal, _ := l.PrincipalOf(sender)
	if senderPrincipal.Sign() != 0 {
		t.Fatalf("sender should be emptied, got %s", senderPrincipal)
	}
	recipientPrincipal, _ := l.PrincipalOf(recipient)
	if recipientPrincipal.Cmp(displayed) != 0 {
		t.Fatalf("recipient should receive the full displayed balance: %s vs %s", recipientPrincipal, displayed)
	}
}

func TestTransferToUnknownHolderFails(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.Transfer(addr(7), addr(8), tokens(1))
	if !errors.Is(err, ErrInsufficientPrincipal) {
		t.Fatalf("expected ErrInsufficientPrincipal, got %v", err)
	}
}
