package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"yieldnet/core/events"
)

var (
	// ErrInsufficientPrincipal indicates a burn or transfer exceeded the
	// holder's materialized principal.
	ErrInsufficientPrincipal = errors.New("ledger: insufficient principal")
	// ErrInvalidAmount indicates a non-positive amount was supplied.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// Storage abstracts the subset of state manager functionality required by the
// accrual ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
	TokenSupply(symbol string) (*big.Int, error)
	AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error)
}

var holderPrefix = []byte("ledger/holder/")

func holderKey(addr [20]byte) []byte {
	key := make([]byte, len(holderPrefix)+len(addr))
	copy(key, holderPrefix)
	copy(key[len(holderPrefix):], addr[:])
	return key
}

// HolderRecord captures the persisted accrual state for one holder. Principal
// never includes unmaterialized interest; Rate is the per-second accrual rate
// snapshot (fixed point, scale Precision) in effect since LastUpdated.
type HolderRecord struct {
	Principal   *big.Int
	Rate        *big.Int
	LastUpdated uint64
}

// Copy returns a deep copy to avoid callers mutating shared pointers.
func (r *HolderRecord) Copy() *HolderRecord {
	if r == nil {
		return nil
	}
	clone := &HolderRecord{LastUpdated: r.LastUpdated, Principal: big.NewInt(0), Rate: big.NewInt(0)}
	if r.Principal != nil {
		clone.Principal = new(big.Int).Set(r.Principal)
	}
	if r.Rate != nil {
		clone.Rate = new(big.Int).Set(r.Rate)
	}
	return clone
}

// Ledger is the source of truth for principal balances and per-holder rate
// snapshots. It is a single sequential state machine: every operation holds
// the ledger lock for its full duration, so mutations are atomic relative to
// reads on the same ledger.
type Ledger struct {
	mu      sync.Mutex
	store   Storage
	token   string
	emitter events.Emitter
	clock   func() time.Time
}

// NewLedger constructs a ledger for the given token symbol bound to the
// provided storage backend.
func NewLedger(store Storage, token string, emitter events.Emitter) *Ledger {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{store: store, token: token, emitter: emitter, clock: time.Now}
}

// SetClock overrides the time source (primarily for deterministic testing).
func (l *Ledger) SetClock(clock func() time.Time) {
	if l == nil || clock == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

// Token returns the token symbol the ledger accounts for.
func (l *Ledger) Token() string { return l.token }

func (l *Ledger) now() uint64 {
	ts := l.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (l *Ledger) loadHolder(addr [20]byte) (*HolderRecord, bool, error) {
	record := new(HolderRecord)
	ok, err := l.store.KVGet(holderKey(addr), record)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if record.Principal == nil {
		record.Principal = big.NewInt(0)
	}
	if record.Rate == nil {
		record.Rate = big.NewInt(0)
	}
	return record, true, nil
}

func (l *Ledger) storeHolder(addr [20]byte, record *HolderRecord) error {
	if record.Principal == nil {
		record.Principal = big.NewInt(0)
	}
	if record.Rate == nil {
		record.Rate = big.NewInt(0)
	}
	return l.store.KVPut(holderKey(addr), record)
}

// HolderRecordOf returns a copy of the stored record. The second return
// reports whether the holder has ever been funded.
func (l *Ledger) HolderRecordOf(addr [20]byte) (*HolderRecord, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok, err := l.loadHolder(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.Copy(), true, nil
}

// PrincipalOf returns the materialized principal for the holder. Unknown
// holders hold zero.
func (l *Ledger) PrincipalOf(addr [20]byte) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok, err := l.loadHolder(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(record.Principal), nil
}

// DisplayedBalanceOf returns principal plus linearly accrued interest since
// the holder's last materialization. It is a pure read with no side effects
// and is safe to call at arbitrary frequency.
func (l *Ledger) DisplayedBalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.displayedLocked(addr)
}

func (l *Ledger) displayedLocked(addr [20]byte) (*big.Int, error) {
	record, ok, err := l.loadHolder(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return l.displayedOf(record), nil
}

func (l *Ledger) displayedOf(record *HolderRecord) *big.Int {
	now := l.now()
	elapsed := uint64(0)
	if now > record.LastUpdated {
		elapsed = now - record.LastUpdated
	}
	return accruedBalance(record.Principal, record.Rate, elapsed)
}

// TotalSupply returns the materialized token supply across all holders.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.TokenSupply(l.token)
}

// Materialize converts accrued virtual interest into real principal for the
// holder and freezes the accrual clock to now. Calling it twice with zero
// elapsed time is a no-op the second time.
func (l *Ledger) Materialize(addr [20]byte) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok, err := l.loadHolder(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	delta, err := l.materializeLocked(addr, record)
	if err != nil {
		return nil, err
	}
	return delta, nil
}

// materializeLocked brings the record up to now, minting the accrued delta
// into principal. The caller holds the ledger lock and is responsible for
// persisting any further changes it makes to the returned record.
func (l *Ledger) materializeLocked(addr [20]byte, record *HolderRecord) (*big.Int, error) {
	before := new(big.Int).Set(record.Principal)
	after := l.displayedOf(record)
	delta := new(big.Int).Sub(after, before)
	record.Principal = after
	record.LastUpdated = l.now()
	if err := l.storeHolder(addr, record); err != nil {
		return nil, err
	}
	if delta.Sign() > 0 {
		total, err := l.store.AdjustTokenSupply(l.token, delta)
		if err != nil {
			return nil, err
		}
		l.emitter.Emit(events.InterestAccrued{Holder: addr, Delta: new(big.Int).Set(delta), Rate: new(big.Int).Set(record.Rate)})
		l.emitter.Emit(events.TokenSupply{Token: l.token, Holder: addr, Total: total, Delta: delta, Reason: events.SupplyReasonAccrual})
	}
	return delta, nil
}

// Mint materializes the holder and then adds amount to principal. A holder
// with no prior record is created with freshRate as their accrual snapshot;
// an existing record keeps its historical rate even when principal previously
// returned to zero.
func (l *Ledger) Mint(addr [20]byte, amount, freshRate *big.Int) error {
	if l == nil {
		return fmt.Errorf("ledger not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok, err := l.loadHolder(addr)
	if err != nil {
		return err
	}
	if !ok {
		rate := big.NewInt(0)
		if freshRate != nil {
			rate = new(big.Int).Set(freshRate)
		}
		record = &HolderRecord{Principal: big.NewInt(0), Rate: rate, LastUpdated: l.now()}
	} else if _, err := l.materializeLocked(addr, record); err != nil {
		return err
	}
	record.Principal = new(big.Int).Add(record.Principal, amount)
	record.LastUpdated = l.now()
	if err := l.storeHolder(addr, record); err != nil {
		return err
	}
	total, err := l.store.AdjustTokenSupply(l.token, amount)
	if err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{Token: l.token, Holder: addr, Total: total, Delta: new(big.Int).Set(amount), Reason: events.SupplyReasonMint})
	return nil
}

// Burn materializes the holder and removes amount from principal. The
// MaxSentinel amount resolves to the full post-materialization principal. The
// resolved amount burned is returned.
func (l *Ledger) Burn(addr [20]byte, amount *big.Int) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok, err := l.loadHolder(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientPrincipal
	}
	// Resolve against the displayed balance before touching state so a
	// rejected burn leaves no mutation behind, not even the materialization.
	displayed := l.displayedOf(record)
	resolved := amount
	if isSentinel(amount) {
		resolved = new(big.Int).Set(displayed)
	}
	if displayed.Cmp(resolved) < 0 {
		return nil, ErrInsufficientPrincipal
	}
	if _, err := l.materializeLocked(addr, record); err != nil {
		return nil, err
	}
	record.Principal = new(big.Int).Sub(record.Principal, resolved)
	if err := l.storeHolder(addr, record); err != nil {
		return nil, err
	}
	total, err := l.store.AdjustTokenSupply(l.token, new(big.Int).Neg(resolved))
	if err != nil {
		return nil, err
	}
	l.emitter.Emit(events.TokenSupply{Token: l.token, Holder: addr, Total: total, Delta: new(big.Int).Neg(resolved), Reason: events.SupplyReasonBurn})
	return new(big.Int).Set(resolved), nil
}

// Transfer materializes both parties and moves amount of principal from one
// to the other. A recipient with no prior record inherits the sender's rate
// snapshot; an existing record keeps its own rate indefinitely, even when it
// differs from the sender's.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("ledger not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sender, ok, err := l.loadHolder(from)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientPrincipal
	}
	displayed := l.displayedOf(sender)
	resolved := amount
	if isSentinel(amount) {
		resolved = new(big.Int).Set(displayed)
	}
	if displayed.Cmp(resolved) < 0 {
		return ErrInsufficientPrincipal
	}
	if _, err := l.materializeLocked(from, sender); err != nil {
		return err
	}
	if from == to {
		// Self transfer reduces to the materialization above.
		l.emitter.Emit(events.Transfer{From: from, To: to, Amount: new(big.Int).Set(resolved)})
		return nil
	}
	recipient, ok, err := l.loadHolder(to)
	if err != nil {
		return err
	}
	if !ok {
		recipient = &HolderRecord{Principal: big.NewInt(0), Rate: new(big.Int).Set(sender.Rate), LastUpdated: l.now()}
	} else if _, err := l.materializeLocked(to, recipient); err != nil {
		return err
	}
	sender.Principal = new(big.Int).Sub(sender.Principal, resolved)
	recipient.Principal = new(big.Int).Add(recipient.Principal, resolved)
	if err := l.storeHolder(from, sender); err != nil {
		return err
	}
	if err := l.storeHolder(to, recipient); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{From: from, To: to, Amount: new(big.Int).Set(resolved)})
	return nil
}
