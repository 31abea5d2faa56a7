package supply

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"yieldnet/core/events"
	"yieldnet/core/ledger"
)

var (
	// ErrUnauthorized indicates the caller lacks the capability required for
	// the operation.
	ErrUnauthorized = errors.New("supply: unauthorized")
	// ErrRateMustDecrease indicates an attempted global rate update violated
	// the monotonic non-increase policy.
	ErrRateMustDecrease = errors.New("supply: rate must decrease")
	// ErrInvalidRate indicates a nil or negative rate was supplied.
	ErrInvalidRate = errors.New("supply: invalid rate")
)

// Storage abstracts the state access required by the controller.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// RoleRegistry answers capability checks for callers. It is injectable policy,
// not hard-wired identity.
type RoleRegistry interface {
	HasMintBurnRole(addr [20]byte) (bool, error)
	IsOwner(addr [20]byte) (bool, error)
}

// RoleAdmin mutates the role registry. Registries that cannot be mutated at
// runtime simply do not implement it.
type RoleAdmin interface {
	GrantMintBurnRole(addr [20]byte) error
	RevokeMintBurnRole(addr [20]byte) error
}

// OwnerAdmin replaces the recorded owner. Implemented by the persistent role
// registry.
type OwnerAdmin interface {
	SetOwner(addr [20]byte) error
}

var globalRatePrefix = []byte("token/rate/")

func globalRateKey(symbol string) []byte {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	key := make([]byte, len(globalRatePrefix)+len(normalized))
	copy(key, globalRatePrefix)
	copy(key[len(globalRatePrefix):], normalized)
	return key
}

// Controller gates mint and burn access to the accrual ledger and owns the
// global rate policy. The global rate is assigned to newly funded holders and
// may only ever decrease over the ledger's lifetime.
type Controller struct {
	mu      sync.Mutex
	store   Storage
	roles   RoleRegistry
	ledger  *ledger.Ledger
	emitter events.Emitter
}

// NewController constructs a controller bound to the supplied ledger. The
// initial global rate is persisted once; on restart the stored rate wins.
func NewController(store Storage, roles RoleRegistry, l *ledger.Ledger, emitter events.Emitter, initialRate *big.Int) (*Controller, error) {
	if store == nil || roles == nil || l == nil {
		return nil, fmt.Errorf("supply: store, roles and ledger are required")
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	c := &Controller{store: store, roles: roles, ledger: l, emitter: emitter}
	stored := new(big.Int)
	ok, err := store.KVGet(globalRateKey(l.Token()), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		if initialRate == nil || initialRate.Sign() < 0 {
			return nil, ErrInvalidRate
		}
		if err := store.KVPut(globalRateKey(l.Token()), initialRate); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Ledger exposes the underlying accrual ledger for read paths.
func (c *Controller) Ledger() *ledger.Ledger { return c.ledger }

// GlobalRate returns the current system-wide rate for newly funded holders.
func (c *Controller) GlobalRate() (*big.Int, error) {
	if c == nil {
		return nil, fmt.Errorf("supply controller not initialised")
	}
	rate := new(big.Int)
	ok, err := c.store.KVGet(globalRateKey(c.ledger.Token()), rate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("supply: global rate not initialised")
	}
	return rate, nil
}

// SetGlobalRate lowers the global rate. Attempts to raise it, or to set it to
// the current value, fail with ErrRateMustDecrease and leave state unchanged.
func (c *Controller) SetGlobalRate(caller [20]byte, newRate *big.Int) error {
	if c == nil {
		return fmt.Errorf("supply controller not initialised")
	}
	owner, err := c.roles.IsOwner(caller)
	if err != nil {
		return err
	}
	if !owner {
		return ErrUnauthorized
	}
	if newRate == nil || newRate.Sign() < 0 {
		return ErrInvalidRate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.GlobalRate()
	if err != nil {
		return err
	}
	if newRate.Cmp(current) >= 0 {
		return ErrRateMustDecrease
	}
	if err := c.store.KVPut(globalRateKey(c.ledger.Token()), newRate); err != nil {
		return err
	}
	c.emitter.Emit(events.GlobalRateUpdated{Previous: current, Current: new(big.Int).Set(newRate)})
	return nil
}

// Mint credits principal to the holder. The caller must hold the mint/burn
// role. A never-funded holder snapshots the current global rate.
func (c *Controller) Mint(caller, holder [20]byte, amount *big.Int) error {
	if c == nil {
		return fmt.Errorf("supply controller not initialised")
	}
	if err := c.requireMintBurn(caller); err != nil {
		return err
	}
	rate, err := c.GlobalRate()
	if err != nil {
		return err
	}
	return c.ledger.Mint(holder, amount, rate)
}

// MintBridged credits principal delivered by an inbound bridge transfer. A
// never-funded recipient snapshots min(originRate, globalRate): the carried
// rate follows the holder across ledgers but can never exceed what this
// ledger currently grants new holders.
func (c *Controller) MintBridged(caller, holder [20]byte, amount, originRate *big.Int) (*big.Int, error) {
	if c == nil {
		return nil, fmt.Errorf("supply controller not initialised")
	}
	if err := c.requireMintBurn(caller); err != nil {
		return nil, err
	}
	rate, err := c.GlobalRate()
	if err != nil {
		return nil, err
	}
	if originRate != nil && originRate.Cmp(rate) < 0 {
		rate = new(big.Int).Set(originRate)
	}
	if err := c.ledger.Mint(holder, amount, rate); err != nil {
		return nil, err
	}
	return rate, nil
}

// Burn debits principal from the holder after materialization. The
// ledger.MaxSentinel amount resolves to the holder's full displayed balance.
// The resolved amount burned is returned.
func (c *Controller) Burn(caller, holder [20]byte, amount *big.Int) (*big.Int, error) {
	if c == nil {
		return nil, fmt.Errorf("supply controller not initialised")
	}
	if err := c.requireMintBurn(caller); err != nil {
		return nil, err
	}
	return c.ledger.Burn(holder, amount)
}

// GrantMintAndBurnRole authorises the address to mint and burn. Owner only.
func (c *Controller) GrantMintAndBurnRole(caller, addr [20]byte) error {
	admin, err := c.requireRoleAdmin(caller)
	if err != nil {
		return err
	}
	return admin.GrantMintBurnRole(addr)
}

// RevokeMintAndBurnRole removes the mint/burn capability. Owner only.
func (c *Controller) RevokeMintAndBurnRole(caller, addr [20]byte) error {
	admin, err := c.requireRoleAdmin(caller)
	if err != nil {
		return err
	}
	return admin.RevokeMintBurnRole(addr)
}

// TransferOwnership hands the owner capability to a new address. Current owner
// only.
func (c *Controller) TransferOwnership(caller, newOwner [20]byte) error {
	if c == nil {
		return fmt.Errorf("supply controller not initialised")
	}
	owner, err := c.roles.IsOwner(caller)
	if err != nil {
		return err
	}
	if !owner {
		return ErrUnauthorized
	}
	admin, ok := c.roles.(OwnerAdmin)
	if !ok {
		return fmt.Errorf("supply: role registry is not mutable")
	}
	return admin.SetOwner(newOwner)
}

func (c *Controller) requireRoleAdmin(caller [20]byte) (RoleAdmin, error) {
	if c == nil {
		return nil, fmt.Errorf("supply controller not initialised")
	}
	owner, err := c.roles.IsOwner(caller)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, ErrUnauthorized
	}
	admin, ok := c.roles.(RoleAdmin)
	if !ok {
		return nil, fmt.Errorf("supply: role registry is not mutable")
	}
	return admin, nil
}

func (c *Controller) requireMintBurn(caller [20]byte) error {
	ok, err := c.roles.HasMintBurnRole(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
