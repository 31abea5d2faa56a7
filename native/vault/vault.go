package vault

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"yieldnet/core/supply"
)

// ErrTransferFailed indicates the base-asset custodian refused or failed a
// pull or payout. The failure is surfaced to the caller and never retried
// internally.
var ErrTransferFailed = errors.New("vault: base asset transfer failed")

// Custodian abstracts custody of the base asset. The vault exchanges the base
// asset 1:1 for ledger principal and never holds the asset itself.
type Custodian interface {
	// Pull collects amount of the base asset from the holder ahead of a mint.
	Pull(holder [20]byte, amount *big.Int) error
	// Push pays out amount of the base asset to the holder after a burn.
	Push(holder [20]byte, amount *big.Int) error
}

// Storage abstracts the state access required for custody accounting.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var custodyPrefix = []byte("vault/custody/")

func custodyKey(symbol string) []byte {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	key := make([]byte, len(custodyPrefix)+len(normalized))
	copy(key, custodyPrefix)
	copy(key[len(custodyPrefix):], normalized)
	return key
}

// Vault exchanges a base asset 1:1 for ledger principal on deposit and
// reverses the exchange on redemption. It acts toward the supply controller
// under its own address, which must hold the mint/burn role.
type Vault struct {
	addr       [20]byte
	store      Storage
	controller *supply.Controller
	custodian  Custodian
}

// NewVault binds a vault to the supply controller and base-asset custodian.
func NewVault(addr [20]byte, store Storage, controller *supply.Controller, custodian Custodian) (*Vault, error) {
	if store == nil || controller == nil || custodian == nil {
		return nil, fmt.Errorf("vault: store, controller and custodian are required")
	}
	return &Vault{addr: addr, store: store, controller: controller, custodian: custodian}, nil
}

// Address returns the identity the vault uses toward the supply controller.
func (v *Vault) Address() [20]byte { return v.addr }

// Custodied returns the base-asset principal deposited and not yet redeemed.
// Interest materialized on top of it is yield the custodian earned on the
// deposited asset and is paid out of that yield at redemption, so the counter
// only ever moves by deposited principal.
func (v *Vault) Custodied() (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("vault not initialised")
	}
	total := new(big.Int)
	ok, err := v.store.KVGet(custodyKey(v.controller.Ledger().Token()), total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

func (v *Vault) adjustCustody(delta *big.Int) error {
	current, err := v.Custodied()
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(current, delta)
	if updated.Sign() < 0 {
		return fmt.Errorf("vault: custody underflow")
	}
	return v.store.KVPut(custodyKey(v.controller.Ledger().Token()), updated)
}

// Deposit pulls amount of the base asset from the holder and mints the same
// amount of principal to them.
func (v *Vault) Deposit(holder [20]byte, amount *big.Int) error {
	if v == nil {
		return fmt.Errorf("vault not initialised")
	}
	if err := v.custodian.Pull(holder, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := v.controller.Mint(v.addr, holder, amount); err != nil {
		// The pull succeeded but the mint did not; hand the asset back so
		// the holder is never out of pocket.
		if pushErr := v.custodian.Push(holder, amount); pushErr != nil {
			return fmt.Errorf("vault: mint failed (%v) and refund failed: %w", err, pushErr)
		}
		return err
	}
	return v.adjustCustody(amount)
}

// Redeem burns amount of principal from the holder (the ledger max sentinel
// resolves to their full displayed balance) and pays out the same amount of
// the base asset. The payout can exceed the custody counter when interest has
// accrued; the excess comes out of custodian yield, so custody is debited by
// at most its current value. A failed payout re-mints the burned principal
// and restores custody before the error is surfaced, so a redemption never
// destroys value.
func (v *Vault) Redeem(holder [20]byte, amount *big.Int) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("vault not initialised")
	}
	burned, err := v.controller.Burn(v.addr, holder, amount)
	if err != nil {
		return nil, err
	}
	custodied, err := v.Custodied()
	if err != nil {
		if mintErr := v.controller.Mint(v.addr, holder, burned); mintErr != nil {
			return nil, fmt.Errorf("vault: custody read failed (%v) and restore failed: %w", err, mintErr)
		}
		return nil, err
	}
	debit := new(big.Int).Set(burned)
	if debit.Cmp(custodied) > 0 {
		debit.Set(custodied)
	}
	// Settle the books before the payout so a custodian failure can roll
	// everything back and leave no partial state behind.
	if err := v.adjustCustody(new(big.Int).Neg(debit)); err != nil {
		if mintErr := v.controller.Mint(v.addr, holder, burned); mintErr != nil {
			return nil, fmt.Errorf("vault: custody update failed (%v) and restore failed: %w", err, mintErr)
		}
		return nil, err
	}
	if err := v.custodian.Push(holder, burned); err != nil {
		if restoreErr := v.adjustCustody(debit); restoreErr != nil {
			return nil, fmt.Errorf("vault: payout failed (%v) and custody restore failed: %w", err, restoreErr)
		}
		if mintErr := v.controller.Mint(v.addr, holder, burned); mintErr != nil {
			return nil, fmt.Errorf("vault: payout failed (%v) and restore failed: %w", err, mintErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return burned, nil
}
