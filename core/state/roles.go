package state

import (
	"bytes"
	"fmt"
)

var (
	roleOwnerKey       = []byte("roles/owner")
	roleMintBurnPrefix = []byte("roles/mintburn/")
)

func mintBurnKey(addr [20]byte) []byte {
	key := make([]byte, len(roleMintBurnPrefix)+len(addr))
	copy(key, roleMintBurnPrefix)
	copy(key[len(roleMintBurnPrefix):], addr[:])
	return key
}

// Owner returns the persisted owner address. The second return reports whether
// an owner has been recorded yet.
func (m *Manager) Owner() ([20]byte, bool, error) {
	var owner [20]byte
	if m == nil {
		return owner, false, fmt.Errorf("state manager unavailable")
	}
	var stored []byte
	ok, err := m.KVGet(roleOwnerKey, &stored)
	if err != nil || !ok {
		return owner, false, err
	}
	if len(stored) != len(owner) {
		return owner, false, fmt.Errorf("roles: malformed owner record")
	}
	copy(owner[:], stored)
	return owner, true, nil
}

// SetOwner records the owner address. Setting an owner is a one-way door: the
// record may be replaced only by the current owner via the supply controller.
func (m *Manager) SetOwner(owner [20]byte) error {
	if m == nil {
		return fmt.Errorf("state manager unavailable")
	}
	return m.KVPut(roleOwnerKey, owner[:])
}

// IsOwner reports whether the supplied address matches the recorded owner.
func (m *Manager) IsOwner(addr [20]byte) (bool, error) {
	owner, ok, err := m.Owner()
	if err != nil || !ok {
		return false, err
	}
	return bytes.Equal(owner[:], addr[:]), nil
}

// GrantMintBurnRole marks the address as authorised to mint and burn.
func (m *Manager) GrantMintBurnRole(addr [20]byte) error {
	if m == nil {
		return fmt.Errorf("state manager unavailable")
	}
	return m.KVPut(mintBurnKey(addr), true)
}

// RevokeMintBurnRole clears the mint/burn capability for the address.
func (m *Manager) RevokeMintBurnRole(addr [20]byte) error {
	if m == nil {
		return fmt.Errorf("state manager unavailable")
	}
	return m.KVPut(mintBurnKey(addr), false)
}

// HasMintBurnRole reports whether the address may mint and burn.
func (m *Manager) HasMintBurnRole(addr [20]byte) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("state manager unavailable")
	}
	granted := false
	ok, err := m.KVGet(mintBurnKey(addr), &granted)
	if err != nil || !ok {
		return false, err
	}
	return granted, nil
}
