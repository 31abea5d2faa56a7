package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"yieldnet/storage"
)

// Manager provides RLP-encoded typed access over a raw key-value database.
// Every module-facing accessor routes through KVGet/KVPut so storage backends
// stay interchangeable.
type Manager struct {
	db storage.Database
}

// NewManager binds a manager to the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVPut encodes the value with RLP and stores it under the key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager unavailable")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVGet decodes the stored value into out. It reports false without error when
// the key is absent.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state manager unavailable")
	}
	encoded, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVHas reports whether the key is present without decoding its value.
func (m *Manager) KVHas(key []byte) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state manager unavailable")
	}
	return m.db.Has(key)
}
