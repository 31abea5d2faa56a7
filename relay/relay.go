package relay

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Relay delivers an opaque payload from a source ledger to a destination
// ledger. Delivery is eventual and at-least-once; ordering across distinct
// messages is not guaranteed. The returned message identifier is a
// relay-level receipt, not the bridge's idempotency key.
type Relay interface {
	Send(destDomain uint32, payload []byte) (string, error)
}

// Handler consumes a delivered payload on the destination ledger. It must be
// idempotent: the relay may invoke it more than once for the same payload.
type Handler func(sourceDomain uint32, payload []byte) error

// Memory is an in-process loopback relay connecting ledgers that live in the
// same process. It delivers synchronously and can be configured to deliver
// each message additional times to exercise replay protection downstream.
type Memory struct {
	mu          sync.Mutex
	localDomain uint32
	handlers    map[uint32]Handler
	extra       int
	logger      *slog.Logger
}

// NewMemory constructs a loopback relay for the given local domain.
func NewMemory(localDomain uint32, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{localDomain: localDomain, handlers: make(map[uint32]Handler), logger: logger}
}

// Register wires the handler that receives payloads addressed to domain.
func (m *Memory) Register(domain uint32, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[domain] = handler
}

// SetDuplicateDeliveries makes the relay deliver every message n additional
// times, simulating at-least-once transports.
func (m *Memory) SetDuplicateDeliveries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 {
		n = 0
	}
	m.extra = n
}

// Send delivers the payload to the registered destination handler. Handler
// failures after the first successful acceptance are logged, not surfaced:
// once the relay has accepted a message the sender's side is complete.
func (m *Memory) Send(destDomain uint32, payload []byte) (string, error) {
	m.mu.Lock()
	handler, ok := m.handlers[destDomain]
	extra := m.extra
	source := m.localDomain
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("relay: no handler registered for domain %d", destDomain)
	}
	id := uuid.NewString()
	body := append([]byte(nil), payload...)
	for attempt := 0; attempt <= extra; attempt++ {
		if err := handler(source, body); err != nil {
			m.logger.Warn("relay delivery rejected",
				"messageId", id,
				"destDomain", destDomain,
				"attempt", attempt+1,
				"error", err)
		}
	}
	return id, nil
}
