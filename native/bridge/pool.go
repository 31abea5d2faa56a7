package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"yieldnet/core/events"
	"yieldnet/core/ledger"
	"yieldnet/core/supply"
	"yieldnet/relay"
)

var (
	// ErrRemoteNotConfigured indicates the remote domain is unknown or
	// disallowed for bridging.
	ErrRemoteNotConfigured = errors.New("bridge: remote not configured")
	// ErrRateLimitExceeded indicates the per-direction token bucket refused
	// the transfer.
	ErrRateLimitExceeded = errors.New("bridge: rate limit exceeded")
	// ErrDuplicateMessage indicates a replayed delivery of an already applied
	// message.
	ErrDuplicateMessage = errors.New("bridge: duplicate message")
	// ErrUnknownMessage indicates the referenced outbound message does not
	// exist in the outbox.
	ErrUnknownMessage = errors.New("bridge: unknown message")
)

// Outbound statuses tracked in the outbox.
const (
	OutboundStatusPending   = "pending"
	OutboundStatusDelivered = "delivered"
)

// Storage abstracts the state access required by the bridge pool.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
}

var (
	remotePrefix   = []byte("bridge/remote/")
	outboxPrefix   = []byte("bridge/outbox/")
	inboxPrefix    = []byte("bridge/inbox/")
	nonceKey       = []byte("bridge/nonce")
	outstandingKey = []byte("bridge/outstanding")
)

func remoteKey(domain uint32) []byte {
	key := make([]byte, len(remotePrefix)+4)
	copy(key, remotePrefix)
	binary.BigEndian.PutUint32(key[len(remotePrefix):], domain)
	return key
}

func outboxKey(id [32]byte) []byte {
	key := make([]byte, len(outboxPrefix)+len(id))
	copy(key, outboxPrefix)
	copy(key[len(outboxPrefix):], id[:])
	return key
}

func inboxKey(id [32]byte) []byte {
	key := make([]byte, len(inboxPrefix)+len(id))
	copy(key, inboxPrefix)
	copy(key[len(inboxPrefix):], id[:])
	return key
}

// RemoteConfig describes one bridgeable counterpart ledger.
type RemoteConfig struct {
	Allowed       bool
	PoolAddress   [20]byte
	TokenIdentity string
}

// OutboundRecord is the durable outbox entry written for every lock.
type OutboundRecord struct {
	DestDomain uint32
	Sender     [20]byte
	Recipient  [20]byte
	Amount     *big.Int
	OriginRate *big.Int
	Nonce      uint64
	RelayID    string
	Status     string
	CreatedAt  uint64
}

type storedInbound struct {
	Applied      bool
	SourceDomain uint32
	AppliedAt    uint64
}

// Pool moves value between this ledger and configured remote ledgers. Lock
// burns on this side and hands an encoded payload to the relay; Release mints
// on this side when a payload arrives, rejecting replays via a persisted
// inbox. The pool acts toward the supply controller under its own address,
// which must hold the mint/burn role.
type Pool struct {
	mu         sync.Mutex
	domain     uint32
	addr       [20]byte
	store      Storage
	controller *supply.Controller
	roles      supply.RoleRegistry
	relay      relay.Relay
	limiter    Limiter
	emitter    events.Emitter
	clock      func() time.Time
}

// NewPool constructs a bridge pool for the local domain.
func NewPool(domain uint32, addr [20]byte, store Storage, controller *supply.Controller, roles supply.RoleRegistry, messageRelay relay.Relay, limiter Limiter, emitter events.Emitter) (*Pool, error) {
	if store == nil || controller == nil || roles == nil || messageRelay == nil {
		return nil, fmt.Errorf("bridge: store, controller, roles and relay are required")
	}
	if limiter == nil {
		limiter = UnlimitedLimiter{}
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Pool{
		domain:     domain,
		addr:       addr,
		store:      store,
		controller: controller,
		roles:      roles,
		relay:      messageRelay,
		limiter:    limiter,
		emitter:    emitter,
		clock:      time.Now,
	}, nil
}

// SetClock overrides the time source (primarily for deterministic testing).
func (p *Pool) SetClock(clock func() time.Time) {
	if p == nil || clock == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
}

// Domain returns the local domain identifier.
func (p *Pool) Domain() uint32 { return p.domain }

// Address returns the identity the pool uses toward the supply controller.
func (p *Pool) Address() [20]byte { return p.addr }

func (p *Pool) now() uint64 {
	ts := p.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// SetRemote records or updates the configuration for a remote domain. Owner
// only.
func (p *Pool) SetRemote(caller [20]byte, domain uint32, cfg RemoteConfig) error {
	if p == nil {
		return fmt.Errorf("bridge pool not initialised")
	}
	owner, err := p.roles.IsOwner(caller)
	if err != nil {
		return err
	}
	if !owner {
		return supply.ErrUnauthorized
	}
	if domain == p.domain {
		return fmt.Errorf("bridge: remote domain %d is the local domain", domain)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.KVPut(remoteKey(domain), &cfg)
}

// Remote returns the configuration stored for the domain.
func (p *Pool) Remote(domain uint32) (*RemoteConfig, bool, error) {
	if p == nil {
		return nil, false, fmt.Errorf("bridge pool not initialised")
	}
	cfg := new(RemoteConfig)
	ok, err := p.store.KVGet(remoteKey(domain), cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

func (p *Pool) requireRemote(domain uint32) (*RemoteConfig, error) {
	cfg, ok, err := p.Remote(domain)
	if err != nil {
		return nil, err
	}
	if !ok || !cfg.Allowed {
		return nil, ErrRemoteNotConfigured
	}
	return cfg, nil
}

func (p *Pool) nextNonce() (uint64, error) {
	nonce := uint64(0)
	if _, err := p.store.KVGet(nonceKey, &nonce); err != nil {
		return 0, err
	}
	nonce++
	if err := p.store.KVPut(nonceKey, nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (p *Pool) adjustOutstanding(delta *big.Int) error {
	current := new(big.Int)
	if _, err := p.store.KVGet(outstandingKey, current); err != nil {
		return err
	}
	updated := new(big.Int).Add(current, delta)
	if updated.Sign() < 0 {
		return fmt.Errorf("bridge: outstanding underflow")
	}
	return p.store.KVPut(outstandingKey, updated)
}

// InFlight returns the total value burned on this ledger whose delivery on a
// remote ledger has not been confirmed. System auditors add this to vault
// custody when checking the supply identity.
func (p *Pool) InFlight() (*big.Int, error) {
	if p == nil {
		return nil, fmt.Errorf("bridge pool not initialised")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	total := new(big.Int)
	ok, err := p.store.KVGet(outstandingKey, total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

// Lock burns value from the sender on this ledger and emits a transfer
// message toward the destination domain. It completes without waiting for the
// destination: once the burn has executed it cannot be rolled back, and the
// burned value remains an in-flight liability until the remote mint is
// confirmed. The sender's rate snapshot travels with the message.
func (p *Pool) Lock(sender [20]byte, destDomain uint32, recipient [20]byte, amount *big.Int) ([32]byte, error) {
	var id [32]byte
	if p == nil {
		return id, fmt.Errorf("bridge pool not initialised")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.requireRemote(destDomain); err != nil {
		return id, err
	}
	l := p.controller.Ledger()
	record, ok, err := l.HolderRecordOf(sender)
	if err != nil {
		return id, err
	}
	if !ok {
		return id, ledger.ErrInsufficientPrincipal
	}
	originRate := new(big.Int).Set(record.Rate)
	displayed, err := l.DisplayedBalanceOf(sender)
	if err != nil {
		return id, err
	}
	resolved := amount
	if amount != nil && amount.Cmp(ledger.MaxSentinel) == 0 {
		resolved = displayed
	}
	if resolved == nil || resolved.Sign() <= 0 {
		return id, ledger.ErrInvalidAmount
	}
	// Validate before charging the bucket so a lock that cannot succeed does
	// not consume outbound capacity.
	if displayed.Cmp(resolved) < 0 {
		return id, ledger.ErrInsufficientPrincipal
	}
	if !p.limiter.TryConsume(DirectionOutbound, resolved) {
		return id, ErrRateLimitExceeded
	}
	burned, err := p.controller.Burn(p.addr, sender, resolved)
	if err != nil {
		return id, err
	}
	nonce, err := p.nextNonce()
	if err != nil {
		return id, err
	}
	payload := &TransferPayload{Nonce: nonce, Recipient: recipient, Amount: burned, OriginRate: originRate}
	encoded, err := payload.Encode()
	if err != nil {
		return id, err
	}
	id = MessageID(p.domain, destDomain, encoded)
	outbound := &OutboundRecord{
		DestDomain: destDomain,
		Sender:     sender,
		Recipient:  recipient,
		Amount:     burned,
		OriginRate: originRate,
		Nonce:      nonce,
		Status:     OutboundStatusPending,
		CreatedAt:  p.now(),
	}
	if err := p.store.KVPut(outboxKey(id), outbound); err != nil {
		return id, err
	}
	if err := p.adjustOutstanding(burned); err != nil {
		return id, err
	}
	relayID, err := p.relay.Send(destDomain, encoded)
	if err != nil {
		// The burn and the outbox record stand: the message can be
		// resubmitted through Resend once the relay recovers.
		return id, fmt.Errorf("bridge: relay send failed for message %x: %w", id, err)
	}
	outbound.RelayID = relayID
	if err := p.store.KVPut(outboxKey(id), outbound); err != nil {
		return id, err
	}
	p.emitter.Emit(events.BridgeLocked{
		MessageID:  id,
		DestDomain: destDomain,
		Sender:     sender,
		Recipient:  recipient,
		Amount:     new(big.Int).Set(burned),
		OriginRate: new(big.Int).Set(originRate),
	})
	return id, nil
}

// Resend re-submits a pending outbox message to the relay. Release on the
// destination is idempotent, so resubmitting a message that was in fact
// delivered is harmless.
func (p *Pool) Resend(id [32]byte) error {
	if p == nil {
		return fmt.Errorf("bridge pool not initialised")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	record := new(OutboundRecord)
	ok, err := p.store.KVGet(outboxKey(id), record)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownMessage
	}
	payload := &TransferPayload{Nonce: record.Nonce, Recipient: record.Recipient, Amount: record.Amount, OriginRate: record.OriginRate}
	encoded, err := payload.Encode()
	if err != nil {
		return err
	}
	relayID, err := p.relay.Send(record.DestDomain, encoded)
	if err != nil {
		return fmt.Errorf("bridge: relay send failed for message %x: %w", id, err)
	}
	record.RelayID = relayID
	return p.store.KVPut(outboxKey(id), record)
}

// MarkDelivered records that the remote ledger confirmed the mint for an
// outbound message, releasing it from the in-flight liability. Owner only.
func (p *Pool) MarkDelivered(caller [20]byte, id [32]byte) error {
	if p == nil {
		return fmt.Errorf("bridge pool not initialised")
	}
	owner, err := p.roles.IsOwner(caller)
	if err != nil {
		return err
	}
	if !owner {
		return supply.ErrUnauthorized
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	record := new(OutboundRecord)
	ok, err := p.store.KVGet(outboxKey(id), record)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownMessage
	}
	if record.Status == OutboundStatusDelivered {
		return nil
	}
	record.Status = OutboundStatusDelivered
	if err := p.store.KVPut(outboxKey(id), record); err != nil {
		return err
	}
	return p.adjustOutstanding(new(big.Int).Neg(record.Amount))
}

// Outbound returns the outbox record for a message.
func (p *Pool) Outbound(id [32]byte) (*OutboundRecord, bool, error) {
	if p == nil {
		return nil, false, fmt.Errorf("bridge pool not initialised")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	record := new(OutboundRecord)
	ok, err := p.store.KVGet(outboxKey(id), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// Release applies an inbound transfer payload delivered by the relay, minting
// the carried amount to the recipient. Duplicate deliveries of the same
// message fail closed with ErrDuplicateMessage. Message order across distinct
// transfers is irrelevant.
func (p *Pool) Release(sourceDomain uint32, raw []byte) error {
	if p == nil {
		return fmt.Errorf("bridge pool not initialised")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	payload, err := DecodePayload(raw)
	if err != nil {
		return err
	}
	if _, err := p.requireRemote(sourceDomain); err != nil {
		return err
	}
	id := MessageID(sourceDomain, p.domain, raw)
	inbound := new(storedInbound)
	seen, err := p.store.KVGet(inboxKey(id), inbound)
	if err != nil {
		return err
	}
	if seen && inbound.Applied {
		p.emitter.Emit(events.BridgeDuplicate{MessageID: id, SourceDomain: sourceDomain})
		return ErrDuplicateMessage
	}
	// Confirm the pool can actually mint before charging the bucket, so a
	// misconfigured node does not bleed inbound capacity on doomed deliveries.
	authorised, err := p.roles.HasMintBurnRole(p.addr)
	if err != nil {
		return err
	}
	if !authorised {
		return supply.ErrUnauthorized
	}
	if !p.limiter.TryConsume(DirectionInbound, payload.Amount) {
		return ErrRateLimitExceeded
	}
	appliedRate, err := p.controller.MintBridged(p.addr, payload.Recipient, payload.Amount, payload.OriginRate)
	if err != nil {
		return err
	}
	record := &storedInbound{Applied: true, SourceDomain: sourceDomain, AppliedAt: p.now()}
	if err := p.store.KVPut(inboxKey(id), record); err != nil {
		return err
	}
	p.emitter.Emit(events.BridgeReleased{
		MessageID:    id,
		SourceDomain: sourceDomain,
		Recipient:    payload.Recipient,
		Amount:       new(big.Int).Set(payload.Amount),
		AppliedRate:  appliedRate,
	})
	return nil
}

// Handler adapts the pool's Release entry point to the relay's handler
// contract.
func (p *Pool) Handler() relay.Handler {
	return func(sourceDomain uint32, payload []byte) error {
		return p.Release(sourceDomain, payload)
	}
}
