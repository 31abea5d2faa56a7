package events

// Event is a structured state change emitted by the ledger, the vault or the
// bridge pool.
type Event interface {
	EventType() string
}

// Emitter forwards events to downstream consumers such as the metrics
// pipeline or an external indexer.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Components take it when no consumer is
// wired.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}
