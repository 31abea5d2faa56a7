package metrics

import (
	"fmt"
	"log/slog"
	"math/big"

	"yieldnet/core/events"
	"yieldnet/core/ledger"
)

// Emitter records ledger events into prometheus metrics and the structured
// log. It satisfies events.Emitter and is the default sink wired by the node.
type Emitter struct {
	metrics *TokenMetrics
	logger  *slog.Logger
}

// NewEmitter builds an emitter over the process-wide metrics registry.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{metrics: Token(), logger: logger}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(event events.Event) {
	if e == nil || event == nil {
		return
	}
	switch ev := event.(type) {
	case events.TokenSupply:
		e.metrics.ObserveSupplyEvent(ev.Reason)
		e.logger.Info("token supply changed", "reason", ev.Reason, "delta", bigString(ev.Delta), "total", bigString(ev.Total))
	case events.InterestAccrued:
		e.metrics.AddInterestAccrued(wholeTokens(ev.Delta))
		e.logger.Debug("interest materialized", "delta", bigString(ev.Delta), "rate", bigString(ev.Rate))
	case events.GlobalRateUpdated:
		e.metrics.SetGlobalRate(ev.Current)
		e.logger.Info("global rate lowered", "previous", bigString(ev.Previous), "current", bigString(ev.Current))
	case events.Transfer:
		e.logger.Debug("transfer", "amount", bigString(ev.Amount))
	case events.BridgeLocked:
		e.metrics.ObserveBridgeLock(fmt.Sprintf("%d", ev.DestDomain))
		e.logger.Info("bridge lock", "messageId", fmt.Sprintf("%x", ev.MessageID), "destDomain", ev.DestDomain, "amount", bigString(ev.Amount))
	case events.BridgeReleased:
		e.metrics.ObserveBridgeRelease(fmt.Sprintf("%d", ev.SourceDomain))
		e.logger.Info("bridge release", "messageId", fmt.Sprintf("%x", ev.MessageID), "sourceDomain", ev.SourceDomain, "amount", bigString(ev.Amount))
	case events.BridgeDuplicate:
		e.metrics.ObserveBridgeRejection("duplicate")
		e.logger.Warn("bridge duplicate rejected", "messageId", fmt.Sprintf("%x", ev.MessageID), "sourceDomain", ev.SourceDomain)
	default:
		e.logger.Debug("event", "type", event.EventType())
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func wholeTokens(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	units := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(ledger.Precision))
	out, _ := units.Float64()
	return out
}
