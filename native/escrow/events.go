package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"
)

const (
	EventTypeInitialized = "escrow.initialized"
	EventTypeCancelled   = "escrow.cancelled"
	EventTypeExchanged   = "escrow.exchanged"
)

// Event is the canonical payload emitted for escrow state changes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventType implements the events.Event interface.
func (e *Event) EventType() string {
	if e == nil {
		return ""
	}
	return e.Type
}

func baseAttributes(addr [20]byte, e *Escrow) map[string]string {
	attrs := map[string]string{
		"escrow":            hex.EncodeToString(addr[:]),
		"initializer":       hex.EncodeToString(e.Initializer[:]),
		"taker":             hex.EncodeToString(e.Taker[:]),
		"mintA":             e.MintA,
		"mintB":             e.MintB,
		"initializerAmount": amountString(e.InitializerAmount),
		"takerAmount":       amountString(e.TakerAmount),
		"seed":              strconv.FormatUint(e.Seed, 10),
		"bump":              strconv.FormatUint(uint64(e.Bump), 10),
	}
	return attrs
}

// NewInitializedEvent emits the canonical payload for a newly opened escrow.
func NewInitializedEvent(addr [20]byte, e *Escrow) *Event {
	return &Event{Type: EventTypeInitialized, Attributes: baseAttributes(addr, e)}
}

// NewCancelledEvent emits the payload for a cancelled escrow, including the
// amounts refunded from each vault.
func NewCancelledEvent(addr [20]byte, e *Escrow, refundedA, refundedB *big.Int) *Event {
	attrs := baseAttributes(addr, e)
	attrs["refundedA"] = amountString(refundedA)
	attrs["refundedB"] = amountString(refundedB)
	return &Event{Type: EventTypeCancelled, Attributes: attrs}
}

// NewExchangedEvent emits the payload for a settled swap. settledB is the
// live vault_b balance actually forwarded to the initializer, which may
// differ from the requested taker amount.
func NewExchangedEvent(addr [20]byte, e *Escrow, settledB *big.Int) *Event {
	attrs := baseAttributes(addr, e)
	attrs["settledB"] = amountString(settledB)
	return &Event{Type: EventTypeExchanged, Attributes: attrs}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
