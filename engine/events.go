package engine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/arbx/types"
)

// EventKind identifies the event types emitted for observability
// collaborators such as an audit-trail sink.
type EventKind string

const (
	EventSwapExecuted      EventKind = "swap_executed"
	EventArbitrageExecuted EventKind = "arbitrage_executed"
	EventBatchCompleted    EventKind = "batch_completed"
	EventEmergencyStop     EventKind = "emergency_stop"
	EventResume            EventKind = "resume"
	EventRoleChange        EventKind = "role_change"
)

// Event is one emitted engine event. Fields are populated per kind.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	// swap_executed
	Swap *types.SwapRecord

	// arbitrage_executed
	Asset  common.Address
	Amount *big.Int
	Profit *big.Int

	// batch_completed
	OperationCount int
	TotalProfit    *big.Int

	// emergency_stop / resume / role_change
	Actor  common.Address
	Reason string

	// role_change
	Subject common.Address
	Role    string
	Granted bool
}

// Sink receives emitted events. Implementations must not block; the engine
// emits synchronously inside the operation path.
type Sink interface {
	Emit(Event)
}

// ChanSink buffers events on a channel, dropping when the buffer is full.
type ChanSink struct {
	ch chan Event
}

// NewChanSink creates a sink with the given buffer size.
func NewChanSink(size int) *ChanSink {
	return &ChanSink{ch: make(chan Event, size)}
}

// Events returns the receive side of the sink.
func (s *ChanSink) Events() <-chan Event { return s.ch }

func (s *ChanSink) Emit(ev Event) {
	select {
	case s.ch <- ev:
	default:
	}
}

// nopSink discards events.
type nopSink struct{}

func (nopSink) Emit(Event) {}
