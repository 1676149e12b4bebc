package synchronizer

import (
	"errors"

	"github.com/roach88/circuit/internal/ir"
)

// Sentinel errors returned by Send.
var (
	ErrUnknownChannel   = errors.New("unknown synchronizer channel")
	ErrEmptyTarget      = errors.New("event target is empty")
	ErrMalformedPayload = errors.New("malformed event payload")
)

// Event is one replicated side effect. Its JSON form is the publish wire
// format: {"channel", "target", "tick", "seq", "payload"}, plus
// "cleared": true when a destroyed node's state is withdrawn.
type Event struct {
	Channel string   `json:"channel"`
	Target  string   `json:"target"`
	Tick    int64    `json:"tick"`
	Seq     int64    `json:"seq"`
	Payload ir.Table `json:"payload,omitempty"`
	Cleared bool     `json:"cleared,omitempty"`

	// Source is the block that emitted the event. It is not replicated.
	Source ir.BlockID `json:"-"`
}

// Observer receives dispatched events. Deliver must not block the
// evaluator; slow observers should buffer or drop.
type Observer interface {
	Deliver(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// Deliver implements Observer.
func (f ObserverFunc) Deliver(ev Event) { f(ev) }

// Stats are cumulative counters since construction.
type Stats struct {
	Sent         int64 // accepted by Send
	Rejected     int64 // rejected by Send
	Coalesced    int64 // superseded by a later send in the same tick
	Dropped      int64 // source disabled or destroyed before flush
	Deduplicated int64 // identical to the cached state
	Dispatched   int64 // delivered to observers, including cleared events
}
