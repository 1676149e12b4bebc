package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/circuit/internal/ir"
)

// DefaultMaxSendsPerTick bounds how many synchronizer sends one node may
// issue in a single tick. Coalescing makes extra sends useless; a node
// exceeding the budget is assumed to be looping and is burned.
const DefaultMaxSendsPerTick = 256

// sendQuota tracks one node's sends within the current tick.
type sendQuota struct {
	limit   int
	current int
}

func newSendQuota(limit int) *sendQuota {
	return &sendQuota{limit: limit}
}

// Check counts one send and reports whether the budget still holds.
func (q *sendQuota) Check(block ir.BlockID, tick int64) error {
	q.current++
	if q.limit > 0 && q.current > q.limit {
		return &SendQuotaExceededError{Block: block, Tick: tick, Sends: q.current, Limit: q.limit}
	}
	return nil
}

// Reset starts a new tick.
func (q *sendQuota) Reset() {
	q.current = 0
}

// SendQuotaExceededError burns a node that sent more events in one tick
// than the machine allows.
type SendQuotaExceededError struct {
	Block ir.BlockID
	Tick  int64
	Sends int
	Limit int
}

// Error implements the error interface.
func (e *SendQuotaExceededError) Error() string {
	return fmt.Sprintf("block %s exceeded send quota at tick %d: %d sends > %d limit",
		e.Block, e.Tick, e.Sends, e.Limit)
}

// IsSendQuotaError reports whether err is or wraps a SendQuotaExceededError.
func IsSendQuotaError(err error) bool {
	var se *SendQuotaExceededError
	return errors.As(err, &se)
}
