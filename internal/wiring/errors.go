package wiring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/circuit/internal/ir"
)

// Sentinel errors matched with errors.Is.
var (
	ErrDangling       = errors.New("wire references a block that was never placed")
	ErrUnknownOutput  = errors.New("wire references an unknown output connector")
	ErrKindMismatch   = errors.New("producer and consumer share no value kind")
	ErrMalformedWire  = errors.New("malformed wire payload")
	ErrDuplicateBlock = errors.New("duplicate block id")
	ErrCycle          = errors.New("wire cycle")
)

// GraphErrorCode categorizes graph build failures.
type GraphErrorCode string

const (
	ErrCodeDangling      GraphErrorCode = "DANGLING_WIRE"
	ErrCodeUnknownOutput GraphErrorCode = "UNKNOWN_OUTPUT"
	ErrCodeKindMismatch  GraphErrorCode = "KIND_MISMATCH"
	ErrCodeMalformedWire GraphErrorCode = "MALFORMED_WIRE"
	ErrCodeDuplicate     GraphErrorCode = "DUPLICATE_BLOCK"
)

var codeSentinels = map[GraphErrorCode]error{
	ErrCodeDangling:      ErrDangling,
	ErrCodeUnknownOutput: ErrUnknownOutput,
	ErrCodeKindMismatch:  ErrKindMismatch,
	ErrCodeMalformedWire: ErrMalformedWire,
	ErrCodeDuplicate:     ErrDuplicateBlock,
}

// GraphError describes one rejected wire or block.
type GraphError struct {
	Code     GraphErrorCode
	Consumer ir.BlockID
	Input    string
	Ref      ir.WireRef
	Message  string
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("%s: %s (block=%s)", e.Code, e.Message, e.Consumer)
	}
	return fmt.Sprintf("%s: %s (input=%s.%s, wire=%s)", e.Code, e.Message, e.Consumer, e.Input, e.Ref)
}

// Unwrap returns the sentinel for the error's code.
func (e *GraphError) Unwrap() error {
	return codeSentinels[e.Code]
}

// CycleError reports a cycle among wire connectors. Path starts and ends at
// the same block, e.g. [a b c a]; a self-loop is [a a].
type CycleError struct {
	Path []ir.BlockID
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return fmt.Sprintf("%v: %s", ErrCycle, strings.Join(parts, " → "))
}

// Unwrap returns ErrCycle.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// IsCycleError reports whether err is or wraps a CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}
