package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/circuit/internal/ir"
)

// Sentinel errors. NodeError values match these through errors.Is by code.
var (
	ErrBurned           = errors.New("node is burned")
	ErrDestroyed        = errors.New("node is destroyed")
	ErrNotFound         = errors.New("block not found")
	ErrUnknownBlockType = errors.New("unknown block type")
	ErrDuplicateBlock   = errors.New("block id already placed")
	ErrCardinality      = errors.New("block type cardinality exceeded")
	ErrSpeedControl     = errors.New("block may not set machine speed")
	ErrInvalidOutput    = errors.New("invalid output")
	ErrInvalidInput     = errors.New("invalid input injection")
	ErrStopped          = errors.New("machine stopped")
)

// NodeError reports a failure attributed to one block.
//
// Node errors include:
//   - Placement failures: unknown type, duplicate id, cardinality, constructor
//   - Runtime failures: callback error or panic (the node is burned)
//   - Contract violations: writing an undeclared output, unauthorized speed
type NodeError struct {
	// Code identifies the error category.
	Code NodeErrorCode

	// Block is the affected block id.
	Block ir.BlockID

	// BlockType is the affected block's type name, when known.
	BlockType string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// NodeErrorCode categorizes node errors.
type NodeErrorCode string

const (
	// ErrCodeBurned indicates the node burned itself on a domain error.
	ErrCodeBurned NodeErrorCode = "BURNED"

	// ErrCodeCallbackPanic indicates a callback panicked; the node is burned.
	ErrCodeCallbackPanic NodeErrorCode = "CALLBACK_PANIC"

	// ErrCodeConstruct indicates the block constructor failed.
	ErrCodeConstruct NodeErrorCode = "CONSTRUCT_FAILED"

	// ErrCodeUnknownType indicates the block type is not registered.
	ErrCodeUnknownType NodeErrorCode = "UNKNOWN_BLOCK_TYPE"

	// ErrCodeDuplicate indicates the block id is already used.
	ErrCodeDuplicate NodeErrorCode = "DUPLICATE_BLOCK"

	// ErrCodeCardinality indicates MaxPerMachine would be exceeded.
	ErrCodeCardinality NodeErrorCode = "CARDINALITY_EXCEEDED"

	// ErrCodeNotFound indicates the block id is unknown.
	ErrCodeNotFound NodeErrorCode = "BLOCK_NOT_FOUND"

	// ErrCodeInvalidOutput indicates an undeclared output or wrong kind.
	ErrCodeInvalidOutput NodeErrorCode = "INVALID_OUTPUT"

	// ErrCodeInvalidInput indicates an injection the connector cannot accept.
	ErrCodeInvalidInput NodeErrorCode = "INVALID_INPUT"

	// ErrCodeSpeedControl indicates a block without speed control tried to set speed.
	ErrCodeSpeedControl NodeErrorCode = "SPEED_CONTROL_DENIED"
)

var codeSentinels = map[NodeErrorCode]error{
	ErrCodeBurned:        ErrBurned,
	ErrCodeCallbackPanic: ErrBurned,
	ErrCodeUnknownType:   ErrUnknownBlockType,
	ErrCodeDuplicate:     ErrDuplicateBlock,
	ErrCodeCardinality:   ErrCardinality,
	ErrCodeNotFound:      ErrNotFound,
	ErrCodeInvalidOutput: ErrInvalidOutput,
	ErrCodeInvalidInput:  ErrInvalidInput,
	ErrCodeSpeedControl:  ErrSpeedControl,
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	msg := fmt.Sprintf("%s: %s (block=%s", e.Code, e.Message, e.Block)
	if e.BlockType != "" {
		msg += ", type=" + e.BlockType
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's code.
func (e *NodeError) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// IsBurnError reports whether err describes a burned node.
func IsBurnError(err error) bool {
	return errors.Is(err, ErrBurned)
}

func nodeErr(code NodeErrorCode, n *node, cause error, format string, args ...any) *NodeError {
	e := &NodeError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
	if n != nil {
		e.Block = n.id
		e.BlockType = n.def.Name
	}
	return e
}
