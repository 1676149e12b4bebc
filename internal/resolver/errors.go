package resolver

import (
	"errors"
	"fmt"
)

// ErrUnresolvableUnset is matched by every UnresolvableError.
var ErrUnresolvableUnset = errors.New("connector has no concrete kind and cannot be left unset")

// ErrUnknownBlockType is returned by ResolveAll for placements whose block
// type is missing from the catalog.
var ErrUnknownBlockType = errors.New("unknown block type")

// UnresolvableError reports the single fatal resolution case: a hidden
// connector without exactly one kind, missing from the stored config.
type UnresolvableError struct {
	Block     string
	Connector string
}

// Error implements the error interface.
func (e *UnresolvableError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("resolve %s.%s: %v", e.Block, e.Connector, ErrUnresolvableUnset)
	}
	return fmt.Sprintf("resolve %s: %v", e.Connector, ErrUnresolvableUnset)
}

// Unwrap returns ErrUnresolvableUnset.
func (e *UnresolvableError) Unwrap() error {
	return ErrUnresolvableUnset
}
