package resolver

import (
	"errors"
	"fmt"

	"github.com/roach88/circuit/internal/ir"
)

// Option configures a resolution.
type Option func(*options)

type options struct {
	unsetAsUnset bool
}

// WithUnsetAsUnset tolerates unset on hidden connectors instead of failing.
func WithUnsetAsUnset() Option {
	return func(o *options) { o.unsetAsUnset = true }
}

// Resolve returns a fully populated configuration: every input declared by
// def has an entry. stored may be nil. Outputs are not configured and are
// not resolved; stored entries for undeclared connectors are dropped.
func Resolve(stored ir.PlacedConfig, def *ir.BlockDef, opts ...Option) (ir.PlacedConfig, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	out := make(ir.PlacedConfig, len(def.Inputs))
	for _, name := range def.InputNames() {
		conn := def.Inputs[name]
		entry, ok := stored[name]
		resolved, err := resolveConnector(conn, entry, ok, o)
		if err != nil {
			var ue *UnresolvableError
			if errors.As(err, &ue) {
				ue.Block = def.Name
				ue.Connector = name
			}
			return nil, err
		}
		out[name] = resolved
	}
	return out, nil
}

func resolveConnector(conn ir.ConnectorDef, entry ir.ConnectorConfig, present bool, o options) (ir.ConnectorConfig, error) {
	if !present {
		return synthesize(conn, o)
	}

	switch {
	case entry.Type == ir.KindUnset:
		return ir.ConnectorConfig{Type: ir.KindUnset}, nil

	case entry.Type == ir.KindWire:
		if !ir.IsNull(entry.Config) {
			return ir.ConnectorConfig{Type: ir.KindWire, Config: entry.Config}, nil
		}
		// A wire without a producer cannot be recovered; revert to the
		// fallback kind and its default. Unlike a missing entry this never
		// yields unset or fails on hidden connectors, and it picks the
		// same kind the engine reads when a live wire's producer is gone.
		k, ok := conn.FallbackKind()
		if !ok {
			return ir.ConnectorConfig{Type: ir.KindUnset}, nil
		}
		return concrete(conn, k, nil, entry.ControlConfig), nil

	case conn.Supports(entry.Type):
		return concrete(conn, entry.Type, entry.Config, entry.ControlConfig), nil
	}

	// The stored kind was removed from the definition. Its payload belongs
	// to another kind and is discarded along with it.
	return synthesize(conn, o)
}

// synthesize builds the default entry of a connector missing from the
// stored configuration.
func synthesize(conn ir.ConnectorDef, o options) (ir.ConnectorConfig, error) {
	if k, ok := conn.SingleKind(); ok {
		return concrete(conn, k, nil, nil), nil
	}
	if conn.ConnectorHidden && !o.unsetAsUnset {
		return ir.ConnectorConfig{}, &UnresolvableError{}
	}
	return ir.ConnectorConfig{Type: ir.KindUnset}, nil
}

// concrete resolves the payloads of a connector whose kind is k.
func concrete(conn ir.ConnectorDef, k ir.Kind, stored, storedControl ir.Payload) ir.ConnectorConfig {
	td := conn.Types[k]
	out := ir.ConnectorConfig{
		Type:   k,
		Config: merge(DefaultPayload(td, k), stored),
	}
	if td.Control != nil {
		out.ControlConfig = merge(td.Control.Default, storedControl)
	}
	return out
}

// merge combines a default payload with a stored one.
//
// Table default with table stored: stored fields are laid over a copy of
// the default. Table default with anything else: the default wins
// entirely, so malformed saves never leak a scalar into a table kind.
// Scalar default: stored wins when present.
func merge(def, stored ir.Payload) ir.Payload {
	if dt, ok := def.(ir.Table); ok {
		st, ok := stored.(ir.Table)
		if !ok {
			return dt.Clone()
		}
		out := dt.Clone()
		for k, v := range st {
			out[k] = v
		}
		return out
	}
	if !ir.IsNull(stored) {
		return stored
	}
	return def
}

// DefaultPayload returns the declared default of kind k, or the kind's zero
// payload when the definition declares none.
func DefaultPayload(td ir.TypeDef, k ir.Kind) ir.Payload {
	if td.Default != nil {
		return td.Default
	}
	if z, ok := ir.ZeroValue(k); ok {
		return z.Payload()
	}
	return nil
}

// Catalog looks up block definitions by type name.
type Catalog interface {
	Lookup(blockType string) (*ir.BlockDef, bool)
}

// ResolveAll resolves every placement of a layout. Placements that fail keep
// their stored config; all failures are returned joined.
func ResolveAll(placements []ir.Placement, catalog Catalog, opts ...Option) ([]ir.Placement, error) {
	out := make([]ir.Placement, len(placements))
	var errs []error
	for i, p := range placements {
		out[i] = ir.Placement{ID: p.ID, Type: p.Type, Config: p.Config.Clone()}

		def, ok := catalog.Lookup(p.Type)
		if !ok {
			errs = append(errs, fmt.Errorf("block %s: %w %q", p.ID, ErrUnknownBlockType, p.Type))
			continue
		}
		cfg, err := Resolve(p.Config, def, opts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("block %s: %w", p.ID, err))
			continue
		}
		out[i].Config = cfg
	}
	return out, errors.Join(errs...)
}
