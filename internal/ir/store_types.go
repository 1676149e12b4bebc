package ir

// Placement is one placed block as persisted in a save slot: its identity,
// its block type and its (possibly partial or stale) stored configuration.
type Placement struct {
	ID     BlockID      `json:"id"`
	Type   string       `json:"type"`
	Config PlacedConfig `json:"config"`
}

// Layout is the ordered list of placements of one building. Order is
// creation order, which is also machine execution order.
type Layout struct {
	Slot       string      `json:"slot"`
	Placements []Placement `json:"placements"`
}
