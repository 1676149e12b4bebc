package testutil

// FixedIDGenerator returns the same machine id on every call.
//
// Unlike engine.FixedGenerator, which walks a list of ids, this generator
// never changes its answer. Scenario runs use it so a machine id recorded in
// a golden trace is identical across runs.
//
// Thread-safety: FixedIDGenerator is immutable and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// DefaultMachineID is returned when NewFixedIDGenerator receives "".
const DefaultMachineID = "test-machine"

// NewFixedIDGenerator creates a generator that always returns id.
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = DefaultMachineID
	}
	return &FixedIDGenerator{id: id}
}

// Generate implements engine.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
