package ir

// Version constants for persisted formats and the engine.
const (
	// ConfigVersion is the placed-configuration schema version.
	ConfigVersion = "1"

	// EngineVersion is the circuit engine version.
	EngineVersion = "0.1.0"
)
