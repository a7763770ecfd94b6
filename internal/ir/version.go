package ir

// Version constants for the persisted layout and engine.
const (
	// LayoutVersion is the version of the persisted namespace layout.
	LayoutVersion = "1"

	// EngineVersion is the fixture engine version.
	EngineVersion = "0.1.0"
)
