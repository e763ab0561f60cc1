package store

// Config selects and configures an EventStore implementation.
type Config struct {
	Type string `toml:"type" mapstructure:"type"` // "json" (default) or "memory"

	// JSON file specific
	Path string `toml:"path" mapstructure:"path"`
}
