package engine

// UninitialisedError is returned by every public Engine method except
// Initialize when called before Initialize has completed successfully.
type UninitialisedError struct {
	Op string
}

func (e *UninitialisedError) Error() string {
	return "engine: " + e.Op + " called before initialize()"
}

// ConfigError signals an impossible configuration, such as requesting
// deduplication with no embedding provider wired.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "engine: " + e.Reason }

// StorageError wraps any backend failure surfaced from a store call, so
// callers can distinguish it from the engine's own precondition errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "engine: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }
