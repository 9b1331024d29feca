package ports

import "context"

// EngineError is a per-item engine failure. It is a value, not a Go error:
// the worker's retry policy decides propagation.
type EngineError struct {
	Message   string
	Retryable bool
}

// EngineResult holds the outcome for one input text, in input order.
type EngineResult struct {
	Text string
	Err  *EngineError
}

// Engine is the sole extension point for translation backends.
type Engine interface {
	Name() string
	// TranslateBatch returns one result per input text, same order.
	TranslateBatch(ctx context.Context, texts []string, srcLang, tgtLang string) ([]EngineResult, error)
}
