package engine

import (
	"context"

	"github.com/use-agent/wimp/models"
)

// Engine is the interface that all extraction engines must implement.
// An Engine owns whatever rendering resources it opened; Close releases
// them and must be safe to call more than once.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod", "rod-stealth").
	Name() string

	// Extract visits the target page once and returns its rows. An empty
	// Result means the page positively reported that there is no data.
	Extract(ctx context.Context, target *models.Target) (models.Result, error)

	// Close releases the engine's resources.
	Close() error
}

// Opener creates an Engine. The pipeline calls it only after the query
// has been validated, so nothing is launched for bad input.
type Opener func(ctx context.Context) (Engine, error)
