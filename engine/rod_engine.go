package engine

import (
	"context"
	"fmt"

	"github.com/use-agent/wimp/models"
)

// RodSession is the browser-backed rendering session. It is implemented by
// scraper.Session and injected from main.go so that engine/ never imports
// scraper/.
type RodSession interface {
	Extract(ctx context.Context, target *models.Target) (models.Result, error)
	Close() error
}

// RodEngine is a browser-based engine that delegates to a rod session.
// The stealth flag only changes the reported name; the session was
// launched with or without stealth already.
type RodEngine struct {
	session RodSession
	name    string
}

// NewRodEngine wraps a launched session.
func NewRodEngine(session RodSession, stealth bool) *RodEngine {
	name := "rod"
	if stealth {
		name = "rod-stealth"
	}
	return &RodEngine{session: session, name: name}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Extract(ctx context.Context, target *models.Target) (models.Result, error) {
	if e.session == nil {
		return nil, fmt.Errorf("%s: session not configured", e.name)
	}

	result, err := e.session.Extract(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	return result, nil
}

func (e *RodEngine) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Close()
}
