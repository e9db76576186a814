package models

import (
	"fmt"
	"strings"
)

// Kind selects which family of tracking pages a query targets.
type Kind string

const (
	KindFlight   Kind = "flight"
	KindAircraft Kind = "aircraft"
)

// Kinds lists every recognized query kind.
var Kinds = []Kind{KindFlight, KindAircraft}

// Query is one parsed invocation argument.
type Query struct {
	Kind Kind

	// Identifier is a flight designator or aircraft registration, always lowercase.
	Identifier string
}

// String renders the query back into its key=value form.
func (q Query) String() string {
	return string(q.Kind) + "=" + q.Identifier
}

// ParseQuery parses a single "key=value" token.
//
// The token is split on the first "=". The key must name a recognized Kind;
// anything else fails with ErrCodeUnrecognizedKind so callers never reach
// navigation with an undefined target.
func ParseQuery(token string) (Query, error) {
	key, value, ok := strings.Cut(strings.TrimSpace(token), "=")
	if !ok {
		return Query{}, NewScrapeError(
			ErrCodeInvalidInput,
			fmt.Sprintf("argument %q is not of the form key=value", token),
			nil,
		)
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(key)))
	if !kind.Valid() {
		return Query{}, NewScrapeError(
			ErrCodeUnrecognizedKind,
			fmt.Sprintf("unrecognized query kind %q (want flight or aircraft)", key),
			nil,
		)
	}

	id := strings.ToLower(strings.TrimSpace(value))
	if id == "" {
		return Query{}, NewScrapeError(
			ErrCodeInvalidInput,
			fmt.Sprintf("empty %s identifier", kind),
			nil,
		)
	}
	if strings.ContainsAny(id, "/?#") {
		return Query{}, NewScrapeError(
			ErrCodeInvalidInput,
			fmt.Sprintf("identifier %q contains URL path characters", value),
			nil,
		)
	}

	return Query{Kind: kind, Identifier: id}, nil
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}
