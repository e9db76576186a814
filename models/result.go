package models

// Target is the single page visited for a Query, together with the two
// markers used to decide whether it carries data.
type Target struct {
	URL string

	// RowSelector matches the data-bearing cells (presence selector).
	RowSelector string

	// NoDataSelector matches the "no matching record" marker (absence indicator).
	NoDataSelector string
}

// Row holds the visible text lines of one matched cell, e.g.
// ["BGY", "19:42", "+32"].
type Row []string

// Result is every Row found on the page, in document order.
type Result []Row

// Empty returns the canonical no-data result, which encodes as [] rather than null.
func Empty() Result {
	return Result{}
}
