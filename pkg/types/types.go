package types

import (
	"github.com/go-playground/validator/v10"
)

// validate caches struct metadata; a single instance is safe for concurrent use.
var validate = validator.New()

// Candidate is one link detected on a results page. ID is assigned by the
// page observer and stays stable across re-detections of the same link.
type Candidate struct {
	ID    string `json:"id" validate:"required"`
	Title string `json:"title"`
	URL   string `json:"url" validate:"required"`
}

// Validate reports whether c carries both an id and a url.
func (c Candidate) Validate() error {
	return validate.Struct(c)
}

// ScoredResult is the latest known score for one candidate within a session.
// Score is a percentage in [0, 100] or Unavailable.
type ScoredResult struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ValidCandidates returns the candidates that pass Validate, preserving order,
// together with the number that were dropped.
func ValidCandidates(in []Candidate) ([]Candidate, int) {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.Validate() != nil {
			continue
		}
		out = append(out, c)
	}
	return out, len(in) - len(out)
}
