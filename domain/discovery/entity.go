package discovery

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is one (contact, product) pair whose cost lines name the contact.
type Candidate struct {
	ContactID  string  `bun:"contact_id" json:"contactId"`
	ProductID  string  `bun:"product_id" json:"productId"`
	LineCount  int     `bun:"line_count" json:"lineCount"`
	TotalValue float64 `bun:"total_value" json:"totalValue"`
}

type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeRefreshed        Outcome = "refreshed"
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	OutcomeFailed           Outcome = "failed"
)

// Result is what happened to one candidate.
type Result struct {
	ContactID      string     `json:"contactId"`
	ProductID      string     `json:"productId"`
	Outcome        Outcome    `json:"outcome"`
	Strength       int        `json:"strength"`
	RelationshipID *uuid.UUID `json:"relationshipId,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Report summarizes one detection run for one tenant.
type Report struct {
	Tenant     string    `json:"tenant"`
	Candidates int       `json:"candidates"`
	Created    int       `json:"created"`
	Refreshed  int       `json:"refreshed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Results    []Result  `json:"results"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	// Error is set when the run could not start, e.g. the candidate query failed.
	Error string `json:"error,omitempty"`
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeRefreshed:
		r.Refreshed++
	case OutcomeSkippedDuplicate:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}
