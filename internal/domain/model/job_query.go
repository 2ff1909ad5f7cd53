//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import "time"

// JobFilter selects jobs from a JobStore. Zero-valued fields do not filter.
type JobFilter struct {
	Statuses      []JobStatus
	CustomerID    string
	TranslatorID  string     // assigned translator
	CandidateID   string     // translator present in the candidate set
	OfferedBefore *time.Time // offers sent at or before this instant
	SortBy        string     // "created_at" (default), "due_at", "updated_at"
	SortOrder     string     // "asc", "desc" (default)
	Limit         int
	Offset        int
}

// JobListOptions groups pagination parameters for actor-scoped listings.
type JobListOptions struct {
	Status *JobStatus
	Limit  int
	Offset int
}

const (
	// DefaultListLimit is applied when a listing omits Limit.
	DefaultListLimit = 50
	// MaxListLimit caps listing page size.
	MaxListLimit = 1000
)

// Normalize clamps pagination to sane bounds.
func (o *JobListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
