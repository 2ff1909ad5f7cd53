// Package model defines the core data types shared by the booking engine, its stores, and its transports.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// JobStatus represents the lifecycle status of a booking.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusCreated indicates a job exists but has not been offered to anyone.
	JobStatusCreated JobStatus = "created"
	// JobStatusOffered indicates the job was sent to a candidate set and awaits an accept.
	JobStatusOffered JobStatus = "offered"
	// JobStatusAccepted indicates a translator is bound to the job.
	JobStatusAccepted JobStatus = "accepted"
	// JobStatusInProgress indicates the session has started.
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusCompleted indicates the session ended.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusCancelled indicates a party withdrew before completion.
	JobStatusCancelled JobStatus = "cancelled"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusCreated,
	JobStatusOffered,
	JobStatusAccepted,
	JobStatusInProgress,
	JobStatusCompleted,
	JobStatusCancelled,
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return slices.Contains(AllJobStatuses, s)
}

// Terminal reports whether no further transition is possible without a reopen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// HasTranslator reports whether a job in this status must carry an assigned translator.
func (s JobStatus) HasTranslator() bool {
	return s == JobStatusAccepted || s == JobStatusInProgress || s == JobStatusCompleted
}

// UnmarshalText implements encoding.TextUnmarshaler for flag and env parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", v)
	}
	*s = v
	return nil
}

// Job is a booking request from a customer for a translation session.
type Job struct {
	ID           string    `json:"id"                      db:"id"`
	Status       JobStatus `json:"status"                  db:"status"`
	CustomerID   string    `json:"customer_id"             db:"customer_id"`
	TranslatorID *string   `json:"translator_id,omitempty" db:"translator_id"`

	FromLanguage      string    `json:"from_language"             db:"from_language"`
	ToLanguage        string    `json:"to_language"               db:"to_language"`
	Town              string    `json:"town,omitempty"            db:"town"`
	Physical          bool      `json:"physical"                  db:"physical"`
	DueAt             time.Time `json:"due_at"                    db:"due_at"`
	DurationMinutes   int       `json:"duration_minutes"          db:"duration_minutes"`
	RequiredGender    string    `json:"required_gender,omitempty" db:"required_gender"`
	RequiresCertified bool      `json:"requires_certified"        db:"requires_certified"`
	CustomerPhone     string    `json:"customer_phone,omitempty"  db:"customer_phone"`
	Instructions      string    `json:"instructions,omitempty"    db:"instructions"`

	AdminComments   string `json:"admin_comments,omitempty" db:"admin_comments"`
	Flagged         bool   `json:"flagged"                  db:"flagged"`
	ManuallyHandled bool   `json:"manually_handled"         db:"manually_handled"`
	ByAdmin         bool   `json:"by_admin"                 db:"by_admin"`
	SessionTime     string `json:"session_time,omitempty"   db:"session_time"`

	CustomerNotCall   bool       `json:"customer_not_call"              db:"customer_not_call"`
	CustomerNotCallAt *time.Time `json:"customer_not_call_at,omitempty" db:"customer_not_call_at"`

	Version           int64      `json:"version"                       db:"version"`
	Candidates        []string   `json:"candidates"                    db:"candidates"`
	Declined          []string   `json:"declined"                      db:"declined"`
	OfferRound        int        `json:"offer_round"                   db:"offer_round"`
	OfferedAt         *time.Time `json:"offered_at,omitempty"          db:"offered_at"`
	OfferDispatchedAt *time.Time `json:"offer_dispatched_at,omitempty" db:"offer_dispatched_at"`
	AcceptedAt        *time.Time `json:"accepted_at,omitempty"         db:"accepted_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"          db:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"        db:"completed_at"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"        db:"cancelled_at"`
	CancelledBy       Role       `json:"cancelled_by,omitempty"        db:"cancelled_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsCandidate reports whether translatorID is in the current candidate set.
func (j *Job) IsCandidate(translatorID string) bool {
	return slices.Contains(j.Candidates, translatorID)
}

// HasDeclined reports whether translatorID declined or was excluded from this job.
func (j *Job) HasDeclined(translatorID string) bool {
	return slices.Contains(j.Declined, translatorID)
}

// AssignedTo reports whether the job is bound to translatorID.
func (j *Job) AssignedTo(translatorID string) bool {
	return j.TranslatorID != nil && *j.TranslatorID == translatorID
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.TranslatorID = clonePtr(j.TranslatorID)
	c.Candidates = slices.Clone(j.Candidates)
	c.Declined = slices.Clone(j.Declined)
	c.CustomerNotCallAt = clonePtr(j.CustomerNotCallAt)
	c.OfferedAt = clonePtr(j.OfferedAt)
	c.OfferDispatchedAt = clonePtr(j.OfferDispatchedAt)
	c.AcceptedAt = clonePtr(j.AcceptedAt)
	c.StartedAt = clonePtr(j.StartedAt)
	c.CompletedAt = clonePtr(j.CompletedAt)
	c.CancelledAt = clonePtr(j.CancelledAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// JobSpec is the typed command for creating a booking.
type JobSpec struct {
	FromLanguage      string    `json:"from_language"`
	ToLanguage        string    `json:"to_language"`
	Town              string    `json:"town,omitempty"`
	Physical          bool      `json:"physical"`
	DueAt             time.Time `json:"due_at"`
	DurationMinutes   int       `json:"duration_minutes"`
	RequiredGender    string    `json:"required_gender,omitempty"`
	RequiresCertified bool      `json:"requires_certified,omitempty"`
	CustomerPhone     string    `json:"customer_phone,omitempty"`
	Instructions      string    `json:"instructions,omitempty"`
}

// Normalize trims free-text fields and lowercases language and gender codes.
func (s *JobSpec) Normalize() {
	s.FromLanguage = strings.ToLower(strings.TrimSpace(s.FromLanguage))
	s.ToLanguage = strings.ToLower(strings.TrimSpace(s.ToLanguage))
	s.Town = strings.TrimSpace(s.Town)
	s.RequiredGender = strings.ToLower(strings.TrimSpace(s.RequiredGender))
	s.CustomerPhone = strings.TrimSpace(s.CustomerPhone)
	s.Instructions = strings.TrimSpace(s.Instructions)
}

// AcceptByIDRequest is the administrative accept command.
// TranslatorID defaults to the actor for non-privileged actors.
type AcceptByIDRequest struct {
	JobID        string
	Actor        Actor
	TranslatorID string
}

// JobStats counts jobs per status.
type JobStats map[JobStatus]int
