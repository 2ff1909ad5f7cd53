package model

import (
	"strings"
	"time"
)

// Distance holds travel data reported for a job. Created lazily by the first feed.
type Distance struct {
	JobID     string    `json:"job_id"     db:"job_id"`
	Distance  string    `json:"distance"   db:"distance"`
	Time      string    `json:"time"       db:"time"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DistanceUpdate is a partial write: nil fields are left unchanged.
type DistanceUpdate struct {
	Distance *string
	Time     *string
}

// Empty reports whether the update carries no field.
func (u DistanceUpdate) Empty() bool {
	return u.Distance == nil && u.Time == nil
}

// AdminFields is the administrative annotation block of a job. It is always written as a whole.
type AdminFields struct {
	AdminComments   string
	Flagged         bool
	SessionTime     string
	ManuallyHandled bool
	ByAdmin         bool
}

// DistanceFeed is the typed command accepted by the distance reconciler.
// Nil means "not supplied"; an empty string counts as not supplied too.
type DistanceFeed struct {
	JobID           string
	Distance        *string
	Time            *string
	SessionTime     *string
	Flagged         *bool
	AdminComment    *string
	ManuallyHandled *bool
	ByAdmin         *bool
}

// DistancePart extracts the distance write, dropping empty values.
func (f DistanceFeed) DistancePart() DistanceUpdate {
	return DistanceUpdate{
		Distance: nonEmpty(f.Distance),
		Time:     nonEmpty(f.Time),
	}
}

// HasAdminInput reports whether any admin field was supplied with a non-empty value.
func (f DistanceFeed) HasAdminInput() bool {
	return nonEmpty(f.AdminComment) != nil ||
		nonEmpty(f.SessionTime) != nil ||
		f.Flagged != nil ||
		f.ManuallyHandled != nil ||
		f.ByAdmin != nil
}

// AdminPart builds the admin block. Flagged holds only when flagged=true and a comment is present.
func (f DistanceFeed) AdminPart() AdminFields {
	comment := deref(f.AdminComment)
	return AdminFields{
		AdminComments:   comment,
		Flagged:         derefBool(f.Flagged) && strings.TrimSpace(comment) != "",
		SessionTime:     deref(f.SessionTime),
		ManuallyHandled: derefBool(f.ManuallyHandled),
		ByAdmin:         derefBool(f.ByAdmin),
	}
}

// ParseDistanceFeed maps the legacy string form (booleans as "true"/"false") into a feed.
// Recognised keys: jobid, distance, time, session_time, flagged, admincomment, manually_handled, by_admin.
func ParseDistanceFeed(in map[string]string) DistanceFeed {
	str := func(key string) *string {
		v, ok := in[key]
		if !ok {
			return nil
		}
		return nonEmpty(&v)
	}
	flag := func(key string) *bool {
		v, ok := in[key]
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b := strings.EqualFold(strings.TrimSpace(v), "true")
		return &b
	}
	return DistanceFeed{
		JobID:           strings.TrimSpace(in["jobid"]),
		Distance:        str("distance"),
		Time:            str("time"),
		SessionTime:     str("session_time"),
		Flagged:         flag("flagged"),
		AdminComment:    str("admincomment"),
		ManuallyHandled: flag("manually_handled"),
		ByAdmin:         flag("by_admin"),
	}
}

// YesNo renders a boolean in the legacy persisted format.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// FeedResult reports the outcome of each independent write of a distance feed.
type FeedResult struct {
	JobID           string    `json:"job_id"`
	DistanceUpdated bool      `json:"distance_updated"`
	AdminUpdated    bool      `json:"admin_updated"`
	Distance        *Distance `json:"distance,omitempty"`
	DistanceError   string    `json:"distance_error,omitempty"`
	AdminError      string    `json:"admin_error,omitempty"`
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func deref(s *string) string {
	if v := nonEmpty(s); v != nil {
		return *v
	}
	return ""
}

func derefBool(b *bool) bool {
	return b != nil && *b
}
