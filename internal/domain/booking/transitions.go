// Package booking holds the job lifecycle rules: the transition table, the offer window
// policy, and per-job serialization.
package booking

import (
	"slices"

	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
)

// Edge is a legal status change and the roles allowed to request it.
type Edge struct {
	From  model.JobStatus
	To    model.JobStatus
	Roles []model.Role
}

var (
	anyone     = []model.Role{model.RoleCustomer, model.RoleTranslator, model.RoleAdmin, model.RoleSuperAdmin, model.RoleSystem}
	staff      = []model.Role{model.RoleAdmin, model.RoleSuperAdmin, model.RoleSystem}
	translator = []model.Role{model.RoleTranslator, model.RoleAdmin, model.RoleSuperAdmin, model.RoleSystem}
	booker     = []model.Role{model.RoleCustomer, model.RoleAdmin, model.RoleSuperAdmin, model.RoleSystem}
)

// edges is the single source of truth for the state machine.
// Offered → Offered is the re-offer edge.
var edges = []Edge{
	{From: model.JobStatusCreated, To: model.JobStatusOffered, Roles: anyone},
	{From: model.JobStatusOffered, To: model.JobStatusOffered, Roles: anyone},
	{From: model.JobStatusOffered, To: model.JobStatusAccepted, Roles: translator},
	{From: model.JobStatusAccepted, To: model.JobStatusInProgress, Roles: translator},
	{From: model.JobStatusAccepted, To: model.JobStatusCompleted, Roles: anyone},
	{From: model.JobStatusInProgress, To: model.JobStatusCompleted, Roles: anyone},
	{From: model.JobStatusOffered, To: model.JobStatusCancelled, Roles: anyone},
	{From: model.JobStatusAccepted, To: model.JobStatusCancelled, Roles: anyone},
	{From: model.JobStatusInProgress, To: model.JobStatusCancelled, Roles: anyone},
	{From: model.JobStatusCancelled, To: model.JobStatusCreated, Roles: booker},
	{From: model.JobStatusCompleted, To: model.JobStatusCreated, Roles: booker},
}

// Edges returns a copy of the transition table.
func Edges() []Edge {
	return slices.Clone(edges)
}

func find(from, to model.JobStatus) (Edge, bool) {
	i := slices.IndexFunc(edges, func(e Edge) bool { return e.From == from && e.To == to })
	if i < 0 {
		return Edge{}, false
	}
	return edges[i], true
}

// Allowed reports whether from → to exists in the table.
func Allowed(from, to model.JobStatus) bool {
	_, ok := find(from, to)
	return ok
}

// Check validates a transition for a role. A missing edge is an invalid_state error naming
// both statuses; a role outside the edge's list is a validation error on "actor".
func Check(from, to model.JobStatus, role model.Role) error {
	e, ok := find(from, to)
	if !ok {
		return apperrors.InvalidState(string(from), string(to))
	}
	if !slices.Contains(e.Roles, role) {
		return apperrors.ValidationField("actor", string(role)+" may not move a job to "+string(to))
	}
	return nil
}

// StaffOnly reports whether role belongs to the operator side.
func StaffOnly(role model.Role) bool {
	return slices.Contains(staff, role)
}
