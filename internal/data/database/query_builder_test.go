package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery_BasicSelect(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs"))
	assert.Equal(t, `SELECT * FROM "jobs"`, query)
	assert.Empty(t, args)
}

func TestBuildListQuery_ColumnsAreQuoted(t *testing.T) {
	query, _ := BuildListQuery(NewListQueryOptions("jobs", WithColumns("id", "jobs.status")))
	assert.Equal(t, `SELECT "id", "jobs"."status" FROM "jobs"`, query)
}

func TestBuildListQuery_ConditionsAndPaging(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs",
		WithCondition(WhereCond("customer_id", Equal, "c1")),
		WithCondition(WhereCond("status", In, []string{"offered", "accepted"})),
		WithCondition(WhereRawCond("candidates ? $1", "t1")),
		WithCondition(WhereRawCond("offered_at <= $1", "ts")),
		WithOrderBy("created_at", "desc"),
		WithTieBreaker("id"),
		WithLimit(50),
		WithOffset(0),
	))

	assert.Equal(t,
		`SELECT * FROM "jobs" WHERE "customer_id" = $1 AND "status" IN ($2, $3) AND candidates ? $4 AND offered_at <= $5`+
			` ORDER BY "created_at" DESC, "id" ASC LIMIT $6 OFFSET $7`,
		query)
	assert.Equal(t, []any{"c1", "offered", "accepted", "t1", "ts", 50, 0}, args)
}

func TestBuildListQuery_SkipsEmptyConditions(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs",
		WithCondition(WhereCond("status", In, []string{})),
		WithCondition(WhereCond("", Equal, "x")),
		WithCondition(WhereRawCond("")),
	))
	assert.Equal(t, `SELECT * FROM "jobs"`, query)
	assert.Empty(t, args)
}

func TestBuildListQuery_InvalidDirectionIgnored(t *testing.T) {
	query, _ := BuildListQuery(NewListQueryOptions("jobs", WithOrderBy("due_at", "sideways")))
	assert.Equal(t, `SELECT * FROM "jobs" ORDER BY "due_at"`, query)
}

func TestWhereCond_PanicsOnCustom(t *testing.T) {
	assert.Panics(t, func() { WhereCond("x", Custom, nil) })
}

func TestBuildListQuery_RawConditionReusesPlaceholder(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs",
		WithCondition(WhereCond("status", Equal, "offered")),
		WithCondition(WhereRawCond("(customer_id = $1 OR translator_id = $1)", "u1")),
	))
	assert.Equal(t, `SELECT * FROM "jobs" WHERE "status" = $1 AND (customer_id = $2 OR translator_id = $2)`, query)
	assert.Equal(t, []any{"offered", "u1"}, args)
}
