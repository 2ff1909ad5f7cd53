// Package database builds parameterized SELECT statements with sanitized identifiers.
package database

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConditionType is the comparison operator of a Condition.
type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	GreaterThanOrEqual ConditionType = ">="
	In                 ConditionType = "IN"
	Custom             ConditionType = "CUSTOM"

	unset = -1
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Condition is one AND-ed predicate of the WHERE clause.
type Condition struct {
	Field    string
	Type     ConditionType
	Value    any
	rawQuery string
}

// WhereCond builds a field predicate. Use WhereRawCond for anything else.
func WhereCond(field string, condType ConditionType, value any) Condition {
	if condType == Custom {
		//nolint:forbidigo // panic prevents misuse; custom conditions must provide raw SQL via WhereRawCond.
		panic("Use WhereRawCond for Custom type")
	}
	return Condition{Field: field, Type: condType, Value: value}
}

// WhereRawCond builds a raw predicate whose $1..$n placeholders are renumbered into the query.
// The raw SQL is NOT sanitized; never pass user input as SQL.
func WhereRawCond(rawQuery string, params ...any) Condition {
	return Condition{Type: Custom, rawQuery: rawQuery, Value: params}
}

// ListQueryOptions describes a SELECT.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	Conditions []Condition
	OrderBy    string
	OrderDir   string
	TieBreaker string
	Limit      int
	Offset     int
}

// ListQueryOption mutates ListQueryOptions.
type ListQueryOption func(*ListQueryOptions)

// NewListQueryOptions creates options for table.
func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{Table: table, Limit: unset, Offset: unset}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithOrderBy sets the ordering column and direction.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = column
		o.OrderDir = direction
	}
}

// WithTieBreaker adds a secondary ascending sort column for deterministic paging.
func WithTieBreaker(column string) ListQueryOption {
	return func(o *ListQueryOptions) { o.TieBreaker = column }
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

func sanitize(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

// BuildListQuery constructs a SQL query string and arguments from options.
//
//	query, args := BuildListQuery(NewListQueryOptions("jobs",
//		WithColumns("id", "status"),
//		WithCondition(WhereCond("status", In, []string{"offered", "accepted"})),
//		WithCondition(WhereRawCond("candidates ? $1", "t1")),
//		WithOrderBy("created_at", "DESC"),
//		WithTieBreaker("id"),
//		WithLimit(50),
//	))
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var q strings.Builder
	if len(options.Columns) == 0 {
		q.WriteString("SELECT *")
	} else {
		cols := make([]string, len(options.Columns))
		for i, c := range options.Columns {
			cols[i] = sanitize(c)
		}
		q.WriteString("SELECT " + strings.Join(cols, ", "))
	}
	q.WriteString(" FROM " + sanitize(options.Table))

	where, args, next := buildWhereClause(options.Conditions, 1)
	if where != "" {
		q.WriteString(" " + where)
	}

	if options.OrderBy != "" {
		q.WriteString(" ORDER BY " + sanitize(options.OrderBy))
		if dir := strings.ToUpper(options.OrderDir); dir == "ASC" || dir == "DESC" {
			q.WriteString(" " + dir)
		}
		if options.TieBreaker != "" {
			q.WriteString(", " + sanitize(options.TieBreaker) + " ASC")
		}
	}
	if options.Limit != unset {
		fmt.Fprintf(&q, " LIMIT $%d", next)
		args = append(args, options.Limit)
		next++
	}
	if options.Offset != unset {
		fmt.Fprintf(&q, " OFFSET $%d", next)
		args = append(args, options.Offset)
	}
	return q.String(), args
}

func buildWhereClause(conds []Condition, start int) (string, []any, int) {
	parts := make([]string, 0, len(conds))
	args := []any{}
	n := start
	for _, c := range conds {
		sql, cargs, next := processCondition(c, n)
		if sql == "" {
			continue
		}
		parts = append(parts, sql)
		args = append(args, cargs...)
		n = next
	}
	if len(parts) == 0 {
		return "", args, n
	}
	return "WHERE " + strings.Join(parts, " AND "), args, n
}

func processCondition(c Condition, n int) (string, []any, int) {
	switch c.Type {
	case Custom:
		return handleCustomCondition(c, n)
	case In:
		return handleInCondition(c, n)
	case Equal, NotEqual, GreaterThan, LessThan, LessThanOrEqual, GreaterThanOrEqual:
		if c.Field == "" {
			return "", nil, n
		}
		return fmt.Sprintf("%s %s $%d", sanitize(c.Field), c.Type, n), []any{c.Value}, n + 1
	}
	return "", nil, n
}

func handleInCondition(c Condition, n int) (string, []any, int) {
	rv := reflect.ValueOf(c.Value)
	if c.Field == "" || rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return "", nil, n
	}
	placeholders := make([]string, rv.Len())
	args := make([]any, rv.Len())
	for i := range rv.Len() {
		placeholders[i] = fmt.Sprintf("$%d", n)
		args[i] = rv.Index(i).Interface()
		n++
	}
	return fmt.Sprintf("%s IN (%s)", sanitize(c.Field), strings.Join(placeholders, ", ")), args, n
}

func handleCustomCondition(c Condition, n int) (string, []any, int) {
	if c.rawQuery == "" {
		return "", nil, n
	}
	params, _ := c.Value.([]any)
	args := []any{}
	idx := make(map[int]int)
	out := placeholderRe.ReplaceAllStringFunc(c.rawQuery, func(m string) string {
		i, err := strconv.Atoi(m[1:])
		if err != nil || i < 1 || i > len(params) {
			return m
		}
		if _, ok := idx[i]; !ok {
			idx[i] = n
			args = append(args, params[i-1])
			n++
		}
		return fmt.Sprintf("$%d", idx[i])
	})
	return out, args, n
}
