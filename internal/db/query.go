package db

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxOffset caps how deep a listing can page; later pages read as the last one.
	MaxOffset = math.MaxInt32
)

// Query assembles a SELECT whose every value travels as a bound parameter.
// Conditions are written with "?" placeholders which Build rewrites to
// $1..$n in order, so fragments must not contain a literal "?".
type Query struct {
	base    string
	args    []any
	conds   []string
	orderBy string
	limit   int
	offset  int
	paged   bool
}

// NewQuery starts from base, which may itself contain "?" placeholders for args.
func NewQuery(base string, args ...any) *Query {
	return &Query{base: base, args: args}
}

func (q *Query) Where(cond string, args ...any) *Query {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, args...)
	return q
}

// WhereIf adds the condition only when ok, letting callers chain optional filters.
func (q *Query) WhereIf(ok bool, cond string, args ...any) *Query {
	if !ok {
		return q
	}
	return q.Where(cond, args...)
}

// OrderBy sets the ORDER BY clause. expr is interpolated, so it must come
// from a whitelist such as SortColumn, never from input.
func (q *Query) OrderBy(expr string) *Query {
	q.orderBy = expr
	return q
}

func (q *Query) Page(limit, offset int) *Query {
	q.limit = limit
	q.offset = offset
	q.paged = true
	return q
}

// Build returns the statement with positional placeholders and its arguments.
func (q *Query) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString(q.base)
	q.writeWhere(&sb)

	args := append([]any(nil), q.args...)

	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.orderBy)
	}
	if q.paged {
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, q.limit, q.offset)
	}

	return numberPlaceholders(sb.String()), args
}

// BuildCount wraps the filtered statement in SELECT COUNT(*), ignoring order and paging.
func (q *Query) BuildCount() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM (")
	sb.WriteString(q.base)
	q.writeWhere(&sb)
	sb.WriteString(") AS counted")

	return numberPlaceholders(sb.String()), append([]any(nil), q.args...)
}

func (q *Query) writeWhere(sb *strings.Builder) {
	if len(q.conds) == 0 {
		return
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(q.conds, " AND "))
}

func numberPlaceholders(s string) string {
	var sb strings.Builder
	n := 0
	for _, r := range s {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// SortColumn resolves a client-supplied sort key against allowed, falling back to def.
func SortColumn(key string, allowed map[string]string, def string) string {
	if col, ok := allowed[key]; ok {
		return col
	}
	return def
}

// SortDirection accepts "asc"/"desc" in any case and defaults to desc.
func SortDirection(dir string) string {
	if strings.EqualFold(dir, "asc") {
		return "ASC"
	}
	return "DESC"
}

// Pagination converts a 1-based page and page size into clamped limit and offset.
func Pagination(page, limit int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	if maxPage := MaxOffset/limit + 1; page > maxPage {
		page = maxPage
	}
	return limit, (page - 1) * limit
}
