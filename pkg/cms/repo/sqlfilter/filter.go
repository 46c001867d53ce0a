// Package sqlfilter turns a cms.ListQuery into SQL shared by the relational
// repositories.
package sqlfilter

import (
	"fmt"
	"strings"
	"time"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// Dialect captures the differences between the supported databases.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// ILike renders a case-insensitive match of column against a bind
	// parameter holding an already escaped, lower-cased pattern.
	ILike func(column, param string) string
	// Time converts a timestamp into the bind value stored in the column.
	Time func(t time.Time) any
	// NoLimit is emitted before OFFSET when no limit is set, if the
	// database requires one.
	NoLimit string
}

// Postgres uses $n parameters and ILIKE.
var Postgres = Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	ILike: func(column, param string) string {
		return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, column, param)
	},
	Time: func(t time.Time) any { return t.UTC() },
}

// SQLite uses ?n parameters and lower() LIKE.
var SQLite = Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("?%d", n) },
	ILike: func(column, param string) string {
		return fmt.Sprintf(`lower(%s) LIKE %s ESCAPE '\'`, column, param)
	},
	Time:    func(t time.Time) any { return FormatTime(t) },
	NoLimit: "LIMIT -1",
}

// TimeLayout is a fixed-width UTC layout so text timestamps sort correctly.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Builder accumulates WHERE terms and bind arguments.
type Builder struct {
	dialect Dialect
	where   []string
	args    []any
}

// NewBuilder starts a builder. The first bind parameter is numbered
// len(initial)+1.
func NewBuilder(d Dialect, initial ...any) *Builder {
	return &Builder{dialect: d, args: append([]any(nil), initial...)}
}

// Bind appends v and returns its placeholder.
func (b *Builder) Bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

// Where adds a raw condition.
func (b *Builder) Where(cond string) {
	b.where = append(b.where, cond)
}

// Args returns the bind arguments collected so far.
func (b *Builder) Args() []any { return b.args }

// WhereClause returns " WHERE ..." or "" when no condition was added.
func (b *Builder) WhereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// Columns maps query field names to table columns for one entity kind.
type Columns struct {
	Status      string
	Author      string
	CreatedAt   string
	UpdatedAt   string
	PublishedAt string
	ID          string
	Search      []string
}

// ApplyList adds the filters of q.
func (b *Builder) ApplyList(cols Columns, q cms.ListQuery) {
	if q.Status != nil {
		b.Where(cols.Status + " = " + b.Bind(string(*q.Status)))
	}
	if q.AuthorID != nil && cols.Author != "" {
		b.Where(cols.Author + " = " + b.Bind(*q.AuthorID))
	}
	b.timeRange(cols.CreatedAt, q.CreatedAfter, q.CreatedBefore)
	if cols.PublishedAt != "" {
		b.timeRange(cols.PublishedAt, q.PublishedAfter, q.PublishedBefore)
	}
	for _, term := range q.SearchTerms() {
		param := b.Bind("%" + EscapeLike(strings.ToLower(term)) + "%")
		ors := make([]string, len(cols.Search))
		for i, col := range cols.Search {
			ors[i] = b.dialect.ILike(col, param)
		}
		b.Where("(" + strings.Join(ors, " OR ") + ")")
	}
}

func (b *Builder) timeRange(column string, after, before *time.Time) {
	if after != nil {
		b.Where(column + " >= " + b.Bind(b.dialect.Time(*after)))
	}
	if before != nil {
		b.Where(column + " <= " + b.Bind(b.dialect.Time(*before)))
	}
}

// OrderBy renders the ORDER BY clause. Nulls always sort last and id
// descending breaks ties.
func OrderBy(cols Columns, ordering []cms.OrderField) (string, error) {
	terms := make([]string, 0, len(ordering)+1)
	for _, of := range ordering {
		var col string
		switch of.Field {
		case cms.FieldCreatedAt:
			col = cols.CreatedAt
		case cms.FieldUpdatedAt:
			col = cols.UpdatedAt
		case cms.FieldPublishedAt:
			col = cols.PublishedAt
		}
		if col == "" {
			return "", fmt.Errorf("cannot order by %q", of.Field)
		}
		dir := "ASC"
		if of.Desc {
			dir = "DESC"
		}
		terms = append(terms, fmt.Sprintf("%s %s NULLS LAST", col, dir))
	}
	terms = append(terms, cols.ID+" DESC")
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

// Page renders LIMIT/OFFSET, binding the values.
func (b *Builder) Page(limit, offset int) string {
	var out string
	if limit > 0 {
		out += " LIMIT " + b.Bind(limit)
	}
	if offset > 0 {
		if limit <= 0 && b.dialect.NoLimit != "" {
			out += " " + b.dialect.NoLimit
		}
		out += " OFFSET " + b.Bind(offset)
	}
	return out
}

// EscapeLike escapes LIKE wildcards with a backslash.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
