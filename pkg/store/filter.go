package store

import (
	"lms/pkg/database"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter is an AND of predicates over one table. The zero value matches
// every row.
type Filter struct {
	exprs []clause.Expression
}

// Where starts an empty filter.
func Where() Filter { return Filter{} }

func (f Filter) with(e clause.Expression) Filter {
	exprs := make([]clause.Expression, len(f.exprs), len(f.exprs)+1)
	copy(exprs, f.exprs)
	return Filter{exprs: append(exprs, e)}
}

// Eq matches col = v.
func (f Filter) Eq(col string, v interface{}) Filter {
	return f.with(clause.Eq{Column: clause.Column{Name: col}, Value: v})
}

// IsNull matches col IS NULL.
func (f Filter) IsNull(col string) Filter {
	return f.with(clause.Eq{Column: clause.Column{Name: col}, Value: nil})
}

// Lt matches col < v.
func (f Filter) Lt(col string, v interface{}) Filter {
	return f.with(clause.Lt{Column: clause.Column{Name: col}, Value: v})
}

// Gt matches col > v.
func (f Filter) Gt(col string, v interface{}) Filter {
	return f.with(clause.Gt{Column: clause.Column{Name: col}, Value: v})
}

// In matches col IN (values...). An empty list matches nothing.
func (f Filter) In(col string, values ...interface{}) Filter {
	return f.with(clause.IN{Column: clause.Column{Name: col}, Values: values})
}

// AnyILike matches rows where at least one of cols contains keyword,
// ignoring case. LIKE wildcards inside keyword are matched literally.
func (f Filter) AnyILike(keyword string, cols ...string) Filter {
	if len(cols) == 0 {
		return f
	}
	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"
	ors := make([]clause.Expression, 0, len(cols))
	for _, col := range cols {
		ors = append(ors, containsFold{col: col, pattern: pattern})
	}
	if len(ors) == 1 {
		// a lone OrConditions would be OR-joined to the previous predicate
		return f.with(ors[0])
	}
	return f.with(clause.Or(ors...))
}

// containsFold renders a case-insensitive LIKE in the dialect of the
// statement being built: ILIKE on postgres, the Unicode fold function on
// sqlite and LOWER elsewhere.
type containsFold struct {
	col     string
	pattern string
}

func (e containsFold) Build(builder clause.Builder) {
	column := clause.Column{Name: e.col}
	switch dialect(builder) {
	case "postgres":
		builder.WriteQuoted(column)
		builder.WriteString(" ILIKE ")
	case "sqlite":
		builder.WriteString(database.FoldFunc + "(")
		builder.WriteQuoted(column)
		builder.WriteString(") LIKE ")
	default:
		builder.WriteString("LOWER(")
		builder.WriteQuoted(column)
		builder.WriteString(") LIKE ")
	}
	builder.AddVar(builder, e.pattern)
	builder.WriteString(` ESCAPE '\'`)
}

func dialect(builder clause.Builder) string {
	if stmt, ok := builder.(*gorm.Statement); ok && stmt.Dialector != nil {
		return stmt.Dialector.Name()
	}
	return ""
}

// Empty reports whether the filter has no predicates.
func (f Filter) Empty() bool { return len(f.exprs) == 0 }

func (f Filter) apply(db *gorm.DB) *gorm.DB {
	if f.Empty() {
		return db
	}
	return db.Clauses(clause.Where{Exprs: f.exprs})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
