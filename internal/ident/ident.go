// Package ident validates tenant-supplied table names, column names, PostgreSQL
// type expressions, index methods and extension names.
//
// The types in this package can only be obtained through a successful Parse*
// call, so SQL builders that accept them cannot be reached with raw input.
package ident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/zerobase/internal/errs"
)

// MaxLen is PostgreSQL's identifier length limit (NAMEDATALEN-1).
const MaxLen = 63

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Name is a validated table, column, index or database identifier.
type Name struct{ s string }

// Parse validates raw against ^[A-Za-z_][A-Za-z0-9_]*$.
func Parse(raw string) (Name, error) {
	if !namePattern.MatchString(raw) {
		return Name{}, fmt.Errorf("%w: invalid identifier %q: use letters, numbers and underscores only", errs.ErrValidation, raw)
	}
	return Name{s: raw}, nil
}

// MustParse is Parse for compile-time constants; it panics on invalid input.
func MustParse(raw string) Name {
	n, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return n
}

// ParseAll validates every element of raw.
func ParseAll(raw []string) ([]Name, error) {
	out := make([]Name, 0, len(raw))
	for _, r := range raw {
		n, err := Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// String returns the identifier as supplied.
func (n Name) String() string { return n.s }

// Quote returns the identifier double-quoted for interpolation into SQL text.
func (n Name) Quote() string { return pgx.Identifier{n.s}.Sanitize() }

// IndexPrefix marks indexes created through the schema API.
const IndexPrefix = "idx_"

// IndexName derives the deterministic index name idx_<table>_<col1>_<col2>...
// truncated to MaxLen bytes.
func IndexName(table Name, columns []Name) Name {
	var b strings.Builder
	b.WriteString(IndexPrefix)
	b.WriteString(table.s)
	for _, c := range columns {
		b.WriteByte('_')
		b.WriteString(c.s)
	}
	s := b.String()
	if len(s) > MaxLen {
		s = s[:MaxLen]
	}
	return Name{s: s}
}

// ParseDroppableIndex accepts only program-generated index names: idx_-prefixed
// and not ending in _pkey.
func ParseDroppableIndex(raw string) (Name, error) {
	if !strings.HasPrefix(raw, IndexPrefix) || strings.HasSuffix(raw, "_pkey") {
		return Name{}, fmt.Errorf("%w: cannot drop primary key or system indexes", errs.ErrValidation)
	}
	return Parse(raw)
}
