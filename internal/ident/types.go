package ident

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/zerobase/internal/errs"
)

// allowedTypes is the safe subset of PostgreSQL type keywords offered to tenants.
var allowedTypes = map[string]struct{}{
	"TEXT": {}, "VARCHAR": {}, "CHAR": {}, "BPCHAR": {},
	"INTEGER": {}, "INT": {}, "INT2": {}, "INT4": {}, "INT8": {}, "BIGINT": {}, "SMALLINT": {},
	"SERIAL": {}, "BIGSERIAL": {}, "SMALLSERIAL": {},
	"NUMERIC": {}, "DECIMAL": {}, "REAL": {}, "FLOAT4": {}, "FLOAT8": {}, "DOUBLE PRECISION": {},
	"BOOLEAN": {}, "BOOL": {},
	"DATE": {}, "TIME": {}, "TIMETZ": {}, "TIMESTAMP": {}, "TIMESTAMPTZ": {},
	"INTERVAL": {},
	"UUID": {},
	"JSON": {}, "JSONB": {},
	"BYTEA": {},
	"CIDR": {}, "INET": {}, "MACADDR": {},
}

// typePattern splits "<keyword>[ (<n>[,<m>])]". The modifier may only hold digits.
var typePattern = regexp.MustCompile(`^([A-Z][A-Z0-9]*(?: [A-Z][A-Z0-9]*)?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?$`)

var spaces = regexp.MustCompile(`\s+`)

// Type is a validated, normalized column type expression such as VARCHAR(255).
type Type struct{ s string }

// ParseType uppercases raw, strips an optional numeric modifier and checks the
// base keyword against the allow-list. The normalized form is returned.
func ParseType(raw string) (Type, error) {
	upper := spaces.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), " ")
	m := typePattern.FindStringSubmatch(upper)
	if m == nil {
		return Type{}, unsupportedType(raw)
	}
	base := m[1]
	if _, ok := allowedTypes[base]; !ok {
		return Type{}, unsupportedType(raw)
	}
	switch {
	case m[3] != "":
		return Type{s: fmt.Sprintf("%s(%s,%s)", base, m[2], m[3])}, nil
	case m[2] != "":
		return Type{s: fmt.Sprintf("%s(%s)", base, m[2])}, nil
	default:
		return Type{s: base}, nil
	}
}

func unsupportedType(raw string) error {
	return fmt.Errorf("%w: unsupported type %q: use a standard PostgreSQL type", errs.ErrValidation, raw)
}

// String returns the normalized type expression.
func (t Type) String() string { return t.s }

// IndexMethod is a validated index access method.
type IndexMethod struct{ s string }

var indexMethods = []string{"btree", "hash", "gin", "gist", "brin", "spgist"}

// ParseIndexMethod accepts btree, hash, gin, gist, brin or spgist (case-insensitive).
// An empty string selects btree.
func ParseIndexMethod(raw string) (IndexMethod, error) {
	m := strings.ToLower(strings.TrimSpace(raw))
	if m == "" {
		m = "btree"
	}
	for _, v := range indexMethods {
		if v == m {
			return IndexMethod{s: m}, nil
		}
	}
	return IndexMethod{}, fmt.Errorf("%w: invalid index method %q: choose %s", errs.ErrValidation, raw, strings.Join(indexMethods, ", "))
}

// String returns the lowercase method keyword.
func (m IndexMethod) String() string { return m.s }

// safeExtensions excludes superuser-only and filesystem-access extensions.
var safeExtensions = map[string]struct{}{
	"uuid-ossp": {}, "pgcrypto": {}, "hstore": {}, "pg_trgm": {}, "fuzzystrmatch": {},
	"citext": {}, "ltree": {}, "intarray": {}, "tablefunc": {}, "unaccent": {},
	"pg_stat_statements": {}, "pgrowlocks": {}, "pgstattuple": {},
	"postgis": {}, "postgis_topology": {}, "postgis_tiger_geocoder": {},
	"vector": {}, "bloom": {}, "btree_gin": {}, "btree_gist": {},
	"dict_int": {}, "dict_xsyn": {}, "earthdistance": {}, "cube": {},
	"isn": {}, "lo": {}, "seg": {}, "xml2": {},
}

// Extension is an extension name from the curated allow-list.
type Extension struct{ s string }

// ParseExtension accepts only allow-listed extension names.
func ParseExtension(raw string) (Extension, error) {
	if _, ok := safeExtensions[raw]; !ok {
		return Extension{}, fmt.Errorf("%w: extension %q is not in the allowed list", errs.ErrValidation, raw)
	}
	return Extension{s: raw}, nil
}

// SafeExtensions lists the allow-list in name order.
func SafeExtensions() []string {
	out := make([]string, 0, len(safeExtensions))
	for k := range safeExtensions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String returns the extension name.
func (e Extension) String() string { return e.s }

// Quote returns the extension name double-quoted (names such as uuid-ossp need it).
func (e Extension) Quote() string { return pgx.Identifier{e.s}.Sanitize() }
