package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_parseValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want any
	}{
		{"hello", "hello"},
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"3.5", 3.5},
		{"1e3", 1000.0},
		{"true", true},
		{"false", false},
		{"null", nil},
		{`"42"`, "42"},
		{"'true'", "true"},
		{"NaN", "NaN"},
		{"Inf", "Inf"},
		{"0x10", "0x10"},
		{`{"a":1}`, map[string]any{"a": 1.0}},
		{`[1,2]`, []any{1.0, 2.0}},
		{"{broken", "{broken"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseValue(tt.in); !equalJSON(got, tt.want) {
			t.Fatalf("parseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func equalJSON(a, b any) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb) && sameKind(a, b)
}

func sameKind(a, b any) bool {
	switch a.(type) {
	case int64:
		_, ok := b.(int64)
		return ok
	case float64:
		_, ok := b.(float64)
		return ok
	case string:
		_, ok := b.(string)
		return ok
	}
	return true
}

func Test_buildDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"title":"from file","n":12345678901234}`), 0o600))

	doc, err := buildDocument(file, []string{"title=override", "done=true"})
	require.NoError(t, err)
	require.Equal(t, "override", doc["title"])
	require.Equal(t, true, doc["done"])
	require.Equal(t, json.Number("12345678901234"), doc["n"])

	_, err = buildDocument("", []string{"novalue"})
	require.Error(t, err)
	_, err = buildDocument("", []string{"=x"})
	require.Error(t, err)
	_, err = buildDocument(filepath.Join(dir, "missing.json"), nil)
	require.Error(t, err)

	doc, err = buildDocument("", nil)
	require.NoError(t, err)
	require.Empty(t, doc)
}
