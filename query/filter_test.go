package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var filterColumns = map[string]TypeTag{
	"col1": StringType,
	"col2": IntegerType,
}

func TestFilterCompileLeafOperators(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "eq",
			filter:   Filter{"eq": map[string]any{"column": "col1", "value": "blubb"}},
			wantSQL:  `"col1" = $1`,
			wantArgs: []any{"blubb"},
		},
		{
			name:     "ne",
			filter:   Filter{"ne": map[string]any{"column": "col2", "value": 21}},
			wantSQL:  `"col2" <> $1`,
			wantArgs: []any{int64(21)},
		},
		{
			name:     "lt",
			filter:   Filter{"lt": map[string]any{"column": "col2", "value": "5"}},
			wantSQL:  `"col2" < $1`,
			wantArgs: []any{int64(5)},
		},
		{
			name:     "ge",
			filter:   Filter{"ge": map[string]any{"column": "col2", "value": 5}},
			wantSQL:  `"col2" >= $1`,
			wantArgs: []any{int64(5)},
		},
		{
			name:     "like",
			filter:   Filter{"like": map[string]any{"column": "col1", "value": "test%"}},
			wantSQL:  `"col1" LIKE $1`,
			wantArgs: []any{"test%"},
		},
		{
			name:     "ilike",
			filter:   Filter{"ilike": map[string]any{"column": "col1", "value": "test%"}},
			wantSQL:  `"col1" ILIKE $1`,
			wantArgs: []any{"test%"},
		},
		{
			name:     "in",
			filter:   Filter{"in": map[string]any{"column": "col1", "value": []any{"bla", "blubb"}}},
			wantSQL:  `"col1" IN ($1, $2)`,
			wantArgs: []any{"bla", "blubb"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := &binder{dialect: postgresDialect{}}
			got, err := tc.filter.compile(b, filterColumns)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, got)
			assert.Equal(t, tc.wantArgs, b.args)
		})
	}
}

func TestFilterCompileNested(t *testing.T) {
	filter := Filter{
		"and": map[string]any{
			"or": map[string]any{
				"eq": map[string]any{"column": "col1", "value": "blubb"},
				"ne": map[string]any{"column": "col1", "value": "bla"},
			},
			"ilike": map[string]any{"column": "col1", "value": "test%"},
		},
	}

	b := &binder{dialect: sqliteDialect{}}
	got, err := filter.compile(b, filterColumns)
	require.NoError(t, err)

	// Children compile in sorted key order: ilike before or.
	assert.Equal(t, `(lower("col1") LIKE lower(?) AND ("col1" = ? OR "col1" <> ?))`, got)
	assert.Equal(t, []any{"test%", "blubb", "bla"}, b.args)
}

func TestFilterCompileSqlitePlaceholders(t *testing.T) {
	filter := Filter{"eq": map[string]any{"column": "col2", "value": 1}}
	b := &binder{dialect: sqliteDialect{}}
	got, err := filter.compile(b, filterColumns)
	require.NoError(t, err)
	assert.Equal(t, `"col2" = ?`, got)
}

func TestFilterCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{
			name:   "unknownOperator",
			filter: Filter{"matches": map[string]any{"column": "col1", "value": "x"}},
			want:   "unknown filter operator",
		},
		{
			name:   "missingColumn",
			filter: Filter{"eq": map[string]any{"value": "x"}},
			want:   "names no column",
		},
		{
			name:   "badGroup",
			filter: Filter{"and": "not a mapping"},
			want:   "nested mapping",
		},
		{
			name:   "emptyIn",
			filter: Filter{"in": map[string]any{"column": "col1", "value": []any{}}},
			want:   "non-empty list",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := &binder{dialect: postgresDialect{}}
			_, err := tc.filter.compile(b, filterColumns)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestFilterCompileNullValues(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantSQL string
		wantErr string
	}{
		{
			name:    "eqNull",
			filter:  Filter{"eq": map[string]any{"column": "col1", "value": nil}},
			wantSQL: `"col1" IS NULL`,
		},
		{
			name:    "eqValueOmitted",
			filter:  Filter{"eq": map[string]any{"column": "col1"}},
			wantSQL: `"col1" IS NULL`,
		},
		{
			name:    "neNull",
			filter:  Filter{"ne": map[string]any{"column": "col1", "value": nil}},
			wantSQL: `"col1" IS NOT NULL`,
		},
		{
			name:    "ltNull",
			filter:  Filter{"lt": map[string]any{"column": "col2", "value": nil}},
			wantErr: "requires a value",
		},
		{
			name:    "likeNull",
			filter:  Filter{"like": map[string]any{"column": "col1"}},
			wantErr: "requires a value",
		},
		{
			name:    "ilikeNull",
			filter:  Filter{"ilike": map[string]any{"column": "col1"}},
			wantErr: "requires a value",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := &binder{dialect: postgresDialect{}}
			got, err := tc.filter.compile(b, filterColumns)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, got)
			assert.Empty(t, b.args, "null predicates bind nothing")
		})
	}
}

func TestFilterCompileUndeclaredColumn(t *testing.T) {
	filter := Filter{"eq": map[string]any{"column": "col9", "value": "x"}}
	b := &binder{dialect: postgresDialect{}}
	_, err := filter.compile(b, filterColumns)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}

func TestFilterCompileCoercesValues(t *testing.T) {
	filter := Filter{"eq": map[string]any{"column": "col2", "value": "not a number"}}
	b := &binder{dialect: postgresDialect{}}
	_, err := filter.compile(b, filterColumns)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeCoercion))
}
