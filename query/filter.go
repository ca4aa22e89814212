package query

import (
	"fmt"
	"sort"
	"strings"
)

// Filter is the nested map form of an advanced predicate: the combinators
// "and" and "or" hold further filters, every other key is a comparison
// operator over a {column, value} leaf.
type Filter map[string]any

var comparisonOps = map[string]string{
	"eq":   "=",
	"ne":   "<>",
	"lt":   "<",
	"le":   "<=",
	"gt":   ">",
	"ge":   ">=",
	"like": "LIKE",
}

// binder accumulates bind arguments and hands out dialect-correct
// placeholders in statement order.
type binder struct {
	dialect Dialect
	args    []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

// compile renders the filter as a parameterized SQL predicate. Column
// references must be declared in the request; values are coerced to the
// referenced column's type before binding.
func (f Filter) compile(b *binder, columnTypes map[string]TypeTag) (string, error) {
	if len(f) == 0 {
		return "", nil
	}
	return compileGroup(map[string]any(f), " AND ", b, columnTypes)
}

func compileGroup(group map[string]any, join string, b *binder, columnTypes map[string]TypeTag) (string, error) {
	// Map order is not stable; sort for deterministic SQL.
	keys := make([]string, 0, len(group))
	for key := range group {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		part, err := compileNode(key, group[key], b, columnTypes)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, join) + ")", nil
}

func compileNode(op string, val any, b *binder, columnTypes map[string]TypeTag) (string, error) {
	switch op {
	case "and", "or":
		sub, ok := toStringMap(val)
		if !ok {
			return "", fmt.Errorf("filter %q expects a nested mapping, got %T", op, val)
		}
		join := " AND "
		if op == "or" {
			join = " OR "
		}
		return compileGroup(sub, join, b, columnTypes)
	}

	leaf, ok := toStringMap(val)
	if !ok {
		return "", fmt.Errorf("filter %q expects a column/value mapping, got %T", op, val)
	}
	name, _ := leaf["column"].(string)
	if name == "" {
		return "", fmt.Errorf("filter %q names no column", op)
	}
	tag, declared := columnTypes[name]
	if !declared {
		return "", fmt.Errorf("filter column %q: %w", name, ErrColumnNotFound)
	}
	column, err := quoteIdentifier(name)
	if err != nil {
		return "", fmt.Errorf("filter column: %w", err)
	}

	switch op {
	case "in":
		items, ok := leaf["value"].([]any)
		if !ok || len(items) == 0 {
			return "", fmt.Errorf("filter \"in\" on %q expects a non-empty list", name)
		}
		placeholders := make([]string, len(items))
		for i, item := range items {
			coerced, err := tag.Coerce(item)
			if err != nil {
				return "", fmt.Errorf("filter \"in\" on %q: %w", name, err)
			}
			placeholders[i] = b.bind(coerced)
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), nil
	case "ilike":
		if leaf["value"] == nil {
			return "", fmt.Errorf("filter %q on %q requires a value", op, name)
		}
		return b.dialect.CaseInsensitiveLike(column, b.bind(coerceString(leaf["value"]))), nil
	case "like":
		if leaf["value"] == nil {
			return "", fmt.Errorf("filter %q on %q requires a value", op, name)
		}
		return fmt.Sprintf("%s LIKE %s", column, b.bind(coerceString(leaf["value"]))), nil
	}

	sqlOp, known := comparisonOps[op]
	if !known {
		return "", fmt.Errorf("unknown filter operator %q", op)
	}
	if leaf["value"] == nil {
		// Binding nil would render "= NULL", which matches nothing.
		switch op {
		case "eq":
			return column + " IS NULL", nil
		case "ne":
			return column + " IS NOT NULL", nil
		}
		return "", fmt.Errorf("filter %q on %q requires a value", op, name)
	}
	coerced, err := tag.Coerce(leaf["value"])
	if err != nil {
		return "", fmt.Errorf("filter %q on %q: %w", op, name, err)
	}
	return fmt.Sprintf("%s %s %s", column, sqlOp, b.bind(coerced)), nil
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Filter:
		return map[string]any(m), true
	case map[any]any:
		out := make(map[string]any, len(m))
		for key, val := range m {
			s, ok := key.(string)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}
