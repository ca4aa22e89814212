package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypeTag names the scalar type of a declared column.
type TypeTag int

const (
	StringType TypeTag = iota
	IntegerType
	BigIntegerType
	BooleanType
	DateType
	DateTimeType
	TextType
)

const (
	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
)

var typeNames = map[string]TypeTag{
	"String":     StringType,
	"Integer":    IntegerType,
	"BigInteger": BigIntegerType,
	"Boolean":    BooleanType,
	"Date":       DateType,
	"DateTime":   DateTimeType,
	"Text":       TextType,
}

// ParseTypeTag maps a declarative type name to its tag.
func ParseTypeTag(name string) (TypeTag, error) {
	tag, ok := typeNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown column type %q: %w", name, ErrTypeCoercion)
	}
	return tag, nil
}

func (t TypeTag) String() string {
	for name, tag := range typeNames {
		if tag == t {
			return name
		}
	}
	return fmt.Sprintf("TypeTag(%d)", int(t))
}

// Coerce converts a declared value into the native representation its tag
// implies: string for String/Text, int64 for Integer/BigInteger, bool for
// Boolean and time.Time for Date/DateTime. Date and DateTime accept the
// literal "now".
func (t TypeTag) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case StringType, TextType:
		return coerceString(v), nil
	case IntegerType, BigIntegerType:
		return coerceInt(v)
	case BooleanType:
		return coerceBool(v)
	case DateTimeType:
		return coerceTime(v, dateTimeLayout, false)
	case DateType:
		return coerceTime(v, dateLayout, true)
	}
	return nil, fmt.Errorf("unhandled type tag %v: %w", t, ErrTypeCoercion)
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func coerceInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("integer %d overflows int64: %w", n, ErrTypeCoercion)
		}
		return int64(n), nil
	case float64:
		// YAML and JSON decoders hand over whole numbers as floats.
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not an integer: %w", n, ErrTypeCoercion)
		}
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse integer %q: %w", n, ErrTypeCoercion)
		}
		return parsed, nil
	case []byte:
		return coerceInt(string(n))
	}
	return 0, fmt.Errorf("cannot use %T as integer: %w", v, ErrTypeCoercion)
}

func coerceBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "yes", "true", "on", "1":
			return true, nil
		case "no", "false", "off", "0":
			return false, nil
		}
		return false, fmt.Errorf("parse boolean %q: %w", b, ErrTypeCoercion)
	case []byte:
		return coerceBool(string(b))
	}
	return false, fmt.Errorf("cannot use %T as boolean: %w", v, ErrTypeCoercion)
}

func coerceTime(v any, layout string, dateOnly bool) (time.Time, error) {
	var ts time.Time
	switch val := v.(type) {
	case time.Time:
		ts = val
	case []byte:
		return coerceTime(string(val), layout, dateOnly)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "now" {
			ts = time.Now()
			break
		}
		parsed, err := parseTimeString(trimmed)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse %q: %w", val, ErrTypeCoercion)
		}
		ts = parsed
	default:
		return time.Time{}, fmt.Errorf("cannot use %T as timestamp: %w", v, ErrTypeCoercion)
	}
	if dateOnly {
		// Midnight in the timestamp's own zone, not the UTC day boundary.
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	}
	return ts, nil
}

// parseTimeString tries the declarative layouts plus the formats sqlite
// hands back for DATETIME columns.
func parseTimeString(s string) (time.Time, error) {
	layouts := []string{
		dateTimeLayout,
		dateLayout,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
	}
	var lastErr error
	for _, layout := range layouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Format renders a scanned database value back into the shape the tag
// declares, mirroring Coerce on the read path.
func (t TypeTag) Format(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case DateTimeType:
		ts, err := coerceTime(v, dateTimeLayout, false)
		if err != nil {
			return nil, err
		}
		return ts.Format(dateTimeLayout), nil
	case DateType:
		ts, err := coerceTime(v, dateLayout, true)
		if err != nil {
			return nil, err
		}
		return ts.Format(dateLayout), nil
	default:
		return t.Coerce(v)
	}
}
