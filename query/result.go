package query

import "errors"

// Row maps column names to typed scalars.
type Row map[string]any

// Result is the raw outcome of a successful execution.
type Result struct {
	// Changed reports whether the call mutated storage (or would have,
	// in check mode).
	Changed bool
	// Rows holds the rows set or selected; nil after absent.
	Rows []Row
}

// Outcome is the harness-facing response: a failure is data, not a fault.
type Outcome struct {
	Failed  bool   `yaml:"failed" json:"failed"`
	Msg     string `yaml:"msg,omitempty" json:"msg,omitempty"`
	Changed bool   `yaml:"changed" json:"changed"`
	Rows    []Row  `yaml:"rows" json:"rows"`
}

// NewOutcome folds an execution result and error into the structured
// response callers branch on.
func NewOutcome(res *Result, err error) Outcome {
	if err != nil {
		return Outcome{Failed: true, Msg: err.Error()}
	}
	return Outcome{Changed: res.Changed, Rows: res.Rows}
}

// Classify names the error category for a failed execution.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTableNotFound):
		return "TableNotFound"
	case errors.Is(err, ErrTypeCoercion):
		return "TypeCoercionError"
	case errors.Is(err, ErrKeyConflict):
		return "KeyConflict"
	case errors.Is(err, ErrColumnNotFound):
		return "ColumnNotFound"
	case errors.Is(err, ErrBackend):
		return "BackendError"
	default:
		return "BackendError"
	}
}
