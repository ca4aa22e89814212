package query

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// State selects the operation a request performs.
type State string

const (
	// StatePresent inserts the row if the keys match nothing, updates the
	// non-key columns if they match exactly one row.
	StatePresent State = "present"
	// StateInsert always inserts.
	StateInsert State = "insert"
	// StateAbsent deletes every row matching the keys.
	StateAbsent State = "absent"
	// StateSelect fetches the declared columns for matching rows.
	StateSelect State = "select"
	// StateCount fetches the matching row count.
	StateCount State = "count"
)

func (s State) valid() bool {
	switch s {
	case StatePresent, StateInsert, StateAbsent, StateSelect, StateCount:
		return true
	}
	return false
}

// Column declares one table column: its name, scalar type and, when the
// request intends to write or match on it, a value. HasValue distinguishes
// an omitted value (read intent) from an explicit null.
type Column struct {
	Name     string
	Type     TypeTag
	Value    any
	HasValue bool
}

// UnmarshalYAML keeps track of whether the value key was present at all.
func (c *Column) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name  string    `yaml:"name"`
		Type  string    `yaml:"type"`
		Value yaml.Node `yaml:"value"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	tag, err := ParseTypeTag(raw.Type)
	if err != nil {
		return err
	}
	c.Name = raw.Name
	c.Type = tag
	if raw.Value.Kind != 0 {
		c.HasValue = true
		if raw.Value.Tag != "!!null" {
			if err := raw.Value.Decode(&c.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Request is one declarative operation against a single table.
type Request struct {
	// Name is the connection URI, e.g. sqlite:///test.db.
	Name    string
	Table   string
	Keys    []string
	Columns []Column
	State   State
	// Distinct applies SELECT DISTINCT in select state.
	Distinct bool
	Filter   Filter
	// CheckMode reports what would change without mutating anything.
	CheckMode bool
}

// UnmarshalYAML accepts the declarative task shape including the historic
// field aliases (url/db for name, tb for table, pk for keys).
func (r *Request) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name     string   `yaml:"name"`
		URL      string   `yaml:"url"`
		DB       string   `yaml:"db"`
		Table    string   `yaml:"table"`
		TB       string   `yaml:"tb"`
		Keys     []string `yaml:"keys"`
		PK       []string `yaml:"pk"`
		Columns  []Column `yaml:"columns"`
		State    string   `yaml:"state"`
		Distinct bool     `yaml:"distinct"`
		Filter   Filter   `yaml:"filter"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	r.Name = firstNonEmpty(raw.Name, raw.URL, raw.DB)
	r.Table = firstNonEmpty(raw.Table, raw.TB)
	r.Keys = raw.Keys
	if len(r.Keys) == 0 {
		r.Keys = raw.PK
	}
	r.Columns = raw.Columns
	r.State = State(raw.State)
	r.Distinct = raw.Distinct
	r.Filter = raw.Filter
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseRequest decodes and validates a YAML request document.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate normalizes defaults and enforces the request invariants.
func (r *Request) Validate() error {
	switch r.State {
	case "", "upsert":
		// upsert is the historic alias for the default state.
		r.State = StatePresent
	}
	if !r.State.valid() {
		return fmt.Errorf("unknown state %q", r.State)
	}
	if r.Name == "" {
		return fmt.Errorf("connection URI is required")
	}
	if r.Table == "" {
		return fmt.Errorf("table is required")
	}
	if len(r.Columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}

	declared := make(map[string]*Column, len(r.Columns))
	for i := range r.Columns {
		col := &r.Columns[i]
		if col.Name == "" {
			return fmt.Errorf("column %d has no name", i)
		}
		if _, dup := declared[col.Name]; dup {
			return fmt.Errorf("column %q declared twice", col.Name)
		}
		declared[col.Name] = col
	}

	keySet := make(map[string]bool, len(r.Keys))
	for _, key := range r.Keys {
		col, ok := declared[key]
		if !ok {
			return fmt.Errorf("key %q: %w", key, ErrColumnNotFound)
		}
		keySet[key] = true
		if (r.State == StatePresent || r.State == StateAbsent) && !col.HasValue {
			return fmt.Errorf("key column %q carries no value", key)
		}
	}

	switch r.State {
	case StatePresent:
		if len(r.Keys) == 0 {
			return fmt.Errorf("state %s requires at least one key column", r.State)
		}
	case StateAbsent:
		if len(r.Keys) == 0 && len(r.Filter) == 0 {
			return fmt.Errorf("state %s requires key columns or a filter", r.State)
		}
	case StateSelect, StateCount:
		for _, col := range r.Columns {
			if col.HasValue && !keySet[col.Name] {
				return fmt.Errorf("state %s: non-key column %q must not carry a value", r.State, col.Name)
			}
		}
	}
	if r.State == StatePresent || r.State == StateInsert {
		for _, col := range r.Columns {
			if !col.HasValue {
				return fmt.Errorf("state %s: column %q carries no value", r.State, col.Name)
			}
		}
	}
	return nil
}

// columnTypes maps declared column names to their type tags.
func (r *Request) columnTypes() map[string]TypeTag {
	types := make(map[string]TypeTag, len(r.Columns))
	for _, col := range r.Columns {
		types[col.Name] = col.Type
	}
	return types
}

// keySet reports the declared key columns as a set.
func (r *Request) keySet() map[string]bool {
	set := make(map[string]bool, len(r.Keys))
	for _, key := range r.Keys {
		set[key] = true
	}
	return set
}
