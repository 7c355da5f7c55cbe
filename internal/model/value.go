package model

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Value is a parameter value: a scalar or an ordered sequence of scalars.
// A scalar may itself be a structured mapping; a sequence of mappings is a
// matrix over those entries.
type Value struct {
	scalar any
	items  []any
	seq    bool
}

// Scalar wraps a single value
func Scalar(v any) Value {
	return Value{scalar: v}
}

// Sequence wraps an ordered list of values
func Sequence(items ...any) Value {
	out := make([]any, len(items))
	copy(out, items)
	return Value{items: out, seq: true}
}

// ValueOf converts a decoded YAML/JSON value into a Value
func ValueOf(raw any) Value {
	switch v := raw.(type) {
	case Value:
		return v
	case []any:
		return Sequence(v...)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return Value{items: items, seq: true}
	default:
		return Scalar(v)
	}
}

// IsSequence reports whether the value triggers matrix expansion
func (v Value) IsSequence() bool {
	return v.seq
}

// Items returns the sequence elements, or the scalar as a single element
func (v Value) Items() []any {
	if v.seq {
		return v.items
	}
	return []any{v.scalar}
}

// Raw returns the plain Go value: the scalar or a []any
func (v Value) Raw() any {
	if v.seq {
		out := make([]any, len(v.items))
		copy(out, v.items)
		return out
	}
	return v.scalar
}

// String renders the value for names and logs
func (v Value) String() string {
	if v.seq {
		return FormatScalar(v.items)
	}
	return FormatScalar(v.scalar)
}

// FormatScalar renders a scalar deterministically. Mappings and lists are
// rendered as compact JSON so that key order never depends on map iteration.
func FormatScalar(x any) string {
	switch v := x.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(x)
}

// UnmarshalYAML decodes a scalar, mapping or flat sequence
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}

	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if node.Kind != yaml.SequenceNode {
		*v = Scalar(raw)
		return nil
	}

	items, _ := raw.([]any)
	for i, child := range node.Content {
		if child.Kind == yaml.SequenceNode {
			return fmt.Errorf("line %d: nested sequences are not supported in parameter values (item %d)", child.Line, i)
		}
	}
	*v = Sequence(items...)
	return nil
}

// MarshalYAML encodes the plain value
func (v Value) MarshalYAML() (interface{}, error) {
	return v.Raw(), nil
}

// MarshalJSON encodes the plain value
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

// UnmarshalJSON decodes a scalar or a list
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}
