package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
)

// FeatureSetVersion is the envelope version written by this code base.
// Version 0 is the legacy flat map ({"feature": true, ...}) which is still accepted on read.
const FeatureSetVersion = 1

// ErrUnsupportedFeatureValue is returned when a feature value is neither a boolean nor a number.
var ErrUnsupportedFeatureValue = errors.New("feature value must be a boolean or a number")

// FeatureValue holds exactly one of a boolean flag or a numeric limit.
type FeatureValue struct {
	Bool   *bool
	Number *float64
}

// BoolValue returns a boolean feature value.
func BoolValue(b bool) FeatureValue {
	return FeatureValue{Bool: &b}
}

// NumberValue returns a numeric feature value.
func NumberValue(n float64) FeatureValue {
	return FeatureValue{Number: &n}
}

func (v FeatureValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Bool != nil:
		return json.Marshal(*v.Bool)
	case v.Number != nil:
		return json.Marshal(*v.Number)
	default:
		return []byte("null"), nil
	}
}

func (v *FeatureValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	// null decodes into a bool without error
	if bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: null", ErrUnsupportedFeatureValue)
	}
	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}
	var n float64
	if err := json.Unmarshal(trimmed, &n); err == nil {
		*v = NumberValue(n)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFeatureValue, string(trimmed))
}

// FeatureSet is the typed, versioned representation of a plan's feature map.
// Subscriptions and the user entitlement snapshot store it as JSON.
type FeatureSet struct {
	Version int                     `json:"v"`
	Flags   map[string]FeatureValue `json:"flags"`
}

// NewFeatureSet returns an empty set at the current version.
func NewFeatureSet() FeatureSet {
	return FeatureSet{Version: FeatureSetVersion, Flags: map[string]FeatureValue{}}
}

// FeatureSetFromMap builds a set from plain Go values (bool, float64, int, int64).
func FeatureSetFromMap(in map[string]any) (FeatureSet, error) {
	fs := NewFeatureSet()
	for name, raw := range in {
		switch val := raw.(type) {
		case bool:
			fs.Flags[name] = BoolValue(val)
		case float64:
			fs.Flags[name] = NumberValue(val)
		case int:
			fs.Flags[name] = NumberValue(float64(val))
		case int64:
			fs.Flags[name] = NumberValue(float64(val))
		default:
			return NewFeatureSet(), fmt.Errorf("%w: %q has type %T", ErrUnsupportedFeatureValue, name, raw)
		}
	}
	return fs, nil
}

// Enabled reports whether name is present and strictly true.
// Numeric values and false never enable a feature.
func (fs FeatureSet) Enabled(name string) bool {
	v, ok := fs.Flags[name]
	return ok && v.Bool != nil && *v.Bool
}

// Limit returns the numeric value of name, if it is a number.
func (fs FeatureSet) Limit(name string) (float64, bool) {
	v, ok := fs.Flags[name]
	if !ok || v.Number == nil {
		return 0, false
	}
	return *v.Number, true
}

// Len returns the number of features in the set.
func (fs FeatureSet) Len() int {
	return len(fs.Flags)
}

// Clone returns a deep copy that shares no pointers with fs.
func (fs FeatureSet) Clone() FeatureSet {
	out := NewFeatureSet()
	for name, v := range fs.Flags {
		switch {
		case v.Bool != nil:
			out.Flags[name] = BoolValue(*v.Bool)
		case v.Number != nil:
			out.Flags[name] = NumberValue(*v.Number)
		}
	}
	return out
}

// Map returns the set as plain Go values for callers that render it.
func (fs FeatureSet) Map() map[string]any {
	out := make(map[string]any, len(fs.Flags))
	for name, v := range fs.Flags {
		switch {
		case v.Bool != nil:
			out[name] = *v.Bool
		case v.Number != nil:
			out[name] = *v.Number
		}
	}
	return out
}

// JSON encodes the set as a current-version envelope.
func (fs FeatureSet) JSON() datatypes.JSON {
	env := fs.Clone()
	data, err := json.Marshal(env)
	if err != nil {
		// FeatureValue only ever marshals bools and finite numbers
		return datatypes.JSON(`{"v":1,"flags":{}}`)
	}
	return datatypes.JSON(data)
}

// ParseFeatureSet decodes a stored feature map. Accepted shapes:
//
//	{"v":1,"flags":{...}}   current envelope
//	{"feature":true,...}    legacy flat map (version 0)
//	"{\"feature\":true}"    legacy map stored as a JSON string
//	null / empty            empty set
//
// Any other input returns an empty set together with an error; callers on the
// read path log the error and continue with the empty set.
func ParseFeatureSet(raw []byte) (FeatureSet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewFeatureSet(), nil
	}

	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return NewFeatureSet(), fmt.Errorf("decode feature string: %w", err)
		}
		if len(bytes.TrimSpace([]byte(inner))) > 0 && bytes.TrimSpace([]byte(inner))[0] == '"' {
			return NewFeatureSet(), errors.New("nested feature string")
		}
		return ParseFeatureSet([]byte(inner))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return NewFeatureSet(), fmt.Errorf("decode feature map: %w", err)
	}

	if isEnvelope(fields) {
		var version int
		if err := json.Unmarshal(fields["v"], &version); err != nil {
			return NewFeatureSet(), fmt.Errorf("decode feature set version: %w", err)
		}
		if version < 1 || version > FeatureSetVersion {
			return NewFeatureSet(), fmt.Errorf("unsupported feature set version %d", version)
		}
		var flags map[string]FeatureValue
		if err := json.Unmarshal(fields["flags"], &flags); err != nil {
			return NewFeatureSet(), fmt.Errorf("decode feature flags: %w", err)
		}
		return fromFlags(flags), nil
	}

	flags := make(map[string]FeatureValue, len(fields))
	for name, rawValue := range fields {
		var v FeatureValue
		if err := json.Unmarshal(rawValue, &v); err != nil {
			return NewFeatureSet(), fmt.Errorf("decode legacy feature %q: %w", name, err)
		}
		flags[name] = v
	}
	return fromFlags(flags), nil
}

func isEnvelope(fields map[string]json.RawMessage) bool {
	if len(fields) != 2 {
		return false
	}
	flags, hasFlags := fields["flags"]
	_, hasVersion := fields["v"]
	trimmed := bytes.TrimSpace(flags)
	return hasFlags && hasVersion && len(trimmed) > 0 && trimmed[0] == '{'
}

func fromFlags(flags map[string]FeatureValue) FeatureSet {
	fs := NewFeatureSet()
	for name, v := range flags {
		fs.Flags[name] = v
	}
	return fs
}
