package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformed indicates a raw value could not be parsed for its field kind.
var ErrMalformed = errors.New("malformed value")

// Kind selects the normalization rule applied to a field.
type Kind string

const (
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindString Kind = "string"
)

// Target says who consumes an applied field value.
type Target string

const (
	// TargetManager fields are forwarded to the wallpaper manager process.
	TargetManager Target = "manager"
	// TargetLocal fields configure the widget itself (the shuffle interval).
	TargetLocal Target = "local"
)

// Field declares one recognized configuration entry.
type Field struct {
	Name    string `yaml:"name"`
	Kind    Kind   `yaml:"kind"`
	Min     int    `yaml:"min,omitempty"`
	Max     int    `yaml:"max,omitempty"`
	Default Value  `yaml:"default"`
	// Flag is the bulk-apply command line flag, empty when the field has none.
	Flag   string `yaml:"flag,omitempty"`
	Target Target `yaml:"target,omitempty"`
}

// Value is a normalized field value. Values compare with ==.
type Value struct {
	Kind Kind
	Int  int
	Bool bool
	Str  string
}

// IntValue builds an integer value.
func IntValue(value int) Value { return Value{Kind: KindInt, Int: value} }

// BoolValue builds a boolean value.
func BoolValue(value bool) Value { return Value{Kind: KindBool, Bool: value} }

// StringValue builds a string value.
func StringValue(value string) Value { return Value{Kind: KindString, Str: value} }

// String renders the value the way the manager expects it on its command line.
func (value Value) String() string {
	switch value.Kind {
	case KindInt:
		return strconv.Itoa(value.Int)
	case KindBool:
		return strconv.FormatBool(value.Bool)
	default:
		return value.Str
	}
}

// IsUnset reports whether a string value is empty.
func (value Value) IsUnset() bool {
	return value.Kind == KindString && value.Str == ""
}

// UnmarshalYAML accepts a plain scalar as a default value.
func (value *Value) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case int:
		*value = IntValue(typed)
	case bool:
		*value = BoolValue(typed)
	case float64:
		*value = IntValue(int(typed))
	case nil:
		*value = Value{}
	default:
		*value = StringValue(fmt.Sprint(typed))
	}
	return nil
}

// MarshalYAML writes the value as a plain scalar.
func (value Value) MarshalYAML() (interface{}, error) {
	switch value.Kind {
	case KindInt:
		return value.Int, nil
	case KindBool:
		return value.Bool, nil
	default:
		return value.Str, nil
	}
}

// Normalize converts a raw observed value into the field's valid range.
// On a parse failure the field default is returned together with an error
// wrapping ErrMalformed; the returned value is always usable.
func (field Field) Normalize(raw interface{}) (Value, error) {
	switch field.Kind {
	case KindInt:
		parsed, err := parseInt(raw)
		if err != nil {
			return field.defaultValue(), fmt.Errorf("normalize %s: %w", field.Name, err)
		}
		return IntValue(clamp(parsed, field.Min, field.Max)), nil
	case KindBool:
		parsed, err := parseBool(raw)
		if err != nil {
			return field.defaultValue(), fmt.Errorf("normalize %s: %w", field.Name, err)
		}
		return BoolValue(parsed), nil
	case KindString:
		if raw == nil {
			return StringValue(""), nil
		}
		return StringValue(fmt.Sprint(raw)), nil
	default:
		return field.defaultValue(), fmt.Errorf("normalize %s: unknown kind %q", field.Name, field.Kind)
	}
}

// IsLocal reports whether the field configures the widget rather than the manager.
func (field Field) IsLocal() bool {
	return field.Target == TargetLocal
}

func (field Field) defaultValue() Value {
	value := field.Default
	value.Kind = field.Kind
	if field.Kind == KindInt {
		value.Int = clamp(value.Int, field.Min, field.Max)
	}
	return value
}

func parseInt(raw interface{}) (int, error) {
	switch typed := raw.(type) {
	case int:
		return typed, nil
	case int32:
		return int(typed), nil
	case int64:
		return int(typed), nil
	case uint:
		return int(typed), nil
	case float32:
		return floatToInt(float64(typed))
	case float64:
		return floatToInt(typed)
	case string:
		text := strings.TrimSpace(typed)
		if parsed, err := strconv.Atoi(text); err == nil {
			return parsed, nil
		}
		parsed, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrMalformed, typed)
		}
		return floatToInt(parsed)
	default:
		return 0, fmt.Errorf("%w: %v (%T) is not a number", ErrMalformed, raw, raw)
	}
}

func floatToInt(value float64) (int, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrMalformed, value)
	}
	if value > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	if value < math.MinInt32 {
		return math.MinInt32, nil
	}
	return int(value), nil
}

func parseBool(raw interface{}) (bool, error) {
	switch typed := raw.(type) {
	case bool:
		return typed, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a boolean", ErrMalformed, typed)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%w: %v (%T) is not a boolean", ErrMalformed, raw, raw)
	}
}

func clamp(value, low, high int) int {
	if low > high {
		return value
	}
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
