package preferences

import (
	"wallshuffle/internal/core/model"
	"wallshuffle/internal/core/reconcile"
)

// Settings is the editable copy of every widget setting.
type Settings struct {
	// Values holds one raw value per schema field.
	Values    map[string]interface{}
	Autostart bool
}

// FromFields seeds Settings from the reconciler's normalized values.
func FromFields(fields []reconcile.ConfigField) Settings {
	values := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		values[field.Name] = native(field.Normalized)
	}
	return Settings{Values: values}
}

// Merge overlays stored raw values on top of settings.
func (settings Settings) Merge(stored map[string]interface{}) Settings {
	values := make(map[string]interface{}, len(settings.Values)+len(stored))
	for name, value := range settings.Values {
		values[name] = value
	}
	for name, value := range stored {
		values[name] = value
	}
	settings.Values = values
	return settings
}

// Text renders a field value for an entry widget.
func (settings Settings) Text(field model.Field) string {
	value, err := field.Normalize(settings.Values[field.Name])
	if err != nil {
		return field.Default.String()
	}
	return value.String()
}

// Checked reports a boolean field.
func (settings Settings) Checked(field model.Field) bool {
	value, _ := field.Normalize(settings.Values[field.Name])
	return value.Bool
}

func native(value model.Value) interface{} {
	switch value.Kind {
	case model.KindInt:
		return value.Int
	case model.KindBool:
		return value.Bool
	default:
		return value.Str
	}
}
