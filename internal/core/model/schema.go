package model

import (
	"fmt"
	"sort"
)

// Field names recognized by the wallpaper manager's `settings` verb.
const (
	FieldShuffleInterval   = "shuffleInterval"
	FieldVolumeLevel       = "volumeLevel"
	FieldMuteAudio         = "muteAudio"
	FieldNoAutomute        = "noAutomute"
	FieldNoAudioProcessing = "noAudioProcessing"
	FieldScreenRoot        = "screenRoot"
	FieldScalingMode       = "scalingMode"
	FieldWindowGeometry    = "windowGeometry"
	FieldMaxFps            = "maxFps"
	FieldNoFullscreenPause = "noFullscreenPause"
	FieldDisableMouse      = "disableMouse"
	FieldWallpaperDir      = "wallpaperDir"
	FieldLinuxWpePath      = "linuxWpePath"
)

// Schema is the fixed set of fields a widget instance reconciles.
type Schema struct {
	fields map[string]Field
	names  []string
}

// DefaultSchema returns the built-in field set.
func DefaultSchema() *Schema {
	schema, err := NewSchema([]Field{
		{Name: FieldShuffleInterval, Kind: KindInt, Min: 1, Max: 1440, Default: IntValue(5), Target: TargetLocal},
		{Name: FieldVolumeLevel, Kind: KindInt, Min: 0, Max: 100, Default: IntValue(0), Flag: "--volume"},
		{Name: FieldMaxFps, Kind: KindInt, Min: 1, Max: 240, Default: IntValue(60), Flag: "--fps"},
		{Name: FieldMuteAudio, Kind: KindBool},
		{Name: FieldNoAutomute, Kind: KindBool},
		{Name: FieldNoAudioProcessing, Kind: KindBool},
		{Name: FieldNoFullscreenPause, Kind: KindBool},
		{Name: FieldDisableMouse, Kind: KindBool, Flag: "--disable-mouse"},
		{Name: FieldScreenRoot, Kind: KindString, Flag: "--screen-root"},
		{Name: FieldScalingMode, Kind: KindString, Default: StringValue("default"), Flag: "--scaling"},
		{Name: FieldWindowGeometry, Kind: KindString, Flag: "--window"},
		{Name: FieldWallpaperDir, Kind: KindString},
		{Name: FieldLinuxWpePath, Kind: KindString},
	})
	if err != nil {
		panic(err)
	}
	return schema
}

// NewSchema validates and indexes a field list.
func NewSchema(fields []Field) (*Schema, error) {
	schema := &Schema{fields: make(map[string]Field, len(fields))}
	for _, field := range fields {
		if field.Name == "" {
			return nil, fmt.Errorf("schema: field without name")
		}
		if _, exists := schema.fields[field.Name]; exists {
			return nil, fmt.Errorf("schema: duplicate field %q", field.Name)
		}
		switch field.Kind {
		case KindInt:
			if field.Min > field.Max {
				return nil, fmt.Errorf("schema: field %q has min %d above max %d", field.Name, field.Min, field.Max)
			}
		case KindBool, KindString:
		default:
			return nil, fmt.Errorf("schema: field %q has unknown kind %q", field.Name, field.Kind)
		}
		if field.Target == "" {
			field.Target = TargetManager
		}
		field.Default = field.defaultValue()
		schema.fields[field.Name] = field
		schema.names = append(schema.names, field.Name)
	}
	sort.Strings(schema.names)
	return schema, nil
}

// Merge returns a new schema where overrides replace fields of the same name
// and add new ones.
func (schema *Schema) Merge(overrides []Field) (*Schema, error) {
	merged := make([]Field, 0, len(schema.names)+len(overrides))
	replaced := make(map[string]bool, len(overrides))
	for _, field := range overrides {
		replaced[field.Name] = true
	}
	for _, name := range schema.names {
		if !replaced[name] {
			merged = append(merged, schema.fields[name])
		}
	}
	merged = append(merged, overrides...)
	return NewSchema(merged)
}

// Field looks up a field by name.
func (schema *Schema) Field(name string) (Field, bool) {
	field, ok := schema.fields[name]
	return field, ok
}

// Names returns field names in a stable order.
func (schema *Schema) Names() []string {
	return append([]string(nil), schema.names...)
}
