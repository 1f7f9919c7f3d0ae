package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClamping(t *testing.T) {
	schema := DefaultSchema()
	volume, _ := schema.Field(FieldVolumeLevel)
	fps, _ := schema.Field(FieldMaxFps)
	interval, _ := schema.Field(FieldShuffleInterval)

	tests := []struct {
		name      string
		field     Field
		raw       interface{}
		want      Value
		malformed bool
	}{
		{name: "volume above range", field: volume, raw: 150, want: IntValue(100)},
		{name: "volume below range", field: volume, raw: -3, want: IntValue(0)},
		{name: "volume garbage", field: volume, raw: "abc", want: IntValue(0), malformed: true},
		{name: "volume numeric string", field: volume, raw: " 42 ", want: IntValue(42)},
		{name: "volume float", field: volume, raw: 55.9, want: IntValue(55)},
		{name: "fps garbage", field: fps, raw: "fast", want: IntValue(60), malformed: true},
		{name: "fps zero", field: fps, raw: 0, want: IntValue(1)},
		{name: "fps above range", field: fps, raw: "1000", want: IntValue(240)},
		{name: "interval zero", field: interval, raw: 0, want: IntValue(1)},
		{name: "interval above range", field: interval, raw: 5000, want: IntValue(1440)},
		{name: "interval nil", field: interval, raw: nil, want: IntValue(5), malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.field.Normalize(tt.raw)
			assert.Equal(t, tt.want, got)
			if tt.malformed {
				assert.ErrorIs(t, err, ErrMalformed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeBoolAndString(t *testing.T) {
	schema := DefaultSchema()
	mouse, _ := schema.Field(FieldDisableMouse)
	screen, _ := schema.Field(FieldScreenRoot)

	got, err := mouse.Normalize("true")
	require.NoError(t, err)
	assert.Equal(t, BoolValue(true), got)

	got, err = mouse.Normalize(7)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, BoolValue(false), got)

	got, err = screen.Normalize("")
	require.NoError(t, err)
	assert.True(t, got.IsUnset())

	got, err = screen.Normalize("HDMI-1")
	require.NoError(t, err)
	assert.Equal(t, "HDMI-1", got.String())
}

func TestSchemaMerge(t *testing.T) {
	schema := DefaultSchema()

	merged, err := schema.Merge([]Field{
		{Name: FieldMaxFps, Kind: KindInt, Min: 1, Max: 144, Default: IntValue(30), Flag: "--max-fps"},
		{Name: "playlist", Kind: KindString},
	})
	require.NoError(t, err)

	fps, ok := merged.Field(FieldMaxFps)
	require.True(t, ok)
	assert.Equal(t, "--max-fps", fps.Flag)
	assert.Equal(t, 144, fps.Max)
	assert.Equal(t, TargetManager, fps.Target)

	_, ok = merged.Field("playlist")
	assert.True(t, ok)
	assert.Len(t, merged.Names(), len(schema.Names())+1)

	_, err = schema.Merge([]Field{{Name: "broken", Kind: KindInt, Min: 10, Max: 1}})
	assert.Error(t, err)
}
