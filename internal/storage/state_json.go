package storage

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"wallshuffle/internal/core/model"
)

// Entry is one `{default, value}` record of the manager's state document.
type Entry struct {
	Default interface{} `json:"default"`
	Value   interface{} `json:"value"`
}

// Effective returns Value, or Default when no value was ever set.
func (entry Entry) Effective() interface{} {
	if entry.Value != nil {
		return entry.Value
	}
	return entry.Default
}

// State is the wallpaper manager's persisted state. It is read, never
// written, by the widget.
type State struct {
	CurrentWallpaper  Entry
	PreviousWallpaper Entry
	QueueLength       Entry
	CurrentIndex      Entry
	ShuffleStatus     Entry
	// Entries holds every `{default, value}` record, including the ones above.
	Entries map[string]Entry
}

// LoadState reads the state document at path. Records that are not
// `{default, value}` objects are skipped.
func LoadState(fs afero.Fs, path string) (State, error) {
	state := State{Entries: make(map[string]Entry)}
	rawData, err := afero.ReadFile(fs, path)
	if err != nil {
		return state, fmt.Errorf("read state file: %w", err)
	}

	var document map[string]json.RawMessage
	if err := json.Unmarshal(rawData, &document); err != nil {
		return state, fmt.Errorf("parse state json: %w", err)
	}

	for key, raw := range document {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		_, hasValue := probe["value"]
		_, hasDefault := probe["default"]
		if !hasValue && !hasDefault {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		state.Entries[key] = entry
	}

	state.CurrentWallpaper = state.Entries["currentWallpaper"]
	state.PreviousWallpaper = state.Entries["previousWallpaper"]
	state.QueueLength = state.Entries["queueLength"]
	state.CurrentIndex = state.Entries["currentIndex"]
	state.ShuffleStatus = state.Entries["shuffleStatus"]
	return state, nil
}

// AppliedValues returns the effective value of every record that names a
// schema field; these are the last values the manager accepted.
func (state State) AppliedValues(schema *model.Schema) map[string]interface{} {
	applied := make(map[string]interface{})
	for key, entry := range state.Entries {
		if _, ok := schema.Field(key); !ok {
			continue
		}
		if value := entry.Effective(); value != nil {
			applied[key] = value
		}
	}
	return applied
}

// Summary renders the display line for the tray status item.
func (state State) Summary() string {
	current := state.CurrentWallpaper.Effective()
	if current == nil || current == "" {
		current = "none"
	}
	queue := state.QueueLength.Effective()
	if queue == nil {
		queue = 0
	}
	return fmt.Sprintf("Current: %v (queue %v)", current, queue)
}
