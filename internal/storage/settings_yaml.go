package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const settingsFileName = "settings.yaml"

// SettingsStore keeps the user's raw setting values, keyed by field name.
// Values are stored as entered; normalization happens when they are
// reconciled, so a malformed entry survives a round trip.
type SettingsStore struct {
	fs   afero.Fs
	path string
}

// NewSettingsStore creates a store for the YAML file at path.
func NewSettingsStore(fs afero.Fs, path string) *SettingsStore {
	return &SettingsStore{fs: fs, path: path}
}

// Path returns the backing file.
func (store *SettingsStore) Path() string {
	return store.path
}

// Load reads raw settings. A missing file yields an empty map.
func (store *SettingsStore) Load() (map[string]interface{}, error) {
	settings := make(map[string]interface{})
	rawData, err := afero.ReadFile(store.fs, store.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings file: %w", err)
	}

	if err := yaml.Unmarshal(rawData, &settings); err != nil {
		return make(map[string]interface{}), fmt.Errorf("parse settings yaml: %w", err)
	}
	if settings == nil {
		settings = make(map[string]interface{})
	}
	return settings, nil
}

// Save writes raw settings, merging them over what is already stored.
func (store *SettingsStore) Save(values map[string]interface{}) error {
	current, err := store.Load()
	if err != nil {
		return err
	}
	for name, value := range values {
		current[name] = value
	}

	if err := store.fs.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	serialized, err := yaml.Marshal(sortedNode(current))
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}

	if err := afero.WriteFile(store.fs, store.path, serialized, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

// DefaultSettingsPath resolves the settings file under the user config dir.
func DefaultSettingsPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, appName, settingsFileName), nil
}

func sortedNode(values map[string]interface{}) *yaml.Node {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range names {
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(values[name]); err != nil {
			valueNode = &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(values[name])}
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name},
			valueNode,
		)
	}
	return node
}
