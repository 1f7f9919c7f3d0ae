package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"wallshuffle/internal/core/model"
)

type yamlSchema struct {
	Fields []model.Field `yaml:"fields"`
}

// LoadSchema merges field overrides from a YAML file into base. Different
// manager variants (renamed flags, extra fields) are described this way
// instead of in code. An empty path or a missing file returns base.
func LoadSchema(fs afero.Fs, path string, base *model.Schema) (*model.Schema, error) {
	if path == "" {
		return base, nil
	}
	rawData, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return base, fmt.Errorf("read schema file: %w", err)
	}

	var fileData yamlSchema
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return base, fmt.Errorf("parse schema yaml: %w", err)
	}
	if len(fileData.Fields) == 0 {
		return base, nil
	}

	schema, err := base.Merge(fileData.Fields)
	if err != nil {
		return base, fmt.Errorf("load schema %s: %w", path, err)
	}
	return schema, nil
}
