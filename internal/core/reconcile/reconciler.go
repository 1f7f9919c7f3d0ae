// Package reconcile forwards configuration changes to the wallpaper manager.
// Raw observed values are normalized into their valid range and compared
// with what was last applied; only fields whose effective value changed are
// applied, one call per field.
package reconcile

import (
	"errors"
	"fmt"
	"sync"

	"wallshuffle/internal/core/model"
	"wallshuffle/internal/log"
)

// ErrUnknownField indicates a value for a field outside the schema.
var ErrUnknownField = errors.New("unknown field")

// Applier effects one changed field. A nil error means the change was
// accepted (issued), not that the external process confirmed it.
type Applier interface {
	Apply(field model.Field, value model.Value) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(field model.Field, value model.Value) error

// Apply calls fn.
func (fn ApplierFunc) Apply(field model.Field, value model.Value) error {
	return fn(field, value)
}

// ConfigField is the reconciler's view of one field.
type ConfigField struct {
	Name        string
	Raw         interface{}
	Normalized  model.Value
	LastApplied model.Value
	HasApplied  bool
}

// Report summarizes one reconciliation pass.
type Report struct {
	Applied   []string
	Unchanged []string
	// Defaulted lists fields whose raw value was malformed and replaced by the default.
	Defaulted map[string]error
	// Failed lists fields whose apply call was rejected; they are retried next pass.
	Failed map[string]error
	// Unset lists string fields observed empty; nothing is sent for them.
	Unset   []string
	Unknown []string
}

// Changed reports whether any field was applied.
func (report Report) Changed() bool {
	return len(report.Applied) > 0
}

// Config contains options for Reconciler.
type Config struct {
	Schema  *model.Schema
	Applier Applier
	Logger  *log.Logger
}

// Reconciler owns the configuration mapping of one widget instance.
type Reconciler struct {
	mu      sync.Mutex
	schema  *model.Schema
	applier Applier
	logger  *log.Logger
	fields  map[string]*ConfigField
}

// New creates a Reconciler with every schema field at its default.
func New(config Config) *Reconciler {
	if config.Schema == nil {
		config.Schema = model.DefaultSchema()
	}
	reconciler := &Reconciler{
		schema:  config.Schema,
		applier: config.Applier,
		logger:  log.Or(config.Logger),
		fields:  make(map[string]*ConfigField),
	}
	for _, name := range config.Schema.Names() {
		field, _ := config.Schema.Field(name)
		reconciler.fields[name] = &ConfigField{
			Name:       name,
			Raw:        nil,
			Normalized: field.Default,
		}
	}
	return reconciler
}

// Schema returns the field schema.
func (reconciler *Reconciler) Schema() *model.Schema {
	return reconciler.schema
}

// Seed installs last-applied values read from persisted external state.
// Seeded values are normalized first; malformed ones are skipped. Local
// fields are never seeded: only this process applies them.
func (reconciler *Reconciler) Seed(applied map[string]interface{}) {
	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()
	for name, raw := range applied {
		field, ok := reconciler.schema.Field(name)
		if !ok || field.IsLocal() {
			continue
		}
		value, err := field.Normalize(raw)
		if err != nil {
			reconciler.logger.Warn("ignoring persisted value", "field", name, "value", raw, "err", err)
			continue
		}
		entry := reconciler.fields[name]
		entry.LastApplied = value
		entry.HasApplied = true
	}
}

// Reconcile runs one pass over observed raw values. Fields absent from
// observed keep their current value and are not re-applied. Empty strings
// mean "unset" and are recorded without being sent.
func (reconciler *Reconciler) Reconcile(observed map[string]interface{}) Report {
	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()

	report := Report{
		Defaulted: make(map[string]error),
		Failed:    make(map[string]error),
	}
	for name := range observed {
		if _, ok := reconciler.schema.Field(name); !ok {
			report.Unknown = append(report.Unknown, name)
			reconciler.logger.Debug("ignoring unknown setting", "field", name)
		}
	}

	for _, name := range reconciler.schema.Names() {
		raw, present := observed[name]
		if !present {
			continue
		}
		field, _ := reconciler.schema.Field(name)
		entry := reconciler.fields[name]

		value, err := field.Normalize(raw)
		if err != nil {
			report.Defaulted[name] = err
			reconciler.logger.Warn("malformed setting, using default", "field", name, "value", raw, "default", value, "err", err)
		}
		entry.Raw = raw
		entry.Normalized = value

		if value.IsUnset() {
			report.Unset = append(report.Unset, name)
			continue
		}
		if entry.HasApplied && entry.LastApplied == value {
			report.Unchanged = append(report.Unchanged, name)
			continue
		}
		if err := reconciler.applyLocked(field, value); err != nil {
			report.Failed[name] = err
			continue
		}
		entry.LastApplied = value
		entry.HasApplied = true
		report.Applied = append(report.Applied, name)
	}
	return report
}

// Fields returns a snapshot of every field in schema order.
func (reconciler *Reconciler) Fields() []ConfigField {
	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()
	fields := make([]ConfigField, 0, len(reconciler.fields))
	for _, name := range reconciler.schema.Names() {
		fields = append(fields, *reconciler.fields[name])
	}
	return fields
}

// Value returns the current normalized value of a field.
func (reconciler *Reconciler) Value(name string) (model.Value, error) {
	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()
	entry, ok := reconciler.fields[name]
	if !ok {
		return model.Value{}, fmt.Errorf("value of %q: %w", name, ErrUnknownField)
	}
	return entry.Normalized, nil
}

// BulkArgs renders every flagged field as manager command line flags:
// "--flag value" for numbers and strings, a bare "--flag" for true
// booleans. Unset strings and false booleans are omitted.
func (reconciler *Reconciler) BulkArgs() []string {
	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()
	var args []string
	for _, name := range reconciler.schema.Names() {
		field, _ := reconciler.schema.Field(name)
		if field.Flag == "" {
			continue
		}
		value := reconciler.fields[name].Normalized
		switch field.Kind {
		case model.KindBool:
			if value.Bool {
				args = append(args, field.Flag)
			}
		case model.KindString:
			if !value.IsUnset() {
				args = append(args, field.Flag, value.Str)
			}
		default:
			args = append(args, field.Flag, value.String())
		}
	}
	return args
}

func (reconciler *Reconciler) applyLocked(field model.Field, value model.Value) (err error) {
	if reconciler.applier == nil {
		return fmt.Errorf("apply %s: no applier configured", field.Name)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("apply %s: applier panicked: %v", field.Name, recovered)
		}
		if err != nil {
			reconciler.logger.Error("setting not applied", "field", field.Name, "value", value, "err", err)
		}
	}()
	if err := reconciler.applier.Apply(field, value); err != nil {
		return fmt.Errorf("apply %s=%s: %w", field.Name, value, err)
	}
	reconciler.logger.Info("setting applied", "field", field.Name, "value", value)
	return nil
}
