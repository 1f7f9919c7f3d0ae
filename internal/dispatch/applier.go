package dispatch

import "wallshuffle/internal/core/model"

// SettingsApplier forwards reconciled field values as `settings <field> <value>`.
type SettingsApplier struct {
	Dispatcher *Dispatcher
}

// Apply dispatches one field. The value counts as applied once the process
// has been launched; its exit status is only logged.
func (applier SettingsApplier) Apply(field model.Field, value model.Value) error {
	_, err := applier.Dispatcher.Dispatch(Settings(field.Name, value.String()))
	return err
}
