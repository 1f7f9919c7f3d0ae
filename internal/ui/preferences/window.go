package preferences

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"wallshuffle/internal/core/model"
)

var fieldLabels = map[string]string{
	model.FieldShuffleInterval:   "Shuffle every (minutes)",
	model.FieldVolumeLevel:       "Volume",
	model.FieldMuteAudio:         "Mute audio",
	model.FieldNoAutomute:        "Keep audio when other apps play",
	model.FieldNoAudioProcessing: "Disable audio processing",
	model.FieldScreenRoot:        "Screen",
	model.FieldScalingMode:       "Scaling",
	model.FieldWindowGeometry:    "Window geometry",
	model.FieldMaxFps:            "Frame rate cap",
	model.FieldNoFullscreenPause: "Keep playing over fullscreen apps",
	model.FieldDisableMouse:      "Disable mouse interaction",
	model.FieldWallpaperDir:      "Wallpaper directory",
	model.FieldLinuxWpePath:      "Wallpaper engine path",
}

// Window handles the preferences UI.
type Window struct {
	window    fyne.Window
	schema    *model.Schema
	settings  Settings
	onSave    func(Settings)
	entries   map[string]*widget.Entry
	checks    map[string]*widget.Check
	autostart *widget.Check
}

// New creates a preferences window with one row per schema field.
func New(app fyne.App, schema *model.Schema, settings Settings, onSave func(Settings)) *Window {
	window := app.NewWindow("Wallpaper Shuffle Settings")

	prefs := &Window{
		window:  window,
		schema:  schema,
		onSave:  onSave,
		entries: make(map[string]*widget.Entry),
		checks:  make(map[string]*widget.Check),
	}

	form := widget.NewForm()
	for _, name := range schema.Names() {
		field, _ := schema.Field(name)
		label := fieldLabels[name]
		if label == "" {
			label = name
		}
		if field.Kind == model.KindBool {
			check := widget.NewCheck("", nil)
			prefs.checks[name] = check
			form.Append(label, check)
			continue
		}
		entry := widget.NewEntry()
		if field.Kind == model.KindInt {
			entry.SetPlaceHolder(field.Default.String())
		}
		prefs.entries[name] = entry
		form.Append(label, entry)
	}
	prefs.autostart = widget.NewCheck("Start with the desktop session", nil)

	saveButton := widget.NewButton("Save", prefs.handleSave)
	cancelButton := widget.NewButton("Cancel", func() {
		window.Hide()
	})
	buttons := container.NewHBox(saveButton, layout.NewSpacer(), cancelButton)

	content := container.NewBorder(nil, buttons, nil, nil,
		container.NewVScroll(container.NewVBox(
			widget.NewLabelWithStyle("Wallpaper", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			form,
			widget.NewLabelWithStyle("Session", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			prefs.autostart,
		)),
	)
	window.SetContent(content)
	window.Resize(fyne.NewSize(460, 560))
	window.SetCloseIntercept(func() {
		window.Hide()
	})

	prefs.UpdateSettings(settings)
	return prefs
}

// Show displays the preferences window.
func (prefs *Window) Show() {
	prefs.window.Show()
	prefs.window.RequestFocus()
}

// UpdateSettings replaces window values.
func (prefs *Window) UpdateSettings(settings Settings) {
	prefs.settings = settings
	for name, entry := range prefs.entries {
		field, _ := prefs.schema.Field(name)
		entry.SetText(settings.Text(field))
	}
	for name, check := range prefs.checks {
		field, _ := prefs.schema.Field(name)
		check.SetChecked(settings.Checked(field))
	}
	prefs.autostart.SetChecked(settings.Autostart)
}

// handleSave passes entry text through unparsed; the reconciler normalizes
// and clamps it.
func (prefs *Window) handleSave() {
	values := make(map[string]interface{}, len(prefs.entries)+len(prefs.checks))
	for name, entry := range prefs.entries {
		values[name] = entry.Text
	}
	for name, check := range prefs.checks {
		values[name] = check.Checked
	}

	settings := Settings{Values: values, Autostart: prefs.autostart.Checked}
	prefs.settings = settings
	if prefs.onSave != nil {
		prefs.onSave(settings)
	}
	prefs.window.Hide()
}
