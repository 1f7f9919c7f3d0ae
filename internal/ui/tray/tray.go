package tray

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"wallshuffle/internal/dispatch"
)

// MenuHost displays the tray menu; desktop.App satisfies it.
type MenuHost interface {
	SetSystemTrayMenu(menu *fyne.Menu)
}

// Callbacks defines tray action handlers.
type Callbacks struct {
	OnToggle      func()
	OnCommand     func(dispatch.Verb)
	OnApplyAll    func()
	OnPreferences func()
	OnQuit        func()
}

// Manager handles system tray state. Its setters must run on the fyne
// goroutine (wrap them in fyne.Do from elsewhere).
type Manager struct {
	host        MenuHost
	title       string
	callbacks   Callbacks
	statusItem  *fyne.MenuItem
	currentItem *fyne.MenuItem
	toggleItem  *fyne.MenuItem
	running     bool
	statusLabel string
}

// New creates a tray manager with the provided callbacks.
func New(host MenuHost, title string, callbacks Callbacks) *Manager {
	manager := &Manager{
		host:        host,
		title:       title,
		callbacks:   callbacks,
		statusLabel: "Timer stopped",
	}

	manager.statusItem = fyne.NewMenuItem(manager.statusLabel, nil)
	manager.statusItem.Disabled = true
	manager.currentItem = fyne.NewMenuItem("Current: unknown", nil)
	manager.currentItem.Disabled = true

	manager.toggleItem = fyne.NewMenuItem("", func() {
		if manager.callbacks.OnToggle != nil {
			manager.callbacks.OnToggle()
		}
	})
	manager.applyRunning()
	manager.refreshMenu()
	return manager
}

// SetStatus updates the status line, normally the timer tooltip.
func (manager *Manager) SetStatus(status string) {
	if status == manager.statusLabel {
		return
	}
	manager.statusLabel = status
	manager.statusItem.Label = status
	manager.refreshMenu()
}

// SetCurrent updates the current wallpaper line.
func (manager *Manager) SetCurrent(summary string) {
	manager.currentItem.Label = summary
	manager.refreshMenu()
}

// SetRunning flips the toggle item between start and stop.
func (manager *Manager) SetRunning(running bool) {
	if running == manager.running {
		return
	}
	manager.running = running
	manager.applyRunning()
	manager.refreshMenu()
}

// Menu returns the menu currently shown.
func (manager *Manager) Menu() *fyne.Menu {
	return manager.buildMenu()
}

func (manager *Manager) applyRunning() {
	if manager.running {
		manager.toggleItem.Label = "Stop shuffle timer"
		manager.toggleItem.Icon = theme.MediaPauseIcon()
	} else {
		manager.toggleItem.Label = "Start shuffle timer"
		manager.toggleItem.Icon = theme.MediaPlayIcon()
	}
}

func (manager *Manager) command(label string, icon fyne.Resource, verb dispatch.Verb) *fyne.MenuItem {
	item := fyne.NewMenuItem(label, func() {
		if manager.callbacks.OnCommand != nil {
			manager.callbacks.OnCommand(verb)
		}
	})
	item.Icon = icon
	return item
}

func (manager *Manager) buildMenu() *fyne.Menu {
	apply := fyne.NewMenuItem("Apply all settings", func() {
		if manager.callbacks.OnApplyAll != nil {
			manager.callbacks.OnApplyAll()
		}
	})
	apply.Icon = theme.ConfirmIcon()

	preferences := fyne.NewMenuItem("Preferences", func() {
		if manager.callbacks.OnPreferences != nil {
			manager.callbacks.OnPreferences()
		}
	})
	preferences.Icon = theme.SettingsIcon()

	quit := fyne.NewMenuItem("Quit", func() {
		if manager.callbacks.OnQuit != nil {
			manager.callbacks.OnQuit()
		}
	})
	quit.IsQuit = true

	return fyne.NewMenu(manager.title,
		manager.statusItem,
		manager.currentItem,
		fyne.NewMenuItemSeparator(),
		manager.toggleItem,
		manager.command("Next wallpaper", theme.MediaSkipNextIcon(), dispatch.VerbNext),
		manager.command("Previous wallpaper", theme.MediaSkipPreviousIcon(), dispatch.VerbPrev),
		manager.command("Random wallpaper", theme.MediaReplayIcon(), dispatch.VerbRandom),
		manager.command("Shuffle queue", theme.ViewRefreshIcon(), dispatch.VerbShuffle),
		manager.command("Show queue", theme.ListIcon(), dispatch.VerbQueue),
		fyne.NewMenuItemSeparator(),
		apply,
		preferences,
		manager.command("Exit wallpaper manager", theme.CancelIcon(), dispatch.VerbExit),
		fyne.NewMenuItemSeparator(),
		quit,
	)
}

func (manager *Manager) refreshMenu() {
	if manager.host != nil {
		manager.host.SetSystemTrayMenu(manager.buildMenu())
	}
}
