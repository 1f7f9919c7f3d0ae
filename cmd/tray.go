package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"wallshuffle/internal/applet"
	"wallshuffle/internal/config"
	"wallshuffle/internal/core/eventloop"
	"wallshuffle/internal/core/model"
	"wallshuffle/internal/core/shuffletimer"
	"wallshuffle/internal/dispatch"
	"wallshuffle/internal/log"
	"wallshuffle/internal/platform"
	"wallshuffle/internal/storage"
	"wallshuffle/internal/ui/preferences"
	"wallshuffle/internal/ui/tray"
)

const appTitle = "Wallpaper Shuffle"

func runTray(cfg config.Config) error {
	guard, err := platform.AcquireSingleInstance(config.AppName)
	if err != nil {
		log.Info("another instance is running; use `wallshuffle ctl` to control it")
		return nil
	}
	defer func() {
		_ = guard.Release()
	}()

	fs := afero.NewOsFs()
	schema, err := storage.LoadSchema(fs, cfg.SchemaPath, model.DefaultSchema())
	if err != nil {
		return err
	}
	store := storage.NewSettingsStore(fs, cfg.SettingsPath)
	autostart := platform.NewService()

	fyneApp := app.NewWithID("org.wallshuffle.tray")
	desktopApp, ok := fyneApp.(desktop.App)
	if !ok {
		return fmt.Errorf("system tray unsupported on this platform")
	}

	trayWindow := fyneApp.NewWindow(appTitle)
	trayWindow.SetContent(widget.NewLabel("Wallpaper Shuffle is running in the system tray."))
	trayWindow.SetCloseIntercept(func() {
		trayWindow.Hide()
	})
	trayWindow.Hide()
	desktopApp.SetSystemTrayWindow(trayWindow)
	desktopApp.SetSystemTrayIcon(theme.MediaPhotoIcon())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)

	loop := eventloop.New(64)
	group.Go(func() error {
		if err := loop.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	notify := func(title, content string) {
		fyne.Do(func() {
			fyneApp.SendNotification(fyne.NewNotification(title, content))
		})
	}

	var trayManager *tray.Manager
	var shuffle *applet.Applet
	refreshCurrent := func() {
		if err := shuffle.LoadState(groupCtx, fs, cfg.StatePath); err != nil {
			log.Debug("manager state unavailable", "path", cfg.StatePath, "err", err)
			return
		}
		if summary, ok := shuffle.StateSummary(); ok {
			fyne.Do(func() { trayManager.SetCurrent(summary) })
		}
	}

	shuffle, err = applet.New(applet.Config{
		Loop:         loop,
		Schema:       schema,
		ManagerPath:  cfg.ManagerPath,
		TickInterval: cfg.TickInterval,
		ExitOnClose:  cfg.ExitOnQuit,
		Logger:       log.GetLogger(),
		OnResult: func(result dispatch.Result) {
			switch {
			case !result.Succeeded():
				detail := result.Stderr
				if detail == "" && result.Err != nil {
					detail = result.Err.Error()
				}
				notify(appTitle, fmt.Sprintf("%s failed: %s", commandLabel(result.Command), detail))
			case result.Command.Verb == dispatch.VerbQueue && result.Stdout != "":
				notify("Wallpaper queue", result.Stdout)
			case changesWallpaper(result.Command.Verb):
				go refreshCurrent()
			}
		},
	})
	if err != nil {
		cancel()
		_ = group.Wait()
		return err
	}

	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
			defer closeCancel()
			if err := shuffle.Close(closeCtx); err != nil {
				log.Warn("teardown incomplete", "err", err)
			}
			_ = guard.Release()
			cancel()
		})
	}

	runAsync := func(action string, fn func() error) {
		go func() {
			if err := fn(); err != nil && !errors.Is(err, applet.ErrClosed) {
				log.Error("tray action failed", "action", action, "err", err)
				notify(appTitle, fmt.Sprintf("%s: %v", action, err))
			}
		}()
	}

	stored, err := store.Load()
	if err != nil {
		log.Warn("settings unreadable, using defaults", "path", store.Path(), "err", err)
	}
	initial := preferences.FromFields(shuffle.Fields()).Merge(stored)
	initial.Autostart, _ = autostart.AutostartEnabled(config.AppName)

	prefsWindow := preferences.New(fyneApp, schema, initial, func(updated preferences.Settings) {
		if err := store.Save(updated.Values); err != nil {
			log.Error("save settings failed", "path", store.Path(), "err", err)
			notify(appTitle, fmt.Sprintf("Settings not saved: %v", err))
		}
		if err := setAutostart(autostart, updated.Autostart); err != nil {
			log.Warn("autostart not updated", "err", err)
		}
		runAsync("Apply settings", func() error {
			_, err := shuffle.SettingsChanged(groupCtx, updated.Values)
			return err
		})
	})

	trayManager = tray.New(desktopApp, appTitle, tray.Callbacks{
		OnToggle: func() {
			runAsync("Toggle timer", func() error { return shuffle.Toggle(groupCtx) })
		},
		OnCommand: func(verb dispatch.Verb) {
			runAsync(commandLabel(dispatch.Command{Verb: verb}), func() error {
				_, err := shuffle.Command(groupCtx, verb)
				return err
			})
		},
		OnApplyAll: func() {
			runAsync("Apply all settings", func() error {
				_, err := shuffle.ApplyAll(groupCtx)
				return err
			})
		},
		OnPreferences: func() {
			current := preferences.FromFields(shuffle.Fields())
			current.Autostart, _ = autostart.AutostartEnabled(config.AppName)
			prefsWindow.UpdateSettings(current)
			prefsWindow.Show()
		},
		OnQuit: func() {
			go func() {
				shutdown()
				fyne.Do(fyneApp.Quit)
			}()
		},
	})

	events := shuffle.Subscribe(16)
	go func() {
		extra := ""
		for event := range events {
			if event.Message != "" {
				extra = event.Message
			}
			status := shuffletimer.FormatTooltip(shuffletimer.Snapshot{
				Running:          event.State == shuffletimer.StateRunning,
				RemainingSeconds: int(event.Remaining / time.Second),
				IntervalMinutes:  int(event.Interval / time.Minute),
			}, extra)
			running := event.State == shuffletimer.StateRunning
			fyne.Do(func() {
				trayManager.SetStatus(status)
				trayManager.SetRunning(running)
				if running {
					desktopApp.SetSystemTrayIcon(theme.MediaPlayIcon())
				} else {
					desktopApp.SetSystemTrayIcon(theme.MediaPhotoIcon())
				}
			})
			if event.Type == shuffletimer.EventFault {
				notify(appTitle, event.Message)
			}
		}
	}()

	group.Go(func() error {
		refreshCurrent()
		if _, err := shuffle.SettingsChanged(groupCtx, stored); err != nil && !errors.Is(err, applet.ErrClosed) {
			log.Warn("initial settings pass failed", "err", err)
		}
		if cfg.StartTimer {
			if err := shuffle.StartTimer(groupCtx); err != nil && !errors.Is(err, applet.ErrClosed) {
				log.Warn("timer not started", "err", err)
			}
		}
		return nil
	})

	if err := shuffle.WatchSettings(store, cfg.WatchDebounce); err != nil {
		log.Warn("settings file not watched", "path", store.Path(), "err", err)
	}
	go guard.Serve(requestHandler(groupCtx, shuffle, forwardTimeout))

	log.Info("tray started", "manager", cfg.ManagerPath, "settings", store.Path(), "pid", os.Getpid())
	fyneApp.Run()

	shutdown()
	return group.Wait()
}

func setAutostart(service platform.Service, enabled bool) error {
	if !enabled {
		return service.DisableAutostart(config.AppName)
	}
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	return service.EnableAutostart(config.AppName, executable)
}

func changesWallpaper(verb dispatch.Verb) bool {
	switch verb {
	case dispatch.VerbNext, dispatch.VerbPrev, dispatch.VerbRandom, dispatch.VerbLoad:
		return true
	}
	return false
}

func commandLabel(command dispatch.Command) string {
	if command.Verb == dispatch.VerbApply {
		return "apply"
	}
	return string(command.Verb)
}
