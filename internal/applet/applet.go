// Package applet wires the shuffle timer, the settings reconciler and the
// command dispatcher of one widget instance onto a single event loop and
// owns their teardown.
package applet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"wallshuffle/internal/core/eventloop"
	"wallshuffle/internal/core/model"
	"wallshuffle/internal/core/reconcile"
	"wallshuffle/internal/core/shuffletimer"
	"wallshuffle/internal/dispatch"
	"wallshuffle/internal/log"
	"wallshuffle/internal/storage"
)

// ErrClosed is returned by every operation once Close has started.
var ErrClosed = errors.New("applet closed")

// Unbinder is a settings-change subscription.
type Unbinder interface {
	Unbind()
}

// Config contains options for Applet.
type Config struct {
	// Loop must be running (or about to run) on its own goroutine.
	Loop   *eventloop.Loop
	Schema *model.Schema

	ManagerPath  string
	Runner       dispatch.Runner
	TickInterval time.Duration
	// ExitOnClose sends `exit` to the manager during Close.
	ExitOnClose bool
	// OnResult observes finished manager invocations on the loop goroutine.
	OnResult func(dispatch.Result)
	Logger   *log.Logger
}

// Applet is the thin adapter between the host UI and the widget core.
// Every state mutation runs on the event loop. Close must not be called
// from the loop goroutine.
type Applet struct {
	loop       *eventloop.Loop
	timer      *shuffletimer.Timer
	reconciler *reconcile.Reconciler
	dispatcher *dispatch.Dispatcher
	settings   dispatch.SettingsApplier
	logger     *log.Logger

	exitOnClose bool
	onResult    func(dispatch.Result)

	mu      sync.Mutex
	closing bool
	watcher Unbinder
	state   storage.State
	loaded  bool

	closeOnce sync.Once
	closeErr  error
}

// New builds the widget core. The timer starts stopped.
func New(config Config) (*Applet, error) {
	if config.Loop == nil {
		return nil, fmt.Errorf("create applet: no event loop")
	}
	if config.Schema == nil {
		config.Schema = model.DefaultSchema()
	}
	logger := log.Or(config.Logger)

	applet := &Applet{
		loop:        config.Loop,
		logger:      logger,
		exitOnClose: config.ExitOnClose,
		onResult:    config.OnResult,
	}
	applet.dispatcher = dispatch.New(dispatch.Config{
		ManagerPath: config.ManagerPath,
		Runner:      config.Runner,
		Post:        config.Loop.Post,
		OnComplete:  applet.completed,
		Logger:      logger,
	})
	applet.settings = dispatch.SettingsApplier{Dispatcher: applet.dispatcher}

	interval := 5
	if field, ok := config.Schema.Field(model.FieldShuffleInterval); ok {
		interval = field.Default.Int
	}
	applet.timer = shuffletimer.New(shuffletimer.Config{
		Scheduler:       config.Loop,
		TickInterval:    config.TickInterval,
		IntervalMinutes: interval,
		OnExpire:        applet.expired,
		Logger:          logger,
	})
	applet.reconciler = reconcile.New(reconcile.Config{
		Schema:  config.Schema,
		Applier: reconcile.ApplierFunc(applet.apply),
		Logger:  logger,
	})
	return applet, nil
}

// Subscribe returns a channel of timer events.
func (applet *Applet) Subscribe(buffer int) <-chan shuffletimer.Event {
	return applet.timer.Subscribe(buffer)
}

// Snapshot returns the timer state.
func (applet *Applet) Snapshot() shuffletimer.Snapshot {
	return applet.timer.Snapshot()
}

// Tooltip renders the status line.
func (applet *Applet) Tooltip(extra string) string {
	return applet.timer.Tooltip(extra)
}

// Fields returns the reconciler's view of every setting.
func (applet *Applet) Fields() []reconcile.ConfigField {
	return applet.reconciler.Fields()
}

// Schema returns the field schema in use.
func (applet *Applet) Schema() *model.Schema {
	return applet.reconciler.Schema()
}

// Toggle starts or stops the shuffle timer.
func (applet *Applet) Toggle(ctx context.Context) error {
	return applet.run(ctx, applet.timer.Toggle)
}

// StartTimer starts the shuffle timer with the current interval.
func (applet *Applet) StartTimer(ctx context.Context) error {
	return applet.run(ctx, func() error {
		return applet.timer.Start(applet.timer.Snapshot().IntervalMinutes)
	})
}

// Command dispatches one discrete manager command. Settings go through
// SetField instead.
func (applet *Applet) Command(ctx context.Context, verb dispatch.Verb, args ...string) (*dispatch.Invocation, error) {
	if verb == dispatch.VerbSettings {
		return nil, fmt.Errorf("dispatch %s: use SetField", verb)
	}
	var invocation *dispatch.Invocation
	err := applet.run(ctx, func() error {
		var err error
		invocation, err = applet.dispatcher.Dispatch(dispatch.Command{Verb: verb, Args: args})
		return err
	})
	return invocation, err
}

// ApplyAll sends every flagged setting in a single manager invocation.
func (applet *Applet) ApplyAll(ctx context.Context) (*dispatch.Invocation, error) {
	var invocation *dispatch.Invocation
	err := applet.run(ctx, func() error {
		var err error
		invocation, err = applet.dispatcher.Dispatch(dispatch.Command{
			Verb: dispatch.VerbApply,
			Args: applet.reconciler.BulkArgs(),
		})
		return err
	})
	return invocation, err
}

// SettingsChanged reconciles a full set of observed raw settings.
func (applet *Applet) SettingsChanged(ctx context.Context, raw map[string]interface{}) (reconcile.Report, error) {
	var report reconcile.Report
	err := applet.run(ctx, func() error {
		report = applet.reconciler.Reconcile(raw)
		return nil
	})
	if err == nil && report.Changed() {
		applet.logger.Debug("settings reconciled", "applied", report.Applied, "failed", len(report.Failed))
	}
	return report, err
}

// SetField reconciles a single setting, as `settings <field> <value>` from
// the command line. It goes through the reconciler so the value is
// normalized and recorded as applied.
func (applet *Applet) SetField(ctx context.Context, name string, raw interface{}) (reconcile.Report, error) {
	if _, ok := applet.reconciler.Schema().Field(name); !ok {
		return reconcile.Report{}, fmt.Errorf("set %s: %w", name, reconcile.ErrUnknownField)
	}
	report, err := applet.SettingsChanged(ctx, map[string]interface{}{name: raw})
	if err != nil {
		return report, err
	}
	if failure, failed := report.Failed[name]; failed {
		return report, failure
	}
	return report, nil
}

// LoadState reads the manager's persisted state and seeds last-applied
// values from it. It blocks on file I/O and is meant to run off the loop.
func (applet *Applet) LoadState(ctx context.Context, fs afero.Fs, path string) error {
	state, err := storage.LoadState(fs, path)
	if err != nil {
		return err
	}
	return applet.run(ctx, func() error {
		applet.reconciler.Seed(state.AppliedValues(applet.reconciler.Schema()))
		applet.mu.Lock()
		applet.state = state
		applet.loaded = true
		applet.mu.Unlock()
		applet.logger.Debug("seeded from manager state", "path", path, "summary", state.Summary())
		return nil
	})
}

// StateSummary describes the manager state read by LoadState.
func (applet *Applet) StateSummary() (string, bool) {
	applet.mu.Lock()
	defer applet.mu.Unlock()
	if !applet.loaded {
		return "", false
	}
	return applet.state.Summary(), true
}

// Bind attaches a settings-change subscription released by Close. A
// previous binding is released first.
func (applet *Applet) Bind(watcher Unbinder) error {
	applet.mu.Lock()
	if applet.closing {
		applet.mu.Unlock()
		watcher.Unbind()
		return ErrClosed
	}
	previous := applet.watcher
	applet.watcher = watcher
	applet.mu.Unlock()

	if previous != nil {
		previous.Unbind()
	}
	return nil
}

// WatchSettings reconciles store contents every time its file changes.
func (applet *Applet) WatchSettings(store *storage.SettingsStore, debounce time.Duration) error {
	watcher, err := storage.Watch(store.Path(), debounce, func() {
		values, err := store.Load()
		if err != nil {
			applet.logger.Warn("settings reload failed", "path", store.Path(), "err", err)
			return
		}
		if _, err := applet.SettingsChanged(context.Background(), values); err != nil && !errors.Is(err, ErrClosed) {
			applet.logger.Warn("settings reconcile skipped", "err", err)
		}
	}, applet.logger)
	if err != nil {
		return err
	}
	return applet.Bind(watcher)
}

// Close tears the applet down: it stops the timer, releases the settings
// subscription, optionally sends `exit`, drains in-flight invocations until
// ctx ends, closes timer observers and stops the loop. Later calls return
// the first result.
func (applet *Applet) Close(ctx context.Context) error {
	applet.closeOnce.Do(func() {
		applet.closeErr = applet.teardown(ctx)
	})
	return applet.closeErr
}

func (applet *Applet) teardown(ctx context.Context) error {
	applet.mu.Lock()
	applet.closing = true
	watcher := applet.watcher
	applet.watcher = nil
	applet.mu.Unlock()

	var errs []error

	// Stopping on the loop guarantees no tick is mid-flight afterwards.
	var stopErr error
	if err := applet.loop.Do(ctx, func() { stopErr = applet.timer.Stop() }); err != nil {
		stopErr = applet.timer.Stop()
	}
	if stopErr != nil {
		errs = append(errs, stopErr)
	}

	if watcher != nil {
		watcher.Unbind()
	}

	if applet.exitOnClose {
		if _, err := applet.dispatcher.Dispatch(dispatch.Command{Verb: dispatch.VerbExit}); err != nil {
			errs = append(errs, err)
		}
	}

	if err := applet.dispatcher.Drain(ctx); err != nil {
		applet.logger.Warn("abandoning in-flight commands", "err", err)
		errs = append(errs, err)
	}

	if err := applet.timer.Close(); err != nil {
		errs = append(errs, err)
	}
	applet.loop.Close()
	applet.logger.Debug("applet closed")
	return errors.Join(errs...)
}

// run executes fn on the loop and waits for it. The closing flag is checked
// again on the loop so work queued before Close never runs after it.
func (applet *Applet) run(ctx context.Context, fn func() error) error {
	if applet.isClosing() {
		return ErrClosed
	}
	var opErr error
	err := applet.loop.Do(ctx, func() {
		if applet.isClosing() {
			opErr = ErrClosed
			return
		}
		opErr = fn()
	})
	if errors.Is(err, eventloop.ErrLoopClosed) {
		return ErrClosed
	}
	if err != nil {
		return err
	}
	return opErr
}

func (applet *Applet) isClosing() bool {
	applet.mu.Lock()
	defer applet.mu.Unlock()
	return applet.closing
}

// apply routes local fields to the timer and everything else to the manager.
func (applet *Applet) apply(field model.Field, value model.Value) error {
	if !field.IsLocal() {
		return applet.settings.Apply(field, value)
	}
	switch field.Name {
	case model.FieldShuffleInterval:
		return applet.timer.SetInterval(value.Int)
	default:
		applet.logger.Debug("local setting has no handler", "field", field.Name, "value", value)
		return nil
	}
}

func (applet *Applet) expired() error {
	if applet.isClosing() {
		return ErrClosed
	}
	_, err := applet.dispatcher.Dispatch(dispatch.Command{Verb: dispatch.VerbNext})
	return err
}

func (applet *Applet) completed(result dispatch.Result) {
	if applet.onResult != nil {
		applet.onResult(result)
	}
}
