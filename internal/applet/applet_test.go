package applet

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallshuffle/internal/core/eventloop"
	"wallshuffle/internal/core/reconcile"
	"wallshuffle/internal/core/shuffletimer"
	"wallshuffle/internal/dispatch"
	"wallshuffle/internal/log"
)

type recordingRunner struct {
	mu       sync.Mutex
	launches [][]string
	hold     chan struct{}
}

type heldProcess struct {
	hold chan struct{}
}

func (process heldProcess) Wait() dispatch.Outcome {
	if process.hold != nil {
		<-process.hold
	}
	return dispatch.Outcome{}
}

func (runner *recordingRunner) Start(path string, argv []string) (dispatch.Process, error) {
	runner.mu.Lock()
	defer runner.mu.Unlock()
	runner.launches = append(runner.launches, append([]string(nil), argv...))
	return heldProcess{hold: runner.hold}, nil
}

func (runner *recordingRunner) Launches() [][]string {
	runner.mu.Lock()
	defer runner.mu.Unlock()
	return append([][]string(nil), runner.launches...)
}

type fakeWatcher struct {
	mu      sync.Mutex
	unbinds int
}

func (watcher *fakeWatcher) Unbind() {
	watcher.mu.Lock()
	watcher.unbinds++
	watcher.mu.Unlock()
}

func (watcher *fakeWatcher) count() int {
	watcher.mu.Lock()
	defer watcher.mu.Unlock()
	return watcher.unbinds
}

func newTestApplet(t *testing.T, runner *recordingRunner, exitOnClose bool) *Applet {
	t.Helper()
	loop := eventloop.New(16)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(cancel)

	applet, err := New(Config{
		Loop:         loop,
		ManagerPath:  "/opt/wallpaper-manager.sh",
		Runner:       runner,
		TickInterval: time.Millisecond,
		ExitOnClose:  exitOnClose,
		Logger:       log.New(&bytes.Buffer{}, "test"),
	})
	require.NoError(t, err)
	return applet
}

func TestSettingsChangedRoutesFields(t *testing.T) {
	runner := &recordingRunner{}
	applet := newTestApplet(t, runner, false)
	ctx := context.Background()

	report, err := applet.SettingsChanged(ctx, map[string]interface{}{
		"shuffleInterval": 10,
		"volumeLevel":     150,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"shuffleInterval", "volumeLevel"}, report.Applied)

	assert.Equal(t, [][]string{{"settings", "volumeLevel", "100"}}, runner.Launches())
	assert.Equal(t, 10, applet.Snapshot().IntervalMinutes)

	report, err = applet.SettingsChanged(ctx, map[string]interface{}{
		"shuffleInterval": "10",
		"volumeLevel":     100,
	})
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Len(t, runner.Launches(), 1)
}

func TestExpiryDispatchesNext(t *testing.T) {
	runner := &recordingRunner{}
	applet := newTestApplet(t, runner, false)
	ctx := context.Background()

	_, err := applet.SettingsChanged(ctx, map[string]interface{}{"shuffleInterval": 1})
	require.NoError(t, err)
	require.NoError(t, applet.Toggle(ctx))
	assert.True(t, applet.Snapshot().Running)

	assert.Eventually(t, func() bool {
		for _, argv := range runner.Launches() {
			if len(argv) == 1 && argv[0] == "next" {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, applet.Toggle(ctx))
	assert.False(t, applet.Snapshot().Running)
}

func TestCommandAndApplyAll(t *testing.T) {
	runner := &recordingRunner{}
	applet := newTestApplet(t, runner, false)
	ctx := context.Background()

	_, err := applet.Command(ctx, dispatch.VerbLoad, "42")
	require.NoError(t, err)
	_, err = applet.Command(ctx, dispatch.VerbSettings, "volumeLevel")
	assert.Error(t, err)

	_, err = applet.SettingsChanged(ctx, map[string]interface{}{"volumeLevel": 35, "disableMouse": true})
	require.NoError(t, err)
	invocation, err := applet.ApplyAll(ctx)
	require.NoError(t, err)
	_, err = invocation.Wait(ctx)
	require.NoError(t, err)

	launches := runner.Launches()
	require.NotEmpty(t, launches)
	assert.Equal(t, []string{"load", "42"}, launches[0])
	assert.Equal(t, []string{"--disable-mouse", "--fps", "60", "--scaling", "default", "--volume", "35"}, launches[len(launches)-1])
}

func TestLoadStateSeedsAppliedValues(t *testing.T) {
	fs := afero.NewMemMapFs()
	document := `{
  "currentWallpaper": {"default": "", "value": "1234567"},
  "queueLength": {"default": 0, "value": 3},
  "volumeLevel": {"default": 0, "value": 35}
}`
	require.NoError(t, afero.WriteFile(fs, "/state.json", []byte(document), 0o644))

	runner := &recordingRunner{}
	applet := newTestApplet(t, runner, false)
	ctx := context.Background()

	_, loaded := applet.StateSummary()
	assert.False(t, loaded)
	require.NoError(t, applet.LoadState(ctx, fs, "/state.json"))

	summary, loaded := applet.StateSummary()
	assert.True(t, loaded)
	assert.Equal(t, "Current: 1234567 (queue 3)", summary)

	report, err := applet.SettingsChanged(ctx, map[string]interface{}{"volumeLevel": 35})
	require.NoError(t, err)
	assert.Equal(t, []string{"volumeLevel"}, report.Unchanged)
	assert.Empty(t, runner.Launches())

	assert.Error(t, applet.LoadState(ctx, fs, "/missing.json"))
}

func TestLoadStateDoesNotSeedShuffleInterval(t *testing.T) {
	fs := afero.NewMemMapFs()
	document := `{"shuffleInterval": {"default": 5, "value": 10}}`
	require.NoError(t, afero.WriteFile(fs, "/state.json", []byte(document), 0o644))

	applet := newTestApplet(t, &recordingRunner{}, false)
	ctx := context.Background()
	require.NoError(t, applet.LoadState(ctx, fs, "/state.json"))

	report, err := applet.SettingsChanged(ctx, map[string]interface{}{"shuffleInterval": 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"shuffleInterval"}, report.Applied)
	assert.Equal(t, 10, applet.Snapshot().IntervalMinutes)

	require.NoError(t, applet.Toggle(ctx))
	assert.Contains(t, applet.Tooltip(""), "| 10:00)")
	require.NoError(t, applet.Toggle(ctx))
}

func TestBlankPathsAreNotSent(t *testing.T) {
	runner := &recordingRunner{}
	applet := newTestApplet(t, runner, false)

	report, err := applet.SettingsChanged(context.Background(), map[string]interface{}{
		"screenRoot":   "",
		"wallpaperDir": "",
		"scalingMode":  "",
	})
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Len(t, report.Unset, 3)
	assert.Empty(t, runner.Launches())
}

func TestSetFieldGoesThroughReconciler(t *testing.T) {
	runner := &recordingRunner{}
	applet := newTestApplet(t, runner, false)
	ctx := context.Background()

	report, err := applet.SetField(ctx, "volumeLevel", "250")
	require.NoError(t, err)
	assert.Equal(t, []string{"volumeLevel"}, report.Applied)
	assert.Equal(t, [][]string{{"settings", "volumeLevel", "100"}}, runner.Launches())

	report, err = applet.SettingsChanged(ctx, map[string]interface{}{"volumeLevel": 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"volumeLevel"}, report.Unchanged)
	assert.Len(t, runner.Launches(), 1)

	_, err = applet.SetField(ctx, "playlistName", "x")
	assert.ErrorIs(t, err, reconcile.ErrUnknownField)

	_, err = applet.Command(ctx, dispatch.VerbSettings, "volumeLevel", "5")
	assert.Error(t, err)
	assert.Len(t, runner.Launches(), 1)
}

func TestCloseNearExpiryStopsDispatching(t *testing.T) {
	for _, delay := range []time.Duration{0, 20 * time.Millisecond, 55 * time.Millisecond, 59 * time.Millisecond, 61 * time.Millisecond} {
		runner := &recordingRunner{}
		applet := newTestApplet(t, runner, false)
		ctx := context.Background()

		_, err := applet.SettingsChanged(ctx, map[string]interface{}{"shuffleInterval": 1})
		require.NoError(t, err)
		require.NoError(t, applet.Toggle(ctx))

		time.Sleep(delay)
		require.NoError(t, applet.Close(ctx))
		closed := len(runner.Launches())

		time.Sleep(100 * time.Millisecond)
		assert.Len(t, runner.Launches(), closed, "delay %s", delay)
		assert.False(t, applet.Snapshot().Running)
	}
}

func TestCloseTearsDownInOrder(t *testing.T) {
	runner := &recordingRunner{}
	applet := newTestApplet(t, runner, true)
	ctx := context.Background()

	events := applet.Subscribe(64)
	watcher := &fakeWatcher{}
	require.NoError(t, applet.Bind(watcher))
	require.NoError(t, applet.Toggle(ctx))

	require.NoError(t, applet.Close(ctx))
	assert.False(t, applet.Snapshot().Running)
	assert.Equal(t, 1, watcher.count())
	assert.Equal(t, [][]string{{"exit"}}, runner.Launches())

	for range events {
	}

	assert.ErrorIs(t, applet.Toggle(ctx), ErrClosed)
	_, err := applet.Command(ctx, dispatch.VerbNext)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = applet.SettingsChanged(ctx, map[string]interface{}{"volumeLevel": 10})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Len(t, runner.Launches(), 1)

	assert.NoError(t, applet.Close(ctx))
	assert.Equal(t, 1, watcher.count())

	late := &fakeWatcher{}
	assert.ErrorIs(t, applet.Bind(late), ErrClosed)
	assert.Equal(t, 1, late.count())
}

func TestCloseBoundsDrain(t *testing.T) {
	runner := &recordingRunner{hold: make(chan struct{})}
	defer close(runner.hold)
	applet := newTestApplet(t, runner, false)

	_, err := applet.Command(context.Background(), dispatch.VerbRandom)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = applet.Close(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, shuffletimer.Snapshot{IntervalMinutes: 5}, applet.Snapshot())
}
