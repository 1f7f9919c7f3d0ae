package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutostartLifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	service := NewServiceWithFs(fs, "/home/user/.config")

	enabled, err := service.AutostartEnabled("Wall Shuffle")
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, service.EnableAutostart("Wall Shuffle", "/usr/local/bin/wall shuffle"))
	data, err := afero.ReadFile(fs, "/home/user/.config/autostart/wall-shuffle.desktop")
	require.NoError(t, err)
	assert.Contains(t, string(data), "Name=Wall Shuffle\n")
	assert.Contains(t, string(data), "Exec=\"/usr/local/bin/wall shuffle\"\n")

	enabled, err = service.AutostartEnabled("Wall Shuffle")
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, service.DisableAutostart("Wall Shuffle"))
	require.NoError(t, service.DisableAutostart("Wall Shuffle"))
	enabled, err = service.AutostartEnabled("Wall Shuffle")
	require.NoError(t, err)
	assert.False(t, enabled)

	assert.Error(t, service.EnableAutostart("", "/bin/true"))
	assert.Error(t, service.EnableAutostart("x", ""))
}

func TestSingleInstanceForwarding(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	appName := fmt.Sprintf("wallshuffle-test-%d", time.Now().UnixNano())

	_, err := Forward(appName, "next", 200*time.Millisecond)
	require.ErrorIs(t, err, ErrNotRunning)

	guard, err := AcquireSingleInstance(appName)
	if err != nil {
		t.Skipf("cannot bind test port: %v", err)
	}
	defer guard.Release()

	_, err = AcquireSingleInstance(appName)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	socket := guard.SocketPath()
	assert.Equal(t, filepath.Join(runtimeDir, appName+".sock"), socket)
	info, err := os.Stat(socket)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, info.Mode().Type())
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	go guard.Serve(func(request string) (string, error) {
		if request == "fail" {
			return "", errors.New("manager\nnot found")
		}
		return strings.ToUpper(request), nil
	})

	reply, err := Forward(appName, "settings volumeLevel 35", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "SETTINGS VOLUMELEVEL 35", reply)

	_, err = Forward(appName, "fail", time.Second)
	assert.EqualError(t, err, "manager not found")

	require.NoError(t, guard.Release())
	assert.NoError(t, guard.Release())
	assert.NoFileExists(t, socket)

	_, err = Forward(appName, "next", 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSingleInstanceReplacesStaleSocket(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	appName := fmt.Sprintf("wallshuffle-stale-%d", time.Now().UnixNano())
	stale := filepath.Join(runtimeDir, appName+".sock")
	require.NoError(t, os.WriteFile(stale, nil, 0o666))

	guard, err := AcquireSingleInstance(appName)
	if errors.Is(err, ErrAlreadyRunning) {
		t.Skip("cannot bind test port")
	}
	require.NoError(t, err)
	defer guard.Release()

	go guard.Serve(func(request string) (string, error) { return request, nil })
	reply, err := Forward(appName, "status", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "status", reply)
}
