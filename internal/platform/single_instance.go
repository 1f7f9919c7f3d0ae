package platform

import (
	"bufio"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrAlreadyRunning indicates another instance already holds the lock.
var ErrAlreadyRunning = errors.New("instance already running")

// ErrNotRunning indicates no instance answered a forwarded request.
var ErrNotRunning = errors.New("no running instance")

// Handler answers one request line forwarded by another process.
type Handler func(request string) (string, error)

// InstanceGuard holds the single-instance lock on a localhost port. Requests
// from later invocations arrive on a Unix socket readable only by the owner.
type InstanceGuard struct {
	lock       net.Listener
	listener   net.Listener
	socketPath string

	serveOnce sync.Once
	closeOnce sync.Once
}

// AcquireSingleInstance binds a deterministic localhost port as the lock and
// opens the request socket.
func AcquireSingleInstance(appName string) (*InstanceGuard, error) {
	lock, err := net.Listen("tcp", instanceAddress(appName))
	if err != nil {
		return nil, ErrAlreadyRunning
	}
	path, err := socketPath(appName)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	// The port is held, so any socket file left here is stale.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		_ = lock.Close()
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		_ = lock.Close()
		return nil, fmt.Errorf("restrict socket: %w", err)
	}
	return &InstanceGuard{lock: lock, listener: listener, socketPath: path}, nil
}

// Serve answers forwarded requests with handler until Release. It returns
// immediately when called more than once.
func (guard *InstanceGuard) Serve(handler Handler) {
	started := false
	guard.serveOnce.Do(func() { started = true })
	if !started {
		return
	}
	for {
		conn, err := guard.listener.Accept()
		if err != nil {
			return
		}
		go answer(conn, handler)
	}
}

// Release closes the request socket and frees the lock.
func (guard *InstanceGuard) Release() error {
	if guard == nil || guard.lock == nil {
		return nil
	}
	var err error
	guard.closeOnce.Do(func() {
		err = errors.Join(guard.listener.Close(), guard.lock.Close())
		if removeErr := os.Remove(guard.socketPath); removeErr != nil && !os.IsNotExist(removeErr) {
			err = errors.Join(err, removeErr)
		}
	})
	return err
}

// SocketPath returns the request socket path.
func (guard *InstanceGuard) SocketPath() string {
	if guard == nil {
		return ""
	}
	return guard.socketPath
}

// Forward sends request to the running instance of appName and returns its
// reply. ErrNotRunning is returned when nothing is listening.
func Forward(appName, request string, timeout time.Duration) (string, error) {
	path, err := socketPath(appName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := fmt.Fprintln(conn, strings.TrimSpace(request)); err != nil {
		return "", fmt.Errorf("forward request: %w", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && reply == "" {
		return "", fmt.Errorf("read reply: %w", err)
	}
	status, message, _ := strings.Cut(strings.TrimSpace(reply), " ")
	switch status {
	case "ok":
		return message, nil
	case "error":
		return "", errors.New(message)
	default:
		return "", fmt.Errorf("malformed reply %q", reply)
	}
}

func answer(conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	request, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && request == "" {
		return
	}
	reply, err := handler(strings.TrimSpace(request))
	if err != nil {
		fmt.Fprintf(conn, "error %s\n", oneLine(err.Error()))
		return
	}
	fmt.Fprintf(conn, "ok %s\n", oneLine(reply))
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// socketPath places the request socket in $XDG_RUNTIME_DIR, falling back to
// a per-user directory under the system temp dir.
func socketPath(appName string) (string, error) {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName+".sock"), nil
	}
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", appName, os.Getuid()))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create socket dir: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat socket dir: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return "", fmt.Errorf("socket dir %s is accessible to other users", dir)
	}
	return filepath.Join(dir, "instance.sock"), nil
}

func instanceAddress(appName string) string {
	return fmt.Sprintf("127.0.0.1:%d", portFromName(appName))
}

func portFromName(appName string) int {
	const (
		minPort = 20000
		maxPort = 39999
	)
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(appName))
	rangeSize := maxPort - minPort + 1
	return minPort + int(hash.Sum32()%uint32(rangeSize))
}
