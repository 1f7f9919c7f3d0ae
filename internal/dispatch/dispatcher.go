// Package dispatch turns discrete user actions into invocations of the
// external wallpaper manager. Dispatch returns as soon as the process is
// launched; completion is observed through an Invocation.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"wallshuffle/internal/log"
)

// ErrLaunch indicates the wallpaper manager could not be started at all.
var ErrLaunch = errors.New("launch wallpaper manager")

// Config contains options for Dispatcher.
type Config struct {
	// ManagerPath is the wallpaper manager executable.
	ManagerPath string
	Runner      Runner
	// Post delivers completion callbacks to the owner's event loop. When nil
	// they run on the goroutine that waited for the process.
	Post func(func()) error
	// OnComplete observes every finished invocation.
	OnComplete func(Result)
	Logger     *log.Logger
}

// Result describes a finished invocation.
type Result struct {
	Command  Command
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	Started  time.Time
	Finished time.Time
}

// Succeeded reports a zero exit status.
func (result Result) Succeeded() bool {
	return result.Err == nil && result.ExitCode == 0
}

// Invocation is the future of one dispatched command. Cancellation is not
// supported: once launched, a command runs to completion.
type Invocation struct {
	command Command
	done    chan struct{}
	result  Result
}

// Command returns the dispatched command.
func (invocation *Invocation) Command() Command {
	return invocation.command
}

// Done is closed when the process has exited.
func (invocation *Invocation) Done() <-chan struct{} {
	return invocation.done
}

// Wait blocks until the process exits or ctx ends.
func (invocation *Invocation) Wait(ctx context.Context) (Result, error) {
	select {
	case <-invocation.done:
		return invocation.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Dispatcher issues wallpaper manager invocations.
type Dispatcher struct {
	managerPath string
	runner      Runner
	post        func(func()) error
	onComplete  func(Result)
	logger      *log.Logger

	// idle is closed whenever pending drops to zero and replaced on the
	// next launch.
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

// New creates a Dispatcher.
func New(config Config) *Dispatcher {
	if config.Runner == nil {
		config.Runner = ExecRunner{}
	}
	idle := make(chan struct{})
	close(idle)
	return &Dispatcher{
		idle:        idle,
		managerPath: config.ManagerPath,
		runner:      config.Runner,
		post:        config.Post,
		onComplete:  config.OnComplete,
		logger:      log.Or(config.Logger),
	}
}

// Dispatch validates and launches command without waiting for it to finish.
// A launch failure is logged and returned wrapped in ErrLaunch.
func (dispatcher *Dispatcher) Dispatch(command Command) (invocation *Invocation, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %s: runner panicked: %v", ErrLaunch, command.Verb, recovered)
			dispatcher.logger.Error("dispatch failed", "verb", command.Verb, "args", command.Args, "err", err)
			invocation = nil
		}
	}()

	if err := command.Validate(); err != nil {
		dispatcher.logger.Warn("rejected command", "verb", command.Verb, "args", command.Args, "err", err)
		return nil, err
	}
	if dispatcher.managerPath == "" {
		err := fmt.Errorf("%w: %s: manager path not configured", ErrLaunch, command.Verb)
		dispatcher.logger.Error("dispatch failed", "verb", command.Verb, "err", err)
		return nil, err
	}

	argv := command.Argv()
	started := time.Now()
	process, err := dispatcher.runner.Start(dispatcher.managerPath, argv)
	if err != nil {
		err = fmt.Errorf("%w: %s %s: %v", ErrLaunch, dispatcher.managerPath, strings.Join(argv, " "), err)
		dispatcher.logger.Error("dispatch failed", "verb", command.Verb, "args", command.Args, "err", err)
		return nil, err
	}
	dispatcher.logger.Debug("dispatched", "verb", command.Verb, "args", command.Args)

	invocation = &Invocation{
		command: command,
		done:    make(chan struct{}),
	}
	dispatcher.track(1)
	go dispatcher.await(invocation, process, started)
	return invocation, nil
}

// InFlight returns the number of launched invocations that have not exited.
func (dispatcher *Dispatcher) InFlight() int {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	return dispatcher.pending
}

// Drain waits until no invocation is in flight or ctx ends. Dispatching
// concurrently is allowed; Drain then also waits for the new invocations.
func (dispatcher *Dispatcher) Drain(ctx context.Context) error {
	dispatcher.mu.Lock()
	idle := dispatcher.idle
	dispatcher.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain dispatcher with %d in flight: %w", dispatcher.InFlight(), ctx.Err())
	}
}

func (dispatcher *Dispatcher) await(invocation *Invocation, process Process, started time.Time) {
	defer dispatcher.track(-1)

	outcome := process.Wait()
	result := Result{
		Command:  invocation.command,
		Stdout:   strings.TrimSpace(outcome.Stdout),
		Stderr:   strings.TrimSpace(outcome.Stderr),
		ExitCode: outcome.ExitCode,
		Err:      outcome.Err,
		Started:  started,
		Finished: time.Now(),
	}
	invocation.result = result
	close(invocation.done)

	dispatcher.logResult(result)
	if dispatcher.onComplete == nil {
		return
	}
	notify := func() { dispatcher.onComplete(result) }
	if dispatcher.post == nil {
		notify()
		return
	}
	if err := dispatcher.post(notify); err != nil {
		dispatcher.logger.Debug("completion dropped", "verb", result.Command.Verb, "err", err)
	}
}

func (dispatcher *Dispatcher) logResult(result Result) {
	verb := result.Command.Verb
	if result.Succeeded() {
		if result.Stdout != "" {
			dispatcher.logger.Info("wallpaper manager output", "verb", verb, "args", result.Command.Args, "stdout", result.Stdout)
		}
		return
	}
	dispatcher.logger.Error("wallpaper manager failed",
		"verb", verb,
		"args", result.Command.Args,
		"exit_code", result.ExitCode,
		"stderr", result.Stderr,
		"err", result.Err,
	)
}

func (dispatcher *Dispatcher) track(delta int) {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if dispatcher.pending == 0 && delta > 0 {
		dispatcher.idle = make(chan struct{})
	}
	dispatcher.pending += delta
	if dispatcher.pending == 0 {
		close(dispatcher.idle)
	}
}
