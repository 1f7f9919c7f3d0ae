package dispatch

import (
	"bytes"
	"errors"
	"os/exec"
)

// Process is a launched invocation.
type Process interface {
	// Wait blocks until the process exits.
	Wait() Outcome
}

// Outcome is what a finished process reported.
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Runner launches the wallpaper manager.
type Runner interface {
	Start(path string, argv []string) (Process, error)
}

// ExecRunner starts real subprocesses.
type ExecRunner struct{}

// Start launches path with argv, capturing stdout and stderr.
func (ExecRunner) Start(path string, argv []string) (Process, error) {
	cmd := exec.Command(path, argv...)
	process := &execProcess{cmd: cmd}
	cmd.Stdout = &process.stdout
	cmd.Stderr = &process.stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return process, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (process *execProcess) Wait() Outcome {
	err := process.cmd.Wait()
	outcome := Outcome{
		Stdout: process.stdout.String(),
		Stderr: process.stderr.String(),
		Err:    err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
	} else if err != nil {
		outcome.ExitCode = -1
	}
	return outcome
}
