package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallshuffle/internal/applet"
	"wallshuffle/internal/config"
	"wallshuffle/internal/dispatch"
	"wallshuffle/internal/platform"
)

const (
	actionCommand = "command"
	actionApply   = "apply"
	actionToggle  = "toggle"
	actionStatus  = "status"
)

// forwardRequest is one line on the single-instance socket.
type forwardRequest struct {
	Action string   `json:"action"`
	Verb   string   `json:"verb,omitempty"`
	Args   []string `json:"args,omitempty"`
}

func forward(request forwardRequest, timeout time.Duration) (string, error) {
	line, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	return platform.Forward(config.AppName, string(line), timeout)
}

// requestHandler answers forwarded requests against the tray's applet.
func requestHandler(ctx context.Context, widget *applet.Applet, timeout time.Duration) platform.Handler {
	return func(line string) (string, error) {
		var request forwardRequest
		if err := json.Unmarshal([]byte(line), &request); err != nil {
			return "", fmt.Errorf("decode request: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		switch request.Action {
		case actionCommand:
			verb, err := dispatch.ParseVerb(request.Verb)
			if err != nil {
				return "", err
			}
			if verb == dispatch.VerbSettings {
				return setField(ctx, widget, request.Args)
			}
			invocation, err := widget.Command(ctx, verb, request.Args...)
			if err != nil {
				return "", err
			}
			return waitResult(ctx, invocation)
		case actionApply:
			invocation, err := widget.ApplyAll(ctx)
			if err != nil {
				return "", err
			}
			return waitResult(ctx, invocation)
		case actionToggle:
			if err := widget.Toggle(ctx); err != nil {
				return "", err
			}
			return widget.Tooltip(""), nil
		case actionStatus:
			return widget.Tooltip(""), nil
		default:
			return "", fmt.Errorf("unknown action %q", request.Action)
		}
	}
}

// setField routes `settings <field> <value>` through the reconciler so the
// tray's last-applied values stay in step.
func setField(ctx context.Context, widget *applet.Applet, args []string) (string, error) {
	command := dispatch.Command{Verb: dispatch.VerbSettings, Args: args}
	if err := command.Validate(); err != nil {
		return "", err
	}
	report, err := widget.SetField(ctx, args[0], args[1])
	if err != nil {
		return "", err
	}
	if report.Changed() {
		return fmt.Sprintf("%s applied", args[0]), nil
	}
	return fmt.Sprintf("%s unchanged", args[0]), nil
}

func waitResult(ctx context.Context, invocation *dispatch.Invocation) (string, error) {
	result, err := invocation.Wait(ctx)
	if err != nil {
		return "", err
	}
	return describeResult(result)
}
