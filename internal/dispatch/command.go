package dispatch

import (
	"errors"
	"fmt"
)

// ErrUnknownVerb indicates a command the wallpaper manager does not accept.
var ErrUnknownVerb = errors.New("unknown verb")

// Verb is the first argument passed to the wallpaper manager.
type Verb string

const (
	// VerbApply is the bulk flag invocation; it puts no verb token on the
	// command line, only flags.
	VerbApply    Verb = ""
	VerbNext     Verb = "next"
	VerbPrev     Verb = "prev"
	VerbRandom   Verb = "random"
	VerbShuffle  Verb = "shuffle"
	VerbQueue    Verb = "queue"
	VerbExit     Verb = "exit"
	VerbSettings Verb = "settings"
	VerbLoad     Verb = "load"
)

// ParseVerb maps a user supplied verb name to a Verb.
func ParseVerb(name string) (Verb, error) {
	verb := Verb(name)
	switch verb {
	case VerbNext, VerbPrev, VerbRandom, VerbShuffle, VerbQueue, VerbExit, VerbSettings, VerbLoad:
		return verb, nil
	case "apply":
		return VerbApply, nil
	}
	return "", fmt.Errorf("parse verb %q: %w", name, ErrUnknownVerb)
}

// String returns the verb name used in logs.
func (verb Verb) String() string {
	if verb == VerbApply {
		return "apply"
	}
	return string(verb)
}

// Command is a single pending invocation of the wallpaper manager.
type Command struct {
	Verb Verb
	Args []string
}

// Validate checks argument counts per verb.
func (command Command) Validate() error {
	switch command.Verb {
	case VerbNext, VerbPrev, VerbRandom, VerbShuffle, VerbExit:
		if len(command.Args) != 0 {
			return fmt.Errorf("validate %s: takes no arguments", command.Verb)
		}
	case VerbQueue:
	case VerbSettings:
		if len(command.Args) != 2 || command.Args[0] == "" || command.Args[1] == "" {
			return fmt.Errorf("validate %s: want <field> <value>, got %q", command.Verb, command.Args)
		}
	case VerbLoad:
		if len(command.Args) != 1 || command.Args[0] == "" {
			return fmt.Errorf("validate %s: want <wallpaper-id>, got %q", command.Verb, command.Args)
		}
	case VerbApply:
		if len(command.Args) == 0 {
			return fmt.Errorf("validate %s: no flags to apply", command.Verb)
		}
	default:
		return fmt.Errorf("validate %q: %w", string(command.Verb), ErrUnknownVerb)
	}
	return nil
}

// Argv returns the arguments after the executable path.
func (command Command) Argv() []string {
	if command.Verb == VerbApply {
		return append([]string(nil), command.Args...)
	}
	return append([]string{string(command.Verb)}, command.Args...)
}

// Settings builds a `settings <field> <value>` command.
func Settings(field, value string) Command {
	return Command{Verb: VerbSettings, Args: []string{field, value}}
}
