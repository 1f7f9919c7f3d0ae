package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"wallshuffle/internal/config"
	"wallshuffle/internal/core/model"
	"wallshuffle/internal/core/reconcile"
	"wallshuffle/internal/dispatch"
	"wallshuffle/internal/log"
	"wallshuffle/internal/platform"
	"wallshuffle/internal/storage"
)

const forwardTimeout = 30 * time.Second

var (
	configPath string
	logLevel   string
	ctlLocal   bool
)

var rootCmd = &cobra.Command{
	Use:   "wallshuffle",
	Short: "Tray widget that shuffles animated wallpapers on a timer",
	Long:  "Runs the wallpaper shuffle tray widget. Subcommands talk to the wallpaper manager directly or through the running widget.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runTray(cfg)
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wallshuffle %s\n", Version)
	},
}

var ctlCmd = &cobra.Command{
	Use:   "ctl <verb> [args...]",
	Short: "Send one command to the wallpaper manager",
	Long:  "Send one command (next, prev, random, shuffle, queue, exit, settings <field> <value>, load <id>) and wait for its result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		verb, err := dispatch.ParseVerb(args[0])
		if err != nil {
			return err
		}
		command := dispatch.Command{Verb: verb, Args: args[1:]}
		if err := command.Validate(); err != nil {
			return err
		}
		return runOrForward(cmd, cfg, forwardRequest{Action: actionCommand, Verb: args[0], Args: command.Args}, func(ctx context.Context) (string, error) {
			if verb == dispatch.VerbSettings {
				normalized, err := normalizeSetting(cfg, command.Args[0], command.Args[1])
				if err != nil {
					return "", err
				}
				command = dispatch.Settings(command.Args[0], normalized)
			}
			return runLocal(ctx, cfg, command)
		})
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Send every stored setting in one manager invocation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runOrForward(cmd, cfg, forwardRequest{Action: actionApply}, func(ctx context.Context) (string, error) {
			fs := afero.NewOsFs()
			schema, err := storage.LoadSchema(fs, cfg.SchemaPath, model.DefaultSchema())
			if err != nil {
				return "", err
			}
			values, err := storage.NewSettingsStore(fs, cfg.SettingsPath).Load()
			if err != nil {
				return "", err
			}
			reconciler := reconcile.New(reconcile.Config{
				Schema:  schema,
				Applier: reconcile.ApplierFunc(func(model.Field, model.Value) error { return nil }),
				Logger:  log.GetLogger(),
			})
			reconciler.Reconcile(values)
			return runLocal(ctx, cfg, dispatch.Command{Verb: dispatch.VerbApply, Args: reconciler.BulkArgs()})
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Start or stop the running tray's shuffle timer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return trayOnly(cmd, forwardRequest{Action: actionToggle})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the running tray's timer status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return trayOnly(cmd, forwardRequest{Action: actionStatus})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the wallpaper manager's persisted state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		state, err := storage.LoadState(afero.NewOsFs(), cfg.StatePath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, state.Summary())
		keys := make([]string, 0, len(state.Entries))
		for key := range state.Entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "  %s = %v\n", key, state.Entries[key].Effective())
		}
		return nil
	},
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	if cfg.ConfigFile != "" {
		log.Debug("configuration loaded", "file", cfg.ConfigFile)
	}
	return cfg, nil
}

// runOrForward hands request to the running tray when there is one so its
// timer and reconciler stay authoritative, and falls back to local.
func runOrForward(cmd *cobra.Command, cfg config.Config, request forwardRequest, local func(context.Context) (string, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), forwardTimeout)
	defer cancel()

	var output string
	var err error
	if ctlLocal {
		output, err = local(ctx)
	} else {
		output, err = forward(request, forwardTimeout)
		if errors.Is(err, platform.ErrNotRunning) {
			log.Debug("no running tray, dispatching locally")
			output, err = local(ctx)
		}
	}
	if output != "" {
		fmt.Fprintln(cmd.OutOrStdout(), output)
	}
	return err
}

func trayOnly(cmd *cobra.Command, request forwardRequest) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	output, err := forward(request, forwardTimeout)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

func normalizeSetting(cfg config.Config, name, raw string) (string, error) {
	schema, err := storage.LoadSchema(afero.NewOsFs(), cfg.SchemaPath, model.DefaultSchema())
	if err != nil {
		return "", err
	}
	field, ok := schema.Field(name)
	if !ok {
		return "", fmt.Errorf("set %s: %w", name, reconcile.ErrUnknownField)
	}
	if field.IsLocal() {
		return "", fmt.Errorf("set %s: local to the tray, not a manager setting", name)
	}
	value, err := field.Normalize(raw)
	if err != nil {
		log.Warn("malformed setting, using default", "field", name, "value", raw, "default", value)
	}
	return value.String(), nil
}

func runLocal(ctx context.Context, cfg config.Config, command dispatch.Command) (string, error) {
	dispatcher := dispatch.New(dispatch.Config{
		ManagerPath: cfg.ManagerPath,
		Logger:      log.GetLogger(),
	})
	invocation, err := dispatcher.Dispatch(command)
	if err != nil {
		return "", err
	}
	result, err := invocation.Wait(ctx)
	if err != nil {
		return "", err
	}
	return describeResult(result)
}

func describeResult(result dispatch.Result) (string, error) {
	if result.Succeeded() {
		return result.Stdout, nil
	}
	detail := result.Stderr
	if detail == "" && result.Err != nil {
		detail = result.Err.Error()
	}
	return result.Stdout, fmt.Errorf("%s exited with status %d: %s",
		strings.TrimSpace("wallpaper manager "+string(result.Command.Verb)), result.ExitCode, detail)
}
