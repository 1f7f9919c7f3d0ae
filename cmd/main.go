package main

import (
	"wallshuffle/internal/log"
)

var Version = "dev"

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	ctlCmd.Flags().BoolVar(&ctlLocal, "local", false, "run the command directly instead of through the running tray")
	applyCmd.Flags().BoolVar(&ctlLocal, "local", false, "run the command directly instead of through the running tray")

	rootCmd.AddCommand(versionCmd, ctlCmd, applyCmd, toggleCmd, statusCmd, stateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
