package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiremsg/internal/config"
	applog "github.com/vovakirdan/wiremsg/internal/log"
)

var (
	configPath string
	logLevel   string
)

// rootCmd runs the server when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:           "wiremsg",
	Short:         "Guarded direct-messaging server",
	SilenceUsage:  true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: trace, debug, info, warn, error")
}

// loadConfig resolves configuration and builds the logger it asks for.
func loadConfig() (config.Config, string, *zerolog.Logger, error) {
	bootstrap := applog.New(levelOr("info"))
	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return cfg, path, bootstrap, fmt.Errorf("load config: %w", err)
	}
	logger := applog.NewWithFormat(levelOr(cfg.LogLevel), cfg.LogFormat, os.Stdout)
	return cfg, path, logger, nil
}

func levelOr(fallback string) string {
	if logLevel != "" {
		return logLevel
	}
	return fallback
}
