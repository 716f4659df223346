package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aschepis/backscratcher/claw/config"
	clawlogger "github.com/aschepis/backscratcher/claw/logger"
)

var version = "dev"

type globalFlags struct {
	configPath string
	logFile    string
	pretty     bool
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "claw",
		Short:         "Gravity Claw, a personal Telegram assistant with long-term memory",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", config.GetConfigPath(), "Path to config file")
	root.PersistentFlags().StringVar(&flags.logFile, "logfile", "", "Path to log file. If not set, logs to stdout")
	root.PersistentFlags().BoolVar(&flags.pretty, "pretty", false, "Use pretty console output (only valid when logfile is not set)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	serve := newServeCommand(flags)
	root.AddCommand(
		serve,
		newReindexCommand(flags),
		newRecallCommand(flags),
		newHistoryCommand(flags),
		newConfigCommand(flags),
	)
	// Running claw with no subcommand starts the bot.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// setup reads the configuration and builds the logger. validate selects
// between the full bot checks and a plain read for offline commands.
func setup(flags *globalFlags, validate bool) (*config.Config, zerolog.Logger, error) {
	read := config.Read
	if validate {
		read = config.Load
	}
	cfg, err := read(flags.configPath)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	opts := clawlogger.Options{File: cfg.Log.File, Pretty: cfg.Log.Pretty, Level: cfg.Log.Level}
	if flags.logFile != "" {
		opts.File = flags.logFile
		opts.Pretty = false
	}
	if flags.pretty {
		opts.Pretty = true
	}
	if flags.logLevel != "" {
		opts.Level = flags.logLevel
	}
	logger, err := clawlogger.New(opts)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
