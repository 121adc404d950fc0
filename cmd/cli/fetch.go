package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/dy-extract-go/internal/app"
	"github.com/yourusername/dy-extract-go/pkg/logger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Acquire share links locally, without the server",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		profile, _ := cmd.Flags().GetString("profile")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("verbose")

		config, err := app.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		if output != "" {
			config.Download.OutputDir = output
		}
		if profile != "" {
			config.Browser.ProfileDir = profile
		}
		if concurrency > 0 {
			config.Download.ConcurrentLimit = concurrency
		}

		level := config.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err := logger.New(logger.Config{Level: level, Format: config.Logging.Format, OutputPath: "stderr"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
		defer log.Sync()

		multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
			Level:   config.Logging.Level,
			LogsDir: config.Download.LogsDir,
		})
		if err != nil {
			log.Warn("Attempt log disabled", zap.Error(err))
			multiLog = nil
		} else {
			defer multiLog.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine := app.NewEngine(config, multiLog, log)
		results := app.NewBatchRunner(engine, config.Download.ConcurrentLimit, multiLog, log).Run(ctx, args)

		if jsonOutput {
			if len(results) == 1 {
				printJSON(results[0])
			} else {
				printJSON(results)
			}
		} else {
			printResults(results)
		}

		for _, r := range results {
			if !r.Saved() {
				os.Exit(1)
			}
		}
	},
}

func init() {
	fetchCmd.Flags().StringP("output", "o", "", "Output directory (overrides download.output_dir)")
	fetchCmd.Flags().StringP("profile", "p", "", "Persistent browser profile directory")
	fetchCmd.Flags().IntP("concurrency", "n", 0, "Parallel runs (overrides download.concurrent_limit)")
	fetchCmd.Flags().BoolP("json", "j", false, "Output results as JSON")
	fetchCmd.Flags().BoolP("verbose", "v", false, "Debug logging")
}
