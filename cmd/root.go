package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gkatanacio/batch-downloader/config"
	"github.com/gkatanacio/batch-downloader/download"
	"github.com/gkatanacio/batch-downloader/history"
	"github.com/gkatanacio/batch-downloader/internal/logging"
	"github.com/gkatanacio/batch-downloader/status"
)

// newRootCmd builds the bdl command tree around a fresh viper instance.
func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "bdl --urls FILE",
		Short:        "Batch downloader that fetches a list of URLs concurrently, with retries, hashing and progress reporting.",
		Example:      "./bdl --urls urls.txt -o downloads -c 8 -r 3 -t 30",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return runBatch(cmd, cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.String("urls", "", "path to text file with URLs (one per line)")
	flags.StringP("out", "o", download.DefaultOutDir, "output directory")
	flags.IntP("concurrency", "c", download.DefaultConcurrency, "max concurrent downloads")
	flags.IntP("retries", "r", download.DefaultRetries, "retries per file")
	flags.Float64P("timeout", "t", download.DefaultTimeout.Seconds(), "per-request timeout in seconds")
	flags.Bool("sequential", false, "download one file at a time (for benchmarking)")
	flags.Int64("limit-rate", 0, "combined transfer rate limit in bytes per second, 0 = unlimited (throttled time counts against --timeout)")
	flags.String("status-addr", "", "serve progress over HTTP on this address (e.g. 127.0.0.1:8090)")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&configFile, "config", "", "config file (default ./bdl.yaml if present)")
	persistent.String("history", "", "SQLite database recording finished batches")
	persistent.String("log-level", "info", "log level (debug, info, warn, error)")
	persistent.String("log-file", "", "write JSON logs to this file instead of stderr")

	bindFlags(v, rootCmd, map[string]string{
		"urls":        "urls",
		"out_dir":     "out",
		"concurrency": "concurrency",
		"retries":     "retries",
		"timeout":     "timeout",
		"sequential":  "sequential",
		"limit_rate":  "limit-rate",
		"status_addr": "status-addr",
		"history":     "history",
		"log.level":   "log-level",
		"log.file":    "log-file",
	})

	rootCmd.AddCommand(newHistoryCmd(v, &configFile))

	return rootCmd
}

// bindFlags makes each flag the highest-precedence source for its config key.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}

func runBatch(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.URLs == "" {
		return errors.New("a URL list is required (--urls or BDL_URLS)")
	}

	logger, logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	urls, err := ReadURLs(cfg.URLs)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		logger.Warn("no URLs to download", "file", cfg.URLs)
	}

	svc, err := download.NewService(cfg.DownloadOptions(), logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StatusAddr != "" {
		srv, err := status.Start(cfg.StatusAddr, svc, logger)
		if err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		renderProgress(progressCtx, cmd.ErrOrStderr(), svc.Progress(), time.Second)
	}()

	report, err := svc.Download(ctx, urls)
	stopProgress()
	<-progressDone
	if err != nil {
		return err
	}

	var historyErr error
	if cfg.History != "" {
		historyErr = saveHistory(cfg.History, report)
	}

	PrintSummary(cmd.OutOrStdout(), report)

	return historyErr
}

func saveHistory(path string, report *download.Report) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(report); err != nil {
		return fmt.Errorf("failed to record batch %s: %w", report.ID, err)
	}

	return nil
}
