package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dhcgn/msg-to-imap/chunks"
	"github.com/dhcgn/msg-to-imap/cmd"
	"github.com/dhcgn/msg-to-imap/config"
	"github.com/dhcgn/msg-to-imap/filter"
	"github.com/dhcgn/msg-to-imap/imap"
	"github.com/dhcgn/msg-to-imap/mbox"
	"github.com/dhcgn/msg-to-imap/msgdir"
	"github.com/dhcgn/msg-to-imap/progress"
	"github.com/dhcgn/msg-to-imap/runner"
	"github.com/dhcgn/msg-to-imap/stats"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "msg-to-imap",
		Short: "Import Outlook .msg files into an IMAP mailbox or an mbox archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting msg-to-imap", "input", cfg.Input, "target", target(cfg), "dryRun", cfg.DryRun)

			return run(cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewInspectCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func target(cfg config.Config) string {
	if cfg.UseIMAP() {
		return cfg.TargetFolder
	}
	return cfg.MboxOut
}

func run(cfg config.Config, logger *slog.Logger) error {
	r, err := runner.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	stats.NewReporter(r, logger)

	total, err := msgdir.CountFiles(cfg.Input, cfg.Recursive)
	if err != nil {
		logger.Warn("count input files", "err", err)
	}
	bar := progress.New(total, r.Tracker().Snapshot().Processed, cfg.Progress && cfg.LogLevel == "info")
	progress.NewReporter(r, bar, logger)

	parseOpts := chunks.Options{
		CodePage: cfg.CodePage,
		MaxDepth: cfg.MaxDepth,
		Logger:   logger,
	}
	if cfg.NormalizeOrder {
		parseOpts.Order = chunks.OrderNormalized
	}

	producerOpts := msgdir.Options{
		Input:     cfg.Input,
		Recursive: cfg.Recursive,
		FailFast:  cfg.FailFast,
		Parse:     parseOpts,
		Filter: filter.Options{
			IncludeHeader: cfg.IncludeHeader,
			IncludeBody:   cfg.IncludeBody,
			ExcludeHeader: cfg.ExcludeHeader,
			ExcludeBody:   cfg.ExcludeBody,
		},
	}
	if _, err := msgdir.NewProducer(producerOpts, r, logger); err != nil {
		return fmt.Errorf("msgdir.NewProducer: %w", err)
	}

	if !cfg.UseIMAP() {
		if _, err := mbox.NewExporter(mbox.Options{Path: cfg.MboxOut, DryRun: cfg.DryRun}, r, logger); err != nil {
			return fmt.Errorf("mbox.NewExporter: %w", err)
		}
		return r.Start()
	}

	uploaderOpts := imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		TargetFolder:       cfg.TargetFolder,
		DryRun:             cfg.DryRun,
		SkipExisting:       cfg.SkipExisting,
	}
	if _, err := imap.NewUploader(uploaderOpts, r, logger); err != nil {
		return fmt.Errorf("imap.NewUploader: %w", err)
	}

	return r.Start()
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), cleanup, nil
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, cleanup, err
	}
	logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("msg-to-imap-%s.log", time.Now().Format("20060102T150405")))
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, cleanup, err
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
	return slog.New(handler), file.Close, nil
}
