package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backup workflow",
	Long: `Execute the complete backup workflow:
1. Send the start message
2. Wake-on-LAN of the database host (if configured)
3. Check MySQL connectivity
4. Export with mysqldump
5. Compress the dump
6. Send the archive to Telegram
7. Delete the dump and the archive
8. SSH shutdown of the database host (if configured)
9. Send the run log to Telegram
10. Remove the working directory

Exits with status 1 when any stage fails.`,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	start := time.Now()
	logFile, logPath := openLogFile(cfg.Workspace.BaseDir, runner.LogFileName(start))
	if logFile != nil {
		defer func() { _ = logFile.Close() }()
		cfg.Workspace.LogFile = logPath
		log.Logger = newLogger(logFile)
	}

	log.Info().
		Str("host", cfg.MySQL.Host).
		Int("port", cfg.MySQL.Port).
		Str("database", cfg.MySQL.DatabaseLabel()).
		Str("codec", cfg.Compression.Codec).
		Str("log_file", cfg.Workspace.LogFile).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		log.Warn().Str("signal", sig.String()).Msg("received signal, finishing cleanup")
		cancel()
	}()

	result, err := runner.New(log.Logger).Run(ctx, *cfg)
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	if !result.Succeeded() {
		var failed []string
		for _, o := range result.Stages {
			if !o.Success {
				failed = append(failed, o.Stage)
			}
		}
		log.Error().
			Strs("failed_stages", failed).
			Dur("duration", result.Duration).
			Msg("backup finished with failures")
		return fmt.Errorf("stages failed: %s", strings.Join(failed, ", "))
	}

	log.Info().
		Str("run_id", result.RunID).
		Dur("duration", result.Duration).
		Msg("backup completed successfully")
	return nil
}

// openLogFile creates the run log in dir, falling back to the working directory.
// It returns nil when neither location is writable.
func openLogFile(dir, name string) (*os.File, string) {
	for _, candidate := range []string{filepath.Join(dir, name), name} {
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path built from config
		if err == nil {
			abs, absErr := filepath.Abs(candidate)
			if absErr != nil {
				abs = candidate
			}
			return f, abs
		}
		log.Warn().Err(err).Str("file", candidate).Msg("cannot create log file")
	}
	return nil, ""
}
