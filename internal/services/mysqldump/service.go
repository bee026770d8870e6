// Package mysqldump exports MySQL databases with the mysqldump utility.
package mysqldump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/rs/zerolog"
)

// previewBytes is how much of a suspiciously small dump is logged.
const previewBytes = 512

// Service defines the interface for MySQL export operations.
type Service interface {
	Dump(ctx context.Context, cfg models.MySQLConfig, outputPath string) (*models.DumpResult, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	// ExecuteToFile runs name with args, writing stdout to outputPath, and returns captured stderr.
	ExecuteToFile(ctx context.Context, env []string, outputPath string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// ExecuteToFile runs the dump binary and streams its output into outputPath.
func (e *DefaultExecutor) ExecuteToFile(ctx context.Context, env []string, outputPath string, name string, args ...string) ([]byte, error) {
	binary, err := exec.LookPath(name)
	if err != nil {
		return nil, models.Wrap(models.ErrNotFound, fmt.Sprintf("%s is not installed or not in PATH", name), err)
	}

	output, err := os.Create(outputPath) //nolint:gosec // outputPath is controlled by caller
	if err != nil {
		return nil, models.Wrap(models.ErrIO, "failed to create output file", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = output
	cmd.Stderr = &stderr
	cmd.WaitDelay = 10 * time.Second

	runErr := cmd.Run()
	closeErr := output.Close()

	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return stderr.Bytes(), models.Wrap(models.ErrTimeout, fmt.Sprintf("%s did not finish in time", name), ctx.Err())
		}
		if ctx.Err() != nil {
			return stderr.Bytes(), fmt.Errorf("%s interrupted: %w", name, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return stderr.Bytes(), fmt.Errorf("%w: %s exited with code %d: %s", models.ErrNonZeroExit, name, exitErr.ExitCode(), msg)
		}
		return stderr.Bytes(), models.Wrap(models.ErrIO, fmt.Sprintf("failed to run %s", name), runErr)
	}

	if closeErr != nil {
		return stderr.Bytes(), models.Wrap(models.ErrIO, "failed to close output file", closeErr)
	}

	return stderr.Bytes(), nil
}

// Impl implements the mysqldump Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new mysqldump service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new mysqldump service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// BuildArgs returns the mysqldump arguments for cfg. The password is never part of them.
func BuildArgs(cfg models.MySQLConfig) []string {
	args := []string{
		"--host=" + cfg.Host,
		"--port=" + strconv.Itoa(cfg.Port),
		"--user=" + cfg.Username,
		"--single-transaction",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		"--quick",
		"--no-tablespaces",
		"--skip-add-locks",
		"--complete-insert",
		"--hex-blob",
	}

	if cfg.Database != "" {
		args = append(args, cfg.Database)
	} else {
		args = append(args, "--all-databases")
	}

	return args
}

// Dump runs mysqldump and writes the result to outputPath.
func (s *Impl) Dump(ctx context.Context, cfg models.MySQLConfig, outputPath string) (*models.DumpResult, error) {
	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.DatabaseLabel()).
		Str("output", outputPath).
		Msg("starting MySQL dump")

	start := time.Now()
	result := &models.DumpResult{
		OutputPath: outputPath,
	}

	// Ensure output directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		result.Error = models.Wrap(models.ErrIO, "failed to create output directory", err)
		result.Duration = time.Since(start)
		return result, nil
	}

	env := []string{}
	if cfg.Password != "" {
		env = append(env, "MYSQL_PWD="+cfg.Password)
	}

	dumpCtx := ctx
	if cfg.DumpTimeout > 0 {
		var cancel context.CancelFunc
		dumpCtx, cancel = context.WithTimeout(ctx, cfg.DumpTimeout)
		defer cancel()
	}

	binary := cfg.DumpBinary
	if binary == "" {
		binary = "mysqldump"
	}

	stderr, execErr := s.executor.ExecuteToFile(dumpCtx, env, outputPath, binary, BuildArgs(cfg)...)
	result.Stderr = strings.TrimSpace(string(stderr))
	result.Duration = time.Since(start)

	if execErr != nil {
		// Clean up partial file
		_ = os.Remove(outputPath)
		result.Error = execErr
		s.logger.Error().
			Err(execErr).
			Str("kind", models.ErrorKind(execErr)).
			Str("stderr", result.Stderr).
			Dur("duration", result.Duration).
			Msg("MySQL dump failed")
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	if result.Stderr != "" {
		s.logger.Debug().Str("stderr", result.Stderr).Msg("mysqldump wrote to stderr")
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		result.Error = models.Wrap(models.ErrIO, "dump file missing after mysqldump", err)
		return result, nil
	}
	result.SizeBytes = info.Size()

	if cfg.MinDumpSize > 0 && result.SizeBytes < cfg.MinDumpSize {
		result.Suspicious = true
		s.logger.Warn().
			Int64("size_bytes", result.SizeBytes).
			Int64("threshold", cfg.MinDumpSize).
			Str("preview", preview(outputPath)).
			Msg("dump file is suspiciously small")
	}

	s.logger.Info().
		Str("output", outputPath).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("MySQL dump completed")

	return result, nil
}

func preview(path string) string {
	f, err := os.Open(path) //nolint:gosec // path is the dump we just wrote
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, previewBytes)
	n, _ := io.ReadFull(f, buf)
	return string(buf[:n])
}

// OutputFilename returns the dump filename for cfg at timestamp.
func OutputFilename(cfg models.MySQLConfig, timestamp string) string {
	return fmt.Sprintf("mysql_%s_%s.sql", cfg.DatabaseLabel(), timestamp)
}
