// Package runner orchestrates the backup workflow.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/fgeck/gomysql-telegram/internal/services/compress"
	"github.com/fgeck/gomysql-telegram/internal/services/mysqldump"
	"github.com/fgeck/gomysql-telegram/internal/services/mysqlprobe"
	"github.com/fgeck/gomysql-telegram/internal/services/ssh"
	"github.com/fgeck/gomysql-telegram/internal/services/telegram"
	"github.com/fgeck/gomysql-telegram/internal/services/wol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TimestampFormat is used for run directories, artifact names and the log file.
const TimestampFormat = "20060102_150405"

// Chat messages.
const (
	MsgProbeOK        = "✅ MySQL connection verified, starting backup..."
	MsgProbeFailed    = "❌ MySQL connection check failed"
	MsgExportOK       = "✅ MySQL backup completed, starting compression..."
	MsgExportFailed   = "❌ MySQL backup failed"
	MsgCompressOK     = "✅ Compression completed, sending file..."
	MsgCompressFailed = "❌ Failed to compress backup file"
	MsgDeliverOK      = "✅ Backup file sent successfully!"
	MsgDeliverFailed  = "❌ Failed to send backup file"
	MsgWakeFailed     = "❌ Failed to wake database host"
	MsgShutdownFailed = "❌ Failed to shut down database host"
	MsgFatalPrefix    = "❌ Fatal error during backup: "
)

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.BackupConfig) (*models.RunResult, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	wolSvc      wol.Service
	probeSvc    mysqlprobe.Service
	dumpSvc     mysqldump.Service
	compressSvc compress.Service
	sshSvc      ssh.Service
	telegramSvc telegram.Service
	logger      zerolog.Logger
	now         func() time.Time
	newID       func() string
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolSvc:      wol.New(logger),
		probeSvc:    mysqlprobe.New(logger),
		dumpSvc:     mysqldump.New(logger),
		compressSvc: compress.New(logger),
		sshSvc:      ssh.New(logger),
		telegramSvc: telegram.New(logger),
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	wolSvc wol.Service,
	probeSvc mysqlprobe.Service,
	dumpSvc mysqldump.Service,
	compressSvc compress.Service,
	sshSvc ssh.Service,
	telegramSvc telegram.Service,
) *Impl {
	return &Impl{
		wolSvc:      wolSvc,
		probeSvc:    probeSvc,
		dumpSvc:     dumpSvc,
		compressSvc: compressSvc,
		sshSvc:      sshSvc,
		telegramSvc: telegramSvc,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// WithClock replaces the time source.
func (s *Impl) WithClock(now func() time.Time) *Impl {
	s.now = now
	return s
}

// StartMessage returns the first chat message of a run.
func StartMessage(custom, timestamp string) string {
	line := "MySQL Backup at " + timestamp
	if custom == "" {
		return line
	}
	return custom + "\n\n" + line
}

// LogFileName returns the process log file name for a run started at t.
func LogFileName(t time.Time) string {
	return t.Format(TimestampFormat) + "_mysql_backup.txt"
}

// NewRunContext derives the paths owned by a run.
func NewRunContext(cfg models.BackupConfig, start time.Time, id string) (models.RunContext, error) {
	codec, err := compress.Lookup(cfg.Compression.Codec)
	if err != nil {
		return models.RunContext{}, err
	}

	ts := start.Format(TimestampFormat)
	short := id
	if len(short) > 8 {
		short = short[:8]
	}

	dir := filepath.Join(cfg.Workspace.BaseDir, fmt.Sprintf("mysql_backup_%s_%s", ts, short))
	raw := filepath.Join(dir, mysqldump.OutputFilename(cfg.MySQL, ts))

	return models.RunContext{
		ID:             id,
		Timestamp:      ts,
		StartTime:      start,
		Dir:            dir,
		RawPath:        raw,
		CompressedPath: raw + codec.Extension,
	}, nil
}

// run carries the state of a single Run call.
type run struct {
	s      *Impl
	cfg    models.BackupConfig
	rc     models.RunContext
	result *models.RunResult
	logger zerolog.Logger
}

// Run executes the backup pipeline. Stage failures are reported in the returned RunResult;
// the error is non-nil only for a fatal error, which is also reported to the chat.
func (s *Impl) Run(ctx context.Context, cfg models.BackupConfig) (result *models.RunResult, err error) {
	start := s.now()
	id := s.newID()
	result = &models.RunResult{RunID: id}

	r := &run{
		s:      s,
		cfg:    cfg,
		result: result,
		logger: s.logger.With().Str("run_id", id).Logger(),
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		if err != nil {
			r.fatal(ctx, err)
		}
		result.Duration = s.now().Sub(start)
	}()

	r.rc, err = NewRunContext(cfg, start, id)
	if err != nil {
		return result, err
	}

	return result, r.execute(ctx)
}

//nolint:gocognit,gocyclo // backup workflow has multiple steps by design
func (r *run) execute(ctx context.Context) error {
	cfg := r.cfg
	// Cleanup and log delivery still run after the caller cancels.
	bg := context.WithoutCancel(ctx)

	r.logger.Info().
		Str("host", cfg.MySQL.Host).
		Str("database", cfg.MySQL.DatabaseLabel()).
		Str("dir", r.rc.Dir).
		Msg("starting backup run")

	// Step 1: start message and workspace
	began := time.Now()
	sent := r.notify(ctx, StartMessage(cfg.Message, r.rc.Timestamp))
	r.result.Record(models.StageStart, sent, "", time.Since(began))

	if err := os.MkdirAll(r.rc.Dir, 0o750); err != nil {
		return models.Wrap(models.ErrIO, "failed to create working directory", err)
	}
	r.logger.Debug().Str("dir", r.rc.Dir).Msg("working directory created")

	reachable := true
	wakeFailed := false

	// Wake-on-LAN (if configured)
	if cfg.WOL != nil {
		ok, err := r.wake(ctx)
		if err != nil {
			return err
		}
		wakeFailed = !ok
		reachable = ok
	}

	// Step 2: connectivity
	if reachable {
		ok, err := r.probe(ctx)
		if err != nil {
			return err
		}
		reachable = ok
	}

	// Steps 3-5: export, compress, deliver
	if reachable {
		if err := r.exportChain(ctx); err != nil {
			return err
		}
	}

	// Step 6: artifact cleanup
	began = time.Now()
	cleaned := r.cleanupFile(r.rc.CompressedPath)
	cleaned = r.cleanupFile(r.rc.RawPath) && cleaned
	r.result.Record(models.StageCleanup, cleaned, "", time.Since(began))

	// SSH shutdown (if configured and the host was woken)
	if cfg.SSHShutdown != nil && !wakeFailed {
		if err := r.shutdown(bg); err != nil {
			return err
		}
	}

	// Step 7: log delivery
	if cfg.Workspace.LogFile != "" {
		if err := r.deliverLog(bg); err != nil {
			return err
		}
	} else {
		r.logger.Debug().Msg("no log file configured, skipping log delivery")
	}

	// Step 8: workspace cleanup
	began = time.Now()
	removed := r.removeWorkspace()
	r.result.Record(models.StageWorkspace, removed, "", time.Since(began))

	r.logger.Info().
		Bool("succeeded", r.result.Succeeded()).
		Dur("duration", time.Since(r.rc.StartTime)).
		Msg("backup run finished")

	return nil
}

func (r *run) wake(ctx context.Context) (bool, error) {
	r.logger.Info().
		Str("mac", r.cfg.WOL.MACAddress).
		Str("target", r.cfg.WOL.TargetAddr).
		Msg("waking database host")

	res, err := r.s.wolSvc.Wake(ctx, *r.cfg.WOL)
	if err != nil {
		return false, fmt.Errorf("WOL failed: %w", err)
	}

	if res.Error != nil || !res.TargetReady {
		failure := res.Error
		if failure == nil {
			failure = models.Wrap(models.ErrTimeout, "database host did not come up", nil)
		}
		r.fail(ctx, models.StageWake, MsgWakeFailed, failure, res.WaitDuration)
		return false, nil
	}

	r.result.Record(models.StageWake, true, "", res.WaitDuration)
	r.logger.Info().
		Bool("packet_sent", res.PacketSent).
		Dur("wait_duration", res.WaitDuration).
		Msg("database host is awake")
	return true, nil
}

func (r *run) probe(ctx context.Context) (bool, error) {
	res, err := r.s.probeSvc.Probe(ctx, r.cfg.MySQL)
	if err != nil {
		return false, fmt.Errorf("connectivity probe failed: %w", err)
	}

	if res.Error != nil || !res.Reachable {
		failure := res.Error
		if failure == nil {
			failure = models.Wrap(models.ErrTransport, "MySQL is not reachable", nil)
		}
		r.fail(ctx, models.StageProbe, MsgProbeFailed, failure, res.Duration)
		return false, nil
	}

	r.result.Record(models.StageProbe, true, fmt.Sprintf("%d grants", len(res.Grants)), res.Duration)
	r.notify(ctx, MsgProbeOK)
	return true, nil
}

func (r *run) exportChain(ctx context.Context) error {
	dump, err := r.s.dumpSvc.Dump(ctx, r.cfg.MySQL, r.rc.RawPath)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if dump.Error != nil {
		r.fail(ctx, models.StageExport, MsgExportFailed, dump.Error, dump.Duration)
		return nil
	}
	detail := fmt.Sprintf("%d bytes", dump.SizeBytes)
	if dump.Suspicious {
		detail += ", suspiciously small"
	}
	r.result.Record(models.StageExport, true, detail, dump.Duration)
	r.notify(ctx, MsgExportOK)

	comp, err := r.s.compressSvc.Compress(ctx, r.rc.RawPath, r.rc.CompressedPath, r.cfg.Compression.Codec)
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}
	if comp.Error != nil {
		r.fail(ctx, models.StageCompress, MsgCompressFailed, comp.Error, comp.Duration)
		return nil
	}
	r.result.Record(models.StageCompress, true, fmt.Sprintf("%.1f%% smaller", comp.Reduction), comp.Duration)
	r.notify(ctx, MsgCompressOK)

	began := time.Now()
	sent, err := r.s.telegramSvc.SendFile(ctx, r.cfg.Telegram, r.rc.CompressedPath)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	if !sent.MessageSent {
		failure := sent.Error
		if failure == nil {
			failure = models.Wrap(models.ErrTransport, "file was not delivered", nil)
		}
		r.logger.Error().
			Err(failure).
			Int("attempts", sent.Attempts).
			Bool("too_large", sent.TooLarge).
			Msg("backup delivery failed")
		r.result.Record(models.StageDeliver, false, models.ErrorKind(failure), time.Since(began))
		r.notify(ctx, MsgDeliverFailed)
		return nil
	}
	r.result.Record(models.StageDeliver, true, fmt.Sprintf("%d attempts", sent.Attempts), time.Since(began))
	r.notify(ctx, MsgDeliverOK)

	return nil
}

func (r *run) shutdown(ctx context.Context) error {
	res, err := r.s.sshSvc.Shutdown(ctx, *r.cfg.SSHShutdown)
	if err != nil {
		return fmt.Errorf("SSH shutdown failed: %w", err)
	}
	if res.Error != nil && !res.CommandRun {
		r.fail(ctx, models.StageShutdown, MsgShutdownFailed, res.Error, 0)
		return nil
	}
	if res.Error != nil {
		r.logger.Warn().Err(res.Error).Str("output", res.Output).Msg("shutdown command returned error (may be expected)")
	}
	r.result.Record(models.StageShutdown, true, "", 0)
	return nil
}

func (r *run) deliverLog(ctx context.Context) error {
	r.logger.Info().Str("file", r.cfg.Workspace.LogFile).Msg("sending log file")

	began := time.Now()
	res, err := r.s.telegramSvc.SendFile(ctx, r.cfg.Telegram, r.cfg.Workspace.LogFile)
	if err != nil {
		return fmt.Errorf("log delivery failed: %w", err)
	}
	if !res.MessageSent {
		r.logger.Error().Err(res.Error).Msg("failed to send log file")
		r.result.Record(models.StageLogDelivery, false, models.ErrorKind(res.Error), time.Since(began))
		return nil
	}
	r.result.Record(models.StageLogDelivery, true, "", time.Since(began))
	r.logger.Info().Msg("log file sent")
	return nil
}

// cleanupFile removes path. A missing file is not an error.
func (r *run) cleanupFile(path string) bool {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.Error().Err(err).Str("file", path).Msg("failed to delete file")
		return false
	}
	r.logger.Debug().Str("file", path).Msg("file removed")
	return true
}

func (r *run) removeWorkspace() bool {
	if r.rc.Dir == "" {
		return true
	}
	if err := os.RemoveAll(r.rc.Dir); err != nil {
		r.logger.Error().Err(err).Str("dir", r.rc.Dir).Msg("failed to clean up working directory")
		return false
	}
	r.logger.Info().Str("dir", r.rc.Dir).Msg("working directory cleaned up")
	return true
}

// fail records a failed stage and reports it with the error kind.
func (r *run) fail(ctx context.Context, stage, msg string, err error, d time.Duration) {
	kind := models.ErrorKind(err)
	r.logger.Error().
		Err(err).
		Str("stage", stage).
		Str("kind", kind).
		Msg("stage failed")
	r.result.Record(stage, false, kind, d)
	r.notify(ctx, fmt.Sprintf("%s: %s", msg, kind))
}

// notify sends a status message. Failures are logged only.
func (r *run) notify(ctx context.Context, text string) bool {
	res, err := r.s.telegramSvc.SendText(context.WithoutCancel(ctx), r.cfg.Telegram, text)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to send Telegram message")
		return false
	}
	if res.Error != nil {
		r.logger.Warn().Err(res.Error).Str("text", text).Msg("Telegram message not delivered")
		return false
	}
	return true
}

func (r *run) fatal(ctx context.Context, err error) {
	r.logger.Error().Bool("fatal", true).Err(err).Msg("fatal error during backup")

	func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error().Interface("panic", p).Msg("failed to report fatal error")
			}
		}()
		r.notify(ctx, MsgFatalPrefix+err.Error())
	}()

	r.removeWorkspace()
}
