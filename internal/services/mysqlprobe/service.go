// Package mysqlprobe verifies that the MySQL server is reachable before a long export starts.
package mysqlprobe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

const (
	pingQuery   = "SELECT 1"
	grantsQuery = "SHOW GRANTS FOR CURRENT_USER()"
)

// Service defines the interface for connectivity probes.
type Service interface {
	Probe(ctx context.Context, cfg models.MySQLConfig) (*models.ProbeResult, error)
}

// Opener opens a database handle for a DSN.
type Opener func(dsn string) (*sql.DB, error)

func openMySQL(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

// Impl implements the probe Service interface.
type Impl struct {
	open   Opener
	logger zerolog.Logger
}

// New creates a new probe service backed by the MySQL driver.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		open:   openMySQL,
		logger: logger,
	}
}

// NewWithOpener creates a new probe service with a custom opener (for testing).
func NewWithOpener(logger zerolog.Logger, open Opener) *Impl {
	return &Impl{
		open:   open,
		logger: logger,
	}
}

// DSN builds the driver DSN for cfg.
func DSN(cfg models.MySQLConfig) string {
	c := mysql.NewConfig()
	c.User = cfg.Username
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.Timeout = cfg.ProbeTimeout
	return c.FormatDSN()
}

// Probe runs a trivial query and then reads back the grants of the configured user.
// Grants are diagnostic only; failing to read them does not fail the probe.
func (s *Impl) Probe(ctx context.Context, cfg models.MySQLConfig) (*models.ProbeResult, error) {
	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("user", cfg.Username).
		Msg("checking MySQL connectivity")

	start := time.Now()
	result := &models.ProbeResult{}

	probeCtx := ctx
	if cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()
	}

	db, err := s.open(DSN(cfg))
	if err != nil {
		result.Error = models.Wrap(models.ErrTransport, "failed to open MySQL connection", err)
		result.Duration = time.Since(start)
		return result, nil
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRowContext(probeCtx, pingQuery).Scan(&one); err != nil {
		result.Error = classify(probeCtx, err, cfg.ProbeTimeout)
		result.Duration = time.Since(start)
		s.logger.Error().
			Err(result.Error).
			Str("kind", models.ErrorKind(result.Error)).
			Msg("MySQL connectivity check failed")
		return result, nil
	}
	result.Reachable = true

	grants, err := readGrants(probeCtx, db)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not read grants for current user")
	} else {
		result.Grants = grants
		for _, g := range grants {
			s.logger.Debug().Str("grant", g).Msg("effective permission")
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("grants", len(result.Grants)).
		Dur("duration", result.Duration).
		Msg("MySQL connectivity verified")

	return result, nil
}

func readGrants(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, grantsQuery)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var grants []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func classify(ctx context.Context, err error, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.Wrap(models.ErrTimeout, fmt.Sprintf("no answer from MySQL within %s", timeout), err)
	}
	return models.Wrap(models.ErrTransport, "MySQL query failed", err)
}
