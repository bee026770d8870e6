// Package ssh powers the database host off over SSH once a run is finished.
package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

const defaultTimeout = 30 * time.Second

// Service defines the interface for SSH operations.
type Service interface {
	Shutdown(ctx context.Context, cfg models.SSHShutdownConfig) (*models.ShutdownResult, error)
	Check(ctx context.Context, cfg models.SSHShutdownConfig) (*models.ShutdownResult, error)
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory dials with golang.org/x/crypto/ssh.
type DefaultClientFactory struct{}

// NewClient dials addr and returns a connected client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

func buildConfig(cfg models.SSHShutdownConfig) (*ssh.ClientConfig, error) {
	key := cfg.PrivateKey
	if len(key) == 0 {
		if cfg.KeyPath == "" {
			return nil, models.Wrap(models.ErrConfig, "no private key provided", nil)
		}
		var err error
		key, err = os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, models.Wrap(models.ErrConfig, fmt.Sprintf("failed to read private key from %s", cfg.KeyPath), err)
		}
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, models.Wrap(models.ErrConfig, "failed to parse private key", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // database host on the local network
		Timeout:         timeout,
	}, nil
}

// ShutdownCommand returns the command that powers the host off after delay minutes.
func ShutdownCommand(osName string, delay int) string {
	if osName == "windows" {
		seconds := delay * 60
		if seconds == 0 {
			seconds = 60
		}
		return fmt.Sprintf("shutdown /s /t %d", seconds)
	}
	if delay == 0 {
		return "sudo shutdown -h now"
	}
	return fmt.Sprintf("sudo shutdown -h +%d", delay)
}

type dialResult struct {
	client SSHClient
	err    error
}

// connect dials in a goroutine so that ctx cancellation is honoured during the handshake.
func (s *Impl) connect(ctx context.Context, cfg models.SSHShutdownConfig) (SSHClient, error) {
	sshConfig, err := buildConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ch := make(chan dialResult, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		ch <- dialResult{client: client, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, models.Wrap(models.ErrTransport, fmt.Sprintf("failed to connect to %s", addr), res.err)
		}
		return res.client, nil
	}
}

func (s *Impl) openSession(ctx context.Context, cfg models.SSHShutdownConfig) (SSHSession, func(), error) {
	client, err := s.connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, nil, models.Wrap(models.ErrTransport, "failed to create session", err)
	}

	return session, func() {
		_ = session.Close()
		_ = client.Close()
	}, nil
}

// Shutdown schedules a shutdown of the database host.
// The connection often drops while the command returns, so a command error is only logged.
func (s *Impl) Shutdown(ctx context.Context, cfg models.SSHShutdownConfig) (*models.ShutdownResult, error) {
	result := &models.ShutdownResult{}

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("user", cfg.Username).
		Int("delay_minutes", cfg.ShutdownDelay).
		Msg("initiating remote shutdown")

	session, closeFn, err := s.openSession(ctx, cfg)
	if err != nil {
		result.Error = err
		s.logger.Error().Err(err).Msg("remote shutdown failed")
		return result, nil
	}
	defer closeFn()

	cmd := ShutdownCommand(cfg.OS, cfg.ShutdownDelay)
	s.logger.Debug().Str("command", cmd).Msg("executing shutdown command")

	output, err := session.CombinedOutput(cmd)
	result.Output = string(output)
	result.CommandRun = true

	if err != nil {
		if ctx.Err() != nil {
			result.Error = ctx.Err()
			return result, nil
		}
		s.logger.Warn().Err(err).Str("output", result.Output).Msg("shutdown command returned error (may be expected)")
	}

	s.logger.Info().Str("output", result.Output).Msg("shutdown scheduled")

	return result, nil
}

// Check verifies that the host accepts the key by running a no-op command.
func (s *Impl) Check(ctx context.Context, cfg models.SSHShutdownConfig) (*models.ShutdownResult, error) {
	result := &models.ShutdownResult{}

	s.logger.Debug().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Msg("checking SSH access")

	session, closeFn, err := s.openSession(ctx, cfg)
	if err != nil {
		result.Error = err
		return result, nil
	}
	defer closeFn()

	output, err := session.CombinedOutput("echo OK")
	result.Output = string(output)
	result.CommandRun = true

	if err != nil {
		result.Error = models.Wrap(models.ErrNonZeroExit, "check command failed", err)
	}

	return result, nil
}
