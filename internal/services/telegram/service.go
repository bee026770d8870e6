// Package telegram delivers status messages and files to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Service defines the interface for Telegram delivery operations.
type Service interface {
	SendText(ctx context.Context, cfg models.TelegramConfig, text string) (*models.TelegramResult, error)
	SendFile(ctx context.Context, cfg models.TelegramConfig, path string) (*models.TelegramResult, error)
}

// Client wraps the bot API calls used by the service (for mocking).
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, filename string, data io.Reader) error
}

// ClientFactory creates a Client for a configuration.
type ClientFactory interface {
	NewClient(cfg models.TelegramConfig) (Client, error)
}

// DefaultClientFactory creates clients backed by github.com/go-telegram/bot.
type DefaultClientFactory struct{}

// NewClient creates a bot client. No request is made until a send.
func (f *DefaultClientFactory) NewClient(cfg models.TelegramConfig) (Client, error) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(time.Minute, &http.Client{Timeout: timeout}),
	}
	if cfg.APIURL != "" {
		opts = append(opts, bot.WithServerURL(strings.TrimRight(cfg.APIURL, "/")))
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, err
	}
	return &botClient{bot: b}, nil
}

type botClient struct {
	bot *bot.Bot
}

func (c *botClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

func (c *botClient) SendDocument(ctx context.Context, chatID int64, filename string, data io.Reader) error {
	_, err := c.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: chatID,
		Document: &tgmodels.InputFileUpload{
			Filename: filename,
			Data:     data,
		},
	})
	return err
}

// Impl implements the Telegram Service interface.
type Impl struct {
	factory ClientFactory
	logger  zerolog.Logger
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		factory: &DefaultClientFactory{},
		logger:  logger,
	}
}

// NewWithFactory creates a new Telegram service with a custom client factory (for testing).
func NewWithFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		factory: factory,
		logger:  logger,
	}
}

// SendText posts a plain text message. Failures are returned in the result.
func (s *Impl) SendText(ctx context.Context, cfg models.TelegramConfig, text string) (*models.TelegramResult, error) {
	result := &models.TelegramResult{Attempts: 1}

	client, err := s.factory.NewClient(cfg)
	if err != nil {
		result.Error = models.Wrap(models.ErrConfig, "failed to create Telegram client", err)
		s.logger.Error().Err(result.Error).Msg("cannot send Telegram message")
		return result, nil
	}

	if err := client.SendMessage(ctx, cfg.ChatID, text); err != nil {
		result.Error = classify("failed to send message", err)
		s.logger.Error().
			Err(result.Error).
			Str("text", text).
			Msg("failed to send Telegram message")
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.MessageSent = true
	s.logger.Debug().Str("text", text).Msg("Telegram message sent")

	return result, nil
}

// SendFile uploads path as a document, retrying up to cfg.MaxRetries attempts with a fixed delay.
// An oversized upload is not retried. When the file cannot be delivered a short
// explanation is posted to the chat instead.
func (s *Impl) SendFile(ctx context.Context, cfg models.TelegramConfig, path string) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}
	name := filepath.Base(path)

	client, err := s.factory.NewClient(cfg)
	if err != nil {
		result.Error = models.Wrap(models.ErrConfig, "failed to create Telegram client", err)
		s.logger.Error().Err(result.Error).Str("file", name).Msg("cannot send file")
		return result, nil
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewConstant(delay)) //nolint:gosec // maxAttempts >= 1

	var lastErr, lastCause error
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		result.Attempts++
		cause := s.upload(ctx, client, cfg.ChatID, path)
		if cause == nil {
			return nil
		}
		err := classify("failed to send document", cause)
		lastErr, lastCause = err, cause

		if errors.Is(err, models.ErrPayloadTooLarge) || errors.Is(err, models.ErrIO) {
			return err
		}
		if result.Attempts < maxAttempts {
			s.logger.Warn().
				Err(err).
				Int("attempt", result.Attempts).
				Int("max_attempts", maxAttempts).
				Dur("retry_in", delay).
				Msg("failed to send file, retrying")
		}
		return retry.RetryableError(err)
	})

	if err == nil {
		result.MessageSent = true
		s.logger.Info().
			Str("file", name).
			Int("attempts", result.Attempts).
			Msg("file sent to Telegram")
		return result, nil
	}

	if lastErr == nil {
		lastErr, lastCause = models.Wrap(models.ErrTransport, "send interrupted", err), err
	}
	result.Error = lastErr

	var fallback string
	if errors.Is(lastErr, models.ErrPayloadTooLarge) {
		result.TooLarge = true
		s.logger.Error().Err(lastErr).Str("file", name).Msg("file too large to send via Telegram")
		fallback = fmt.Sprintf("Cannot send file `%s`: File too large for Telegram", name)
	} else {
		s.logger.Error().
			Err(lastErr).
			Str("file", name).
			Int("attempts", result.Attempts).
			Msg("cannot send file")
		fallback = fmt.Sprintf("Cannot send file `%s`: %s", name, lastCause)
	}

	if err := client.SendMessage(ctx, cfg.ChatID, fallback); err != nil {
		s.logger.Error().Err(err).Msg("failed to send error message")
	}

	return result, nil
}

func (s *Impl) upload(ctx context.Context, client Client, chatID int64, path string) error {
	f, err := os.Open(path) //nolint:gosec // path comes from the run context
	if err != nil {
		return models.Wrap(models.ErrIO, "failed to open file", err)
	}
	defer func() { _ = f.Close() }()

	if info, err := f.Stat(); err == nil {
		s.logger.Debug().
			Str("file", info.Name()).
			Str("size", formatBytes(info.Size())).
			Msg("uploading file")
	}

	return client.SendDocument(ctx, chatID, filepath.Base(path), f)
}

// IsTooLarge reports whether err is the API rejecting an oversized payload.
func IsTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "413") ||
		strings.Contains(msg, "Request Entity Too Large") ||
		strings.Contains(strings.ToLower(msg), "too large")
}

func classify(msg string, err error) error {
	if IsTooLarge(err) {
		return models.Wrap(models.ErrPayloadTooLarge, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.Wrap(models.ErrTimeout, msg, err)
	}
	return models.Wrap(models.ErrTransport, msg, err)
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
