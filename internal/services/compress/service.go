// Package compress stream-compresses dump artifacts.
package compress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for compression operations.
type Service interface {
	Compress(ctx context.Context, inputPath, outputPath, codec string) (*models.CompressResult, error)
}

// Impl implements the compress Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new compress service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Compress writes a compressed copy of inputPath to outputPath. The input is left in place.
func (s *Impl) Compress(ctx context.Context, inputPath, outputPath, codecName string) (*models.CompressResult, error) {
	start := time.Now()
	result := &models.CompressResult{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Codec:      codecName,
	}

	codec, err := Lookup(codecName)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Codec = codec.Name

	s.logger.Info().
		Str("input", inputPath).
		Str("output", outputPath).
		Str("codec", codec.Name).
		Msg("compressing dump")

	originalSize, err := copyCompressed(ctx, codec, inputPath, outputPath)
	result.Duration = time.Since(start)
	if err != nil {
		_ = os.Remove(outputPath)
		result.Error = err
		s.logger.Error().
			Err(err).
			Str("kind", models.ErrorKind(err)).
			Msg("compression failed")
		return result, nil
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		result.Error = models.Wrap(models.ErrIO, "compressed file missing", err)
		return result, nil
	}

	result.OriginalSize = originalSize
	result.CompressedSize = info.Size()
	result.Reduction = Reduction(result.OriginalSize, result.CompressedSize)

	s.logger.Info().
		Int64("original_bytes", result.OriginalSize).
		Int64("compressed_bytes", result.CompressedSize).
		Str("reduction", fmt.Sprintf("%.1f%%", result.Reduction)).
		Dur("duration", result.Duration).
		Msg("compression completed")

	return result, nil
}

func copyCompressed(ctx context.Context, codec Codec, inputPath, outputPath string) (int64, error) {
	in, err := os.Open(inputPath) //nolint:gosec // path comes from the run context
	if err != nil {
		return 0, models.Wrap(models.ErrIO, "failed to open input", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // path comes from the run context
	if err != nil {
		return 0, models.Wrap(models.ErrIO, "failed to create output", err)
	}

	zw, err := codec.NewWriter(out)
	if err != nil {
		_ = out.Close()
		return 0, models.Wrap(models.ErrIO, fmt.Sprintf("failed to initialise %s encoder", codec.Name), err)
	}

	n, copyErr := io.Copy(zw, &ctxReader{ctx: ctx, r: in})
	closeErr := zw.Close()
	fileErr := out.Close()

	switch {
	case copyErr != nil:
		return n, models.Wrap(models.ErrIO, "failed to compress input", copyErr)
	case closeErr != nil:
		return n, models.Wrap(models.ErrIO, fmt.Sprintf("failed to finish %s stream", codec.Name), closeErr)
	case fileErr != nil:
		return n, models.Wrap(models.ErrIO, "failed to close output", fileErr)
	}
	return n, nil
}

// Decompress restores inputPath, compressed with codecName, into outputPath.
func Decompress(inputPath, outputPath, codecName string) error {
	codec, err := Lookup(codecName)
	if err != nil {
		return err
	}

	in, err := os.Open(inputPath) //nolint:gosec // caller-provided path
	if err != nil {
		return models.Wrap(models.ErrIO, "failed to open compressed input", err)
	}
	defer func() { _ = in.Close() }()

	zr, err := codec.NewReader(in)
	if err != nil {
		return models.Wrap(models.ErrIO, fmt.Sprintf("failed to initialise %s decoder", codec.Name), err)
	}
	defer func() { _ = zr.Close() }()

	out, err := os.Create(outputPath) //nolint:gosec // caller-provided path
	if err != nil {
		return models.Wrap(models.ErrIO, "failed to create output", err)
	}

	if _, err := io.Copy(out, zr); err != nil {
		_ = out.Close()
		return models.Wrap(models.ErrIO, "failed to decompress", err)
	}
	if err := out.Close(); err != nil {
		return models.Wrap(models.ErrIO, "failed to close output", err)
	}
	return nil
}

// Reduction returns the percentage of bytes saved.
func Reduction(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	return (1 - float64(compressed)/float64(original)) * 100
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
