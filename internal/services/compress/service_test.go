package compress

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func sampleDump() []byte {
	var b strings.Builder
	b.WriteString("-- MySQL dump 10.13\n")
	for i := 0; i < 2000; i++ {
		b.WriteString("INSERT INTO `orders` (`id`, `customer`, `total`) VALUES (1,'alice',12.50);\n")
	}
	return []byte(b.String())
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestCompress_RoundTripAllCodecs(t *testing.T) {
	payloads := map[string][]byte{
		"sql":    sampleDump(),
		"empty":  {},
		"random": randomBytes(64 * 1024),
	}

	for _, codec := range Names() {
		for name, data := range payloads {
			t.Run(codec+"/"+name, func(t *testing.T) {
				dir := t.TempDir()
				input := writeFile(t, dir, "dump.sql", data)
				c, err := Lookup(codec)
				require.NoError(t, err)
				output := input + c.Extension

				svc := New(testLogger())
				result, err := svc.Compress(context.Background(), input, output, codec)

				require.NoError(t, err)
				require.NoError(t, result.Error)
				assert.Equal(t, codec, result.Codec)
				assert.Equal(t, int64(len(data)), result.OriginalSize)
				assert.Positive(t, result.CompressedSize)

				restored := filepath.Join(dir, "restored.sql")
				require.NoError(t, Decompress(output, restored, codec))

				got, err := os.ReadFile(restored)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(data, got), "round trip must be byte-exact")

				// input is left in place
				_, err = os.Stat(input)
				assert.NoError(t, err)
			})
		}
	}
}

func TestCompress_EmptyInputWritesValidFrame(t *testing.T) {
	// An empty dump still produces a well-formed archive.
	magic := map[string][]byte{
		"xz":   {0xFD, '7', 'z', 'X', 'Z', 0x00},
		"zstd": {0x28, 0xB5, 0x2F, 0xFD},
		"lz4":  {0x04, 0x22, 0x4D, 0x18},
		"gzip": {0x1F, 0x8B},
	}

	for _, codec := range Names() {
		t.Run(codec, func(t *testing.T) {
			want, ok := magic[codec]
			require.True(t, ok, "no magic bytes for codec %s", codec)

			dir := t.TempDir()
			input := writeFile(t, dir, "empty.sql", nil)
			output := filepath.Join(dir, "empty.out")

			result, err := New(testLogger()).Compress(context.Background(), input, output, codec)
			require.NoError(t, err)
			require.NoError(t, result.Error)

			got, err := os.ReadFile(output)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(got), len(want))
			assert.Equal(t, want, got[:len(want)])
			assert.Equal(t, int64(len(got)), result.CompressedSize)
		})
	}
}

func TestCompress_ReducesSQL(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "dump.sql", sampleDump())

	svc := New(testLogger())
	result, err := svc.Compress(context.Background(), input, input+".xz", "xz")

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Less(t, result.CompressedSize, result.OriginalSize)
	assert.Greater(t, result.Reduction, 90.0)
}

func TestCompress_DefaultCodec(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "dump.sql", sampleDump())

	svc := New(testLogger())
	result, err := svc.Compress(context.Background(), input, input+".xz", "")

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, "xz", result.Codec)
	require.NoError(t, Decompress(input+".xz", filepath.Join(dir, "out.sql"), ""))
}

func TestCompress_MissingInput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "missing.sql.xz")

	svc := New(testLogger())
	result, err := svc.Compress(context.Background(), filepath.Join(dir, "missing.sql"), output, "xz")

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.ErrorIs(t, result.Error, models.ErrIO)
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCompress_UnwritableOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "dump.sql", sampleDump())

	svc := New(testLogger())
	result, err := svc.Compress(context.Background(), input, filepath.Join(dir, "nope", "dump.sql.xz"), "xz")

	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, models.ErrIO)
}

func TestCompress_UnknownCodec(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "dump.sql", sampleDump())

	svc := New(testLogger())
	result, err := svc.Compress(context.Background(), input, input+".bz2", "bzip2")

	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, models.ErrConfig)
}

func TestCompress_Cancelled(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "dump.sql", sampleDump())
	output := input + ".gz"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := New(testLogger())
	result, err := svc.Compress(ctx, input, output, "gzip")

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.ErrorIs(t, result.Error, context.Canceled)
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr), "partial output is removed")
}

func TestDecompress_CorruptInput(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "dump.sql.xz", []byte("definitely not xz"))

	err := Decompress(input, filepath.Join(dir, "out.sql"), "xz")

	assert.ErrorIs(t, err, models.ErrIO)
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		ext  string
	}{
		{"xz", ".xz"},
		{"zstd", ".zst"},
		{"lz4", ".lz4"},
		{"gzip", ".gz"},
		{"", ".xz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.ext, c.Extension)
		})
	}

	_, err := Lookup("rar")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"gzip", "lz4", "xz", "zstd"}, Names())
}

func TestReduction(t *testing.T) {
	assert.InDelta(t, 75.0, Reduction(1000, 250), 0.001)
	assert.InDelta(t, 0.0, Reduction(0, 20), 0.001)
	assert.InDelta(t, -10.0, Reduction(100, 110), 0.001)
}

func randomBytes(n int) []byte {
	r := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test data
	b := make([]byte, n)
	_, _ = r.Read(b)
	return b
}
