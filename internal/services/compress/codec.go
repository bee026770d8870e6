package compress

import (
	"fmt"
	"io"
	"sort"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// DefaultCodec is used when no codec is configured.
const DefaultCodec = "xz"

// xzDictCap matches the dictionary size of xz preset 9.
const xzDictCap = 64 << 20

// Codec is a streaming compression format.
type Codec struct {
	Name      string
	Extension string
	NewWriter func(w io.Writer) (io.WriteCloser, error)
	NewReader func(r io.Reader) (io.ReadCloser, error)
}

var codecs = map[string]Codec{
	"xz": {
		Name:      "xz",
		Extension: ".xz",
		NewWriter: func(w io.Writer) (io.WriteCloser, error) {
			return xz.WriterConfig{DictCap: xzDictCap}.NewWriter(w)
		},
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			zr, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(zr), nil
		},
	},
	"zstd": {
		Name:      "zstd",
		Extension: ".zst",
		NewWriter: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w,
				zstd.WithEncoderLevel(zstd.SpeedBestCompression),
				zstd.WithZeroFrames(true),
			)
		},
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zr.IOReadCloser(), nil
		},
	},
	"lz4": {
		Name:      "lz4",
		Extension: ".lz4",
		NewWriter: func(w io.Writer) (io.WriteCloser, error) {
			zw := lz4.NewWriter(w)
			if err := zw.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
				return nil, err
			}
			return zw, nil
		},
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(lz4.NewReader(r)), nil
		},
	},
	"gzip": {
		Name:      "gzip",
		Extension: ".gz",
		NewWriter: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(w, gzip.BestCompression)
		},
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	},
}

// Lookup returns the codec registered under name. An empty name selects DefaultCodec.
func Lookup(name string) (Codec, error) {
	if name == "" {
		name = DefaultCodec
	}
	c, ok := codecs[name]
	if !ok {
		return Codec{}, models.Wrap(models.ErrConfig, fmt.Sprintf("unsupported codec %q", name), nil)
	}
	return c, nil
}

// Names returns the registered codec names, sorted.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
