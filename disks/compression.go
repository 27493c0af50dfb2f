package disks

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionXZ
	CompressionZstd
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionXZ:
		return "xz"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// DetectCompression identifies the compression format from the first bytes of
// `source`. Anything without a known signature is treated as a raw image.
func DetectCompression(source io.ReaderAt) (Compression, error) {
	header := make([]byte, len(xzMagic))
	n, err := source.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return CompressionNone, fmt.Errorf("read image header: %w", err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXZ, nil
	case bytes.HasPrefix(header, zstdMagic):
		return CompressionZstd, nil
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip, nil
	default:
		return CompressionNone, nil
	}
}

// NewDecompressor wraps `input` in a reader that undoes `compression`. The
// returned closer must be called once the reader is no longer needed.
func NewDecompressor(input io.Reader, compression Compression) (io.Reader, func(), error) {
	switch compression {
	case CompressionNone:
		return input, func() {}, nil
	case CompressionGzip:
		gzReader, err := gzip.NewReader(input)
		if err != nil {
			return nil, nil, err
		}
		return gzReader, func() { gzReader.Close() }, nil
	case CompressionXZ:
		xzReader, err := xz.NewReader(input)
		if err != nil {
			return nil, nil, err
		}
		return xzReader, func() {}, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(input)
		if err != nil {
			return nil, nil, err
		}
		return decoder, decoder.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression: %s", compression)
	}
}

// Expand writes the raw image held in `input` to `output`, decompressing it
// and then expanding RLE8 if `rle8` is set. It returns the raw image size.
func Expand(input io.Reader, output io.Writer, compression Compression, rle8 bool) (int64, error) {
	reader, closeReader, err := NewDecompressor(input, compression)
	if err != nil {
		return 0, fmt.Errorf("open %s stream: %w", compression, err)
	}
	defer closeReader()

	if rle8 {
		return DecodeRLE8(reader, output)
	}
	return io.Copy(output, reader)
}
