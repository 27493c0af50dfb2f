package testing

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// ByteRun represents a single run of a particular byte value.
type ByteRun struct {
	Byte byte
	// RunLength gives the number of times the byte occurs in the run (not the
	// number of times it's repeated). Zero means EOF or an error.
	RunLength int
}

type RunLengthGrouper struct {
	rd *bufio.Reader
}

func NewRunLengthGrouper(rd io.Reader) RunLengthGrouper {
	return RunLengthGrouper{rd: bufio.NewReader(rd)}
}

// GetNextRun returns a [ByteRun] for the next byte or run of byte values in the
// stream.
func (grouper RunLengthGrouper) GetNextRun() (ByteRun, error) {
	firstByte, err := grouper.rd.ReadByte()
	if err != nil {
		return ByteRun{}, err
	}

	var runLength int
	for runLength = 1; ; runLength++ {
		currentByte, err := grouper.rd.ReadByte()
		if err != nil {
			if err == io.EOF {
				break
			}
			return ByteRun{}, err
		}
		if currentByte != firstByte {
			grouper.rd.UnreadByte()
			break
		}
	}
	return ByteRun{Byte: firstByte, RunLength: runLength}, nil
}

// EncodeRLE8 is the inverse of disks.DecodeRLE8. It's here so tests can build
// encoded images.
func EncodeRLE8(input io.Reader, output io.Writer) (int64, error) {
	grouper := NewRunLengthGrouper(input)

	totalBytesWritten := int64(0)
	for {
		run, getRunErr := grouper.GetNextRun()
		if getRunErr != nil && !errors.Is(getRunErr, io.EOF) {
			return totalBytesWritten, getRunErr
		}

		for run.RunLength >= 2 {
			var repeatCount int
			if run.RunLength > 257 {
				repeatCount = 255
			} else {
				repeatCount = run.RunLength - 2
			}

			n, err := output.Write([]byte{run.Byte, run.Byte, byte(repeatCount)})
			totalBytesWritten += int64(n)
			if err != nil {
				return totalBytesWritten, err
			}
			run.RunLength -= repeatCount + 2
		}

		if run.RunLength == 1 {
			n, err := output.Write([]byte{run.Byte})
			totalBytesWritten += int64(n)
			if err != nil {
				return totalBytesWritten, err
			}
		}

		// Non-EOF errors bailed out above.
		if getRunErr != nil {
			return totalBytesWritten, nil
		}
	}
}

// Compress packs `raw` with the named format ("gzip", "xz", "zstd", or "none"),
// optionally RLE8-encoding it first. It fails the test on error.
func Compress(t *testing.T, raw []byte, format string, rle8 bool) []byte {
	t.Helper()

	payload := raw
	if rle8 {
		var encoded bytes.Buffer
		_, err := EncodeRLE8(bytes.NewReader(raw), &encoded)
		require.NoError(t, err, "RLE8 encoding failed")
		payload = encoded.Bytes()
	}

	var output bytes.Buffer
	switch format {
	case "none":
		output.Write(payload)
	case "gzip":
		writer, err := gzip.NewWriterLevel(&output, gzip.BestCompression)
		require.NoError(t, err)
		_, err = writer.Write(payload)
		require.NoError(t, err)
		require.NoError(t, writer.Close())
	case "xz":
		writer, err := xz.NewWriter(&output)
		require.NoError(t, err)
		_, err = writer.Write(payload)
		require.NoError(t, err)
		require.NoError(t, writer.Close())
	case "zstd":
		writer, err := zstd.NewWriter(&output)
		require.NoError(t, err)
		_, err = writer.Write(payload)
		require.NoError(t, err)
		require.NoError(t, writer.Close())
	default:
		t.Fatalf("unknown compression format %q", format)
	}
	return output.Bytes()
}
