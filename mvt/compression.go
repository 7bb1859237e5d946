package mvt

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// MaxTileSize bounds the decompressed size of a tile.
const MaxTileSize = 256 << 20

type Compression uint8

const (
	None Compression = iota
	Gzip
	Zlib
	Zstd
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Zlib:
		return "zlib"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", c)
	}
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// DetectCompression inspects the leading bytes of a blob.
func DetectCompression(b []byte) Compression {
	switch {
	case len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b:
		return Gzip
	case len(b) >= 4 && bytes.Equal(b[:4], zstdMagic):
		return Zstd
	case len(b) >= 2 && b[0]&0x0f == 8 && b[0]>>4 <= 7 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0:
		return Zlib
	default:
		return None
	}
}

var (
	gzipWriters = sync.Pool{New: func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		return w
	}}
	zlibWriters = sync.Pool{New: func() interface{} {
		w, _ := zlib.NewWriterLevel(nil, zlib.DefaultCompression)
		return w
	}}

	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	zstdEncoder *zstd.Encoder
	zstdErr     error
)

func initZstd() {
	zstdOnce.Do(func() {
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxTileSize))
		if zstdErr != nil {
			return
		}
		zstdEncoder, zstdErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1))
	})
}

// Decompress undoes the compression detected on b. Uncompressed input is returned as is,
// as is input that looks like zlib but does not inflate.
func Decompress(b []byte) ([]byte, Compression, error) {
	c := DetectCompression(b)
	var rc io.ReadCloser
	var err error
	switch c {
	case None:
		return b, None, nil
	case Zstd:
		initZstd()
		if zstdErr != nil {
			return nil, c, zstdErr
		}
		out, err := zstdDecoder.DecodeAll(b, nil)
		if err != nil {
			return nil, c, fmt.Errorf("%w: %v", ErrCompression, err)
		}
		return out, c, nil
	case Gzip:
		rc, err = gzip.NewReader(bytes.NewReader(b))
	case Zlib:
		rc, err = zlib.NewReader(bytes.NewReader(b))
	}
	if err != nil {
		if c == Zlib {
			return b, None, nil
		}
		return nil, c, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	defer rc.Close()
	out, err := io.ReadAll(io.LimitReader(rc, MaxTileSize+1))
	if err != nil {
		// a raw tile can start with bytes that pass the zlib header check
		if c == Zlib {
			return b, None, nil
		}
		return nil, c, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if len(out) > MaxTileSize {
		return nil, c, ErrTooLarge
	}
	return out, c, nil
}

// Compress applies c to b. The output only depends on b and c.
func Compress(b []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case None:
		return b, nil
	case Zstd:
		initZstd()
		if zstdErr != nil {
			return nil, zstdErr
		}
		return zstdEncoder.EncodeAll(b, make([]byte, 0, len(b))), nil
	case Gzip:
		w := gzipWriters.Get().(*gzip.Writer)
		defer gzipWriters.Put(w)
		w.Reset(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case Zlib:
		w := zlibWriters.Get().(*zlib.Writer)
		defer zlibWriters.Put(w)
		w.Reset(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported compression: %v", c)
	}
	return buf.Bytes(), nil
}
