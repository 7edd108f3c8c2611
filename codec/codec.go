// Package codec implements the pluggable compression codecs a blob is
// encoded with before it reaches the blob store. The codec tag travels with
// the referencing snapshot manifest, never with the blob itself.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"github.com/butnext/butnext/internal/buterr"
)

// Codec identifies a compression scheme. The zero value (the empty string)
// is treated like None, the identity codec.
type Codec string

const (
	// None stores payloads uncompressed.
	None Codec = "none"
	// General is a fast, moderate-ratio codec suited to already-compressed
	// or mixed content.
	General Codec = "general"
	// HighRatio trades encode speed for a smaller blob, suited to text and
	// other highly-compressible payloads.
	HighRatio Codec = "high-ratio"
)

// Valid reports whether c names a known codec.
func (c Codec) Valid() bool {
	switch c {
	case None, General, HighRatio:
		return true
	default:
		return false
	}
}

// Encode compresses p under c at the given level. level is ignored by None.
func Encode(c Codec, p []byte, level int) ([]byte, error) {
	switch c {
	case None, "":
		return p, nil
	case General:
		var buf bytes.Buffer
		w := s2.NewWriter(&buf)
		if _, err := w.Write(p); err != nil {
			return nil, fmt.Errorf("%w: s2 encode: %v", buterr.ErrIO, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("%w: s2 encode: %v", buterr.ErrIO, err)
		}
		return buf.Bytes(), nil
	case HighRatio:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd encoder: %v", buterr.ErrIO, err)
		}
		defer enc.Close()
		return enc.EncodeAll(p, nil), nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", buterr.ErrConfig, c)
	}
}

// Decode reverses Encode. Malformed input is reported as ErrCorruptBlob.
func Decode(c Codec, p []byte) ([]byte, error) {
	switch c {
	case None, "":
		return p, nil
	case General:
		out, err := io.ReadAll(s2.NewReader(bytes.NewReader(p)))
		if err != nil {
			return nil, fmt.Errorf("%w: s2 decode: %v", buterr.ErrCorruptBlob, err)
		}
		return out, nil
	case HighRatio:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd decoder: %v", buterr.ErrIO, err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(p, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd decode: %v", buterr.ErrCorruptBlob, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", buterr.ErrConfig, c)
	}
}

// EncodeStream compresses r under c at the given level, writing to w. Unlike
// Encode, the payload never needs to be resident in memory all at once: s2
// and zstd both stream through io.Writer/io.Reader natively, and None
// simply copies.
func EncodeStream(c Codec, w io.Writer, r io.Reader, level int) error {
	switch c {
	case None, "":
		if _, err := io.Copy(w, r); err != nil {
			return fmt.Errorf("%w: copy: %v", buterr.ErrIO, err)
		}
		return nil
	case General:
		sw := s2.NewWriter(w)
		if _, err := io.Copy(sw, r); err != nil {
			return fmt.Errorf("%w: s2 encode: %v", buterr.ErrIO, err)
		}
		if err := sw.Close(); err != nil {
			return fmt.Errorf("%w: s2 encode: %v", buterr.ErrIO, err)
		}
		return nil
	case HighRatio:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(level)))
		if err != nil {
			return fmt.Errorf("%w: zstd encoder: %v", buterr.ErrIO, err)
		}
		if _, err := io.Copy(zw, r); err != nil {
			zw.Close()
			return fmt.Errorf("%w: zstd encode: %v", buterr.ErrIO, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("%w: zstd encode: %v", buterr.ErrIO, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown codec %q", buterr.ErrConfig, c)
	}
}

// DecodeStream reverses EncodeStream, reading compressed bytes from r and
// writing the decompressed payload to w. Malformed input is reported as
// ErrCorruptBlob.
func DecodeStream(c Codec, w io.Writer, r io.Reader) error {
	switch c {
	case None, "":
		if _, err := io.Copy(w, r); err != nil {
			return fmt.Errorf("%w: copy: %v", buterr.ErrIO, err)
		}
		return nil
	case General:
		if _, err := io.Copy(w, s2.NewReader(r)); err != nil {
			return fmt.Errorf("%w: s2 decode: %v", buterr.ErrCorruptBlob, err)
		}
		return nil
	case HighRatio:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("%w: zstd decoder: %v", buterr.ErrIO, err)
		}
		defer dec.Close()
		if _, err := io.Copy(w, dec); err != nil {
			return fmt.Errorf("%w: zstd decode: %v", buterr.ErrCorruptBlob, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown codec %q", buterr.ErrConfig, c)
	}
}

// zstdLevel maps a 1-9 user-facing level onto zstd's named encoder levels.
func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 0:
		return zstd.SpeedDefault
	case level <= 2:
		return zstd.SpeedFastest
	case level <= 5:
		return zstd.SpeedDefault
	case level <= 8:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
