package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// SnappyCodec uses the snappy block format
type SnappyCodec struct{}

func (SnappyCodec) Type() Type { return Snappy }

func (SnappyCodec) Encode(dst, src []byte) ([]byte, error) {
	out := snappy.Encode(nil, src)
	return append(dst, out...), nil
}

func (SnappyCodec) Decode(dst, src []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
	}
	return append(dst, out...), nil
}

// ZlibCodec uses the zlib stream format
type ZlibCodec struct{}

func (ZlibCodec) Type() Type { return Zlib }

func (ZlibCodec) Encode(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	w := zlib.NewWriter(buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ZlibCodec) Decode(dst, src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
	}
	defer r.Close()

	buf := bytes.NewBuffer(dst)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
	}
	return buf.Bytes(), nil
}

// ZstdCodec holds a shared zstd encoder and decoder
type ZstdCodec struct {
	mu      sync.RWMutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCodec creates a zstd codec at the default compression level
func NewZstdCodec() (*ZstdCodec, error) {
	return NewZstdCodecWithLevel(zstd.SpeedDefault)
}

// NewZstdCodecWithLevel creates a zstd codec at the given level
func NewZstdCodecWithLevel(level zstd.EncoderLevel) (*ZstdCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("failed to create ZSTD encoder with level %v: %w", level, err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create ZSTD decoder: %w", err)
	}

	return &ZstdCodec{encoder: encoder, decoder: decoder}, nil
}

func (z *ZstdCodec) Type() Type { return Zstd }

// Encode compresses src. Calls may run concurrently; Close waits for them.
func (z *ZstdCodec) Encode(dst, src []byte) ([]byte, error) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	if z.encoder == nil {
		return nil, ErrCodecClosed
	}
	return z.encoder.EncodeAll(src, dst), nil
}

func (z *ZstdCodec) Decode(dst, src []byte) ([]byte, error) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	if z.decoder == nil {
		return nil, ErrCodecClosed
	}
	out, err := z.decoder.DecodeAll(src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
	}
	return out, nil
}

// Close releases the encoder and decoder
func (z *ZstdCodec) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.encoder != nil {
		z.encoder.Close()
		z.encoder = nil
	}
	if z.decoder != nil {
		z.decoder.Close()
		z.decoder = nil
	}
	return nil
}
