package compression

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/KevoDB/tablestore/pkg/common/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecsRoundTrip(t *testing.T) {
	registry, err := DefaultRegistry()
	require.NoError(t, err)
	defer registry.Close()

	payloads := map[string][]byte{
		"empty":      {},
		"small":      []byte("hello"),
		"repetitive": bytes.Repeat([]byte("key00001value"), 500),
	}

	for _, typ := range []Type{Snappy, Zlib, Zstd} {
		codec, err := registry.Lookup(typ)
		require.NoError(t, err, typ.String())
		assert.Equal(t, typ, codec.Type())

		for name, payload := range payloads {
			t.Run(typ.String()+"/"+name, func(t *testing.T) {
				compressed, err := codec.Encode(nil, payload)
				require.NoError(t, err)

				decompressed, err := codec.Decode(nil, compressed)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(payload, decompressed), "payload mismatch")
			})
		}

		compressed, err := codec.Encode(nil, payloads["repetitive"])
		require.NoError(t, err)
		assert.Less(t, len(compressed), len(payloads["repetitive"])/4, "%v should shrink repetitive data", typ)
	}
}

func TestCodecAppendsToDst(t *testing.T) {
	codec := SnappyCodec{}
	prefix := []byte("prefix")
	out, err := codec.Encode(append([]byte(nil), prefix...), []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, prefix, out[:len(prefix)])

	decoded, err := codec.Decode(nil, out[len(prefix):])
	require.NoError(t, err)
	assert.Equal(t, "data", string(decoded))
}

func TestInvalidCompressedData(t *testing.T) {
	registry, err := DefaultRegistry()
	require.NoError(t, err)
	defer registry.Close()

	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	for _, typ := range []Type{Snappy, Zlib, Zstd} {
		codec, err := registry.Lookup(typ)
		require.NoError(t, err)

		_, err = codec.Decode(nil, garbage)
		assert.ErrorIs(t, err, ErrInvalidCompressedData, typ.String())
		assert.True(t, status.IsCorruption(err), typ.String())
	}
}

func TestZstdCloseWhileInUse(t *testing.T) {
	z, err := NewZstdCodec()
	require.NoError(t, err)

	src := bytes.Repeat([]byte("tablestore "), 256)
	encoded, err := z.Encode(nil, src)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := z.Encode(nil, src); err != nil {
					assert.ErrorIs(t, err, ErrCodecClosed)
				}
				out, err := z.Decode(nil, encoded)
				if err != nil {
					assert.ErrorIs(t, err, ErrCodecClosed)
					continue
				}
				assert.Equal(t, src, out)
			}
		}()
	}
	require.NoError(t, z.Close())
	wg.Wait()

	_, err = z.Encode(nil, src)
	assert.ErrorIs(t, err, ErrCodecClosed)
	_, err = z.Decode(nil, encoded)
	assert.ErrorIs(t, err, ErrCodecClosed)
	require.NoError(t, z.Close())
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(SnappyCodec{})

	_, err := registry.Lookup(Zstd)
	assert.True(t, errors.Is(err, ErrUnknownCodec))

	_, err = registry.Lookup(None)
	assert.ErrorIs(t, err, ErrUnknownCodec)

	registry.Register(ZlibCodec{})
	codec, err := registry.Lookup(Zlib)
	require.NoError(t, err)
	assert.Equal(t, Zlib, codec.Type())

	var nilRegistry *Registry
	_, err = nilRegistry.Lookup(Snappy)
	assert.ErrorIs(t, err, ErrUnknownCodec)

	require.NoError(t, registry.Close())
	_, err = registry.Lookup(Snappy)
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, Snappy, Zlib, Zstd} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	_, err := ParseType("lz4")
	assert.ErrorIs(t, err, ErrUnknownCodec)
	assert.Equal(t, "type(9)", Type(9).String())
}
