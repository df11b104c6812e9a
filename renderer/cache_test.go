package renderer

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lutHeader = ArtifactHeader{Format: 83, Width: 4, Height: 4, Mips: 1, Layers: 1}

func TestArtifactRoundTrip(t *testing.T) {
	payload := make([]byte, 4*4*4)
	for i := range payload {
		payload[i] = byte(i)
	}
	data := EncodeArtifact(lutHeader, payload)
	require.Len(t, data, cacheHeaderSize+len(payload))
	assert.Equal(t, "DRIB", string(data[:4]))

	got, err := DecodeArtifact(data, lutHeader, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecodeArtifactRejectsMismatches(t *testing.T) {
	payload := make([]byte, 64)
	good := EncodeArtifact(lutHeader, payload)

	other := lutHeader
	other.Width = 8
	_, err := DecodeArtifact(good, other, 64)
	assert.ErrorIs(t, err, ErrCacheMismatch, "resolution")

	other = lutHeader
	other.Mips = 5
	_, err = DecodeArtifact(good, other, 64)
	assert.ErrorIs(t, err, ErrCacheMismatch, "mip count")

	_, err = DecodeArtifact(good, lutHeader, 128)
	assert.ErrorIs(t, err, ErrCacheMismatch, "payload size")

	corrupt := append([]byte(nil), good...)
	corrupt[len(corrupt)-1] ^= 0xff
	_, err = DecodeArtifact(corrupt, lutHeader, 64)
	assert.ErrorIs(t, err, ErrCacheMismatch, "checksum")

	badMagic := append([]byte(nil), good...)
	copy(badMagic, "XXXX")
	_, err = DecodeArtifact(badMagic, lutHeader, 64)
	assert.ErrorIs(t, err, ErrCacheMismatch, "magic")

	_, err = DecodeArtifact(good[:10], lutHeader, 64)
	assert.ErrorIs(t, err, ErrCacheMismatch, "truncated")
}

func TestArtifactCacheStoreAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c := artifactCache{dir: dir, log: slog.New(slog.DiscardHandler)}

	assert.Nil(t, c.load(cacheBRDFLUT, lutHeader, 64), "absent")

	payload := make([]byte, 64)
	payload[3] = 7
	require.NoError(t, c.store(cacheBRDFLUT, lutHeader, payload))
	assert.Equal(t, payload, c.load(cacheBRDFLUT, lutHeader, 64))

	stale := lutHeader
	stale.Format = 97
	assert.Nil(t, c.load(cacheBRDFLUT, stale, 64), "format changed")

	require.NoError(t, c.storeRaw(cachePipelineCache, []byte("blob")))
	assert.Equal(t, []byte("blob"), c.loadRaw(cachePipelineCache))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestArtifactCacheDisabled(t *testing.T) {
	c := artifactCache{log: slog.New(slog.DiscardHandler)}
	require.NoError(t, c.store(cacheSpecular, lutHeader, []byte{1}))
	assert.Nil(t, c.load(cacheSpecular, lutHeader, 1))
}
