package renderer

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
)

// ErrCacheMismatch reports a cache artifact that does not describe the
// image the renderer asked for, or whose payload is corrupt.
var ErrCacheMismatch = errors.New("cache artifact does not match")

const (
	cacheMagic      = "DRIB"
	cacheVersion    = 1
	cacheHeaderSize = 32
)

// Cache file names under Options.CacheDir.
const (
	cacheBRDFLUT       = "brdf_lut.bin"
	cacheSpecular      = "specular_irradiance.bin"
	cachePipelineCache = "pipeline_cache.bin"
)

// ArtifactHeader identifies the image an artifact payload holds.
type ArtifactHeader struct {
	Format uint32
	Width  uint32
	Height uint32
	Mips   uint32
	Layers uint32
}

// EncodeArtifact prefixes payload with the fixed header: magic, version,
// the image description and a CRC-32 of the payload.
func EncodeArtifact(h ArtifactHeader, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(cacheHeaderSize + len(payload))
	buf.WriteString(cacheMagic)
	var words [7]uint32
	words[0] = cacheVersion
	words[1] = h.Format
	words[2] = h.Width
	words[3] = h.Height
	words[4] = h.Mips
	words[5] = h.Layers
	words[6] = crc32.ChecksumIEEE(payload)
	// Writing a fixed array into a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, words)
	buf.Write(payload)
	return buf.Bytes()
}

// DecodeArtifact checks data against want and returns the payload. size is
// the payload length the image requires.
func DecodeArtifact(data []byte, want ArtifactHeader, size int) ([]byte, error) {
	if len(data) < cacheHeaderSize {
		return nil, errors.Wrapf(ErrCacheMismatch, "%d bytes is shorter than the header", len(data))
	}
	if string(data[:4]) != cacheMagic {
		return nil, errors.Wrapf(ErrCacheMismatch, "bad magic %q", data[:4])
	}
	le := binary.LittleEndian
	if v := le.Uint32(data[4:]); v != cacheVersion {
		return nil, errors.Wrapf(ErrCacheMismatch, "version %d, want %d", v, cacheVersion)
	}
	got := ArtifactHeader{
		Format: le.Uint32(data[8:]),
		Width:  le.Uint32(data[12:]),
		Height: le.Uint32(data[16:]),
		Mips:   le.Uint32(data[20:]),
		Layers: le.Uint32(data[24:]),
	}
	if got != want {
		return nil, errors.Wrapf(ErrCacheMismatch, "header %+v, want %+v", got, want)
	}
	payload := data[cacheHeaderSize:]
	if len(payload) != size {
		return nil, errors.Wrapf(ErrCacheMismatch, "payload is %d bytes, want %d", len(payload), size)
	}
	if sum := crc32.ChecksumIEEE(payload); sum != le.Uint32(data[28:]) {
		return nil, errors.Wrapf(ErrCacheMismatch, "checksum %08x, want %08x", sum, le.Uint32(data[28:]))
	}
	return payload, nil
}

// artifactCache reads and writes artifacts in one directory. An empty dir
// disables it.
type artifactCache struct {
	dir string
	log *slog.Logger
}

func (c artifactCache) enabled() bool { return c.dir != "" }

// load returns the artifact payload, or nil when it is absent or stale. A
// stale artifact is logged and left for the next store to overwrite.
func (c artifactCache) load(name string, want ArtifactHeader, size int) []byte {
	if !c.enabled() {
		return nil
	}
	path := filepath.Join(c.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !oserror.IsNotExist(err) {
			c.log.Warn("cache unreadable", "path", path, "err", err)
		}
		return nil
	}
	payload, err := DecodeArtifact(data, want, size)
	if err != nil {
		c.log.Warn("cache rejected, recomputing", "path", path, "err", err)
		return nil
	}
	c.log.Debug("cache hit", "path", path, "bytes", len(payload))
	return payload
}

// loadRaw returns an unframed file, nil when absent.
func (c artifactCache) loadRaw(name string) []byte {
	if !c.enabled() {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return nil
	}
	return data
}

func (c artifactCache) store(name string, h ArtifactHeader, payload []byte) error {
	return c.storeRaw(name, EncodeArtifact(h, payload))
}

// storeRaw writes data atomically through a temporary file.
func (c artifactCache) storeRaw(name string, data []byte) error {
	if !c.enabled() {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Wrap(err, "create cache dir")
	}
	f, err := os.CreateTemp(c.dir, name+".*")
	if err != nil {
		return errors.Wrap(err, "create cache file")
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", name)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", name)
	}
	if err := os.Rename(tmp, filepath.Join(c.dir, name)); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "install %s", name)
	}
	c.log.Debug("cache stored", "file", name, "bytes", len(data))
	return nil
}
