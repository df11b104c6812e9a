// Package config holds the engine's startup configuration. It is loaded
// once from a TOML file, optionally overridden from the command line, and
// then passed by value to every component that needs it.
package config

import (
	"bytes"
	"log/slog"
	"math/bits"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// MaxCascades bounds the number of shadow cascades the shaders are
// compiled for.
const MaxCascades = 4

type Window struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
	VSync  bool   `toml:"vsync"`
}

type Shadow struct {
	Cascades   int     `toml:"cascades"`
	Resolution uint32  `toml:"resolution"`
	KernelSize int     `toml:"kernel_size"`
	Lambda     float32 `toml:"lambda"`
}

type Camera struct {
	FOV  float32 `toml:"fov"`
	Near float32 `toml:"near"`
	Far  float32 `toml:"far"`
}

type Bloom struct {
	Threshold  float32 `toml:"threshold"`
	Intensity  float32 `toml:"intensity"`
	BlurPasses int     `toml:"blur_passes"`
}

type IBL struct {
	BRDFLUTSize   uint32 `toml:"brdf_lut_size"`
	PrefilterSize uint32 `toml:"prefilter_size"`
	PrefilterMips uint32 `toml:"prefilter_mips"`
}

type Config struct {
	Window         Window  `toml:"window"`
	Validation     bool    `toml:"validation"`
	LogLevel       string  `toml:"log_level"`
	ScenePath      string  `toml:"scene"`
	ShaderDir      string  `toml:"shader_dir"`
	CacheDir       string  `toml:"cache_dir"`
	FramesInFlight int     `toml:"frames_in_flight"`
	Exposure       float32 `toml:"exposure"`

	Shadow Shadow `toml:"shadow"`
	Camera Camera `toml:"camera"`
	Bloom  Bloom  `toml:"bloom"`
	IBL    IBL    `toml:"ibl"`
}

func Default() Config {
	return Config{
		Window:         Window{Width: 1600, Height: 900, Title: "deferred", VSync: true},
		LogLevel:       "info",
		ScenePath:      "assets/scene.toml",
		ShaderDir:      "shaders",
		CacheDir:       "~/.cache/deferred-engine",
		FramesInFlight: 2,
		Exposure:       1,
		Shadow:         Shadow{Cascades: 4, Resolution: 2048, KernelSize: 3, Lambda: 0.75},
		Camera:         Camera{FOV: 60, Near: 0.1, Far: 100},
		Bloom:          Bloom{Threshold: 1, Intensity: 0.6, BlurPasses: 5},
		IBL:            IBL{BRDFLUTSize: 512, PrefilterSize: 128, PrefilterMips: 5},
	}
}

// Load reads path over the defaults. Keys not present in the file keep
// their default value; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	p, err := homedir.Expand(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "expand %s", path)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config %s", p)
	}
	return cfg, nil
}

// Decode unmarshals TOML data into cfg.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return errors.Newf("unknown keys:\n%s", strict.String())
		}
		return errors.Wrap(err, "decode toml")
	}
	return nil
}

// ExpandPaths resolves a leading ~ in every path field.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.ScenePath, &c.ShaderDir, &c.CacheDir} {
		e, err := homedir.Expand(*p)
		if err != nil {
			return errors.Wrapf(err, "expand %s", *p)
		}
		*p = e
	}
	return nil
}

func isPowerOfTwo(v uint32) bool { return v != 0 && v&(v-1) == 0 }

// Validate reports the first out-of-range value.
func (c Config) Validate() error {
	switch {
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	case c.Shadow.Cascades < 1 || c.Shadow.Cascades > MaxCascades:
		return errors.Newf("shadow.cascades %d outside [1,%d]", c.Shadow.Cascades, MaxCascades)
	case !isPowerOfTwo(c.Shadow.Resolution):
		return errors.Newf("shadow.resolution %d is not a power of two", c.Shadow.Resolution)
	case c.Shadow.KernelSize < 1 || c.Shadow.KernelSize%2 == 0:
		return errors.Newf("shadow.kernel_size %d must be odd and positive", c.Shadow.KernelSize)
	case c.Shadow.Lambda < 0 || c.Shadow.Lambda > 1:
		return errors.Newf("shadow.lambda %g outside [0,1]", c.Shadow.Lambda)
	case c.Camera.Near <= 0 || c.Camera.Near >= c.Camera.Far:
		return errors.Newf("camera near %g must be positive and below far %g", c.Camera.Near, c.Camera.Far)
	case c.Camera.FOV <= 0 || c.Camera.FOV >= 180:
		return errors.Newf("camera.fov %g outside (0,180)", c.Camera.FOV)
	case c.Bloom.BlurPasses < 0:
		return errors.Newf("bloom.blur_passes %d is negative", c.Bloom.BlurPasses)
	case !isPowerOfTwo(c.IBL.BRDFLUTSize) || !isPowerOfTwo(c.IBL.PrefilterSize):
		return errors.Newf("ibl sizes %d and %d must be powers of two", c.IBL.BRDFLUTSize, c.IBL.PrefilterSize)
	case c.IBL.PrefilterMips < 1 || c.IBL.PrefilterMips > uint32(bits.Len32(c.IBL.PrefilterSize)):
		return errors.Newf("ibl.prefilter_mips %d too many for size %d", c.IBL.PrefilterMips, c.IBL.PrefilterSize)
	case c.FramesInFlight < 1 || c.FramesInFlight > 3:
		return errors.Newf("frames_in_flight %d outside [1,3]", c.FramesInFlight)
	case c.Exposure <= 0:
		return errors.Newf("exposure %g must be positive", c.Exposure)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, errors.Newf("unknown log level %q", s)
	}
	return l, nil
}

// Logger builds the text logger every component receives.
func (c Config) Logger() *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
