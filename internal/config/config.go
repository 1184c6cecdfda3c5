package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a YAML-friendly wrapper around time.Duration that accepts human
// readable strings such as "250ms" in configuration files while still
// allowing integer nanosecond values.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalYAML encodes the duration using the canonical string representation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML decodes a duration from either a string (e.g. "250ms") or an
// integer number of nanoseconds. Empty and null values decode to zero.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar, got %v at line %d", node.Tag, node.Line)
	}
	value := strings.TrimSpace(node.Value)
	if value == "" || node.Tag == "!!null" {
		*d = 0
		return nil
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("duration: parse %q: %w", value, err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures everything needed to bootstrap a route planning session.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Terrain  TerrainConfig  `yaml:"terrain"`
	Search   SearchConfig   `yaml:"search"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// TerrainConfig describes the height field and the grid sampled from it.
// Width and Depth are the largest row and column indices, so the grid holds
// (Width+1)*(Depth+1) nodes.
type TerrainConfig struct {
	Width       int            `yaml:"width"`
	Depth       int            `yaml:"depth"`
	HeightScale float64        `yaml:"height_scale"`
	Seed        int64          `yaml:"seed"`
	OffsetX     float64        `yaml:"offset_x"`
	OffsetZ     float64        `yaml:"offset_z"`
	Octaves     []OctaveConfig `yaml:"octaves"`
}

type OctaveConfig struct {
	Amplitude float64 `yaml:"amplitude"`
	Frequency float64 `yaml:"frequency"`
}

// OctaveCount is the number of noise octaves a height field sums.
const OctaveCount = 4

type SearchConfig struct {
	MaskRadius      float64  `yaml:"mask_radius"`
	Timeout         Duration `yaml:"timeout"` // e.g. "250ms"
	DistInfluence   float64  `yaml:"dist_influence"`
	SlopeInfluence  float64  `yaml:"slope_influence"`
	WaterInfluence  float64  `yaml:"water_influence"`
	WaterLevel      float64  `yaml:"water_level"`
	PrecomputeMasks bool     `yaml:"precompute_masks"`
	CacheWorkers    int      `yaml:"cache_workers"` // 0 selects GOMAXPROCS
	ClampToWater    bool     `yaml:"clamp_to_water"`
}

type ServerConfig struct {
	ListenAddress   string   `yaml:"listen_address"`
	HTTPPort        int      `yaml:"http_port"`
	MaxRequestBytes int64    `yaml:"max_request_bytes"`
	MaxTimeout      Duration `yaml:"max_timeout"` // upper bound for per-request search timeouts
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StoreConfig points at the SQLite route history. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SnapshotConfig points at the compressed terrain snapshot written after
// every rebuild. An empty path disables it.
type SnapshotConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file if provided. An empty path
// returns defaults. Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Terrain.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > math.MaxUint16 {
		return errors.New("server.http_port out of range")
	}
	if c.Server.MaxRequestBytes < 0 {
		return errors.New("server.max_request_bytes cannot be negative")
	}
	if c.Server.MaxTimeout <= 0 {
		return errors.New("server.max_timeout must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

func (t TerrainConfig) Validate() error {
	if t.Width <= 0 || t.Depth <= 0 {
		return errors.New("terrain dimensions must be positive")
	}
	if !finite(t.HeightScale) || !finite(t.OffsetX) || !finite(t.OffsetZ) {
		return errors.New("terrain scale and offsets must be finite")
	}
	if len(t.Octaves) != OctaveCount {
		return fmt.Errorf("terrain.octaves must list exactly %d entries", OctaveCount)
	}
	for i, octave := range t.Octaves {
		if !finite(octave.Amplitude) || !finite(octave.Frequency) {
			return fmt.Errorf("terrain.octaves[%d] must be finite", i)
		}
	}
	return nil
}

func (s SearchConfig) Validate() error {
	if !(s.MaskRadius > 0) || math.IsInf(s.MaskRadius, 0) {
		return errors.New("search.mask_radius must be positive")
	}
	if s.Timeout <= 0 {
		return errors.New("search.timeout must be positive")
	}
	if !nonNegative(s.DistInfluence) || !nonNegative(s.SlopeInfluence) || !nonNegative(s.WaterInfluence) {
		return errors.New("search influences cannot be negative")
	}
	if !finite(s.WaterLevel) {
		return errors.New("search.water_level must be finite")
	}
	if s.CacheWorkers < 0 {
		return errors.New("search.cache_workers cannot be negative")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonNegative(v float64) bool {
	return finite(v) && v >= 0
}
