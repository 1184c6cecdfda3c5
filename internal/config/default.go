package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns a configuration populated with defaults so that a planner
// can be started without any prior configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Terrain: TerrainConfig{
			Width:       128,
			Depth:       128,
			HeightScale: 8,
			Seed:        1337,
			OffsetX:     100,
			OffsetZ:     100,
			Octaves: []OctaveConfig{
				{Amplitude: 1.0, Frequency: 2},
				{Amplitude: 0.5, Frequency: 4},
				{Amplitude: 0.25, Frequency: 8},
				{Amplitude: 0.125, Frequency: 16},
			},
		},
		Search: SearchConfig{
			MaskRadius:      3.0,
			Timeout:         Duration(250 * time.Millisecond),
			DistInfluence:   1.0,
			SlopeInfluence:  2.0,
			WaterInfluence:  4.0,
			WaterLevel:      5.0,
			PrecomputeMasks: true,
			CacheWorkers:    0,
			ClampToWater:    true,
		},
		Server: ServerConfig{
			ListenAddress:   "0.0.0.0",
			HTTPPort:        28090,
			MaxRequestBytes: 64 << 10,
			MaxTimeout:      Duration(10 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Store: StoreConfig{
			Path: "./data/routes.db",
		},
		Snapshot: SnapshotConfig{
			Path: "./data/terrain.snap",
		},
	}
}

// WriteDefault writes the default configuration to path as YAML.
func WriteDefault(path string) error {
	cfg := Default()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}
