// Package snapshot persists sampled terrain grids so external tooling can
// rebuild meshes or replay searches without re-running the noise.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"terrainroute/internal/config"
	"terrainroute/internal/terrain"
)

// Version is the current file layout version.
const Version = 1

var (
	ErrUnsupportedVersion  = errors.New("snapshot: unsupported version")
	ErrFingerprintMismatch = errors.New("snapshot: heights do not match recorded fingerprint")
)

// Header is written as a single JSON line ahead of the gob body so tools
// can identify a snapshot without decoding the heights.
type Header struct {
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Width       int       `json:"width"`
	Depth       int       `json:"depth"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot is a sampled grid together with the terrain settings that
// produced it.
type Snapshot struct {
	Header  Header
	Terrain config.TerrainConfig
	Heights []float64
}

// FromGrid captures grid. cfg records how it was generated.
func FromGrid(grid *terrain.Grid, cfg config.TerrainConfig) Snapshot {
	return Snapshot{
		Header: Header{
			Version:     Version,
			Fingerprint: grid.Fingerprint().String(),
			Width:       grid.Width(),
			Depth:       grid.Depth(),
			CreatedAt:   time.Now().UTC(),
		},
		Terrain: cfg,
		Heights: grid.Heights(),
	}
}

// Grid rebuilds the grid and checks it against the recorded fingerprint.
func (s Snapshot) Grid() (*terrain.Grid, error) {
	grid, err := terrain.NewGridFromHeights(s.Header.Width, s.Header.Depth, s.Heights)
	if err != nil {
		return nil, fmt.Errorf("snapshot grid: %w", err)
	}
	want, err := terrain.ParseFingerprint(s.Header.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("snapshot grid: %w", err)
	}
	if grid.Fingerprint() != want {
		return nil, fmt.Errorf("%w: recorded %s, computed %s", ErrFingerprintMismatch, want, grid.Fingerprint())
	}
	return grid, nil
}

// Write stores snap at path as a zstd stream. The file is written to a
// temporary sibling and renamed into place.
func Write(path string, snap Snapshot) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	header, err := json.Marshal(snap.Header)
	if err != nil {
		enc.Close()
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := bw.Write(append(header, '\n')); err != nil {
		enc.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Read loads a snapshot written by Write. The fingerprint is verified by
// Grid, not here.
func Read(path string) (Snapshot, error) {
	var snap Snapshot
	err := withReader(path, func(br *bufio.Reader) error {
		header, err := readHeader(br)
		if err != nil {
			return err
		}
		if err := gob.NewDecoder(br).Decode(&snap); err != nil {
			return fmt.Errorf("gob decode: %w", err)
		}
		if snap.Header.Fingerprint != header.Fingerprint {
			return fmt.Errorf("%w: header line and body disagree", ErrFingerprintMismatch)
		}
		return nil
	})
	return snap, err
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var header Header
	err := withReader(path, func(br *bufio.Reader) error {
		var err error
		header, err = readHeader(br)
		return err
	})
	return header, err
}

func withReader(path string, fn func(*bufio.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	return fn(bufio.NewReaderSize(dec, 256*1024))
}

func readHeader(br *bufio.Reader) (Header, error) {
	line, err := br.ReadBytes('\n')
	if err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(line, &header); err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	if header.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}
	return header, nil
}
