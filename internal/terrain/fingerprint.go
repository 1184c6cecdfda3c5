package terrain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a BLAKE2b-256 digest of grid dimensions and heights. Caches
// and snapshots derived from a grid record it so they can detect that the
// grid they were built for has changed.
type Fingerprint [blake2b.Size256]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// ParseFingerprint decodes the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return f, err
	}
	if len(raw) != len(f) {
		return f, fmt.Errorf("terrain: fingerprint must be %d bytes, got %d", len(f), len(raw))
	}
	copy(f[:], raw)
	return f, nil
}

func fingerprintHeights(width, depth int, heights []float64) Fingerprint {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(width))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(depth))
	h.Write(buf[:])
	for _, v := range heights {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}
