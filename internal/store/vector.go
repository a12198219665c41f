package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PackVector encodes v as little-endian float32 values.
func PackVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// UnpackVector decodes a blob written by PackVector. dim must be the
// dimension recorded alongside the blob.
func UnpackVector(b []byte, dim int) ([]float32, error) {
	if dim < 0 || len(b) != 4*dim {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d for dim %d", len(b), 4*dim, dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
