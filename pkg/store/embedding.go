package store

import (
	"encoding/binary"
	"math"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// SerializeEmbedding converts a float32 vector to its on-disk form:
// a raw little-endian float32 array.
func SerializeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DeserializeEmbedding converts an on-disk blob back to a vector, checking
// it against the expected dimension. A mismatch is fatal CorruptEmbedding.
func DeserializeEmbedding(b []byte, dim int) ([]float32, error) {
	if len(b) != dim*4 {
		return nil, fault.New(fault.KindCorruptEmbedding,
			"embedding blob is %d bytes, want %d for dimension %d", len(b), dim*4, dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
