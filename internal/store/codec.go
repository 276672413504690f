package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// ErrMalformedEmbedding indicates a persisted embedding blob whose length is
// not a multiple of four bytes.
var ErrMalformedEmbedding = errors.New("embedding blob length is not a multiple of 4")

// EncodeVector serializes an embedding as a fixed-width little-endian float32
// array. This byte layout is the storage contract: any process reading the
// same database must decode it identically.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserializes a blob produced by EncodeVector. The round trip
// is exact for every finite and non-finite float32 bit pattern.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedEmbedding, len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// HashContent returns a stable hex digest of a record's text, used by
// external ingestion pipelines to diff stored content against source content
// without re-reading full rows.
func HashContent(text string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(text))
}
