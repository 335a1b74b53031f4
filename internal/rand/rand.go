// Package rand generates short, non-cryptographic identifiers used to
// correlate request and response log lines.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

type source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var defaultSource = newSource()

func newSource() *source {
	seed := make([]byte, 16)
	if _, err := cryptorand.Read(seed); err != nil {
		panic("rand: crypto source unavailable: " + err.Error())
	}
	return &source{
		//nolint:gosec // ids only need to be unlikely to collide
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

func (s *source) base62(length int) string {
	buf := make([]byte, length)

	s.mu.Lock()
	for i := range buf {
		buf[i] = charset[s.rng.IntN(len(charset))]
	}
	s.mu.Unlock()

	return string(buf)
}

// NewRequestID returns a random base62 string of the given length.
func NewRequestID(length int) string {
	return defaultSource.base62(length)
}
