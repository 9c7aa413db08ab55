// Package uuid issues refresh event identifiers.
//
// IDs are RFC 9562 version 7 UUIDs whose timestamp field is the load time of
// the dataset rather than the moment the ID was minted, so event IDs sort in
// dataset order even when a publish is delayed or replayed.
package uuid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Generator mints refresh event IDs.
type Generator struct {
	entropy io.Reader
}

// New returns a Generator drawing randomness from entropy, or from
// crypto/rand when entropy is nil.
func New(entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{entropy: entropy}
}

// NewID returns a v7 UUID stamped with at, truncated to milliseconds.
func (g *Generator) NewID(at time.Time) (string, error) {
	id, err := uuid.NewV7FromReader(g.entropy)
	if err != nil {
		return "", fmt.Errorf("refresh event id: %w", err)
	}
	stampMillis(&id, at)
	return id.String(), nil
}

// IssuedAt recovers the load time embedded in an ID minted by NewID.
func IssuedAt(id string) (time.Time, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse event id: %w", err)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("event id %s is version %d, want 7", id, u.Version())
	}
	ms := binary.BigEndian.Uint64(u[:8]) >> 16
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// stampMillis overwrites the 48-bit unix_ts_ms field; version and variant
// bits live past byte 5 and are untouched.
func stampMillis(id *uuid.UUID, at time.Time) {
	ms := uint64(at.UnixMilli())
	for i := 5; i >= 0; i-- {
		id[i] = byte(ms)
		ms >>= 8
	}
}
