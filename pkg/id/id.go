// Package id generates identifiers for queue items, logs, campaigns and
// worker leases.
//
// Record IDs are ULIDs: 26 Crockford base32 characters whose first ten encode
// the millisecond timestamp, so they sort by creation time. Lease tokens are
// opaque random strings that only need to be unique per claim.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// Crockford base32 without I, L, O, U.
const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ULIDLen is the length of a generated record ID.
const ULIDLen = 26

// New returns a ULID for the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID whose timestamp part encodes t.
func NewAt(t time.Time) string {
	var entropy [10]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		binary.BigEndian.PutUint64(entropy[:8], uint64(time.Now().UnixNano()))
	}

	var out [ULIDLen]byte
	ms := uint64(t.UnixMilli())
	for i := 9; i >= 0; i-- {
		out[i] = alphabet[ms&0x1F]
		ms >>= 5
	}

	// 80 random bits become 16 characters, consumed five bits at a time.
	var acc uint64
	bits := 0
	pos := 10
	for _, b := range entropy {
		acc = acc<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[pos] = alphabet[(acc>>bits)&0x1F]
			pos++
		}
	}
	return string(out[:])
}

// Token returns a random 128-bit hex token used to fence worker leases.
func Token() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
	}
	return hex.EncodeToString(b[:])
}
