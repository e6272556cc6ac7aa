package message

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/certen/swapcoordinator/pkg/commitment"
)

// NewMessageID returns "{prefix}_{unix_millis}_{random_alnum}", unique
// within the process regardless of how many ids are minted in the same
// millisecond. The random segment is a uuid with its dashes stripped,
// grounded on the teacher's use of uuid.UUID for AnchorRequest.RequestID -
// still pure lower-case hex with the dashes stripped, matching the rest of
// this id's alphanumeric segments.
func NewMessageID(prefix string) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), random)
}

// Hashlock returns SHA-256(secret) as lower-case hex, with no 0x prefix -
// the canonical on-the-wire and in-storage form used throughout this
// package and pkg/statesync.
func Hashlock(secret []byte) string {
	h := sha256.Sum256(secret)
	return hex.EncodeToString(h[:])
}

// VerifySecret reports whether secret hashes to hashlock. Both sides are
// normalized to lower-case hex before comparison so callers never need to
// worry about case-insensitive hashlock encodings from the wire.
func VerifySecret(secret []byte, hashlock string) bool {
	return normalizeHex(Hashlock(secret)) == normalizeHex(hashlock)
}

func normalizeHex(s string) string {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'F' {
			c = c - 'A' + 'a'
		}
		out[i] = c
	}
	return string(out)
}

// CanonicalHash serializes the message's signable content - the header
// fields plus whichever body variant is populated, with the Signature
// field zeroed out - by sorting field names lexicographically and hashing
// the canonical JSON encoding. It is stable across field reordering of the
// input representation, which is what allows two independently-built
// messages carrying the same logical content to agree on the hash (and so
// on the relayer signature over it).
func CanonicalHash(m *Message) ([32]byte, error) {
	unsigned := *m
	unsigned.Signature = ""

	canon, err := commitment.MarshalCanonical(unsigned)
	if err != nil {
		return [32]byte{}, fmt.Errorf("canonicalize message: %w", err)
	}
	return sha256.Sum256(canon), nil
}

// CanonicalHashHex is CanonicalHash with a lower-case hex result.
func CanonicalHashHex(m *Message) (string, error) {
	h, err := CanonicalHash(m)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}
