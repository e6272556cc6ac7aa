package message

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Sign computes m's CanonicalHash and produces a hex-encoded ECDSA
// signature over it using key, the coordinator's relayer key. It does not
// mutate m; callers assign the result to Header.Signature themselves so
// the hash computed here matches what Validate later re-derives.
func Sign(m *Message, key *ecdsa.PrivateKey) (string, error) {
	digest, err := CanonicalHash(m)
	if err != nil {
		return "", fmt.Errorf("hash message for signing: %w", err)
	}
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return "", fmt.Errorf("sign message digest: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// VerifyRelayerSignature reports whether signature over m's canonical hash
// was produced by the holder of address - used to reject messages claiming
// to be relayed by a coordinator key that didn't actually sign them.
func VerifyRelayerSignature(m *Message, signature, address string) (bool, error) {
	digest, err := CanonicalHash(m)
	if err != nil {
		return false, fmt.Errorf("hash message for verification: %w", err)
	}
	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	pub, err := crypto.SigToPub(digest[:], sigBytes)
	if err != nil {
		return false, fmt.Errorf("recover signer: %w", err)
	}
	return normalizeHex(crypto.PubkeyToAddress(*pub).Hex()) == normalizeHex(address), nil
}
