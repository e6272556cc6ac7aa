package order

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// Domain is the EIP-712-style signing domain: {name, version, chainId,
// verifyingContract}. Every signature in this coordinator is bound to
// exactly one Domain, preventing replay across deployments or chains.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string
}

// orderTypeHash is the keccak256 of this coordinator's fixed Order
// schema - analogous to an EIP-712 typehash, but expressed over the
// logical field list rather than a literal Solidity type string, since
// this order's fields (chain-agnostic asset identifiers, an HTLC profile)
// don't map onto Solidity primitives one-to-one.
var orderTypeHash = crypto.Keccak256Hash([]byte(
	"Order(string maker,string receiver,string sourceAsset,string destAsset,string makerAmount,string takerAmount,uint256 deadline,bytes32 salt,string discriminator,bytes32 htlcHash)",
))

func hashString(s string) [32]byte {
	return crypto.Keccak256Hash([]byte(s))
}

func bigFromDecimal(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		n = big.NewInt(0)
	}
	return n
}

func htlcHash(h *HTLCProfile) [32]byte {
	if h == nil {
		return [32]byte{}
	}
	return crypto.Keccak256Hash(
		[]byte(h.Hashlock),
		new(big.Int).SetInt64(h.Timelock).Bytes(),
		[]byte(h.RelayerFee),
	)
}

// structHash computes the struct-hash portion of the EIP-712-style digest
// for o: keccak256(typeHash || field hashes), fields ordered per the fixed
// schema above.
func structHash(o *Order) [32]byte {
	maker := hashString(o.Maker)
	receiver := hashString(o.Receiver)
	sourceAsset := hashString(o.SourceAsset)
	destAsset := hashString(o.DestAsset)
	makerAmount := hashString(o.MakerAmount)
	takerAmount := hashString(o.TakerAmount)
	deadline := common32(big.NewInt(o.Deadline.Unix()))
	salt := saltBytes(o.Salt)
	discriminator := hashString(string(o.Discriminator))
	htlc := htlcHash(o.HTLC)

	return crypto.Keccak256Hash(
		orderTypeHash[:],
		maker[:], receiver[:], sourceAsset[:], destAsset[:],
		makerAmount[:], takerAmount[:],
		deadline[:], salt[:], discriminator[:], htlc[:],
	)
}

func common32(n *big.Int) [32]byte {
	var out [32]byte
	b := n.Bytes()
	copy(out[32-len(b):], b)
	return out
}

func saltBytes(salt string) [32]byte {
	var out [32]byte
	decoded, err := hex.DecodeString(salt)
	if err != nil || len(decoded) != 32 {
		h := crypto.Keccak256Hash([]byte(salt))
		return h
	}
	copy(out[:], decoded)
	return out
}

// separator computes keccak256(typeHash || name || version ||
// chainId || verifyingContract) for d.
func (d Domain) separator() [32]byte {
	domainTypeHash := crypto.Keccak256Hash([]byte("Domain(string name,string version,uint256 chainId,string verifyingContract)"))
	name := hashString(d.Name)
	version := hashString(d.Version)
	chainID := common32(big.NewInt(d.ChainID))
	verifyingContract := hashString(d.VerifyingContract)

	return crypto.Keccak256Hash(
		domainTypeHash[:], name[:], version[:], chainID[:], verifyingContract[:],
	)
}

// Digest computes the final EIP-712-style digest for o under d:
// keccak256(0x1901 || domainSeparator || structHash(o)).
func (d Domain) Digest(o *Order) [32]byte {
	sep := d.separator()
	sh := structHash(o)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, sep[:], sh[:])
}

// Sign produces a hex-encoded ECDSA signature over o's typed digest under
// d, and returns the order hash alongside it.
func Sign(d Domain, o *Order, key *ecdsa.PrivateKey) (orderHash string, signature string, err error) {
	digest := d.Digest(o)
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return "", "", fmt.Errorf("sign order digest: %w", err)
	}
	return hex.EncodeToString(digest[:]), hex.EncodeToString(sig), nil
}

// Recover returns the address that produced signature over o's digest
// under d.
func Recover(d Domain, o *Order, signature string) (string, error) {
	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	digest := d.Digest(o)
	pub, err := crypto.SigToPub(digest[:], sigBytes)
	if err != nil {
		return "", fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
