package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// OutcomeByte encodes an outcome inside the oracle message.
func OutcomeByte(outcome bool) byte {
	if outcome {
		return 0x01
	}
	return 0x00
}

// OracleMessage is the 32-byte digest an oracle signs to attest outcome for
// marketID: keccak256(utf8(marketID) || outcome byte).
func OracleMessage(marketID string, outcome bool) []byte {
	buf := make([]byte, 0, len(marketID)+1)
	buf = append(buf, marketID...)
	buf = append(buf, OutcomeByte(outcome))
	return ethcrypto.Keccak256(buf)
}

// Ed25519Verifier implements domain.SignatureVerifier.
type Ed25519Verifier struct{}

// Verify checks signature over message. Malformed input is reported as
// domain.ErrInvalidSignature like any other mismatch.
func (Ed25519Verifier) Verify(key domain.PublicKey, message, signature []byte) error {
	if len(signature) != ed25519.SignatureSize {
		return domain.ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(key[:]), message, signature) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// CheckOracleKey rejects a caller-presented key that differs from the one
// registered on the market. It is an early filter only; the signature check
// is what authorizes a resolution.
func CheckOracleKey(m domain.Market, presented domain.PublicKey) error {
	if m.OraclePublicKey != presented {
		return domain.ErrUnauthorizedOracle
	}
	return nil
}

// Attestor signs oracle messages with an Ed25519 key.
type Attestor struct {
	priv ed25519.PrivateKey
}

// NewAttestor builds an Attestor from a 32-byte seed.
func NewAttestor(seed []byte) (*Attestor, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: oracle seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Attestor{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// GenerateAttestor creates an Attestor with a fresh random key.
func GenerateAttestor() (*Attestor, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate oracle key: %w", err)
	}
	return &Attestor{priv: priv}, nil
}

// PublicKey is the key markets register for this oracle.
func (a *Attestor) PublicKey() domain.PublicKey {
	var k domain.PublicKey
	copy(k[:], a.priv.Public().(ed25519.PublicKey))
	return k
}

// Seed returns the private seed, for EncryptKey.
func (a *Attestor) Seed() []byte {
	return a.priv.Seed()
}

// Attest signs the oracle message for (marketID, outcome).
func (a *Attestor) Attest(marketID string, outcome bool) []byte {
	return ed25519.Sign(a.priv, OracleMessage(marketID, outcome))
}

var _ domain.SignatureVerifier = Ed25519Verifier{}
