// Package crypto holds the oracle primitives: the attested message digest,
// Ed25519 verification and signing, password-encrypted seed files, and HMAC
// signatures for outbound webhooks.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	sealedSeedVersion = 1
	sealedSeedKDF     = "pbkdf2-sha256"
	defaultIterations = 480_000
	minIterations     = 100_000
	saltLen           = 16
)

var errEmptyPassword = errors.New("crypto: password must not be empty")

// sealedSeed is the on-disk oracle key file. The public key is stored in
// the clear so operators can tell key files apart, and it is bound to the
// ciphertext as additional data.
type sealedSeed struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	PublicKey  string `json:"public_key"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// KeyConfig tells LoadKey where an oracle seed lives. RawSeed, hex with an
// optional 0x prefix, wins over EncryptedKeyPath.
type KeyConfig struct {
	RawSeed          string
	EncryptedKeyPath string
	KeyPassword      string
}

// EncryptKey seals a hex-encoded Ed25519 seed under password with
// PBKDF2-HMAC-SHA256 and AES-256-GCM, returning the key file contents.
func EncryptKey(seedHex string, password string) ([]byte, error) {
	if password == "" {
		return nil, errEmptyPassword
	}
	seed, err := decodeSeed(seedHex)
	if err != nil {
		return nil, err
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := passwordAEAD(password, salt, defaultIterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(sealedSeed{
		Version:    sealedSeedVersion,
		KDF:        sealedSeedKDF,
		Iterations: defaultIterations,
		PublicKey:  hex.EncodeToString(pub),
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, seed, pub),
	}, "", "  ")
}

// DecryptKey opens a key file produced by EncryptKey and returns the seed.
// It fails if the recovered seed does not match the recorded public key.
func DecryptKey(encryptedJSON []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errEmptyPassword
	}
	var s sealedSeed
	if err := json.Unmarshal(encryptedJSON, &s); err != nil {
		return nil, fmt.Errorf("crypto: parse key file: %w", err)
	}
	switch {
	case s.Version != sealedSeedVersion:
		return nil, fmt.Errorf("crypto: unsupported key file version %d", s.Version)
	case s.KDF != sealedSeedKDF:
		return nil, fmt.Errorf("crypto: unsupported kdf %q", s.KDF)
	case s.Iterations < minIterations:
		return nil, fmt.Errorf("crypto: kdf iterations %d below %d", s.Iterations, minIterations)
	}
	pub, err := hex.DecodeString(s.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, errors.New("crypto: key file has a malformed public key")
	}

	aead, err := passwordAEAD(password, s.Salt, s.Iterations)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() {
		return nil, errors.New("crypto: key file has a malformed nonce")
	}
	seed, err := aead.Open(nil, s.Nonce, s.Ciphertext, pub)
	if err != nil {
		return nil, fmt.Errorf("crypto: wrong password or corrupted key file: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: sealed seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	derived := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, pub) {
		return nil, errors.New("crypto: sealed seed does not match its public key")
	}
	return seed, nil
}

// LoadKey resolves the oracle seed from cfg.
func LoadKey(cfg KeyConfig) ([]byte, error) {
	switch {
	case cfg.RawSeed != "":
		return decodeSeed(cfg.RawSeed)
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	default:
		return nil, errors.New("crypto: no oracle seed configured")
	}
}

func passwordAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	if len(salt) != saltLen {
		return nil, errors.New("crypto: malformed salt")
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return aead, nil
}

func decodeSeed(seedHex string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid seed hex: %w", err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: expected %d-byte seed, got %d bytes", ed25519.SeedSize, len(raw))
	}
	return raw, nil
}
