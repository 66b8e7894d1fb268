package crypto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

func newTestAttestor(t *testing.T) *Attestor {
	t.Helper()
	a, err := NewAttestor(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewAttestor: %v", err)
	}
	return a
}

func TestOracleMessage(t *testing.T) {
	yes := OracleMessage("42", true)
	no := OracleMessage("42", false)

	if len(yes) != 32 {
		t.Fatalf("got %d bytes, want 32", len(yes))
	}
	if bytes.Equal(yes, no) {
		t.Error("outcomes must produce different messages")
	}
	if want := ethcrypto.Keccak256([]byte{'4', '2', 0x01}); !bytes.Equal(yes, want) {
		t.Errorf("got %x, want %x", yes, want)
	}
	if bytes.Equal(OracleMessage("1", true), OracleMessage("2", true)) {
		t.Error("markets must produce different messages")
	}
}

func TestVerify(t *testing.T) {
	a := newTestAttestor(t)
	v := Ed25519Verifier{}
	key := a.PublicKey()

	sig := a.Attest("7", true)
	if err := v.Verify(key, OracleMessage("7", true), sig); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	cases := map[string]struct {
		msg []byte
		sig []byte
	}{
		"other outcome":   {OracleMessage("7", false), sig},
		"other market":    {OracleMessage("8", true), sig},
		"short signature": {OracleMessage("7", true), sig[:10]},
		"empty signature": {OracleMessage("7", true), nil},
		"long signature":  {OracleMessage("7", true), append(append([]byte{}, sig...), 0)},
	}
	for name, tc := range cases {
		if err := v.Verify(key, tc.msg, tc.sig); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("%s: got %v, want ErrInvalidSignature", name, err)
		}
	}

	other, _ := GenerateAttestor()
	if err := v.Verify(other.PublicKey(), OracleMessage("7", true), sig); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("wrong key: got %v", err)
	}
}

func TestCheckOracleKey(t *testing.T) {
	a := newTestAttestor(t)
	m := domain.Market{OraclePublicKey: a.PublicKey()}
	if err := CheckOracleKey(m, a.PublicKey()); err != nil {
		t.Errorf("matching key: %v", err)
	}
	var zero domain.PublicKey
	if err := CheckOracleKey(m, zero); !errors.Is(err, domain.ErrUnauthorizedOracle) {
		t.Errorf("mismatched key: got %v", err)
	}
}

func TestEncryptDecryptKey(t *testing.T) {
	a := newTestAttestor(t)
	seedHex := hex.EncodeToString(a.Seed())

	blob, err := EncryptKey("0x"+seedHex, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	seed, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	b, err := NewAttestor(seed)
	if err != nil {
		t.Fatal(err)
	}
	if b.PublicKey() != a.PublicKey() {
		t.Error("round-tripped seed yields a different key")
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("wrong password accepted")
	}

	path := filepath.Join(t.TempDir(), "oracle.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if !bytes.Equal(loaded, seed) {
		t.Error("LoadKey returned a different seed")
	}
}

func TestDecryptKey_RejectsSwappedPublicKey(t *testing.T) {
	a := newTestAttestor(t)
	blob, err := EncryptKey(hex.EncodeToString(a.Seed()), "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	var file map[string]any
	if err := json.Unmarshal(blob, &file); err != nil {
		t.Fatal(err)
	}
	pub := a.PublicKey()
	if file["public_key"] != hex.EncodeToString(pub[:]) {
		t.Errorf("public_key = %v, want the attestor key", file["public_key"])
	}

	other, err := GenerateAttestor()
	if err != nil {
		t.Fatal(err)
	}
	otherPub := other.PublicKey()
	file["public_key"] = hex.EncodeToString(otherPub[:])
	swapped, _ := json.Marshal(file)
	if _, err := DecryptKey(swapped, "hunter2"); err == nil {
		t.Error("key file with a swapped public key decrypted")
	}
}

func TestLoadKey_RawSeed(t *testing.T) {
	seed, err := LoadKey(KeyConfig{RawSeed: hex.EncodeToString(bytes.Repeat([]byte{1}, 32))})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if len(seed) != 32 {
		t.Errorf("got %d bytes", len(seed))
	}
	if _, err := LoadKey(KeyConfig{RawSeed: "abcd"}); err == nil {
		t.Error("short seed accepted")
	}
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Error("empty config accepted")
	}
}

func TestWebhookSigner(t *testing.T) {
	s := &WebhookSigner{Secret: "s3cret"}
	body := []byte(`{"topic":"market_resolved"}`)
	h := s.HeadersAt(body, 1700000000)

	if h[HeaderWebhookTimestamp] != "1700000000" {
		t.Errorf("timestamp header = %q", h[HeaderWebhookTimestamp])
	}
	if !VerifyWebhook("s3cret", h[HeaderWebhookTimestamp], h[HeaderWebhookSignature], body) {
		t.Error("signature did not verify")
	}
	if VerifyWebhook("other", h[HeaderWebhookTimestamp], h[HeaderWebhookSignature], body) {
		t.Error("signature verified under the wrong secret")
	}
	if got := s.String(); got != "WebhookSigner{secret=s3cr****}" {
		t.Errorf("String() = %q", got)
	}
}
