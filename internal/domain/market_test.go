package domain

import "testing"

func TestPublicKeyText(t *testing.T) {
	var k PublicKey
	for i := range k {
		k[i] = byte(i)
	}
	text, err := k.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var back PublicKey
	if err := back.UnmarshalText(append([]byte("0x"), text...)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != k {
		t.Errorf("got %x, want %x", back, k)
	}
	if _, err := ParsePublicKey("abcd"); err == nil {
		t.Error("expected error for short key")
	}
}
