package address

import (
	"testing"

	"github.com/xaichain/xaid/crypto"
)

func samplePubKey(t *testing.T) crypto.PublicKey {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	return priv.PubKey()
}

func TestDeriveValidateRoundTrip(t *testing.T) {
	pub := samplePubKey(t)
	addr := Derive("xai", pub)

	if !Validate("xai", addr) {
		t.Fatalf("derived address %q did not validate", addr)
	}
	if !Matches("xai", addr, pub) {
		t.Fatalf("derived address %q did not match its source public key", addr)
	}
}

func TestValidateRejectsWrongPrefix(t *testing.T) {
	pub := samplePubKey(t)
	addr := Derive("xai", pub)

	if Validate("other", addr) {
		t.Fatal("address validated under the wrong network prefix")
	}
}

func TestValidateRejectsCorruptedChecksum(t *testing.T) {
	pub := samplePubKey(t)
	addr := Derive("xai", pub)

	corrupted := []byte(addr)
	last := corrupted[len(corrupted)-1]
	if last == '0' {
		corrupted[len(corrupted)-1] = '1'
	} else {
		corrupted[len(corrupted)-1] = '0'
	}

	if Validate("xai", string(corrupted)) {
		t.Fatal("corrupted address unexpectedly validated")
	}
}

func TestMatchesRejectsForeignKey(t *testing.T) {
	pub := samplePubKey(t)
	other := samplePubKey(t)
	addr := Derive("xai", pub)

	if Matches("xai", addr, other) {
		t.Fatal("address matched an unrelated public key")
	}
}

func TestDecodeRejectsShortPayload(t *testing.T) {
	if Validate("xai", "xai0") {
		t.Fatal("implausibly short address validated")
	}
}
