package multisig

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestVerifySignatureAcceptsBothKeyEncodings(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	payload := []byte("transfer payload")
	sig, err := crypto.Sign(SigningDigest(payload), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(sig[:64])

	compressed := hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey))
	uncompressed := hex.EncodeToString(crypto.FromECDSAPub(&key.PublicKey))
	for _, pub := range []string{compressed, uncompressed, "0x" + compressed} {
		if !VerifySignature(payload, encoded, pub) {
			t.Fatalf("signature should verify with key %s", pub)
		}
	}
	if VerifySignature([]byte("other payload"), encoded, compressed) {
		t.Fatalf("signature must not verify over a different payload")
	}
	if VerifySignature(payload, base64.StdEncoding.EncodeToString(sig), compressed) {
		t.Fatalf("65-byte recoverable signatures are not compact signatures")
	}
	if VerifySignature(payload, "not base64!", compressed) {
		t.Fatalf("malformed signature must be rejected")
	}

	addr, ok := AddressOfPublicKey(compressed)
	if !ok || addr != crypto.PubkeyToAddress(key.PublicKey).Hex() {
		t.Fatalf("unexpected derived address %s", addr)
	}
	addr, ok = AddressOfPublicKey(uncompressed)
	if !ok || addr != crypto.PubkeyToAddress(key.PublicKey).Hex() {
		t.Fatalf("unexpected derived address %s", addr)
	}
}

func TestNewWalletAddressIsUnique(t *testing.T) {
	a, err := NewWalletAddress()
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	b, err := NewWalletAddress()
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if a == b || len(a) != 42 {
		t.Fatalf("unexpected addresses %s %s", a, b)
	}
}
