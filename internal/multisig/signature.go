package multisig

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// compactSignatureSize 是 r||s 紧凑签名的字节数。
const compactSignatureSize = 64

// SigningDigest 返回签名者需要签名的 32 字节摘要：sha256(sha256(payload))。
func SigningDigest(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:]
}

// VerifySignature 校验 base64 编码的紧凑 secp256k1 签名，公钥为十六进制压缩或非压缩格式。
func VerifySignature(payload []byte, signature, publicKey string) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != compactSignatureSize {
		return false
	}
	pub, err := decodePublicKey(publicKey)
	if err != nil {
		return false
	}
	return crypto.VerifySignature(pub, SigningDigest(payload), sig)
}

// AddressOfPublicKey 返回公钥对应的 EVM 地址。
func AddressOfPublicKey(publicKey string) (string, bool) {
	raw, err := decodePublicKey(publicKey)
	if err != nil {
		return "", false
	}
	var pub *ecdsa.PublicKey
	if len(raw) == 33 {
		pub, err = crypto.DecompressPubkey(raw)
	} else {
		pub, err = crypto.UnmarshalPubkey(raw)
	}
	if err != nil {
		return "", false
	}
	return crypto.PubkeyToAddress(*pub).Hex(), true
}

// NewWalletAddress 生成一个新的钱包地址，私钥不会被保留。
func NewWalletAddress() (string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func decodePublicKey(publicKey string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(publicKey, "0x"), "0X"))
}
