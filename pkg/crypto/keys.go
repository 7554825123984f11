package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // the chain's key checksum is ripemd160
)

// DefaultPrefix is the public key prefix used by AMAX nodes.
const DefaultPrefix = "AM"

const wifVersion = 0x80

// KeyPair is a secp256k1 account key in the chain's text formats: a WIF
// private key and a "<prefix><base58>" public key.
type KeyPair struct {
	privateKey *ecdsa.PrivateKey
}

// GenerateKey creates a new random secp256k1 key pair
func GenerateKey() (*KeyPair, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &KeyPair{privateKey: privateKey}, nil
}

// FromWIF parses a wallet-import-format private key and verifies its checksum.
func FromWIF(wif string) (*KeyPair, error) {
	raw, err := base58.Decode(wif)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WIF: %w", err)
	}
	if len(raw) != 37 || raw[0] != wifVersion {
		return nil, fmt.Errorf("invalid WIF length or version")
	}
	payload, sum := raw[:33], raw[33:]
	if !bytes.Equal(doubleSHA256(payload)[:4], sum) {
		return nil, fmt.Errorf("invalid WIF checksum")
	}
	privateKey, err := crypto.ToECDSA(payload[1:])
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &KeyPair{privateKey: privateKey}, nil
}

// WIF returns the private key in wallet import format.
// WARNING: Keep this secret! Never expose to users or logs
func (k *KeyPair) WIF() string {
	payload := append([]byte{wifVersion}, crypto.FromECDSA(k.privateKey)...)
	return base58.Encode(append(payload, doubleSHA256(payload)[:4]...))
}

// PublicKey returns the compressed public key with a ripemd160 checksum,
// base58 encoded behind prefix.
func (k *KeyPair) PublicKey(prefix string) string {
	pub := crypto.CompressPubkey(&k.privateKey.PublicKey)
	return prefix + base58.Encode(append(pub, ripemd160Sum(pub)[:4]...))
}

// ParsePublicKey checks a "<prefix><base58>" public key and returns the 33
// byte compressed point.
func ParsePublicKey(s, prefix string) ([]byte, error) {
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("public key %q does not start with %q", s, prefix)
	}
	raw, err := base58.Decode(strings.TrimPrefix(s, prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != 37 {
		return nil, fmt.Errorf("invalid public key length: %d", len(raw))
	}
	pub, sum := raw[:33], raw[33:]
	if !bytes.Equal(ripemd160Sum(pub)[:4], sum) {
		return nil, fmt.Errorf("invalid public key checksum")
	}
	if _, err := crypto.DecompressPubkey(pub); err != nil {
		return nil, fmt.Errorf("invalid curve point: %w", err)
	}
	return pub, nil
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

func ripemd160Sum(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}
