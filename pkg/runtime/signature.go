package runtime

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// Ed25519 signing of WASM binaries. Keys are raw 32-byte values stored
// as 64-char hex strings; signatures are 64 bytes stored as 128-char
// hex. Signing and verification both cover the raw file bytes.

// KeyPair is an Ed25519 keypair in hex form.
type KeyPair struct {
	// SecretKey is the 64-char hex seed.
	SecretKey string
	// PublicKey is the 64-char hex public key.
	PublicKey string
}

// GenerateKeyPair creates a fresh Ed25519 keypair.
func GenerateKeyPair() (KeyPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return KeyPair{
		SecretKey: hex.EncodeToString(private.Seed()),
		PublicKey: hex.EncodeToString(public),
	}, nil
}

// PublicKeyFromSecret derives the hex public key from a hex secret key.
func PublicKeyFromSecret(secretHex string) (string, error) {
	private, err := decodeSecretKey(secretHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(private.Public().(ed25519.PublicKey)), nil
}

// SignFile signs a file's bytes and returns the hex signature.
func SignFile(path, secretHex string) (string, error) {
	private, err := decodeSecretKey(secretHex)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(private, data)), nil
}

// VerifyFileSignature checks a file's hex signature under a hex public
// key. Any decode failure or mismatch is an error.
func VerifyFileSignature(path, signatureHex, publicKeyHex string) error {
	publicBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(publicBytes) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(publicBytes))
	}
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sigBytes) != ed25519.SignatureSize {
		return fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(sigBytes))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(publicBytes), data, sigBytes) {
		return fmt.Errorf("signature does not verify under the given public key")
	}
	return nil
}

func decodeSecretKey(secretHex string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
