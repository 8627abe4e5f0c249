package runtime

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPairHexLengths(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.Len(t, kp.SecretKey, 64)
	assert.Len(t, kp.PublicKey, 64)
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	path := writeTemp(t, []byte("hello wasm"))
	sig, err := SignFile(path, kp.SecretKey)
	require.NoError(t, err)
	assert.Len(t, sig, 128)

	assert.NoError(t, VerifyFileSignature(path, sig, kp.PublicKey))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	path := writeTemp(t, []byte("payload"))
	sig, err := SignFile(path, kp1.SecretKey)
	require.NoError(t, err)

	assert.Error(t, VerifyFileSignature(path, sig, kp2.PublicKey))
}

func TestVerifyRejectsTamperedFile(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	path := writeTemp(t, []byte("original"))
	sig, err := SignFile(path, kp.SecretKey)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o600))
	assert.Error(t, VerifyFileSignature(path, sig, kp.PublicKey))
}

func TestPublicKeyDerivation(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	derived, err := PublicKeyFromSecret(kp.SecretKey)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, derived)
}

func TestInvalidKeyMaterialRejected(t *testing.T) {
	path := writeTemp(t, []byte("data"))

	_, err := SignFile(path, "not-hex")
	assert.Error(t, err)

	_, err = SignFile(path, "abcd")
	assert.Error(t, err, "too-short key must be rejected")

	assert.Error(t, VerifyFileSignature(path, "zz", "aa"))
}
