package authz_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

func testKeyPair(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
	return privPEM, pubPEM
}

func TestSignerMintAndVerify(t *testing.T) {
	privPEM, pubPEM := testKeyPair(t)
	signer, err := authz.NewSigner(privPEM, pubPEM, "ego", time.Hour)
	require.NoError(t, err)

	raw, minted, err := signer.Mint("user-1", []string{"song.WRITE"}, true)
	require.NoError(t, err)
	require.NotNil(t, minted)

	claims, err := signer.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, minted.ID, claims.ID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{"song.WRITE"}, claims.Scopes)
	assert.True(t, claims.Admin)
	assert.Equal(t, "ego", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestSignerRejectsExpired(t *testing.T) {
	privPEM, pubPEM := testKeyPair(t)
	signer, err := authz.NewSigner(privPEM, pubPEM, "ego", time.Hour)
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	raw, _, err := signer.Sign("user-1", nil, false, past, past.Add(time.Hour))
	require.NoError(t, err)

	_, err = signer.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}

func TestSignerRejectsForeignKey(t *testing.T) {
	privA, pubA := testKeyPair(t)
	privB, _ := testKeyPair(t)

	signerA, err := authz.NewSigner(privA, pubA, "ego", time.Hour)
	require.NoError(t, err)
	signerB, err := authz.NewSigner(privB, pubA, "ego", time.Hour)
	require.NoError(t, err)

	raw, _, err := signerB.Mint("user-1", nil, false)
	require.NoError(t, err)

	_, err = signerA.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}

func TestSignerRejectsGarbage(t *testing.T) {
	privPEM, pubPEM := testKeyPair(t)
	signer, err := authz.NewSigner(privPEM, pubPEM, "ego", time.Hour)
	require.NoError(t, err)

	_, err = signer.Verify(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}
