package authz

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/overture-stack/ego-sub000/internal/ids"
)

const defaultBearerTTL = time.Hour

// Claims is the payload carried by a signed bearer token. Scopes hold the
// subject's raw effective scope strings at signing time.
type Claims struct {
	Scopes []string `json:"scopes"`
	Admin  bool     `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Signer mints and verifies RS256 bearer tokens. The private key stays with
// the issuing service; relying parties verify against the published public
// key.
type Signer struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	pubPEM  []byte
	issuer  string
	ttl     time.Duration
	now     func() time.Time
}

// NewSigner parses the PEM-encoded RSA key pair. ttl <= 0 falls back to one
// hour.
func NewSigner(privatePEM, publicPEM []byte, issuer string, ttl time.Duration) (*Signer, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultBearerTTL
	}
	return &Signer{
		private: priv,
		public:  pub,
		pubPEM:  publicPEM,
		issuer:  issuer,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// TTL reports the configured bearer lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// PublicKeyPEM returns the verification key as provided at construction.
func (s *Signer) PublicKeyPEM() []byte { return s.pubPEM }

// Mint signs a bearer for the subject expiring one ttl from now.
func (s *Signer) Mint(subject string, scopes []string, admin bool) (string, *Claims, error) {
	now := s.now()
	return s.Sign(subject, scopes, admin, now, now.Add(s.ttl))
}

// Sign issues a bearer with an explicit validity window. Refresh flows use
// this to preserve the original absolute expiry across re-issues. The signed
// claims are returned so callers can record the token id and expiry without
// re-parsing.
func (s *Signer) Sign(subject string, scopes []string, admin bool, issuedAt, expiresAt time.Time) (string, *Claims, error) {
	claims := &Claims{
		Scopes: scopes,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ids.New(),
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.private)
	if err != nil {
		return "", nil, fmt.Errorf("sign bearer: %w", err)
	}
	return signed, claims, nil
}

// Verify parses and validates a presented bearer. Any failure (bad signature,
// wrong algorithm, expired, wrong issuer) maps to ErrUnauthorized.
func (s *Signer) Verify(_ context.Context, raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.public, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return &claims, nil
}
