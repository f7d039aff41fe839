package idp

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

const googleIssuer = "https://accounts.google.com"

// Google validates Google ID tokens against the published OIDC discovery
// document and JWKS.
type Google struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogle performs OIDC discovery for the Google issuer. The context bounds
// only the discovery call.
func NewGoogle(ctx context.Context, clientID string) (*Google, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery: %w", err)
	}
	return &Google{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (g *Google) Name() string { return "GOOGLE" }

func (g *Google) Validate(ctx context.Context, credential string) (*Profile, error) {
	idToken, err := g.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authz.ErrUnauthorized, err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", authz.ErrUnauthorized, err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, fmt.Errorf("%w: google account has no verified email", authz.ErrUnauthorized)
	}
	return &Profile{Email: claims.Email, Name: claims.Name, Provider: g.Name()}, nil
}
