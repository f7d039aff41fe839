// Package idp validates externally-issued login credentials. Each provider
// turns a provider-specific token into a verified profile; account bootstrap
// and bearer minting happen upstream.
package idp

import (
	"context"
	"fmt"
	"strings"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

// Profile is a verified external identity.
type Profile struct {
	Email    string
	Name     string
	Provider string
}

// Provider validates one identity provider's credentials.
type Provider interface {
	Name() string
	// Validate checks the presented credential and returns the profile it
	// attests. Any validation failure maps to authz.ErrUnauthorized.
	Validate(ctx context.Context, credential string) (*Profile, error)
}

// Registry resolves providers by name, case-insensitively.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[strings.ToUpper(p.Name())] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown identity provider %q", authz.ErrNotFound, name)
	}
	return p, nil
}
