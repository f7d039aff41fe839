package idp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

func TestFacebookValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"42","name":"Alice","email":"alice@example.org"}`))
	}))
	defer srv.Close()

	fb := NewFacebook("client", "secret")
	fb.graphURL = srv.URL

	profile, err := fb.Validate(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", profile.Email)
	assert.Equal(t, "Alice", profile.Name)
	assert.Equal(t, "FACEBOOK", profile.Provider)

	_, err = fb.Validate(context.Background(), "bad-token")
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}

func TestFacebookRejectsProfileWithoutEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"42","name":"Alice"}`))
	}))
	defer srv.Close()

	fb := NewFacebook("client", "secret")
	fb.graphURL = srv.URL

	_, err := fb.Validate(context.Background(), "token")
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}

func TestRegistryLookup(t *testing.T) {
	fb := NewFacebook("client", "secret")
	reg := NewRegistry(fb)

	p, err := reg.Get("facebook")
	require.NoError(t, err)
	assert.Equal(t, "FACEBOOK", p.Name())

	_, err = reg.Get("ORCID")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}
