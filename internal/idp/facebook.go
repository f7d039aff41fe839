package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

const facebookGraphMe = "https://graph.facebook.com/v16.0/me?fields=id,name,email"

// Facebook validates Facebook access tokens by calling the Graph API with
// them. graphURL is overridable for tests.
type Facebook struct {
	conf     *oauth2.Config
	graphURL string
}

func NewFacebook(clientID, clientSecret string) *Facebook {
	return &Facebook{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     facebook.Endpoint,
			Scopes:       []string{"email", "public_profile"},
		},
		graphURL: facebookGraphMe,
	}
}

func (f *Facebook) Name() string { return "FACEBOOK" }

func (f *Facebook) Validate(ctx context.Context, credential string) (*Profile, error) {
	client := f.conf.Client(ctx, &oauth2.Token{AccessToken: credential})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.graphURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: facebook graph call failed: %v", authz.ErrUnauthorized, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: facebook rejected the token (%d)", authz.ErrUnauthorized, resp.StatusCode)
	}

	var me struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, fmt.Errorf("%w: decode facebook profile: %v", authz.ErrUnauthorized, err)
	}
	if me.Email == "" {
		return nil, fmt.Errorf("%w: facebook account has no email", authz.ErrUnauthorized)
	}
	return &Profile{Email: me.Email, Name: me.Name, Provider: f.Name()}, nil
}
