package oauth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// ConsentTokenSource obtains a Google access token through the provider's
// consent page, using PKCE and a random state.
type ConsentTokenSource struct {
	config   *oauth2.Config
	opener   SurfaceOpener
	redirect *url.URL
	interval time.Duration
}

func NewConsentTokenSource(config *oauth2.Config, opener SurfaceOpener, interval time.Duration) (*ConsentTokenSource, error) {
	if config == nil || config.ClientID == "" {
		return nil, fmt.Errorf("google client id is required")
	}
	redirect, err := url.Parse(config.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("google redirect url %q is invalid", config.RedirectURL)
	}
	return &ConsentTokenSource{config: config, opener: opener, redirect: redirect, interval: interval}, nil
}

func (s *ConsentTokenSource) RequestAccessToken(ctx context.Context) (string, error) {
	verifier := oauth2.GenerateVerifier()
	state := oauth2.GenerateVerifier()

	authURL := s.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
	outcome, err := await(ctx, s.opener, authURL, s.redirect, s.interval)
	if err != nil {
		return "", fmt.Errorf("open google consent: %w", err)
	}
	if err := outcomeError(ProviderGoogle, outcome); err != nil {
		return "", err
	}
	if outcome.State != state {
		return "", &ProviderError{Provider: ProviderGoogle, Code: "state_mismatch"}
	}

	token, err := s.config.Exchange(ctx, outcome.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("google token exchange: %w", err)
	}
	return token.AccessToken, nil
}
