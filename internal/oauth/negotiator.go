// Package oauth drives third-party sign-in and turns the provider's proof
// into a marketplace session.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"session-marketplace/internal/model"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// Exchanger trades provider proofs for marketplace credentials.
type Exchanger interface {
	OAuthLogin(ctx context.Context, provider string, accessToken string, role model.Role) (model.AuthResult, error)
	GitHubCallback(ctx context.Context, code string, role model.Role) (model.AuthResult, error)
}

type Sessions interface {
	Login(pair model.CredentialPair, identity model.Identity) error
}

// TokenSource runs a provider-hosted consent flow and yields a provider
// access token.
type TokenSource interface {
	RequestAccessToken(ctx context.Context) (string, error)
}

type Config struct {
	GitHubClientID string
	GitHubEndpoint oauth2.Endpoint
	RedirectURL    string
	PollInterval   time.Duration
	Timeout        time.Duration
}

type Negotiator struct {
	exchanger Exchanger
	sessions  Sessions
	opener    SurfaceOpener
	tokens    TokenSource
	github    *oauth2.Config
	redirect  *url.URL
	interval  time.Duration
	timeout   time.Duration
}

// NewNegotiator wires both flows. opener may be nil when only the token flow
// is used, tokens may be nil when only the code flow is used.
func NewNegotiator(cfg Config, exchanger Exchanger, sessions Sessions, opener SurfaceOpener, tokens TokenSource) (*Negotiator, error) {
	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil || redirect.Scheme == "" || redirect.Host == "" {
		return nil, fmt.Errorf("%w: redirect url %q", model.ErrInvalidInput, cfg.RedirectURL)
	}

	endpoint := cfg.GitHubEndpoint
	if endpoint.AuthURL == "" {
		endpoint = github.Endpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Negotiator{
		exchanger: exchanger,
		sessions:  sessions,
		opener:    opener,
		tokens:    tokens,
		github: &oauth2.Config{
			ClientID:    cfg.GitHubClientID,
			Endpoint:    endpoint,
			RedirectURL: redirect.String(),
			Scopes:      []string{"user:email"},
		},
		redirect: redirect,
		interval: cfg.PollInterval,
		timeout:  timeout,
	}, nil
}

// AuthorizationURL is the GitHub page to open. The role travels in state.
func (n *Negotiator) AuthorizationURL(role model.Role) string {
	return n.github.AuthCodeURL(string(role))
}

// LoginWithCode runs the GitHub authorization-code flow. The session is
// only touched after the backend exchange succeeds.
func (n *Negotiator) LoginWithCode(ctx context.Context, role model.Role) (model.Identity, error) {
	if !role.Valid() {
		return model.Identity{}, fmt.Errorf("%w: role %q", model.ErrInvalidInput, role)
	}
	if n.opener == nil {
		return model.Identity{}, errors.New("no browser surface configured for github sign-in")
	}
	if n.github.ClientID == "" {
		return model.Identity{}, fmt.Errorf("%w: github client id is not configured", model.ErrInvalidInput)
	}

	waitCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	outcome, err := await(waitCtx, n.opener, n.AuthorizationURL(role), n.redirect, n.interval)
	if err != nil {
		return model.Identity{}, fmt.Errorf("open github authorization: %w", err)
	}
	if err := outcomeError(ProviderGitHub, outcome); err != nil {
		return model.Identity{}, n.report(err)
	}
	if outcome.State != string(role) {
		return model.Identity{}, &ProviderError{Provider: ProviderGitHub, Code: "state_mismatch"}
	}

	result, err := n.exchanger.GitHubCallback(ctx, outcome.Code, role)
	if err != nil {
		return model.Identity{}, fmt.Errorf("github sign-in: %w", err)
	}
	return n.adopt(result)
}

// LoginWithToken runs the Google token flow.
func (n *Negotiator) LoginWithToken(ctx context.Context, role model.Role) (model.Identity, error) {
	if !role.Valid() {
		return model.Identity{}, fmt.Errorf("%w: role %q", model.ErrInvalidInput, role)
	}
	if n.tokens == nil {
		return model.Identity{}, errors.New("no consent flow configured for google sign-in")
	}

	waitCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	token, err := n.tokens.RequestAccessToken(waitCtx)
	if err != nil {
		return model.Identity{}, n.report(err)
	}
	if token == "" {
		return model.Identity{}, &ProviderError{Provider: ProviderGoogle, Code: "no_access_token"}
	}

	result, err := n.exchanger.OAuthLogin(ctx, ProviderGoogle, token, role)
	if err != nil {
		return model.Identity{}, fmt.Errorf("google sign-in: %w", err)
	}
	return n.adopt(result)
}

func (n *Negotiator) adopt(result model.AuthResult) (model.Identity, error) {
	if err := n.sessions.Login(result.Tokens, result.User); err != nil {
		return model.Identity{}, fmt.Errorf("adopt session: %w", err)
	}
	return result.User, nil
}

func (n *Negotiator) report(err error) error {
	if errors.Is(err, model.ErrProviderCancelled) {
		slog.Debug("sign-in cancelled by user", "reason", err)
		return err
	}
	slog.Warn("provider sign-in failed", "error", err)
	return err
}
