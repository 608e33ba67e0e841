// Package authflow drives the OAuth2 authorization-code exchange against the
// identity provider and turns a successful callback into a gateway session.
package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/eizes/gis-gateway/internal/errors"
	"github.com/eizes/gis-gateway/sessions"
	"github.com/eizes/gis-gateway/vault"
)

// Login is the outcome of a successful callback, consumed by the gateway to
// issue the session cookie.
type Login struct {
	SessionID string
	User      sessions.User
	TTL       time.Duration
}

// Flow manages the authorization-code handshake. Provider configuration is
// read from the vault on every call so configuration changes take effect
// without a restart.
type Flow struct {
	vault         *vault.Vault
	store         sessions.Store
	httpClient    *http.Client
	redirectURL   string
	requiredGroup string
	sessionTTL    time.Duration
	verifyIDToken bool
}

// Option configures a Flow.
type Option func(*Flow)

// WithHTTPClient overrides the outbound HTTP client (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = client
	}
}

// WithSessionTTL sets the lifetime of sessions created at callback.
func WithSessionTTL(ttl time.Duration) Option {
	return func(f *Flow) {
		f.sessionTTL = ttl
	}
}

// WithoutIDTokenVerification disables ID-token signature verification.
// Intended for tests whose fake provider does not publish a JWKS.
func WithoutIDTokenVerification() Option {
	return func(f *Flow) {
		f.verifyIDToken = false
	}
}

// New creates a Flow. redirectURL must match the URI registered with the
// identity provider exactly.
func New(v *vault.Vault, store sessions.Store, redirectURL, requiredGroup string, options ...Option) *Flow {
	f := &Flow{
		vault:         v,
		store:         store,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		redirectURL:   redirectURL,
		requiredGroup: requiredGroup,
		sessionTTL:    sessions.DefaultTTL,
		verifyIDToken: true,
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// endpoints are the provider URLs, assembled Keycloak-style from the base
// URL and realm held in the vault.
type endpoints struct {
	issuer   string
	auth     string
	token    string
	userInfo string
	jwks     string
}

func providerEndpoints(p *vault.ProviderConfig) endpoints {
	issuer := fmt.Sprintf("%s/realms/%s", p.BaseURL, p.Realm)
	return endpoints{
		issuer:   issuer,
		auth:     issuer + "/protocol/openid-connect/auth",
		token:    issuer + "/protocol/openid-connect/token",
		userInfo: issuer + "/protocol/openid-connect/userinfo",
		jwks:     issuer + "/protocol/openid-connect/certs",
	}
}

// BuildAuthorizationURL returns the provider authorization URL for a fresh
// login attempt and registers the embedded state token for the callback.
func (f *Flow) BuildAuthorizationURL(ctx context.Context) (string, error) {
	provider, err := f.vault.IdentityProvider(ctx)
	if err != nil {
		return "", err
	}

	state := sessions.GenerateToken()
	if err := f.store.RegisterPendingState(ctx, state); err != nil {
		return "", errors.Wrapf(err, "register pending state")
	}

	// url.Values encodes every parameter; state and code values are not
	// guaranteed to be alphanumeric.
	q := url.Values{}
	q.Set("client_id", provider.ClientID)
	q.Set("redirect_uri", f.redirectURL)
	q.Set("response_type", "code")
	q.Set("scope", oidc.ScopeOpenID+" profile email")
	q.Set("state", state)

	return providerEndpoints(provider).auth + "?" + q.Encode(), nil
}

// HandleCallback verifies the state token, exchanges the code for tokens,
// fetches the user, enforces group membership and creates a session.
func (f *Flow) HandleCallback(ctx context.Context, code, state string) (*Login, error) {
	ok, err := f.store.ConsumePendingState(ctx, state)
	if err != nil {
		return nil, errors.Wrapf(err, "consume pending state")
	}
	if !ok {
		return nil, errors.ErrInvalidState
	}

	provider, err := f.vault.IdentityProvider(ctx)
	if err != nil {
		return nil, err
	}
	ep := providerEndpoints(provider)

	conf := &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret.Reveal(),
		RedirectURL:  f.redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  ep.auth,
			TokenURL: ep.token,
		},
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	token, err := conf.Exchange(exchangeCtx, code)
	if err != nil {
		log.Warn().Err(err).Msg("token exchange with identity provider failed")
		return nil, errors.ErrTokenExchange
	}

	if f.verifyIDToken {
		if err := f.checkIDToken(ctx, ep, provider.ClientID, token); err != nil {
			log.Warn().Err(err).Msg("ID token verification failed")
			return nil, errors.ErrTokenExchange
		}
	}

	user, err := f.fetchUserInfo(ctx, ep.userInfo, token.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("userinfo fetch failed")
		return nil, errors.ErrUserInfo
	}

	// Some realms map groups into the access token instead of userinfo.
	if len(user.Groups) == 0 {
		user.Groups = groupsFromAccessToken(token.AccessToken)
	}

	if err := Authorize(f.requiredGroup, user); err != nil {
		return nil, err
	}

	sessionID, err := f.store.Create(ctx, user, sessions.Tokens{
		Access:  token.AccessToken,
		Refresh: token.RefreshToken,
	}, f.sessionTTL)
	if err != nil {
		return nil, errors.Wrapf(err, "create session")
	}

	log.Info().Str("username", user.Username).Msg("user logged in")

	return &Login{
		SessionID: sessionID,
		User:      user,
		TTL:       f.sessionTTL,
	}, nil
}

// checkIDToken verifies the ID token signature against the provider's JWKS
// when the token response carries one. Absence is tolerated: the userinfo
// fetch below authenticates with the access token either way.
func (f *Flow) checkIDToken(ctx context.Context, ep endpoints, clientID string, token *oauth2.Token) error {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil
	}
	ctx = oidc.ClientContext(ctx, f.httpClient)
	keySet := oidc.NewRemoteKeySet(ctx, ep.jwks)
	verifier := oidc.NewVerifier(ep.issuer, keySet, &oidc.Config{ClientID: clientID})
	_, err := verifier.Verify(ctx, rawIDToken)
	return err
}

// userInfoClaims is the subset of the userinfo response the gateway uses.
type userInfoClaims struct {
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	Groups            []string `json:"groups"`
}

func (f *Flow) fetchUserInfo(ctx context.Context, userInfoURL, accessToken string) (sessions.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return sessions.User{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return sessions.User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return sessions.User{}, fmt.Errorf("userinfo endpoint returned %d", resp.StatusCode)
	}

	var claims userInfoClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return sessions.User{}, err
	}
	return sessions.User{
		Username: claims.PreferredUsername,
		Email:    claims.Email,
		Name:     claims.Name,
		Groups:   claims.Groups,
	}, nil
}

// groupsFromAccessToken extracts the groups claim from the provider-issued
// access token without signature verification. The token was just received
// directly from the provider's token endpoint, so its origin is trusted.
func groupsFromAccessToken(accessToken string) []string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil
	}
	raw, ok := claims["groups"].([]any)
	if !ok {
		return nil
	}
	groups := make([]string, 0, len(raw))
	for _, g := range raw {
		if s, ok := g.(string); ok {
			groups = append(groups, s)
		}
	}
	return groups
}
