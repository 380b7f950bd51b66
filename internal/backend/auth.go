package backend

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/truehome/estate/internal/tokenstore"
)

// OAuthProvider names an identity provider configured on the backend.
type OAuthProvider string

const (
	ProviderGoogle OAuthProvider = "google"
	ProviderApple  OAuthProvider = "apple"
)

// Auth returns the GoTrue side of the client: OAuth sign-in, the current user and sign-out.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient talks to /auth/v1 and keeps the session in the token store.
type AuthClient struct {
	client *Client
}

// AuthResponse is the response from token operations.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// User is the account record the backend keeps for a signed-in person.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	Role             string         `json:"role"`
	EmailConfirmedAt string         `json:"email_confirmed_at"`
	LastSignInAt     string         `json:"last_sign_in_at"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
	AppMetadata      map[string]any `json:"app_metadata"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

// Name returns the display name from the user metadata, falling back to the email.
func (u *User) Name() string {
	if s := u.metadata("full_name", "name"); s != "" {
		return s
	}
	return u.Email
}

// AvatarURL returns the picture the identity provider supplied, or "".
func (u *User) AvatarURL() string {
	return u.metadata("avatar_url", "picture")
}

func (u *User) metadata(keys ...string) string {
	for _, key := range keys {
		if s, ok := u.UserMetadata[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// PKCE is a proof key pair for one OAuth sign-in. The challenge goes into the
// authorize URL; the verifier stays local until the code exchange.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a fresh S256 proof key pair.
func NewPKCE() (PKCE, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return PKCE{}, fmt.Errorf("generate code verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	return PKCE{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// AuthorizeURL returns the URL that starts a PKCE OAuth sign-in with provider.
// After consent the backend redirects to redirectTo with a code query
// parameter, which ExchangeCode trades for a session.
func (a *AuthClient) AuthorizeURL(provider OAuthProvider, redirectTo string, pkce PKCE) (string, error) {
	if provider == "" {
		return "", fmt.Errorf("provider is required")
	}
	if redirectTo == "" {
		return "", fmt.Errorf("redirect URL is required")
	}
	if pkce.Challenge == "" {
		return "", fmt.Errorf("code challenge is required")
	}
	params := url.Values{}
	params.Set("provider", string(provider))
	params.Set("redirect_to", redirectTo)
	params.Set("code_challenge", pkce.Challenge)
	params.Set("code_challenge_method", "s256")
	return fmt.Sprintf("%s/auth/v1/authorize?%s", a.client.baseURL, params.Encode()), nil
}

// ExchangeCode trades the auth code from the OAuth callback and the matching
// verifier for a session, and stores it.
func (a *AuthClient) ExchangeCode(ctx context.Context, authCode, verifier string) (*AuthResponse, error) {
	if authCode == "" || verifier == "" {
		return nil, fmt.Errorf("auth code and code verifier are required")
	}

	reqURL := fmt.Sprintf("%s/auth/v1/token?grant_type=pkce", a.client.baseURL)
	body, err := json.Marshal(map[string]string{
		"auth_code":     authCode,
		"code_verifier": verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// The exchange is always made with the project key, never a stale user token.
	req.Header.Set("Authorization", "Bearer "+a.client.apiKey)
	a.client.setHeaders(ctx, req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := resp.Decode(&authResp); err != nil {
		return nil, err
	}
	if authResp.AccessToken == "" {
		return nil, fmt.Errorf("failed to create a session: empty access token")
	}

	tok := tokenstore.Token{
		AccessToken:  authResp.AccessToken,
		RefreshToken: authResp.RefreshToken,
		ExpiresAt:    a.expiry(authResp),
	}
	if authResp.User != nil {
		tok.UserID = authResp.User.ID
	}
	if err := a.client.tokens.Save(ctx, tok); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &authResp, nil
}

// GetUser returns the signed-in user. It returns ErrNoSession when there is no
// stored token, the token has expired, or the backend no longer accepts it;
// in the last two cases the stored token is discarded.
func (a *AuthClient) GetUser(ctx context.Context) (*User, error) {
	tok, err := a.client.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if tok == nil {
		return nil, ErrNoSession
	}
	if tok.Expired(a.client.now()) {
		a.forget(ctx)
		return nil, ErrNoSession
	}

	reqURL := fmt.Sprintf("%s/auth/v1/user", a.client.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	a.client.setHeaders(ctx, req)

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}

	var user User
	if err := resp.Decode(&user); err != nil {
		if errors.Is(err, ErrNoSession) {
			a.forget(ctx)
		}
		return nil, err
	}
	if user.ID == "" {
		return nil, ErrNoSession
	}
	return &user, nil
}

// DeleteSession signs the current session out on the backend and forgets it
// locally. Signing out without a session is not an error.
func (a *AuthClient) DeleteSession(ctx context.Context) error {
	tok, err := a.client.tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if tok == nil {
		return nil
	}

	reqURL := fmt.Sprintf("%s/auth/v1/logout", a.client.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	a.client.setHeaders(ctx, req)

	resp, err := a.client.do(req)
	if err != nil {
		return err
	}
	if err := resp.Error(); err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}

	if err := a.client.tokens.Delete(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (a *AuthClient) forget(ctx context.Context) {
	if err := a.client.tokens.Delete(ctx); err != nil {
		a.client.log.WithError(err).Warn("failed to discard session token")
	}
}

// expiry prefers the explicit expires_in and falls back to the token's own exp claim.
func (a *AuthClient) expiry(resp AuthResponse) time.Time {
	if resp.ExpiresIn > 0 {
		return a.client.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return TokenExpiry(resp.AccessToken)
}

// TokenExpiry reads the exp claim of a JWT access token without verifying its
// signature. It returns the zero time when the token is not a JWT or has no exp.
func TokenExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
