package estate

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oauthServer plays the identity side of a PKCE sign-in: the browser follows
// the authorize URL straight back to the redirect, and the token endpoint only
// accepts the verifier matching the challenge it saw.
type oauthServer struct {
	t        *testing.T
	callback string // query sent to the redirect

	mu        sync.Mutex
	challenge string
	method    string
}

func (o *oauthServer) open(authURL string) error {
	u, err := url.Parse(authURL)
	if err != nil {
		return err
	}
	q := u.Query()
	o.mu.Lock()
	o.challenge = q.Get("code_challenge")
	o.method = q.Get("code_challenge_method")
	o.mu.Unlock()

	go func() {
		resp, err := http.Get(q.Get("redirect_to") + "?" + o.callback)
		if err != nil {
			o.t.Errorf("callback request: %v", err)
			return
		}
		resp.Body.Close()
	}()
	return nil
}

func (o *oauthServer) token(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AuthCode     string `json:"auth_code"`
		CodeVerifier string `json:"code_verifier"`
	}
	if r.URL.Query().Get("grant_type") != "pkce" || json.NewDecoder(r.Body).Decode(&body) != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sum := sha256.Sum256([]byte(body.CodeVerifier))
	o.mu.Lock()
	ok := body.AuthCode == "code-1" && base64.RawURLEncoding.EncodeToString(sum[:]) == o.challenge
	o.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code challenge does not match previously saved code verifier"}`))
		return
	}
	_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3600,"user":{"id":"u1"}}`))
}

func TestLogin(t *testing.T) {
	fb := newFakeBackend(t)
	oauth := &oauthServer{t: t, callback: "code=code-1"}
	fb.handlers["/auth/v1/token"] = oauth.token
	svc, tokens := newTestService(t, fb)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, svc.Login(ctx, oauth.open, LoginOptions{}))
	assert.Equal(t, "s256", oauth.method)

	tok, err := tokens.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "u1", tok.UserID)
}

func TestLogin_RejectedCode(t *testing.T) {
	fb := newFakeBackend(t)
	oauth := &oauthServer{t: t, callback: "code=stolen"}
	fb.handlers["/auth/v1/token"] = oauth.token
	svc, tokens := newTestService(t, fb)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := svc.Login(ctx, oauth.open, LoginOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code challenge does not match")

	tok, _ := tokens.Load(ctx)
	assert.Nil(t, tok)
}

func TestLogin_MissingCode(t *testing.T) {
	fb := newFakeBackend(t)
	oauth := &oauthServer{t: t, callback: "state=x"}
	svc, tokens := newTestService(t, fb)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := svc.Login(ctx, oauth.open, LoginOptions{})
	assert.ErrorIs(t, err, ErrLoginFailed)

	tok, _ := tokens.Load(ctx)
	assert.Nil(t, tok)
}

func TestLogin_ProviderError(t *testing.T) {
	fb := newFakeBackend(t)
	oauth := &oauthServer{t: t, callback: "error=access_denied&error_description=User+cancelled"}
	svc, _ := newTestService(t, fb)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := svc.Login(ctx, oauth.open, LoginOptions{})
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Contains(t, err.Error(), "User cancelled")
}

func TestLogin_OpenerFails(t *testing.T) {
	fb := newFakeBackend(t)
	svc, _ := newTestService(t, fb)

	boom := errors.New("no browser")
	err := svc.Login(context.Background(), func(string) error { return boom }, LoginOptions{})
	assert.ErrorIs(t, err, boom)
}

func TestLogin_ContextCancelled(t *testing.T) {
	fb := newFakeBackend(t)
	svc, _ := newTestService(t, fb)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Login(ctx, func(string) error { return nil }, LoginOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
