package backend

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truehome/estate/internal/tokenstore"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *tokenstore.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := tokenstore.NewMemoryStore()
	c, err := New(Config{URL: srv.URL + "/", APIKey: "anon-key", Tokens: tokens})
	require.NoError(t, err)
	return c, tokens
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{URL: "http://localhost"})
	assert.Error(t, err)

	c, err := New(Config{URL: "http://localhost/", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost", c.baseURL)
	assert.NotNil(t, c.Tokens())
	assert.Equal(t, BreakerClosed, c.BreakerState())
}

func TestQuery_URL(t *testing.T) {
	c, err := New(Config{URL: "http://api.test", APIKey: "k"})
	require.NoError(t, err)

	raw := c.From("properties").
		Select("*").
		Eq("type", "House").
		Search("lake, view", "name", "address").
		Order("created_at", false).
		Limit(6).
		URL()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/rest/v1/properties", u.Path)

	q := u.Query()
	assert.Equal(t, "*", q.Get("select"))
	assert.Equal(t, "eq.House", q.Get("type"))
	assert.Equal(t, `(name.ilike."*lake, view*",address.ilike."*lake, view*")`, q.Get("or"))
	assert.Equal(t, "created_at.desc", q.Get("order"))
	assert.Equal(t, "6", q.Get("limit"))
}

func TestQuery_Execute(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))
		assert.Equal(t, "req-1", r.Header.Get(RequestIDHeader))
		assert.Equal(t, "eq.p1", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"id":"p1","name":"Lakeside"}`))
	})

	ctx := WithRequestID(context.Background(), "req-1")
	var row struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, c.From("properties").Eq("id", "p1").Single().Into(ctx, &row))
	assert.Equal(t, "Lakeside", row.Name)
}

func TestExecute_GeneratesRequestID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		_, _ = w.Write([]byte(`[]`))
	})
	var rows []map[string]any
	require.NoError(t, c.From("agents").Into(context.Background(), &rows))
	assert.Empty(t, rows)
}

func TestResponse_Error(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		sentinel error
	}{
		{"ok", http.StatusOK, `[]`, "", nil},
		{"message", http.StatusBadRequest, `{"message":"column missing"}`, "backend error: column missing", nil},
		{"msg", http.StatusUnauthorized, `{"msg":"JWT expired"}`, "backend error: JWT expired", ErrNoSession},
		{"error_description", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"bad secret"}`, "backend error: bad secret", nil},
		{"not json", http.StatusBadGateway, `<html>`, "backend error: status 502", nil},
		{"no row", http.StatusNotAcceptable, `{"message":"JSON object requested, multiple (or no) rows returned"}`, "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Response{StatusCode: tt.status, Body: []byte(tt.body)}).Error()
			if tt.status < 400 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestNewPKCE(t *testing.T) {
	a, err := NewPKCE()
	require.NoError(t, err)
	b, err := NewPKCE()
	require.NoError(t, err)

	assert.Len(t, a.Verifier, 43)
	assert.NotEqual(t, a.Verifier, b.Verifier)

	sum := sha256.Sum256([]byte(a.Verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), a.Challenge)
}

func TestAuth_AuthorizeURL(t *testing.T) {
	c, err := New(Config{URL: "http://api.test", APIKey: "k"})
	require.NoError(t, err)
	pkce := PKCE{Verifier: "v", Challenge: "chal"}

	raw, err := c.Auth().AuthorizeURL(ProviderGoogle, "http://127.0.0.1:5000/callback", pkce)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "google", q.Get("provider"))
	assert.Equal(t, "http://127.0.0.1:5000/callback", q.Get("redirect_to"))
	assert.Equal(t, "chal", q.Get("code_challenge"))
	assert.Equal(t, "s256", q.Get("code_challenge_method"))

	_, err = c.Auth().AuthorizeURL("", "x", pkce)
	assert.Error(t, err)
	_, err = c.Auth().AuthorizeURL(ProviderGoogle, "", pkce)
	assert.Error(t, err)
	_, err = c.Auth().AuthorizeURL(ProviderGoogle, "x", PKCE{})
	assert.Error(t, err)
}

func TestAuth_SessionLifecycle(t *testing.T) {
	loggedOut := false
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			assert.Equal(t, "pkce", r.URL.Query().Get("grant_type"))
			assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "code-1", body["auth_code"])
			assert.Equal(t, "verifier-1", body["code_verifier"])
			_, _ = w.Write([]byte(`{"access_token":"user-token","expires_in":3600,"user":{"id":"u1"}}`))
		case "/auth/v1/user":
			if loggedOut || r.Header.Get("Authorization") != "Bearer user-token" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"msg":"invalid token"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"u1","email":"ada@example.com","user_metadata":{"full_name":"Ada Lovelace"}}`))
		case "/auth/v1/logout":
			assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
			loggedOut = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	_, err := c.Auth().GetUser(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	resp, err := c.Auth().ExchangeCode(ctx, "code-1", "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, "user-token", resp.AccessToken)

	tok, err := tokens.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "u1", tok.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, time.Minute)

	user, err := c.Auth().GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Ada Lovelace", user.Name())

	require.NoError(t, c.Auth().DeleteSession(ctx))
	tok, err = tokens.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	require.NoError(t, c.Auth().DeleteSession(ctx), "signing out twice is fine")
}

func TestAuth_ExchangeCodeValidation(t *testing.T) {
	c, err := New(Config{URL: "http://api.test", APIKey: "k"})
	require.NoError(t, err)
	_, err = c.Auth().ExchangeCode(context.Background(), "", "verifier")
	assert.Error(t, err)
	_, err = c.Auth().ExchangeCode(context.Background(), "code", "")
	assert.Error(t, err)
}

func TestUser_AvatarURL(t *testing.T) {
	u := &User{UserMetadata: map[string]any{"picture": "https://lh3.test/p.jpg"}}
	assert.Equal(t, "https://lh3.test/p.jpg", u.AvatarURL())

	u.UserMetadata["avatar_url"] = "https://lh3.test/a.jpg"
	assert.Equal(t, "https://lh3.test/a.jpg", u.AvatarURL())

	assert.Equal(t, "", (&User{}).AvatarURL())
}

func TestAuth_GetUserRevokedTokenIsForgotten(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"msg":"session revoked"}`))
	})
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, tokenstore.Token{AccessToken: "old"}))

	_, err := c.Auth().GetUser(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	tok, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestAuth_GetUserExpiredTokenSkipsNetwork(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("expired token must not reach the backend")
	})
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, tokenstore.Token{
		AccessToken: "old",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))

	_, err := c.Auth().GetUser(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestAuth_GetUserServerErrorIsNotNoSession(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, tokenstore.Token{AccessToken: "t"}))

	_, err := c.Auth().GetUser(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSession))

	tok, _ := tokens.Load(ctx)
	assert.NotNil(t, tok, "a server error must not discard the session")
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	assert.True(t, exp.Equal(TokenExpiry(signed)))
	assert.True(t, TokenExpiry("not-a-jwt").IsZero())
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{
		URL:    srv.URL,
		APIKey: "k",
		Breaker: BreakerConfig{
			Threshold: 2,
			Cooldown:  time.Minute,
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		resp, err := c.From("properties").Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}

	_, err = c.From("properties").Execute(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "open circuit must not reach the server")
	assert.Equal(t, BreakerOpen, c.BreakerState())
}

func TestClient_RateLimiterHonoursContext(t *testing.T) {
	c, err := New(Config{URL: "http://api.test", APIKey: "k", RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, err)
	// Drain the single burst token.
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.From("properties").Execute(ctx)
	assert.Error(t, err)
}

func TestStorageURLs(t *testing.T) {
	c, err := New(Config{URL: "http://api.test", APIKey: "k"})
	require.NoError(t, err)

	bucket := c.Storage().From("property-images")
	assert.Equal(t, "http://api.test/storage/v1/object/public/property-images/a/b.jpg", bucket.PublicURL("/a/b.jpg"))
	assert.Equal(t, "https://cdn.test/x.png", bucket.PublicURL("https://cdn.test/x.png"))
	assert.Equal(t, "", bucket.PublicURL(""))
}
