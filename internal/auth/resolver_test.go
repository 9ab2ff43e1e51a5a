package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestHeadersFor(t *testing.T) {
	t.Setenv("APIHUB_TEST_TOKEN", "env-token")

	tests := []struct {
		name string
		cfg  *Config
		want map[string]string
	}{
		{"nil config", nil, map[string]string{}},
		{"none", &Config{Type: TypeNone, Token: "ignored"}, map[string]string{}},
		{"api key", &Config{Type: TypeAPIKey, APIKey: "k1", APIKeyName: "X-API-Key"}, map[string]string{"X-API-Key": "k1"}},
		{"api key without header name", &Config{Type: TypeAPIKey, APIKey: "k1"}, map[string]string{}},
		{"api key without key", &Config{Type: TypeAPIKey, APIKeyName: "X-API-Key"}, map[string]string{}},
		{"bearer", &Config{Type: TypeBearer, Token: "abc"}, map[string]string{"Authorization": "Bearer abc"}},
		{"bearer from env", &Config{Type: TypeBearer, Token: "${APIHUB_TEST_TOKEN}"}, map[string]string{"Authorization": "Bearer env-token"}},
		{"bearer missing env", &Config{Type: TypeBearer, Token: "${APIHUB_TEST_MISSING}"}, map[string]string{}},
		{"bearer empty", &Config{Type: TypeBearer}, map[string]string{}},
		{"basic", &Config{Type: TypeBasic, Username: "u", Password: "p"}, map[string]string{}},
		{"oauth2 without refresher", &Config{Type: TypeOAuth2, AccessToken: "tok"}, map[string]string{}},
	}

	r := &Resolver{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.HeadersFor(context.Background(), tt.cfg))
		})
	}
}

func TestCredentialFor(t *testing.T) {
	r := &Resolver{}
	ctx := context.Background()

	cred := r.CredentialFor(ctx, &Config{Type: TypeBasic, Username: "u", Password: "p"})
	require.NotNil(t, cred)
	assert.Equal(t, "u", cred.Username)
	assert.Equal(t, "p", cred.Password)

	assert.Nil(t, r.CredentialFor(ctx, &Config{Type: TypeBasic, Username: "u"}))
	assert.Nil(t, r.CredentialFor(ctx, &Config{Type: TypeBearer, Token: "x"}))
	assert.Nil(t, r.CredentialFor(ctx, nil))
}

func TestOAuth2_RefreshOnExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var calls int32

	refresher := RefresherFunc(func(ctx context.Context, cfg *Config) (*oauth2.Token, error) {
		atomic.AddInt32(&calls, 1)
		return &oauth2.Token{AccessToken: "fresh", Expiry: now.Add(time.Hour)}, nil
	})

	r := NewResolver(refresher, nil)
	r.Now = func() time.Time { return now }

	cfg := &Config{ID: "a1", Type: TypeOAuth2, AccessToken: "stale", ExpiresAt: now.Add(-time.Minute)}

	headers := r.HeadersFor(context.Background(), cfg)
	assert.Equal(t, "Bearer fresh", headers["Authorization"])

	// Served from cache the second time.
	headers = r.HeadersFor(context.Background(), cfg)
	assert.Equal(t, "Bearer fresh", headers["Authorization"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOAuth2_ValidAccessTokenUsed(t *testing.T) {
	now := time.Now()
	refresher := RefresherFunc(func(ctx context.Context, cfg *Config) (*oauth2.Token, error) {
		t.Fatal("refresh should not be called for a valid token")
		return nil, nil
	})

	r := NewResolver(refresher, nil)
	cfg := &Config{ID: "a1", Type: TypeOAuth2, AccessToken: "current", ExpiresAt: now.Add(time.Hour)}

	assert.Equal(t, "Bearer current", r.HeadersFor(context.Background(), cfg)["Authorization"])
}

func TestOAuth2_RefreshFailureFailsOpen(t *testing.T) {
	refresher := RefresherFunc(func(ctx context.Context, cfg *Config) (*oauth2.Token, error) {
		return nil, errors.New("token endpoint down")
	})

	r := NewResolver(refresher, nil)
	cfg := &Config{ID: "a1", Type: TypeOAuth2, ExpiresAt: time.Now().Add(-time.Hour)}

	assert.Empty(t, r.HeadersFor(context.Background(), cfg))
}

func TestTokenSourceRefresher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","token_type":"bearer","expires_in":3600}`))
	}))
	defer server.Close()

	refresher := &TokenSourceRefresher{HTTPClient: server.Client()}
	tok, err := refresher.Refresh(context.Background(), &Config{
		ID:           "a1",
		Type:         TypeOAuth2,
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     server.URL,
		RefreshToken: "rt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.True(t, tok.Expiry.After(time.Now()))
}

func TestTokenSourceRefresher_RequiresFields(t *testing.T) {
	refresher := &TokenSourceRefresher{}

	_, err := refresher.Refresh(context.Background(), &Config{Type: TypeOAuth2, RefreshToken: "x"})
	assert.Error(t, err)

	_, err = refresher.Refresh(context.Background(), &Config{Type: TypeOAuth2, TokenURL: "http://localhost"})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{ID: "a"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, TypeNone, cfg.Type)

	assert.Error(t, (&Config{ID: "a", Type: "hmac"}).Validate())
	assert.Error(t, (&Config{Type: TypeBearer}).Validate())
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("APIHUB_TEST_SELF", "${APIHUB_TEST_SELF}")
	t.Setenv("APIHUB_TEST_USER", "ada")

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"plain", "literal", "literal", false},
		{"single", "${APIHUB_TEST_USER}", "ada", false},
		{"embedded", "user-${APIHUB_TEST_USER}-${APIHUB_TEST_USER}!", "user-ada-ada!", false},
		{"self reference kept verbatim", "${APIHUB_TEST_SELF}", "${APIHUB_TEST_SELF}", false},
		{"unset", "${APIHUB_TEST_UNSET}", "", true},
		{"unclosed", "${APIHUB_TEST_USER", "", true},
		{"invalid name", "${1BAD}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan struct{})
			var got string
			var err error
			go func() {
				defer close(done)
				got, err = expandEnvVar(tt.value)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("expandEnvVar did not return")
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
