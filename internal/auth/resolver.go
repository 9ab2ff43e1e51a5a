// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
)

// Resolver produces authentication material for outbound requests. The zero
// value is usable and never refreshes OAuth2 tokens.
type Resolver struct {
	// Refresher renews expired OAuth2 tokens. When nil, oauth2 records
	// contribute no headers.
	Refresher Refresher

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger

	tokens *cache.Cache
}

// NewResolver creates a resolver with an OAuth2 token cache.
func NewResolver(refresher Refresher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		Refresher: refresher,
		Logger:    logger,
		tokens:    cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

// HeadersFor returns the headers contributed by cfg. A nil cfg or an
// incompletely configured record yields an empty map.
func (r *Resolver) HeadersFor(ctx context.Context, cfg *Config) map[string]string {
	headers := make(map[string]string)
	if cfg == nil {
		return headers
	}

	switch cfg.Type {
	case TypeAPIKey:
		key := r.field(cfg, "api_key", cfg.APIKey)
		if key != "" && cfg.APIKeyName != "" {
			headers[cfg.APIKeyName] = key
		}
	case TypeBearer:
		if token := r.field(cfg, "token", cfg.Token); token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	case TypeOAuth2:
		if token := r.oauth2Token(ctx, cfg); token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	}

	return headers
}

// CredentialFor returns a basic credential for basic records with both
// username and password set, otherwise nil.
func (r *Resolver) CredentialFor(_ context.Context, cfg *Config) *BasicCredential {
	if cfg == nil || cfg.Type != TypeBasic {
		return nil
	}
	username := r.field(cfg, "username", cfg.Username)
	password := r.field(cfg, "password", cfg.Password)
	if username == "" || password == "" {
		return nil
	}
	return &BasicCredential{Username: username, Password: password}
}

// field expands an env reference; an unresolvable reference is treated as unset.
func (r *Resolver) field(cfg *Config, name, value string) string {
	expanded, err := expandEnvVar(value)
	if err != nil {
		r.logger().Warn("credential reference could not be resolved",
			"auth_id", cfg.ID,
			"field", name,
			"error", err)
		return ""
	}
	return expanded
}

func (r *Resolver) oauth2Token(ctx context.Context, cfg *Config) string {
	if r.Refresher == nil {
		return ""
	}

	now := r.now()
	if r.tokens != nil {
		if cached, ok := r.tokens.Get(cfg.ID); ok {
			tok := cached.(*oauth2.Token)
			if tok.Expiry.IsZero() || tok.Expiry.After(now) {
				return tok.AccessToken
			}
		}
	}

	access := r.field(cfg, "access_token", cfg.AccessToken)
	if access != "" && (cfg.ExpiresAt.IsZero() || cfg.ExpiresAt.After(now)) {
		return access
	}

	tok, err := r.Refresher.Refresh(ctx, cfg)
	if err != nil || tok == nil || tok.AccessToken == "" {
		if err == nil {
			err = fmt.Errorf("refresher returned no access token")
		}
		// Proceed without a valid token; the downstream call fails on its own.
		r.logger().Error("oauth2 token refresh failed",
			"auth_id", cfg.ID,
			"error", err)
		return ""
	}

	if r.tokens != nil {
		ttl := cache.NoExpiration
		if !tok.Expiry.IsZero() {
			ttl = tok.Expiry.Sub(now)
		}
		if ttl > 0 || ttl == cache.NoExpiration {
			r.tokens.Set(cfg.ID, tok, ttl)
		}
	}

	r.logger().Debug("oauth2 token refreshed", "auth_id", cfg.ID, "expiry", tok.Expiry)
	return tok.AccessToken
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
