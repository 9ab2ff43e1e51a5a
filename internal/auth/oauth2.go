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
	"net/http"

	"golang.org/x/oauth2"
)

// Refresher renews the access token of an oauth2 record.
type Refresher interface {
	Refresh(ctx context.Context, cfg *Config) (*oauth2.Token, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, cfg *Config) (*oauth2.Token, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, cfg *Config) (*oauth2.Token, error) {
	return f(ctx, cfg)
}

// TokenSourceRefresher performs a refresh-token grant against the record's
// token URL.
type TokenSourceRefresher struct {
	// HTTPClient is used for token requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Refresh exchanges the record's refresh token for a new access token.
func (t *TokenSourceRefresher) Refresh(ctx context.Context, cfg *Config) (*oauth2.Token, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token_url is required for oauth2 refresh")
	}

	refreshToken, err := expandEnvVar(cfg.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh token expansion failed: %w", err)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh_token is required for oauth2 refresh")
	}

	clientSecret, err := expandEnvVar(cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("client secret expansion failed: %w", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: cfg.TokenURL,
		},
	}

	if t.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, t.HTTPClient)
	}

	// Zero expiry forces the token source to refresh immediately.
	token, err := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return token, nil
}
