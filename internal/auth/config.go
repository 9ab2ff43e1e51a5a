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

// Package auth turns an API authentication record into request headers or an
// HTTP basic credential.
package auth

import (
	"fmt"
	"time"
)

// Type identifies the authentication scheme of a Config.
type Type string

const (
	TypeNone   Type = "none"
	TypeAPIKey Type = "api_key"
	TypeBearer Type = "bearer"
	TypeBasic  Type = "basic"
	TypeOAuth2 Type = "oauth2"
)

// Valid reports whether t is a known authentication type.
func (t Type) Valid() bool {
	switch t {
	case TypeNone, TypeAPIKey, TypeBearer, TypeBasic, TypeOAuth2:
		return true
	}
	return false
}

// Config is a stored authentication record. Only the fields relevant to Type
// are read; the rest are ignored.
type Config struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Type Type   `yaml:"type" json:"type"`

	// api_key
	APIKey     string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	APIKeyName string `yaml:"api_key_name,omitempty" json:"api_key_name,omitempty"`

	// bearer
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// basic
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// oauth2
	ClientID     string    `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret string    `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	TokenURL     string    `yaml:"token_url,omitempty" json:"token_url,omitempty"`
	RefreshToken string    `yaml:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	AccessToken  string    `yaml:"access_token,omitempty" json:"access_token,omitempty"`
	ExpiresAt    time.Time `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// Validate checks the record type. Missing credential fields are not an
// error; they simply produce no headers at resolve time.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("authentication id is required")
	}
	if c.Type == "" {
		c.Type = TypeNone
	}
	if !c.Type.Valid() {
		return fmt.Errorf("authentication %q: unsupported type %q", c.ID, c.Type)
	}
	return nil
}

// BasicCredential is applied by the HTTP layer via SetBasicAuth.
type BasicCredential struct {
	Username string
	Password string
}
