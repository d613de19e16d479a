// Copyright 2026 The AgencyDesk Authors
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

package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried in the auth provider's access token.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens minted by the external auth provider and
// extracts the signed-in user. Sign-in itself happens outside this core; the
// verifier is the trust boundary where its output enters.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a token verifier for the given HMAC secret and
// expected issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a bearer token, returning the user it
// identifies. Any parse, signature, expiry, or claim problem yields
// ErrTokenInvalid; callers must treat that as "not signed in", never as a
// server fault.
func (v *Verifier) Verify(tokenString string) (*User, error) {
	if tokenString == "" {
		return nil, ErrNotAuthenticated
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return &User{
		ID:          claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}
