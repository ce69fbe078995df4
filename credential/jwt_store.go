package credential

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTStore mints a short-lived HS256 bearer token per resolution. The
// signing secret is never part of the stored reference; the params name an
// environment variable that holds it.
//
// Recognized params:
//
//	secret_env  name of the env var holding the signing secret (required)
//	issuer      iss claim
//	subject     sub claim (templated values like {{agent_id}} work here)
//	audience    aud claim
//	ttl         token lifetime as a Go duration (default 5m)
//	header      target header name (default Authorization)
type JWTStore struct {
	now func() time.Time
}

// NewJWTStore creates a JWT-minting store.
func NewJWTStore() *JWTStore {
	return &JWTStore{now: time.Now}
}

// Resolve signs a fresh token and returns it as a bearer header.
func (s *JWTStore) Resolve(_ context.Context, params map[string]string) (map[string]string, error) {
	secretEnv := params["secret_env"]
	if secretEnv == "" {
		return nil, fmt.Errorf("credential: jwt store requires a secret_env param")
	}
	secret := os.Getenv(secretEnv)
	if secret == "" {
		return nil, fmt.Errorf("credential: environment variable %s for jwt signing secret is not set", secretEnv)
	}

	ttl := 5 * time.Minute
	if raw := params["ttl"]; raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("credential: invalid jwt ttl %q: %w", raw, err)
		}
		ttl = parsed
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}
	if v := params["issuer"]; v != "" {
		claims["iss"] = v
	}
	if v := params["subject"]; v != "" {
		claims["sub"] = v
	}
	if v := params["audience"]; v != "" {
		claims["aud"] = v
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("credential: sign jwt: %w", err)
	}

	header := params["header"]
	if header == "" {
		header = "Authorization"
	}
	return map[string]string{header: "Bearer " + token}, nil
}

var _ Store = (*JWTStore)(nil)
