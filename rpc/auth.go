package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// JWTConfig guards mutating methods with HS256 bearer tokens.
type JWTConfig struct {
	Enable    bool
	Secret    string
	Issuer    string
	Audience  []string
	ClockSkew time.Duration
}

type authenticator struct {
	cfg    JWTConfig
	secret []byte
}

func newAuthenticator(cfg JWTConfig) (*authenticator, error) {
	if !cfg.Enable {
		return nil, nil
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("rpc: jwt enabled but secret is empty")
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &authenticator{cfg: cfg, secret: []byte(secret)}, nil
}

// authenticate validates the bearer token and returns its subject. A nil
// authenticator admits every caller with an empty subject.
func (a *authenticator) authenticate(r *http.Request) (string, error) {
	if a == nil {
		return "", nil
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return "", errors.New("missing bearer token")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	if a.cfg.Issuer != "" {
		issuer, err := token.Claims.GetIssuer()
		if err != nil || issuer != a.cfg.Issuer {
			return "", errors.New("issuer mismatch")
		}
	}
	if len(a.cfg.Audience) > 0 {
		aud, err := token.Claims.GetAudience()
		if err != nil || !audienceMatches(aud, a.cfg.Audience) {
			return "", errors.New("audience mismatch")
		}
	}
	subject, _ := token.Claims.GetSubject()
	return subject, nil
}

func audienceMatches(got, want []string) bool {
	for _, g := range got {
		for _, w := range want {
			if g == w {
				return true
			}
		}
	}
	return false
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
