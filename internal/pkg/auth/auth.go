package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/strogmv/notifyd/internal/pkg/rbac"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string   `json:"sub"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

func (i Identity) IsAdmin() bool {
	return slices.Contains(i.Roles, rbac.RoleAdmin)
}

// Can reports whether one of the identity's roles grants permission.
func (i Identity) Can(permission string) bool {
	return rbac.Any(i.Roles, permission)
}

// Signer issues and verifies HS256 access tokens.
type Signer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewSigner(secret, issuer, audience string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Signer{key: []byte(secret), issuer: issuer, audience: audience, ttl: ttl, now: time.Now}
}

type claims struct {
	Identity
	Issuer    string `json:"iss,omitempty"`
	Audience  string `json:"aud,omitempty"`
	IssuedAt  int64  `json:"iat"`
	NotBefore int64  `json:"nbf"`
	ExpiresAt int64  `json:"exp"`
	Type      string `json:"typ"`
}

var header = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

// IssueAccessToken builds and signs an access JWT.
func (s *Signer) IssueAccessToken(id Identity) (string, error) {
	if len(s.key) == 0 {
		return "", fmt.Errorf("JWT_SECRET is required for HS256")
	}
	if id.UserID == "" {
		return "", fmt.Errorf("subject is required")
	}
	now := s.now()
	payload, err := json.Marshal(claims{
		Identity:  id,
		Issuer:    s.issuer,
		Audience:  s.audience,
		IssuedAt:  now.Unix(),
		NotBefore: now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
		Type:      "access",
	})
	if err != nil {
		return "", err
	}
	unsigned := header + "." + base64.RawURLEncoding.EncodeToString(payload)
	return unsigned + "." + s.sign(unsigned), nil
}

// Verify checks signature, time window, issuer and audience.
func (s *Signer) Verify(token string) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, ErrInvalidToken
	}
	unsigned := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(s.sign(unsigned)), []byte(parts[2])) {
		return Identity{}, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	var c claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return Identity{}, ErrInvalidToken
	}
	now := s.now().Unix()
	if c.ExpiresAt != 0 && now >= c.ExpiresAt {
		return Identity{}, ErrExpiredToken
	}
	if c.NotBefore != 0 && now < c.NotBefore {
		return Identity{}, ErrInvalidToken
	}
	if s.issuer != "" && c.Issuer != s.issuer {
		return Identity{}, ErrInvalidToken
	}
	if s.audience != "" && c.Audience != s.audience {
		return Identity{}, ErrInvalidToken
	}
	if c.UserID == "" || (c.Type != "" && c.Type != "access") {
		return Identity{}, ErrInvalidToken
	}
	return c.Identity, nil
}

func (s *Signer) sign(unsigned string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(unsigned))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
