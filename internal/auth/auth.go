// Package auth verifies bearer tokens issued by the external identity
// provider and puts the caller's owner id on the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ignite/engage/internal/config"
	"github.com/ignite/engage/internal/pkg/httputil"
	"github.com/ignite/engage/internal/pkg/logger"
)

var log = logger.With("auth")

var (
	// ErrNoSubject is returned for a well-signed token without a subject.
	ErrNoSubject = errors.New("token has no subject")
)

type ownerKey struct{}

// Claims are the access-token claims the pipeline relies on. The subject
// is the owner id every row is scoped by.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Verifier validates HMAC-signed access tokens.
type Verifier struct {
	secret     []byte
	devMode    bool
	devOwnerID string
	leeway     time.Duration
}

// NewVerifier creates a verifier from auth settings. Outside dev mode a
// secret is required.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	if cfg.JWTSecret == "" && !cfg.DevMode {
		return nil, errors.New("auth.jwt_secret is required unless dev_mode is on")
	}
	return &Verifier{
		secret:     []byte(cfg.JWTSecret),
		devMode:    cfg.DevMode,
		devOwnerID: cfg.DevOwnerID,
		leeway:     30 * time.Second,
	}, nil
}

// Verify parses tokenString and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("no signing secret configured")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithLeeway(v.leeway), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrNoSubject
	}
	return claims, nil
}

// Middleware rejects requests without a bearer token (401) or with one that
// does not verify (403). In dev mode a missing token means the dev owner.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if v.devMode {
				next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), v.devOwnerID)))
				return
			}
			httputil.Unauthorized(w, "missing bearer token")
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			log.Debug("token rejected", "error", err)
			httputil.Forbidden(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), claims.Subject)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// WithOwner returns ctx carrying ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerID returns the authenticated owner id.
func OwnerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerKey{}).(string)
	return id, ok && id != ""
}
