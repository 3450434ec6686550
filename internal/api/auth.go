package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/internal/store"
)

const issuerName = "ledger-indicators"

// Claims is the bearer token payload. The stored profile is authoritative;
// role and collaborator id are carried for clients.
type Claims struct {
	Role           string `json:"role"`
	CollaboratorID string `json:"collaborator_id,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. ttl <= 0 issues tokens without expiry.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, eris.New("api: jwt secret is required")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for p.
func (i *Issuer) Issue(p model.Profile) (string, error) {
	now := i.now()
	claims := Claims{
		Role:           string(p.Role),
		CollaboratorID: p.CollaboratorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.Username,
			Issuer:   issuerName,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	return signed, eris.Wrap(err, "api: sign token")
}

// Parse verifies a token and returns its claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, eris.Wrap(err, "api: parse token")
	}
	if claims.Subject == "" {
		return nil, eris.New("api: token has no subject")
	}
	return claims, nil
}

type ctxKey int

const (
	profileKey ctxKey = iota
	usernameKey
)

// ProfileFrom returns the viewer's profile, nil when the user has none.
func ProfileFrom(ctx context.Context) *model.Profile {
	p, _ := ctx.Value(profileKey).(*model.Profile)
	return p
}

func usernameFrom(ctx context.Context) string {
	u, _ := ctx.Value(usernameKey).(string)
	return u
}

// authenticate verifies the bearer token and loads the stored profile. A
// valid token for a user without a profile passes with a nil profile.
func authenticate(issuer *Issuer, st store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := issuer.Parse(token)
			if err != nil {
				zap.L().Debug("api: rejected token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			p, err := st.GetProfile(r.Context(), claims.Subject)
			switch {
			case errors.Is(err, store.ErrNotFound):
				zap.L().Warn("api: no profile for user", zap.String("username", claims.Subject))
				p = nil
			case err != nil:
				zap.L().Error("api: load profile", zap.String("username", claims.Subject), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "profile lookup failed")
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, claims.Subject)
			ctx = context.WithValue(ctx, profileKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := ProfileFrom(r.Context())
		if p == nil || p.Role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
