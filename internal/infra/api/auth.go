package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"streamboost-dashboard/internal/config"
	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/infra/logging"
)

// ===== Session/JWT primitives =====

// Claims carry the profile id in sub and its role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthManager struct {
	secret       []byte
	cookieName   string
	cookieDomain string
	secure       bool
	ttl          time.Duration
}

func NewAuthManager(cfg config.AuthConfig) *AuthManager {
	name := cfg.CookieName
	if name == "" {
		name = "session"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthManager{
		secret:       []byte(cfg.JWTSecret),
		cookieName:   name,
		cookieDomain: cfg.CookieDomain,
		secure:       cfg.SecureCookie,
		ttl:          ttl,
	}
}

// Sign issues an HS256 token for viewer.
func (a *AuthManager) Sign(viewer model.Viewer) (string, error) {
	if viewer.UserID == "" || !viewer.Role.Valid() {
		return "", domain.ErrInvalidArgument
	}
	now := time.Now()
	claims := Claims{
		Role: string(viewer.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   viewer.UserID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Mint signs a token and sets it as the session cookie.
func (a *AuthManager) Mint(w http.ResponseWriter, viewer model.Viewer) (string, error) {
	signed, err := a.Sign(viewer)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    signed,
		Path:     "/",
		Domain:   a.cookieDomain,
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return signed, nil
}

// ViewerFromRequest reads the bearer header first, then the session cookie.
func (a *AuthManager) ViewerFromRequest(r *http.Request) (model.Viewer, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
		return model.Viewer{}, domain.ErrUnauthenticated
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return a.parse(c.Value)
	}
	return model.Viewer{}, domain.ErrUnauthenticated
}

func (a *AuthManager) parse(tok string) (model.Viewer, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return model.Viewer{}, errors.Join(domain.ErrUnauthenticated, err)
	}
	v := model.Viewer{UserID: claims.Subject, Role: model.Role(claims.Role)}
	if v.UserID == "" || !v.Role.Valid() {
		return model.Viewer{}, domain.ErrUnauthenticated
	}
	return v, nil
}

type viewerKey struct{}

// Authenticate rejects requests without a valid token and stores the viewer in the context.
func (a *AuthManager) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, err := a.ViewerFromRequest(r)
		if err != nil {
			writeError(w, r, domain.ErrUnauthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), viewerKey{}, v)
		ctx = logging.WithUserID(ctx, v.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ViewerFrom returns the viewer set by Authenticate.
func ViewerFrom(ctx context.Context) (model.Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(model.Viewer)
	return v, ok
}
