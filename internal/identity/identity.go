// Package identity resolves the feed subscriber behind a request.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	AnonCookieName     = "robofeed_anon_id"
	UserHeaderName     = "X-Feed-User-ID"
	ConnHeaderName     = "X-Feed-Conn-ID"
	DefaultConnIDValue = "default"
	anonCookieMaxAge   = 30 * 24 * time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	connIDKey
	anonymousKey
)

var (
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	idPattern     = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the subscriber ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// ConnIDFromContext extracts the per-tab connection ID from the request context.
func ConnIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(connIDKey).(string); ok {
		return v
	}
	return DefaultConnIDValue
}

// IsAnonymous reports whether the subscriber was identified by cookie only.
func IsAnonymous(ctx context.Context) bool {
	v, _ := ctx.Value(anonymousKey).(bool)
	return v
}

// WithUser returns a context carrying a subscriber and connection ID.
func WithUser(ctx context.Context, userID, connID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, connIDKey, sanitizeID(connID, DefaultConnIDValue))
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func sanitizeID(id, fallback string) string {
	id = strings.TrimSpace(id)
	if id == "" || !idPattern.MatchString(id) {
		return fallback
	}
	return id
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

// explicitUserID returns the subscriber named by header or query, if valid.
func explicitUserID(r *http.Request) string {
	id := r.Header.Get(UserHeaderName)
	if id == "" {
		id = r.URL.Query().Get("user_id")
	}
	return sanitizeID(id, "")
}

func connIDFromRequest(r *http.Request) string {
	id := r.Header.Get(ConnHeaderName)
	if id == "" {
		id = r.URL.Query().Get("conn_id")
	}
	return id
}

// Middleware resolves the subscriber from the X-Feed-User-ID header, the
// user_id query parameter, or an anonymous cookie, in that order.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := explicitUserID(r)
			anonymous := false
			if userID == "" {
				var err error
				userID, err = getOrCreateAnonID(w, r, isDev)
				if err != nil {
					http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
					return
				}
				anonymous = true
			}

			ctx := WithUser(r.Context(), userID, connIDFromRequest(r))
			ctx = context.WithValue(ctx, anonymousKey, anonymous)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
