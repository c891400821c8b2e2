package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/member"
	"github.com/mydasteran/portal/internal/otp"
)

const (
	sessionCookieName = "mydasteran_session"
	sessionIssuer     = "mydasteran-portal"
)

var errInvalidSession = errors.New("invalid session")

type sessionClaims struct {
	CustomerID string `json:"cid"`
	jwt.RegisteredClaims
}

// sessionManager issues and verifies the HS256 session tokens kept in the
// member cookie. The subject is the auth user id.
type sessionManager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func newSessionManager(secret string, ttl time.Duration, secure bool) *sessionManager {
	return &sessionManager{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}
}

func (m *sessionManager) createToken(id otp.Identity) (string, error) {
	now := m.now()
	claims := sessionClaims{
		CustomerID: id.CustomerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   id.AuthUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

func (m *sessionManager) verifyToken(raw string) (sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return sessionClaims{}, fmt.Errorf("%w: %v", errInvalidSession, err)
	}
	if claims.Subject == "" {
		return sessionClaims{}, fmt.Errorf("%w: missing subject", errInvalidSession)
	}
	return claims, nil
}

func (m *sessionManager) setSessionCookie(w http.ResponseWriter, id otp.Identity) error {
	token, err := m.createToken(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *sessionManager) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *sessionManager) session(r *http.Request) (sessionClaims, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return sessionClaims{}, false
	}
	claims, err := m.verifyToken(cookie.Value)
	if err != nil {
		return sessionClaims{}, false
	}
	return claims, true
}

type contextKey int

const customerContextKey contextKey = iota

// memberMiddleware loads the signed-in customer into the request context and
// sends everyone else to the login page.
func (s *server) memberMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := s.sessions.session(r)
		if !ok {
			http.Redirect(w, r, "/member/login", http.StatusSeeOther)
			return
		}

		customer, err := s.members.CustomerByAuthUser(r.Context(), claims.Subject)
		if errors.Is(err, member.ErrCustomerNotFound) {
			s.sessions.clearSessionCookie(w)
			http.Redirect(w, r, "/member/login", http.StatusSeeOther)
			return
		}
		if err != nil {
			s.log.Error("load session customer", zap.String("auth_user_id", claims.Subject), zap.Error(err))
			http.Error(w, "failed to load member", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), customerContextKey, customer)))
	})
}

func currentCustomer(r *http.Request) (member.Customer, bool) {
	c, ok := r.Context().Value(customerContextKey).(member.Customer)
	return c, ok
}
