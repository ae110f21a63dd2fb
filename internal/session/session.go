package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/guiaperfil/guia-api/internal/pubsub"
)

// ErrNotAuthenticated is returned by operations that require a signed-in user
// when no session is present.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// Change describes an identity transition: sign-in, sign-out, or switch.
// UserID is empty after a sign-out.
type Change struct {
	UserID string
}

// Provider resolves the current identity and announces identity changes so
// dependent stores can reset their state.
type Provider interface {
	// Identity returns the current user id, or false for anonymous sessions.
	Identity(ctx context.Context) (string, bool)
	// Subscribe registers a listener for identity changes and returns a
	// closure that removes it.
	Subscribe(fn func(Change)) func()
}

// TokenProvider holds a single session backed by an HS256-signed access token,
// the way the hosted auth service issues them. It is the client-side provider:
// one identity at a time, changes broadcast to subscribers.
type TokenProvider struct {
	mu      sync.RWMutex
	secret  []byte
	userID  string
	changes *pubsub.Broadcaster[Change]
}

// NewTokenProvider constructs a provider that validates tokens with the given
// shared secret. The session starts anonymous.
func NewTokenProvider(secret []byte, logger *log.Logger) *TokenProvider {
	return &TokenProvider{
		secret:  secret,
		changes: pubsub.New[Change](logger),
	}
}

// SetToken validates the access token and switches the session to its subject.
func (p *TokenProvider) SetToken(tokenString string) error {
	userID, err := ParseSubject(tokenString, p.secret)
	if err != nil {
		return err
	}

	p.mu.Lock()
	changed := p.userID != userID
	p.userID = userID
	p.mu.Unlock()

	if changed {
		p.changes.Notify(Change{UserID: userID})
	}
	return nil
}

// SignOut clears the session.
func (p *TokenProvider) SignOut() {
	p.mu.Lock()
	changed := p.userID != ""
	p.userID = ""
	p.mu.Unlock()

	if changed {
		p.changes.Notify(Change{})
	}
}

// Identity implements Provider.
func (p *TokenProvider) Identity(ctx context.Context) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID, p.userID != ""
}

// Subscribe implements Provider.
func (p *TokenProvider) Subscribe(fn func(Change)) func() {
	return p.changes.Subscribe(fn)
}

// ParseSubject validates an HS256 token and extracts its subject claim.
func ParseSubject(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

type contextKey struct{}

// WithIdentity returns a context carrying the given user id. The HTTP auth
// middleware uses it after validating the bearer token.
func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// ContextProvider resolves identity from the request context. It is the
// server-side provider: identity is per request, so there are no change events.
type ContextProvider struct{}

// Identity implements Provider.
func (ContextProvider) Identity(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey{}).(string)
	return userID, ok && userID != ""
}

// Subscribe implements Provider. Request-scoped identities never change.
func (ContextProvider) Subscribe(fn func(Change)) func() {
	return func() {}
}
