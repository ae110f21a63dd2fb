package session

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, subject string, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestParseSubject(t *testing.T) {
	userID := uuid.NewString()

	subject, err := ParseSubject(signToken(t, userID, testSecret), testSecret)
	require.NoError(t, err)
	require.Equal(t, userID, subject)
}

func TestParseSubjectRejectsBadTokens(t *testing.T) {
	userID := uuid.NewString()

	_, err := ParseSubject("not-a-token", testSecret)
	require.Error(t, err)

	_, err = ParseSubject(signToken(t, userID, []byte("other-secret")), testSecret)
	require.Error(t, err)

	_, err = ParseSubject(signToken(t, "", testSecret), testSecret)
	require.Error(t, err)
}

func TestTokenProviderLifecycle(t *testing.T) {
	provider := NewTokenProvider(testSecret, log.New(io.Discard, "", 0))

	_, ok := provider.Identity(context.Background())
	require.False(t, ok, "fresh provider should be anonymous")

	var changes []Change
	unsubscribe := provider.Subscribe(func(c Change) { changes = append(changes, c) })
	defer unsubscribe()

	userA := uuid.NewString()
	require.NoError(t, provider.SetToken(signToken(t, userA, testSecret)))

	got, ok := provider.Identity(context.Background())
	require.True(t, ok)
	require.Equal(t, userA, got)

	// Same identity again is not a change.
	require.NoError(t, provider.SetToken(signToken(t, userA, testSecret)))

	userB := uuid.NewString()
	require.NoError(t, provider.SetToken(signToken(t, userB, testSecret)))

	provider.SignOut()
	_, ok = provider.Identity(context.Background())
	require.False(t, ok)

	// Signing out twice emits nothing new.
	provider.SignOut()

	require.Equal(t, []Change{{UserID: userA}, {UserID: userB}, {}}, changes)
}

func TestTokenProviderRejectsInvalidToken(t *testing.T) {
	provider := NewTokenProvider(testSecret, log.New(io.Discard, "", 0))

	require.Error(t, provider.SetToken("garbage"))
	_, ok := provider.Identity(context.Background())
	require.False(t, ok, "failed SetToken must not establish a session")
}

func TestContextProvider(t *testing.T) {
	provider := ContextProvider{}

	_, ok := provider.Identity(context.Background())
	require.False(t, ok)

	userID := uuid.NewString()
	ctx := WithIdentity(context.Background(), userID)
	got, ok := provider.Identity(ctx)
	require.True(t, ok)
	require.Equal(t, userID, got)
}
