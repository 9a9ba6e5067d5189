package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

// ─── OTP ──────────────────────────────────────────────────────────────────────

func TestNewOTP(t *testing.T) {
	now := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	otp, err := NewOTP(now)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), otp.Code)
	assert.Equal(t, HashOTP(otp.Code), otp.Hash)
	assert.NotContains(t, otp.Hash, otp.Code)
	assert.Equal(t, now.Add(10*time.Minute), otp.ExpiresAt)
}

func TestVerifyOTP(t *testing.T) {
	now := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	hash := HashOTP("123456")

	assert.NoError(t, VerifyOTP("123456", hash, now.Add(time.Minute), now))
	assert.NoError(t, VerifyOTP(" 123456 ", hash, now.Add(time.Minute), now))
	assert.ErrorIs(t, VerifyOTP("654321", hash, now.Add(time.Minute), now), ErrOTPInvalid)
	assert.ErrorIs(t, VerifyOTP("123456", hash, now.Add(-time.Second), now), ErrOTPExpired)
	assert.ErrorIs(t, VerifyOTP("654321", hash, now.Add(-time.Second), now), ErrOTPInvalid)
	assert.ErrorIs(t, VerifyOTP("123456", "", now.Add(time.Minute), now), ErrOTPInvalid)
}

// ─── JWT ──────────────────────────────────────────────────────────────────────

func TestTokenIssuer_RoundTrip(t *testing.T) {
	iss := NewTokenIssuer("secret", time.Hour)
	id := uuid.New()

	token, err := iss.Issue(id, "a@b.c", "Ana")
	require.NoError(t, err)

	got, claims, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, "a@b.c", claims.Email)
	assert.Equal(t, "Ana", claims.Name)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	iss := NewTokenIssuer("secret", time.Hour)
	token, err := iss.Issue(uuid.New(), "a@b.c", "Ana")
	require.NoError(t, err)

	_, _, err = NewTokenIssuer("other", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, _, err = iss.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, _, err = iss.Parse("")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: uuid.NewString()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = iss.Parse(none)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenIssuer_Expired(t *testing.T) {
	iss := NewTokenIssuer("secret", time.Hour)
	past := time.Now().Add(-2 * time.Hour)
	iss.now = func() time.Time { return past }
	token, err := iss.Issue(uuid.New(), "a@b.c", "Ana")
	require.NoError(t, err)

	iss.now = time.Now
	_, _, err = iss.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenIssuer_DefaultTTL(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, NewTokenIssuer("s", 0).ttl)
}

// ─── GOOGLE ───────────────────────────────────────────────────────────────────

func TestGoogleVerifier(t *testing.T) {
	ok := func(context.Context, string, string) (*idtoken.Payload, error) {
		return &idtoken.Payload{Subject: "sub-1", Claims: map[string]any{"email": "g@example.com", "name": "G"}}, nil
	}
	v := &googleVerifier{clientID: "client", validate: ok}
	id, err := v.Verify(context.Background(), "cred")
	require.NoError(t, err)
	assert.Equal(t, GoogleIdentity{Subject: "sub-1", Email: "g@example.com", Name: "G"}, id)

	noName := func(context.Context, string, string) (*idtoken.Payload, error) {
		return &idtoken.Payload{Subject: "sub-1", Claims: map[string]any{"email": "g@example.com"}}, nil
	}
	_, err = (&googleVerifier{clientID: "client", validate: noName}).Verify(context.Background(), "cred")
	assert.ErrorIs(t, err, ErrGoogleIncomplete)

	bad := func(context.Context, string, string) (*idtoken.Payload, error) {
		return nil, errors.New("audience mismatch")
	}
	_, err = (&googleVerifier{clientID: "client", validate: bad}).Verify(context.Background(), "cred")
	assert.Error(t, err)

	_, err = (&googleVerifier{validate: ok}).Verify(context.Background(), "cred")
	assert.Error(t, err)
}

// ─── RATE LIMIT ───────────────────────────────────────────────────────────────

type mockRedisEvaler struct {
	lastKeys []string
	lastArgs []interface{}
	result   int64
	err      error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestRedisOTPRateLimiter(t *testing.T) {
	ctx := context.Background()

	mock := &mockRedisEvaler{result: 2}
	l := &redisOTPRateLimiter{client: mock, window: 2 * time.Minute, max: 3, prefix: "bornify:otp:rl:"}
	assert.True(t, l.Allow(ctx, " User@Example.com "))
	assert.Equal(t, []string{"bornify:otp:rl:user@example.com"}, mock.lastKeys)
	assert.Equal(t, []interface{}{120}, mock.lastArgs)

	assert.False(t, (&redisOTPRateLimiter{client: &mockRedisEvaler{result: 4}, window: time.Minute, max: 3}).Allow(ctx, "a@b.c"))
	assert.False(t, l.Allow(ctx, "   "))
	assert.True(t, (&redisOTPRateLimiter{client: &mockRedisEvaler{err: errors.New("down")}, window: time.Minute, max: 3}).Allow(ctx, "a@b.c"))
	assert.True(t, NewRedisOTPRateLimiter(nil, time.Minute, 3).Allow(ctx, "a@b.c"))
}

func TestMemoryOTPRateLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	l := NewMemoryOTPRateLimiter(10*time.Minute, 3).(*memoryOTPRateLimiter)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "a@b.c"), "request %d", i+1)
	}
	assert.False(t, l.Allow(ctx, "A@B.C"))
	assert.True(t, l.Allow(ctx, "other@b.c"))

	now = now.Add(10 * time.Minute)
	assert.True(t, l.Allow(ctx, "a@b.c"))
}
