// Package auth issues and checks the credentials a user signs in with:
// emailed one-time passcodes, Google ID tokens and the bearer JWT handed out
// after either succeeds.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	// OTPLength is the number of decimal digits in a passcode.
	OTPLength = 6
	// OTPValidity is how long an emailed passcode stays usable.
	OTPValidity = 10 * time.Minute
)

var (
	ErrOTPInvalid = errors.New("auth: invalid code")
	ErrOTPExpired = errors.New("auth: code expired")
)

// IssuedOTP is a fresh passcode. Code is emailed; only Hash is stored.
type IssuedOTP struct {
	Code      string
	Hash      string
	ExpiresAt time.Time
}

// NewOTP draws a uniformly random 6-digit code valid for OTPValidity from now.
func NewOTP(now time.Time) (IssuedOTP, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return IssuedOTP{}, fmt.Errorf("auth: generate code: %w", err)
	}
	code := fmt.Sprintf("%0*d", OTPLength, n.Int64())
	return IssuedOTP{
		Code:      code,
		Hash:      HashOTP(code),
		ExpiresAt: now.Add(OTPValidity),
	}, nil
}

// HashOTP returns the hex SHA-256 of a code.
func HashOTP(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

// VerifyOTP checks a submitted code against the stored hash and expiry.
// A mismatch is reported before expiry, so a wrong code never reveals
// whether a valid one is still pending.
func VerifyOTP(code, storedHash string, expiresAt, now time.Time) error {
	if storedHash == "" || code == "" {
		return ErrOTPInvalid
	}
	if subtle.ConstantTimeCompare([]byte(HashOTP(code)), []byte(storedHash)) != 1 {
		return ErrOTPInvalid
	}
	if now.After(expiresAt) {
		return ErrOTPExpired
	}
	return nil
}
