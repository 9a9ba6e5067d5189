package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// ErrGoogleIncomplete is returned when a valid token lacks email, name or sub.
var ErrGoogleIncomplete = errors.New("auth: incomplete google credentials")

// GoogleIdentity is the subset of a verified ID token the app uses.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
}

// GoogleVerifier checks a Google Sign-In credential.
type GoogleVerifier interface {
	Verify(ctx context.Context, credential string) (GoogleIdentity, error)
}

type googleVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier validates ID tokens against clientID using Google's
// published signing keys.
func NewGoogleVerifier(clientID string) GoogleVerifier {
	return &googleVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (g *googleVerifier) Verify(ctx context.Context, credential string) (GoogleIdentity, error) {
	if g.clientID == "" {
		return GoogleIdentity{}, errors.New("auth: GOOGLE_CLIENT_ID is not set")
	}
	if credential == "" {
		return GoogleIdentity{}, errors.New("auth: missing credential")
	}
	payload, err := g.validate(ctx, credential, g.clientID)
	if err != nil {
		return GoogleIdentity{}, fmt.Errorf("auth: validate google token: %w", err)
	}

	id := GoogleIdentity{Subject: payload.Subject}
	id.Email, _ = payload.Claims["email"].(string)
	id.Name, _ = payload.Claims["name"].(string)
	if id.Subject == "" || id.Email == "" || id.Name == "" {
		return GoogleIdentity{}, ErrGoogleIncomplete
	}
	return id, nil
}
