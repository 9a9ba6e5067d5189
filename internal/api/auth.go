package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/nyashahama/bornify-backend/internal/auth"
	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/email"
	"github.com/nyashahama/bornify-backend/internal/store"
)

type userResponse struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	DOB       *calendar.Date `json:"dob"`
	Verified  bool           `json:"verified"`
	CreatedAt time.Time      `json:"created_at"`
}

func toUserResponse(u store.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		DOB:       u.DOB,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	}
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ─── POST /api/users/signup ───────────────────────────────────────────────────

type signupRequest struct {
	Name  string `json:"name"`
	DOB   string `json:"dob"`
	Email string `json:"email"`
}

// handleSignup creates (or resets) an unverified account and emails a code.
// Signing up again with the same email replaces the pending details.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.DOB == "" || req.Email == "" {
		respondErr(w, http.StatusBadRequest, "name, dob and email are required")
		return
	}
	if hasControlChars(req.Name) {
		respondErr(w, http.StatusBadRequest, "name must not contain control characters")
		return
	}
	addr, ok := parseEmail(req.Email)
	if !ok {
		respondErr(w, http.StatusBadRequest, "invalid email")
		return
	}
	dob, ok := s.parsePastDate(w, req.DOB, "dob")
	if !ok {
		return
	}
	if !s.otpLimiter.Allow(r.Context(), addr) {
		respondErr(w, http.StatusTooManyRequests, "too many code requests, try again later")
		return
	}

	otp, err := auth.NewOTP(s.clock.Now())
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}
	user, err := s.store.UpsertPendingUser(r.Context(), store.UpsertPendingUserParams{
		Email:        addr,
		Name:         req.Name,
		DOB:          &dob,
		OTPHash:      otp.Hash,
		OTPExpiresAt: otp.ExpiresAt,
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("signup: %w", err))
		return
	}

	if !s.sendCode(w, r, user.Email, otp) {
		return
	}
	respond(w, http.StatusOK, messageResponse{Message: "verification code sent"})
}

// ─── POST /api/users/login ────────────────────────────────────────────────────

type loginRequest struct {
	Email string `json:"email"`
}

// handleLogin emails a fresh code to an existing, verified account.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondErr(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !user.Verified) {
		respondErr(w, http.StatusNotFound, "user not found or not verified")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("login: %w", err))
		return
	}
	if !s.otpLimiter.Allow(r.Context(), user.Email) {
		respondErr(w, http.StatusTooManyRequests, "too many code requests, try again later")
		return
	}

	otp, err := auth.NewOTP(s.clock.Now())
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}
	if err := s.store.SetOTP(r.Context(), user.ID, otp.Hash, otp.ExpiresAt); err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("login: set otp: %w", err))
		return
	}

	if !s.sendCode(w, r, user.Email, otp) {
		return
	}
	respond(w, http.StatusOK, messageResponse{Message: "login code sent"})
}

// sendCode emails otp and writes the error response when delivery fails.
func (s *Server) sendCode(w http.ResponseWriter, r *http.Request, to string, otp auth.IssuedOTP) bool {
	err := s.mailer.SendLoginCode(r.Context(), email.LoginCodeParams{
		To:        to,
		Code:      otp.Code,
		ValidMins: int(auth.OTPValidity / time.Minute),
	})
	if err == nil {
		return true
	}
	s.logger.Error("api: login code email failed", "error", err, logField(r))
	if errors.Is(err, email.ErrDisabled) {
		respondErr(w, http.StatusServiceUnavailable, "email delivery is not configured")
		return false
	}
	respondErr(w, http.StatusBadGateway, "could not send verification code")
	return false
}

// ─── POST /api/users/verify-otp ───────────────────────────────────────────────

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// handleVerifyOTP exchanges a valid code for a session token. The code is
// single use: a successful check clears it.
func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.OTP) == "" {
		respondErr(w, http.StatusBadRequest, "email and otp are required")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		respondErr(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("verify otp: %w", err))
		return
	}

	err = auth.VerifyOTP(strings.TrimSpace(req.OTP), user.OTPHash.String, user.OTPExpiresAt.Time, s.clock.Now())
	switch {
	case errors.Is(err, auth.ErrOTPExpired):
		respondErr(w, http.StatusBadRequest, "code expired")
		return
	case err != nil:
		respondErr(w, http.StatusBadRequest, "invalid code")
		return
	}

	user, err = s.store.MarkVerified(r.Context(), user.ID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("verify otp: mark verified: %w", err))
		return
	}
	s.respondSession(w, r, user)
}

// ─── POST /api/users/google-login ─────────────────────────────────────────────

type googleLoginRequest struct {
	Credential string `json:"credential"`
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Credential == "" {
		respondErr(w, http.StatusBadRequest, "credential is required")
		return
	}

	id, err := s.google.Verify(r.Context(), req.Credential)
	if err != nil {
		s.logger.Warn("api: google login rejected", "error", err, logField(r))
		respondErr(w, http.StatusUnauthorized, "google authentication failed")
		return
	}

	user, err := s.store.LoginWithGoogle(r.Context(), store.GoogleUserParams{
		Email:    id.Email,
		Name:     id.Name,
		GoogleID: id.Subject,
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("google login: %w", err))
		return
	}
	s.respondSession(w, r, user)
}

func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, user store.User) {
	token, err := s.tokens.Issue(user.ID, user.Email, user.Name)
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionResponse{Token: token, User: toUserResponse(user)})
}

// ─── GET /api/users/me ────────────────────────────────────────────────────────

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, toUserResponse(userFrom(r.Context())))
}

// ─── PUT /api/users/dob ───────────────────────────────────────────────────────

type updateDOBRequest struct {
	DOB string `json:"dob"`
}

func (s *Server) handleUpdateDOB(w http.ResponseWriter, r *http.Request) {
	var req updateDOBRequest
	if !decode(w, r, &req) {
		return
	}
	dob, ok := s.parsePastDate(w, req.DOB, "dob")
	if !ok {
		return
	}

	user, err := s.store.UpdateDOB(r.Context(), userFrom(r.Context()).ID, dob)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("update dob: %w", err))
		return
	}
	respond(w, http.StatusOK, toUserResponse(user))
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

// parsePastDate parses a "YYYY-MM-DD" date that must not be after today.
func (s *Server) parsePastDate(w http.ResponseWriter, v, field string) (calendar.Date, bool) {
	d, err := calendar.Parse(strings.TrimSpace(v))
	if err != nil {
		respondErr(w, http.StatusBadRequest, fmt.Sprintf("invalid %s, expected YYYY-MM-DD", field))
		return calendar.Date{}, false
	}
	if d.After(s.today()) {
		respondErr(w, http.StatusBadRequest, field+" cannot be in the future")
		return calendar.Date{}, false
	}
	return d, true
}

// parseEmail accepts a bare address and returns it lower-cased.
func parseEmail(v string) (string, bool) {
	addr, err := mail.ParseAddress(strings.TrimSpace(v))
	if err != nil || addr.Name != "" {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}
