package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// handleNonce issues a proof token for the caller's session, creating a
// session when none exists yet. Clients call this once per page load and
// attach the nonce to every mutating request.
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	sc := s.sessions.Start(w, r)
	if !sc.Active() {
		writeFailure(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	writeSuccess(w, nil, map[string]string{"nonce": sc.Nonce()})
}

// loginRequest carries the host application's signed identity assertion.
type loginRequest struct {
	Assertion string `json:"assertion"`
}

// handleLogin links the session to a host user identity. The host signs
// an HS256 assertion whose subject is the numeric user id.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sc := s.sessions.Start(w, r)
	if !sc.Active() {
		writeFailure(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	if !sc.VerifyNonce(r.Header.Get(NonceHeader)) {
		writeFailure(w, http.StatusForbidden, "invalid request proof")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "malformed request body")
		return
	}

	userID, err := s.verifyAssertion(req.Assertion)
	if err != nil {
		slog.Warn("identity assertion rejected", "session_id", sc.SessionID(), "error", err)
		writeFailure(w, http.StatusForbidden, "invalid identity assertion")
		return
	}

	if err := sc.LinkUser(r.Context(), userID); err != nil {
		slog.Error("linking user failed", "session_id", sc.SessionID(), "error", err)
		writeFailure(w, http.StatusInternalServerError, "linking user failed")
		return
	}

	writeSuccess(w, nil, map[string]int64{"user_id": userID})
}

// handleLogout clears the identity association but keeps the session and
// its state alive.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sc := s.sessions.Start(w, r)
	if !sc.Active() {
		writeFailure(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	if !sc.VerifyNonce(r.Header.Get(NonceHeader)) {
		writeFailure(w, http.StatusForbidden, "invalid request proof")
		return
	}

	if err := sc.UnlinkUser(r.Context()); err != nil {
		slog.Error("unlinking user failed", "session_id", sc.SessionID(), "error", err)
		writeFailure(w, http.StatusInternalServerError, "unlinking user failed")
		return
	}

	writeSuccess(w, nil, nil)
}

// handleDestroy deletes the session record and expires the cookie.
func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	sc := s.sessions.Resolve(r)
	if !sc.Active() {
		// Nothing to destroy; report success so the call is idempotent.
		writeSuccess(w, nil, nil)
		return
	}
	if !sc.VerifyNonce(r.Header.Get(NonceHeader)) {
		writeFailure(w, http.StatusForbidden, "invalid request proof")
		return
	}

	if err := sc.Destroy(r.Context(), w, r); err != nil {
		slog.Error("destroying session failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "destroying session failed")
		return
	}

	writeSuccess(w, nil, nil)
}

// verifyAssertion validates the host's HS256 assertion and returns the
// numeric user id from its subject.
func (s *Server) verifyAssertion(assertion string) (int64, error) {
	if len(s.identityKey) == 0 {
		return 0, fmt.Errorf("identity signing key not configured")
	}

	token, err := jwt.Parse(assertion, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.identityKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parsing assertion: %w", err)
	}
	if !token.Valid {
		return 0, fmt.Errorf("invalid assertion")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, fmt.Errorf("assertion missing subject")
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject %q: %w", sub, err)
	}
	return userID, nil
}
