package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/txn2/statesync/pkg/action"
)

// handleAction runs one server-side action for the caller's session.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	sc := s.sessions.Start(w, r)
	if !sc.Active() {
		writeFailure(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	// One generic message for every proof failure so a caller cannot
	// distinguish a missing nonce from an expired or forged one.
	if !sc.VerifyNonce(r.Header.Get(NonceHeader)) {
		writeFailure(w, http.StatusForbidden, "invalid request proof")
		return
	}

	var req action.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), sc.SessionID(), req)
	if err != nil {
		kind := action.KindOf(err)
		if kind == action.KindInternal {
			slog.Error("action dispatch failed",
				"state", req.State,
				"action", req.Action,
				"error", err,
			)
		}
		writeFailure(w, kind.HTTPStatus(), err.Error())
		return
	}

	writeSuccess(w, result.State, result.Value)
}
