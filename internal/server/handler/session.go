package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
)

// defaultSessionTTL is how long a saved session survives without updates.
const defaultSessionTTL = 24 * time.Hour

// SessionHandler serves the per-wallet session endpoints the front end uses
// to persist KYC progress and loan-resume state across page reloads.
type SessionHandler struct {
	sessions domain.SessionStore
	ttl      time.Duration
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler. A non-positive ttl selects the
// default.
func NewSessionHandler(sessions domain.SessionStore, ttl time.Duration, logger *slog.Logger) *SessionHandler {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionHandler{
		sessions: sessions,
		ttl:      ttl,
		logger:   logHandler(logger, "session"),
	}
}

type sessionPayload struct {
	KYCStatus    string            `json:"kyc_status,omitempty"`
	ResumeFlowID string            `json:"resume_flow_id,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// GetSession returns the wallet's stored session.
// GET /api/session?wallet=0x...
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.Get(r.Context(), wallet)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// PutSession stores the wallet's session state, replacing any previous one
// and resetting its expiry.
// PUT /api/session?wallet=0x...
func (h *SessionHandler) PutSession(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var payload sessionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess := domain.Session{
		Wallet:       wallet,
		KYCStatus:    payload.KYCStatus,
		ResumeFlowID: payload.ResumeFlowID,
		Fields:       payload.Fields,
	}
	if err := h.sessions.Set(r.Context(), sess, h.ttl); err != nil {
		h.logger.ErrorContext(r.Context(), "save session failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// DeleteSession clears the wallet's session.
// DELETE /api/session?wallet=0x...
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.Clear(r.Context(), wallet); err != nil {
		h.logger.ErrorContext(r.Context(), "clear session failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
