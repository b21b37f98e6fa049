package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
)

// RedemptionService defines the methods the redemption handler requires.
type RedemptionService interface {
	Redemptions(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Redemption, error)
}

// RedemptionHandler serves redemption tracking endpoints and the
// treasury-assisted submission path for amounts above the self-service
// ceiling.
type RedemptionHandler struct {
	redemptions RedemptionService
	store       domain.RedemptionStore  // nil disables GetByID
	client      domain.RedemptionClient // nil disables treasury submission
	logger      *slog.Logger
}

// NewRedemptionHandler creates a RedemptionHandler. store and client may be
// nil; the corresponding endpoints then answer 404 / 503.
func NewRedemptionHandler(redemptions RedemptionService, store domain.RedemptionStore, client domain.RedemptionClient, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{
		redemptions: redemptions,
		store:       store,
		client:      client,
		logger:      logHandler(logger, "redemption"),
	}
}

// redemptionResponse renders one tracked redemption.
type redemptionResponse struct {
	ID              string `json:"id"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	Wallet          string `json:"wallet"`
	TxHash          string `json:"tx_hash,omitempty"`
	Amount          string `json:"amount"`
	Status          string `json:"status"`
	SubmittedAt     string `json:"submitted_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

func toRedemptionResponse(r domain.Redemption) redemptionResponse {
	resp := redemptionResponse{
		ID:              r.ID,
		ReferenceNumber: r.ReferenceNumber,
		Wallet:          r.Wallet,
		TxHash:          r.TxHash,
		Amount:          amountString(r.Amount),
		Status:          string(r.Status),
		SubmittedAt:     r.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		resp.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ListRedemptions lists a wallet's redemptions, newest first.
// GET /api/redemptions?wallet=0x...
func (h *RedemptionHandler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reds, err := h.redemptions.Redemptions(r.Context(), wallet, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list redemptions failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	resp := make([]redemptionResponse, 0, len(reds))
	for _, red := range reds {
		resp = append(resp, toRedemptionResponse(red))
	}
	writeJSON(w, http.StatusOK, map[string]any{"redemptions": resp})
}

// GetRedemption returns one tracked redemption by ID.
// GET /api/redemptions/{id}
func (h *RedemptionHandler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "redemption id required")
		return
	}
	if h.store == nil {
		writeError(w, http.StatusNotFound, "redemption tracking disabled")
		return
	}

	red, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionResponse(red))
}

type treasuryRequest struct {
	Amount      string `json:"amount"`
	BankAccount string `json:"bank_account"`
	Wallet      string `json:"wallet"`
}

// SubmitTreasury submits a treasury-assisted redemption for amounts above
// the self-service ceiling.
// POST /api/redemptions/treasury
func (h *RedemptionHandler) SubmitTreasury(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		writeError(w, http.StatusServiceUnavailable, "redemption service not configured")
		return
	}

	var req treasuryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a decimal integer in scaled units")
		return
	}

	receipt, err := h.client.SubmitTreasuryAssisted(r.Context(), amount, req.BankAccount, req.Wallet)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "treasury submission failed",
			slog.String("wallet", req.Wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":                    string(receipt.Status),
		"estimated_processing_secs": int64(receipt.EstimatedProcessingTime.Seconds()),
	})
}
