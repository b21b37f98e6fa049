package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aurumfi/goldvault/internal/domain"
	"github.com/aurumfi/goldvault/internal/service"
)

// FlowService defines the methods the flow handler requires.
type FlowService interface {
	Borrow(ctx context.Context, params service.BorrowParams) (domain.FlowState, error)
	Repay(ctx context.Context, params service.RepayParams) (domain.FlowState, error)
}

// FlowHandler serves the borrow and repay flow endpoints. Both run the flow
// to its terminal state before responding; clients follow progress over the
// WebSocket stream.
type FlowHandler struct {
	flows  FlowService
	logger *slog.Logger
}

// NewFlowHandler creates a FlowHandler with the given service and logger.
func NewFlowHandler(flows FlowService, logger *slog.Logger) *FlowHandler {
	return &FlowHandler{
		flows:  flows,
		logger: logHandler(logger, "flows"),
	}
}

type borrowRequest struct {
	LoanAmount  string `json:"loan_amount"`
	BankAccount string `json:"bank_account,omitempty"`
}

type repayRequest struct {
	Amount string `json:"amount"`
}

// flowStateResponse renders a terminal flow state.
type flowStateResponse struct {
	FlowID  string `json:"flow_id"`
	Kind    string `json:"kind"`
	Step    string `json:"step"`
	Message string `json:"message"`
	TxHash  string `json:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

func toFlowStateResponse(state domain.FlowState) flowStateResponse {
	return flowStateResponse{
		FlowID:  state.FlowID,
		Kind:    state.Kind,
		Step:    string(state.Step),
		Message: state.Message,
		TxHash:  state.TxHash,
		Error:   state.Error,
	}
}

// Borrow starts a borrow flow and blocks until it settles or fails.
// POST /api/flows/borrow
func (h *FlowHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount, err := amountField(req.LoanAmount, "loan_amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.flows.Borrow(r.Context(), service.BorrowParams{
		LoanAmount:  amount,
		BankAccount: req.BankAccount,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "borrow flow failed",
			slog.String("flow_id", state.FlowID),
			slog.String("error", err.Error()),
		)
		// A flow that reached its terminal error step still reports the
		// state; pre-flow validation failures map to status codes.
		if state.Step == domain.StepError {
			writeJSON(w, http.StatusUnprocessableEntity, toFlowStateResponse(state))
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFlowStateResponse(state))
}

// Repay starts a repay flow and blocks until it completes or fails.
// POST /api/flows/repay
func (h *FlowHandler) Repay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount, err := amountField(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.flows.Repay(r.Context(), service.RepayParams{Amount: amount})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "repay flow failed",
			slog.String("flow_id", state.FlowID),
			slog.String("error", err.Error()),
		)
		if state.Step == domain.StepError {
			writeJSON(w, http.StatusUnprocessableEntity, toFlowStateResponse(state))
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFlowStateResponse(state))
}
