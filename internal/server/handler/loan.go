package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/aurumfi/goldvault/internal/domain"
	"github.com/aurumfi/goldvault/internal/loan"
)

// LoanService defines the methods the loan handler requires.
type LoanService interface {
	Preview(ctx context.Context, wallet string, loanAmount *big.Int) (loan.Calculation, error)
	MaxBorrow(ctx context.Context, wallet string) (*big.Int, error)
	History(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.LoanEvent, error)
}

// LoanHandler serves loan preview and history endpoints.
type LoanHandler struct {
	loans        LoanService
	loanDecimals int
	logger       *slog.Logger
}

// NewLoanHandler creates a LoanHandler with the given service and logger.
func NewLoanHandler(loans LoanService, loanDecimals int, logger *slog.Logger) *LoanHandler {
	return &LoanHandler{
		loans:        loans,
		loanDecimals: loanDecimals,
		logger:       logHandler(logger, "loan"),
	}
}

// previewResponse renders a calculation. Amounts are decimal strings of
// scaled units; Display fields are human-readable.
type previewResponse struct {
	LoanAmount         string `json:"loan_amount"`
	CollateralRequired string `json:"collateral_required"`
	CollateralValue    string `json:"collateral_value"`
	Fee                string `json:"fee"`
	AmountReceived     string `json:"amount_received"`
	Valid              bool   `json:"valid"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

// Preview computes the loan preview for a wallet and amount.
// GET /api/loan/preview?wallet=0x...&amount=1000000
func (h *LoanHandler) Preview(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A missing or zero amount is valid input; the calculator answers with
	// its guard-clause result rather than an error.
	amount := new(big.Int)
	if v := r.URL.Query().Get("amount"); v != "" {
		parsed, ok := new(big.Int).SetString(v, 10)
		if !ok || parsed.Sign() < 0 {
			writeError(w, http.StatusBadRequest, "amount must be a non-negative integer in scaled units")
			return
		}
		amount = parsed
	}

	calc, err := h.loans.Preview(r.Context(), wallet, amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "preview failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{
		LoanAmount:         amountString(calc.LoanAmount),
		CollateralRequired: amountString(calc.CollateralRequired),
		CollateralValue:    amountString(calc.CollateralValue),
		Fee:                amountString(calc.Fee),
		AmountReceived:     amountString(calc.AmountReceived),
		Valid:              calc.Valid,
		ErrorMessage:       calc.ErrorMessage,
	})
}

// MaxBorrow returns the largest loan the wallet's collateral supports.
// GET /api/loan/max?wallet=0x...
func (h *LoanHandler) MaxBorrow(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	maxLoan, err := h.loans.MaxBorrow(r.Context(), wallet)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "max borrow failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"max_loan":         amountString(maxLoan),
		"max_loan_display": domain.FormatUnits(maxLoan, h.loanDecimals),
	})
}

// loanEventResponse renders one audit row.
type loanEventResponse struct {
	FlowID    string         `json:"flow_id"`
	Kind      string         `json:"kind"`
	Step      string         `json:"step"`
	TxHash    string         `json:"tx_hash,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// History lists a wallet's flow transitions, newest first.
// GET /api/loan/history?wallet=0x...&limit=50&offset=0
func (h *LoanHandler) History(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.loans.History(r.Context(), wallet, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	resp := make([]loanEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, loanEventResponse{
			FlowID:    ev.FlowID,
			Kind:      ev.Kind,
			Step:      string(ev.Step),
			TxHash:    ev.TxHash,
			Detail:    ev.Detail,
			CreatedAt: ev.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": resp})
}
