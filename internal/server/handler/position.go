package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aurumfi/goldvault/internal/service"
)

// PositionService defines the methods the position handler requires.
type PositionService interface {
	Position(ctx context.Context, wallet string) (service.PositionView, error)
}

// PositionHandler serves the vault position endpoint.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "position"),
	}
}

// positionResponse renders a position with price-derived fields. Amounts are
// decimal strings of scaled units.
type positionResponse struct {
	Wallet          string `json:"wallet"`
	Collateral      string `json:"collateral"`
	Debt            string `json:"debt"`
	Open            bool   `json:"open"`
	Price           string `json:"price"`
	CollateralValue string `json:"collateral_value"`
	CurrentLtvBps   int64  `json:"current_ltv_bps"`
}

// GetPosition returns the wallet's vault position at the current oracle price.
// GET /api/position?wallet=0x...
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.positions.Position(r.Context(), wallet)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get position failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, positionResponse{
		Wallet:          view.Position.Wallet,
		Collateral:      amountString(view.Position.Collateral),
		Debt:            amountString(view.Position.Debt),
		Open:            view.Position.IsOpen(),
		Price:           amountString(view.Price),
		CollateralValue: amountString(view.CollateralValue),
		CurrentLtvBps:   view.CurrentLtvBps,
	})
}
