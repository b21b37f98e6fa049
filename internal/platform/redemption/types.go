package redemption

import (
	"math/big"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
)

// API payloads for the redemption service. Amounts travel as decimal strings
// of scaled units to preserve precision across the JSON boundary.

type apiSelfServiceRequest struct {
	TxHash        string `json:"txHash"`
	Amount        string `json:"amount"`
	BankAccount   string `json:"bankAccount"`
	WalletAddress string `json:"walletAddress"`
}

type apiSelfServiceResponse struct {
	ID              string `json:"id"`
	ReferenceNumber string `json:"referenceNumber"`
	Status          string `json:"status"`
}

type apiTreasuryRequest struct {
	Amount        string `json:"amount"`
	BankAccount   string `json:"bankAccount"`
	WalletAddress string `json:"walletAddress"`
}

type apiTreasuryResponse struct {
	Status                  string `json:"status"`
	EstimatedProcessingSecs int64  `json:"estimatedProcessingSecs"`
}

type apiStatusResponse struct {
	ID              string     `json:"id"`
	ReferenceNumber string     `json:"referenceNumber"`
	Status          string     `json:"status"`
	Amount          string     `json:"amount"`
	SubmittedAt     time.Time  `json:"submittedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func (r apiStatusResponse) toDomain() domain.Redemption {
	amount := new(big.Int)
	if r.Amount != "" {
		amount.SetString(r.Amount, 10)
	}
	return domain.Redemption{
		ID:              r.ID,
		ReferenceNumber: r.ReferenceNumber,
		Status:          domain.RedemptionStatus(r.Status),
		Amount:          amount,
		SubmittedAt:     r.SubmittedAt,
		CompletedAt:     r.CompletedAt,
	}
}
