package watcher

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aurumfi/goldvault/internal/domain"
)

type stubRedemptionStore struct {
	pending   []domain.Redemption
	updated   map[string]domain.RedemptionStatus
	listErr   error
	updateErr error
}

func (s *stubRedemptionStore) Create(context.Context, domain.Redemption) error { return nil }

func (s *stubRedemptionStore) UpdateStatus(_ context.Context, id string, status domain.RedemptionStatus, _ *time.Time) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.updated == nil {
		s.updated = make(map[string]domain.RedemptionStatus)
	}
	s.updated[id] = status
	return nil
}

func (s *stubRedemptionStore) GetByID(context.Context, string) (domain.Redemption, error) {
	return domain.Redemption{}, domain.ErrNotFound
}

func (s *stubRedemptionStore) ListPending(context.Context, int) ([]domain.Redemption, error) {
	return s.pending, s.listErr
}

func (s *stubRedemptionStore) ListByWallet(context.Context, string, domain.ListOpts) ([]domain.Redemption, error) {
	return nil, nil
}

func (s *stubRedemptionStore) ListCompletedBefore(context.Context, time.Time, int) ([]domain.Redemption, error) {
	return nil, nil
}

func (s *stubRedemptionStore) DeleteCompletedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type stubRedemptionClient struct {
	statuses map[string]domain.Redemption
	errs     map[string]error
}

func (c *stubRedemptionClient) SubmitSelfService(context.Context, string, *big.Int, string, string) (domain.Redemption, error) {
	return domain.Redemption{}, nil
}

func (c *stubRedemptionClient) SubmitTreasuryAssisted(context.Context, *big.Int, string, string) (domain.TreasuryReceipt, error) {
	return domain.TreasuryReceipt{}, nil
}

func (c *stubRedemptionClient) CheckStatus(_ context.Context, id string) (domain.Redemption, error) {
	if err, ok := c.errs[id]; ok {
		return domain.Redemption{}, err
	}
	return c.statuses[id], nil
}

type stubNotifier struct {
	notified []domain.Redemption
}

func (n *stubNotifier) SettlementChanged(_ context.Context, red domain.Redemption) {
	n.notified = append(n.notified, red)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestSettlementSweepNotifiesOnTerminal(t *testing.T) {
	now := time.Now().UTC()
	store := &stubRedemptionStore{
		pending: []domain.Redemption{
			{ID: "red-1", Wallet: "0xabc", Status: domain.RedemptionPending},
			{ID: "red-2", Wallet: "0xdef", Status: domain.RedemptionProcessing},
		},
	}
	client := &stubRedemptionClient{
		statuses: map[string]domain.Redemption{
			"red-1": {ID: "red-1", Status: domain.RedemptionProcessing},
			"red-2": {ID: "red-2", Status: domain.RedemptionCompleted, CompletedAt: &now},
		},
	}
	notifier := &stubNotifier{}

	w := NewSettlementWatcher(store, client, notifier, time.Minute, 10, testLogger())
	err := w.sweep(context.Background())
	require.NoError(t, err)

	require.Len(t, notifier.notified, 1)
	require.Equal(t, "red-2", notifier.notified[0].ID)
	require.Equal(t, "0xdef", notifier.notified[0].Wallet)
	require.Equal(t, domain.RedemptionCompleted, notifier.notified[0].Status)
}

func TestSettlementSweepMarksLostRedemptionFailed(t *testing.T) {
	store := &stubRedemptionStore{
		pending: []domain.Redemption{
			{ID: "red-gone", Wallet: "0xabc", Status: domain.RedemptionPending},
		},
	}
	client := &stubRedemptionClient{
		errs: map[string]error{"red-gone": domain.ErrNotFound},
	}

	w := NewSettlementWatcher(store, client, nil, time.Minute, 10, testLogger())
	err := w.sweep(context.Background())
	require.NoError(t, err)

	require.Equal(t, domain.RedemptionFailed, store.updated["red-gone"])
}

func TestSettlementSweepSkipsUnchanged(t *testing.T) {
	store := &stubRedemptionStore{
		pending: []domain.Redemption{
			{ID: "red-1", Wallet: "0xabc", Status: domain.RedemptionPending},
		},
	}
	client := &stubRedemptionClient{
		statuses: map[string]domain.Redemption{
			"red-1": {ID: "red-1", Status: domain.RedemptionPending},
		},
	}
	notifier := &stubNotifier{}

	w := NewSettlementWatcher(store, client, notifier, time.Minute, 10, testLogger())
	err := w.sweep(context.Background())
	require.NoError(t, err)
	require.Empty(t, notifier.notified)
}

func TestNextCronTimeDaily(t *testing.T) {
	after := time.Date(2026, 8, 30, 10, 15, 30, 0, time.UTC)
	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTimeMonthly(t *testing.T) {
	after := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	next, err := nextCronTime("30 2 1 * *", after)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 9, 1, 2, 30, 0, 0, time.UTC), next)
}

func TestParseCronRejectsBadExpressions(t *testing.T) {
	_, err := parseCron("0 3 * *")
	require.Error(t, err)

	_, err = parseCron("x 3 * * *")
	require.Error(t, err)
}
