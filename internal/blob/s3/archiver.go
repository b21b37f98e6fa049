package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
)

// Archiver exports loan events and completed redemptions past a retention
// window to S3 as JSONL, then prunes them from the primary store. Pruning
// only happens after the uploaded object is verified to exist, so a failed
// upload never loses audit data.
type Archiver struct {
	writer      domain.BlobWriter
	reader      domain.BlobReader
	events      domain.LoanEventStore
	redemptions domain.RedemptionStore
	batchSize   int
	logger      *slog.Logger
}

// NewArchiver creates an Archiver. reader may be nil, in which case the
// existence check is skipped and pruning trusts the upload result.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	events domain.LoanEventStore,
	redemptions domain.RedemptionStore,
	batchSize int,
	logger *slog.Logger,
) *Archiver {
	if batchSize <= 0 {
		batchSize = 10_000
	}
	return &Archiver{
		writer:      writer,
		reader:      reader,
		events:      events,
		redemptions: redemptions,
		batchSize:   batchSize,
		logger:      logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveLoanEvents exports loan events created before the cutoff and prunes
// them. Returns the number archived.
func (a *Archiver) ArchiveLoanEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, cutoff, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive loan events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	type eventRecord struct {
		ID        int64          `json:"id"`
		FlowID    string         `json:"flow_id"`
		Wallet    string         `json:"wallet"`
		Kind      string         `json:"kind"`
		Step      string         `json:"step"`
		TxHash    string         `json:"tx_hash,omitempty"`
		Detail    map[string]any `json:"detail,omitempty"`
		CreatedAt time.Time      `json:"created_at"`
	}
	records := make([]eventRecord, 0, len(events))
	for _, ev := range events {
		records = append(records, eventRecord{
			ID:        ev.ID,
			FlowID:    ev.FlowID,
			Wallet:    ev.Wallet,
			Kind:      ev.Kind,
			Step:      string(ev.Step),
			TxHash:    ev.TxHash,
			Detail:    ev.Detail,
			CreatedAt: ev.CreatedAt,
		})
	}

	key := archiveKey("loan_events", cutoff)
	if err := upload(a, ctx, key, records); err != nil {
		return 0, err
	}

	// Prune only up to the newest archived event, not the cutoff; the batch
	// may have been truncated by batchSize.
	pruneBefore := events[len(events)-1].CreatedAt.Add(time.Nanosecond)
	deleted, err := a.events.DeleteBefore(ctx, pruneBefore)
	if err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: prune loan events: %w", err)
	}

	a.logger.InfoContext(ctx, "loan events archived",
		slog.String("key", key),
		slog.Int("archived", len(events)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(events)), nil
}

// ArchiveRedemptions exports terminal redemptions completed before the
// cutoff and prunes them. Returns the number archived.
func (a *Archiver) ArchiveRedemptions(ctx context.Context, cutoff time.Time) (int64, error) {
	reds, err := a.redemptions.ListCompletedBefore(ctx, cutoff, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive redemptions query: %w", err)
	}
	if len(reds) == 0 {
		return 0, nil
	}

	type redemptionRecord struct {
		ID              string     `json:"id"`
		ReferenceNumber string     `json:"reference_number,omitempty"`
		Wallet          string     `json:"wallet"`
		TxHash          string     `json:"tx_hash,omitempty"`
		Amount          string     `json:"amount"`
		BankAccount     string     `json:"bank_account"`
		Status          string     `json:"status"`
		SubmittedAt     time.Time  `json:"submitted_at"`
		CompletedAt     *time.Time `json:"completed_at,omitempty"`
	}
	records := make([]redemptionRecord, 0, len(reds))
	for _, red := range reds {
		amount := "0"
		if red.Amount != nil {
			amount = red.Amount.String()
		}
		records = append(records, redemptionRecord{
			ID:              red.ID,
			ReferenceNumber: red.ReferenceNumber,
			Wallet:          red.Wallet,
			TxHash:          red.TxHash,
			Amount:          amount,
			BankAccount:     red.BankAccount,
			Status:          string(red.Status),
			SubmittedAt:     red.SubmittedAt,
			CompletedAt:     red.CompletedAt,
		})
	}

	key := archiveKey("redemptions", cutoff)
	if err := upload(a, ctx, key, records); err != nil {
		return 0, err
	}

	last := reds[len(reds)-1]
	pruneBefore := cutoff
	if last.CompletedAt != nil {
		pruneBefore = last.CompletedAt.Add(time.Nanosecond)
	}
	deleted, err := a.redemptions.DeleteCompletedBefore(ctx, pruneBefore)
	if err != nil {
		return int64(len(reds)), fmt.Errorf("s3blob: prune redemptions: %w", err)
	}

	a.logger.InfoContext(ctx, "redemptions archived",
		slog.String("key", key),
		slog.Int("archived", len(reds)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(reds)), nil
}

// upload serializes records to JSONL, writes the object, and verifies it
// landed before the caller prunes anything.
func upload[T any](a *Archiver, ctx context.Context, key string, records []T) error {
	data, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: marshal archive %s: %w", key, err)
	}
	if err := a.writer.Write(ctx, key, data); err != nil {
		return fmt.Errorf("s3blob: upload archive %s: %w", key, err)
	}

	if a.reader != nil {
		ok, err := a.reader.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("s3blob: verify archive %s: %w", key, err)
		}
		if !ok {
			return fmt.Errorf("s3blob: archive %s not found after upload", key)
		}
	}
	return nil
}

// archiveKey builds the S3 key for an archive object, partitioned by the
// year-month of the cutoff.
//
//	archive/loan_events/2026-08.jsonl
//	archive/redemptions/2026-08.jsonl
func archiveKey(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, cutoff.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
