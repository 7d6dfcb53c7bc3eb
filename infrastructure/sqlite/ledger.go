package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// DecisionLedger persists decision records in the decisions table.
// The full record lives in a JSON column; the verdict, outcome, and
// timestamp columns are denormalized copies for listing and for the
// write-once guard, so every update rewrites both.
type DecisionLedger struct {
	conn *sql.DB
}

var _ ports.DecisionLedger = (*DecisionLedger)(nil)

// SaveRecord stores a freshly closed decision record. Re-saving is
// allowed until the outcome is recorded, after which the record is
// immutable.
func (l *DecisionLedger) SaveRecord(ctx context.Context, record domain.DecisionRecord) error {
	if record.DecisionID == "" {
		return ports.NewStoreError("sqlite", "save", "", errors.New("decision id required"))
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return ports.NewStoreError("sqlite", "save", record.DecisionID, err)
	}

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return ports.NewStoreError("sqlite", "save", record.DecisionID, err)
	}
	defer tx.Rollback()

	var outcome sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT actual_outcome FROM decisions WHERE decision_id = ?`, record.DecisionID,
	).Scan(&outcome)
	switch {
	case err == nil && outcome.Valid:
		return fmt.Errorf("decision %q: %w", record.DecisionID, domain.ErrOutcomeRecorded)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return ports.NewStoreError("sqlite", "save", record.DecisionID, err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO decisions (decision_id, verdict, provisional, record_json, actual_outcome, created_at, outcome_at, finalized_at)
VALUES (?, ?, ?, ?, NULL, ?, NULL, NULL)
ON CONFLICT(decision_id) DO UPDATE SET
    verdict = excluded.verdict,
    provisional = excluded.provisional,
    record_json = excluded.record_json,
    created_at = excluded.created_at`,
		record.DecisionID,
		string(record.Result.Verdict),
		record.Result.Provisional,
		string(payload),
		formatTime(record.CreatedAt),
	)
	if err != nil {
		return ports.NewStoreError("sqlite", "save", record.DecisionID, err)
	}

	if err := tx.Commit(); err != nil {
		return ports.NewStoreError("sqlite", "save", record.DecisionID, err)
	}
	return nil
}

// GetRecord returns the record for the given decision, or an error
// wrapping domain.ErrRecordNotFound.
func (l *DecisionLedger) GetRecord(ctx context.Context, decisionID string) (domain.DecisionRecord, error) {
	var payload string
	err := l.conn.QueryRowContext(ctx,
		`SELECT record_json FROM decisions WHERE decision_id = ?`, decisionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DecisionRecord{}, fmt.Errorf("decision %q: %w", decisionID, domain.ErrRecordNotFound)
	}
	if err != nil {
		return domain.DecisionRecord{}, ports.NewStoreError("sqlite", "get", decisionID, err)
	}
	return decodeRecord(decisionID, payload)
}

// ListRecords returns all stored records, most recent first.
func (l *DecisionLedger) ListRecords(ctx context.Context) ([]domain.DecisionRecord, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT decision_id, record_json FROM decisions ORDER BY created_at DESC, decision_id`)
	if err != nil {
		return nil, ports.NewStoreError("sqlite", "list", "", err)
	}
	defer rows.Close()

	var records []domain.DecisionRecord
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, ports.NewStoreError("sqlite", "list", "", err)
		}
		record, err := decodeRecord(id, payload)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("sqlite", "list", "", err)
	}
	return records, nil
}

// RecordOutcome stores the observed outcome and per-expert
// correctness flags. A second call for the same decision fails
// wrapping domain.ErrOutcomeRecorded.
func (l *DecisionLedger) RecordOutcome(ctx context.Context, decisionID string, outcome domain.Outcome, correctness map[domain.ExpertID]bool) error {
	return l.updateRecord(ctx, "outcome", decisionID, func(record *domain.DecisionRecord) error {
		if record.OutcomeRecorded() {
			return fmt.Errorf("decision %q: %w", decisionID, domain.ErrOutcomeRecorded)
		}
		now := time.Now().UTC()
		record.ActualOutcome = &outcome
		record.OutcomeAt = &now
		record.Correctness = make(map[domain.ExpertID]bool, len(correctness))
		for id, correct := range correctness {
			record.Correctness[id] = correct
		}
		return nil
	})
}

// Finalize stamps the record as finalized. A second call fails
// wrapping domain.ErrAlreadyFinalized.
func (l *DecisionLedger) Finalize(ctx context.Context, decisionID string) error {
	return l.updateRecord(ctx, "finalize", decisionID, func(record *domain.DecisionRecord) error {
		if record.FinalizedAt != nil {
			return fmt.Errorf("decision %q: %w", decisionID, domain.ErrAlreadyFinalized)
		}
		now := time.Now().UTC()
		record.FinalizedAt = &now
		return nil
	})
}

// updateRecord runs a read-modify-write cycle on one record inside a
// transaction, keeping the denormalized columns in step with the
// JSON payload.
func (l *DecisionLedger) updateRecord(ctx context.Context, op, decisionID string, mutate func(*domain.DecisionRecord) error) error {
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return ports.NewStoreError("sqlite", op, decisionID, err)
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRowContext(ctx,
		`SELECT record_json FROM decisions WHERE decision_id = ?`, decisionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("decision %q: %w", decisionID, domain.ErrRecordNotFound)
	}
	if err != nil {
		return ports.NewStoreError("sqlite", op, decisionID, err)
	}

	record, err := decodeRecord(decisionID, payload)
	if err != nil {
		return err
	}
	if err := mutate(&record); err != nil {
		return err
	}

	updated, err := json.Marshal(record)
	if err != nil {
		return ports.NewStoreError("sqlite", op, decisionID, err)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE decisions
SET record_json = ?, actual_outcome = ?, outcome_at = ?, finalized_at = ?
WHERE decision_id = ?`,
		string(updated),
		nullableOutcome(record.ActualOutcome),
		nullableTime(record.OutcomeAt),
		nullableTime(record.FinalizedAt),
		decisionID,
	)
	if err != nil {
		return ports.NewStoreError("sqlite", op, decisionID, err)
	}

	if err := tx.Commit(); err != nil {
		return ports.NewStoreError("sqlite", op, decisionID, err)
	}
	return nil
}

func decodeRecord(decisionID, payload string) (domain.DecisionRecord, error) {
	var record domain.DecisionRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return domain.DecisionRecord{}, ports.NewStoreError("sqlite", "decode", decisionID,
			fmt.Errorf("%w: %v", ports.ErrCorruptRecord, err))
	}
	return record, nil
}

// timeLayout zero-pads fractional seconds so the TEXT columns sort
// lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableOutcome(o *domain.Outcome) any {
	if o == nil {
		return nil
	}
	return string(*o)
}
