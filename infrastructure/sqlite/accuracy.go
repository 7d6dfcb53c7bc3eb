package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// AccuracyStore keeps every expert's correctness history in the
// expert_outcomes table. Rows are append-only; the window semantics
// come from reading back only the most recent capacity rows while
// counting the full history for cold-start detection.
type AccuracyStore struct {
	conn     *sql.DB
	capacity int
}

var _ ports.AccuracyStore = (*AccuracyStore)(nil)

// LastOutcomes returns a snapshot of the expert's accuracy window.
// Experts with no recorded history get an empty window, not an
// error.
func (s *AccuracyStore) LastOutcomes(ctx context.Context, expertID domain.ExpertID) (*domain.AccuracyWindow, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT correct FROM expert_outcomes
WHERE expert_id = ?
ORDER BY recorded_at DESC, id DESC
LIMIT ?`,
		string(expertID), s.capacity,
	)
	if err != nil {
		return nil, ports.NewStoreError("sqlite", "last_outcomes", string(expertID), err)
	}
	defer rows.Close()

	// Newest first off the wire; the window wants oldest first.
	var newestFirst []bool
	for rows.Next() {
		var correct bool
		if err := rows.Scan(&correct); err != nil {
			return nil, ports.NewStoreError("sqlite", "last_outcomes", string(expertID), err)
		}
		newestFirst = append(newestFirst, correct)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("sqlite", "last_outcomes", string(expertID), err)
	}

	values := make([]bool, len(newestFirst))
	for i, v := range newestFirst {
		values[len(newestFirst)-1-i] = v
	}

	var recorded int
	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expert_outcomes WHERE expert_id = ?`, string(expertID),
	).Scan(&recorded)
	if err != nil {
		return nil, ports.NewStoreError("sqlite", "last_outcomes", string(expertID), err)
	}

	return domain.RestoreAccuracyWindow(s.capacity, values, recorded), nil
}

// AppendOutcome records one correctness outcome for the expert.
func (s *AccuracyStore) AppendOutcome(ctx context.Context, expertID domain.ExpertID, correct bool) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO expert_outcomes (expert_id, correct, recorded_at) VALUES (?, ?, ?)`,
		string(expertID), correct, formatTime(time.Now()),
	)
	if err != nil {
		return ports.NewStoreError("sqlite", "append_outcome", string(expertID), err)
	}
	return nil
}
