package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
	"github.com/ahrav/go-conclave/internal/testutils"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "conclave.db"))
	require.NoError(t, err, "failed to open test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func persistedRecord(decisionID string, createdAt time.Time) domain.DecisionRecord {
	return domain.DecisionRecord{
		DecisionID: decisionID,
		Committee:  testutils.WorkedExampleCommittee(),
		Judgments: []domain.ExpertJudgment{
			testutils.Judgment("alice", "architect", "platform", "viability", 4),
			testutils.Judgment("bob", "reviewer", "storage", "viability", 4),
		},
		Result: domain.DecisionResult{
			DecisionID: decisionID,
			Aggregation: domain.AggregationResult{
				WeightedMean:           3.846154,
				EnhancedScore:          3.224338,
				CILower:                1.796234,
				CIUpper:                4.652442,
				CIWidth:                2.856208,
				InformationSufficiency: 0.285948,
				EffectiveN:             4,
				Composition:            domain.CompositionMixed,
			},
			Verdict:   domain.VerdictNeedMoreInfo,
			Timestamp: createdAt,
		},
		CreatedAt: createdAt,
	}
}

func TestOpen_CreatesNestedDataDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "nested", "conclave.db")

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conclave.db")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Ledger().SaveRecord(ctx, persistedRecord("adr-042", time.Now())))
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Ledger().GetRecord(ctx, "adr-042")
	require.NoError(t, err)
	assert.Equal(t, "adr-042", got.DecisionID)
}

func TestLedger_SaveAndGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	record := persistedRecord("adr-042", created)
	require.NoError(t, db.Ledger().SaveRecord(ctx, record))

	got, err := db.Ledger().GetRecord(ctx, "adr-042")
	require.NoError(t, err)
	assert.Equal(t, "adr-042", got.DecisionID)
	assert.Equal(t, domain.VerdictNeedMoreInfo, got.Result.Verdict)
	assert.InDelta(t, 3.224338, got.Result.Aggregation.EnhancedScore, 0.0001)
	assert.InDelta(t, 1.796234, got.Result.Aggregation.CILower, 0.0001)
	assert.Len(t, got.Judgments, 2)
	assert.Equal(t, domain.ExpertID("alice"), got.Judgments[0].ExpertID)
	assert.Len(t, got.Committee.Experts, 4)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.False(t, got.OutcomeRecorded())
	assert.Nil(t, got.FinalizedAt)
}

func TestLedger_SaveRequiresDecisionID(t *testing.T) {
	db := openTestDB(t)

	err := db.Ledger().SaveRecord(context.Background(), domain.DecisionRecord{})
	require.Error(t, err)

	var storeErr *ports.StoreError
	assert.ErrorAs(t, err, &storeErr)
}

func TestLedger_GetUnknown(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Ledger().GetRecord(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestLedger_CorruptPayloadSurfaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Ledger().SaveRecord(ctx, persistedRecord("adr-042", time.Now())))

	_, err := db.conn.ExecContext(ctx,
		`UPDATE decisions SET record_json = 'not json' WHERE decision_id = ?`, "adr-042")
	require.NoError(t, err)

	_, err = db.Ledger().GetRecord(ctx, "adr-042")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrCorruptRecord)

	var storeErr *ports.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.False(t, storeErr.IsRetryable(), "a corrupt row does not heal on retry")
}

func TestLedger_ResaveBeforeOutcomeReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	record := persistedRecord("adr-042", time.Now())
	require.NoError(t, db.Ledger().SaveRecord(ctx, record))

	record.Result.Verdict = domain.VerdictStrongApprove
	require.NoError(t, db.Ledger().SaveRecord(ctx, record))

	got, err := db.Ledger().GetRecord(ctx, "adr-042")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictStrongApprove, got.Result.Verdict)
}

func TestLedger_ImmutableAfterOutcome(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	record := persistedRecord("adr-042", time.Now())
	require.NoError(t, db.Ledger().SaveRecord(ctx, record))
	require.NoError(t, db.Ledger().RecordOutcome(ctx, "adr-042", domain.OutcomeSuccess, nil))

	err := db.Ledger().SaveRecord(ctx, record)
	assert.ErrorIs(t, err, domain.ErrOutcomeRecorded)
}

func TestLedger_ListMostRecentFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Ledger().SaveRecord(ctx, persistedRecord("first", base)))
	require.NoError(t, db.Ledger().SaveRecord(ctx, persistedRecord("third", base.Add(2*time.Hour))))
	require.NoError(t, db.Ledger().SaveRecord(ctx, persistedRecord("second", base.Add(time.Hour))))

	records, err := db.Ledger().ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "third", records[0].DecisionID)
	assert.Equal(t, "second", records[1].DecisionID)
	assert.Equal(t, "first", records[2].DecisionID)
}

func TestLedger_RecordOutcome(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Ledger().SaveRecord(ctx, persistedRecord("adr-042", time.Now())))

	correctness := map[domain.ExpertID]bool{"alice": true, "bob": false}
	require.NoError(t, db.Ledger().RecordOutcome(ctx, "adr-042", domain.OutcomeSuccess, correctness))

	got, err := db.Ledger().GetRecord(ctx, "adr-042")
	require.NoError(t, err)
	require.NotNil(t, got.ActualOutcome)
	assert.Equal(t, domain.OutcomeSuccess, *got.ActualOutcome)
	assert.Equal(t, correctness, got.Correctness)
	assert.NotNil(t, got.OutcomeAt)
}

func TestLedger_RecordOutcomeOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Ledger().SaveRecord(ctx, persistedRecord("adr-042", time.Now())))

	require.NoError(t, db.Ledger().RecordOutcome(ctx, "adr-042", domain.OutcomeSuccess, nil))
	err := db.Ledger().RecordOutcome(ctx, "adr-042", domain.OutcomeFailure, nil)
	assert.ErrorIs(t, err, domain.ErrOutcomeRecorded)

	err = db.Ledger().RecordOutcome(ctx, "ghost", domain.OutcomeSuccess, nil)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestLedger_Finalize(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Ledger().SaveRecord(ctx, persistedRecord("adr-042", time.Now())))

	require.NoError(t, db.Ledger().Finalize(ctx, "adr-042"))

	got, err := db.Ledger().GetRecord(ctx, "adr-042")
	require.NoError(t, err)
	assert.NotNil(t, got.FinalizedAt)

	err = db.Ledger().Finalize(ctx, "adr-042")
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)

	err = db.Ledger().Finalize(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestAccuracyStore_UnknownExpertGetsEmptyWindow(t *testing.T) {
	db := openTestDB(t)

	window, err := db.AccuracyStore(10).LastOutcomes(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, window.Size())
	assert.Zero(t, window.Recorded())
	assert.True(t, window.ColdStart(domain.DefaultColdStartMinimum))
}

func TestAccuracyStore_AppendAndWindow(t *testing.T) {
	db := openTestDB(t)
	store := db.AccuracyStore(3)
	ctx := context.Background()

	// Two misses then three hits; only the last three fit the window.
	for i, correct := range []bool{false, false, true, true, true} {
		require.NoError(t, store.AppendOutcome(ctx, "alice", correct), "append %d", i)
	}

	window, err := store.LastOutcomes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, window.Values())
	assert.Equal(t, 3, window.Size())
	assert.Equal(t, 5, window.Recorded(), "lifetime count includes rows outside the window")
	assert.False(t, window.ColdStart(domain.DefaultColdStartMinimum))
}

func TestAccuracyStore_PerExpertIsolation(t *testing.T) {
	db := openTestDB(t)
	store := db.AccuracyStore(10)
	ctx := context.Background()

	require.NoError(t, store.AppendOutcome(ctx, "alice", true))
	require.NoError(t, store.AppendOutcome(ctx, "bob", false))

	alice, err := store.LastOutcomes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, alice.Values())

	bob, err := store.LastOutcomes(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, bob.Values())
}

func TestAccuracyStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conclave.db")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.AccuracyStore(10).AppendOutcome(ctx, "alice", true))
	require.NoError(t, db.AccuracyStore(10).AppendOutcome(ctx, "alice", false))
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	window, err := reopened.AccuracyStore(10).LastOutcomes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, window.Values())
	assert.Equal(t, 2, window.Recorded())
}
