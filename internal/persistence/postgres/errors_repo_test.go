package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/persistence"
)

func newMockRepo(t *testing.T) (*errorsRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return &errorsRepo{db: sqlxDB, timeout: 5 * time.Second}, mock
}

func TestArchivePredictionError(t *testing.T) {
	repo, mock := newMockRepo(t)

	rec := domain.PredictionError{
		At:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		SignalRef: domain.SignalId("abc123"),
		CoinKey:   "AVICI",
		Predicted: 1.5,
		Actual:    3.0,
		Error:     1.5,
		ErrorPct:  1.0,
		Category:  domain.CategoryGreat,
	}

	mock.ExpectExec("INSERT INTO prediction_errors").
		WithArgs(rec.At, "abc123", "C1", "channel_overall", "AVICI",
			rec.EntryPrice, rec.AthPrice, rec.DaysToAth,
			rec.Predicted, rec.Actual, rec.Error, rec.ErrorPct, "great").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ArchivePredictionError(context.Background(), "C1", persistence.ScopeChannelOverall, rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchivePredictionErrorReplayIgnored(t *testing.T) {
	repo, mock := newMockRepo(t)

	// ON CONFLICT DO NOTHING: the replayed insert affects zero rows but
	// still succeeds.
	mock.ExpectExec("INSERT INTO prediction_errors").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ArchivePredictionError(context.Background(), "C1", persistence.ScopeChannelCoin, domain.PredictionError{
		SignalRef: domain.SignalId("abc123"),
		Category:  domain.CategoryLoss,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByChannel(t *testing.T) {
	repo, mock := newMockRepo(t)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"at", "signal_ref", "coin_key", "entry_price", "ath_price", "days_to_ath",
		"predicted_roi", "actual_roi", "error", "error_pct", "outcome_category",
	}).AddRow(at, "abc123", "AVICI", 1.47, 4.78, 1.0, 1.5, 3.252, 1.752, 1.168, "great")

	mock.ExpectQuery("SELECT (.+) FROM prediction_errors").
		WithArgs("C1", "channel_overall").
		WillReturnRows(rows)

	got, err := repo.ListByChannel(context.Background(), "C1", persistence.ScopeChannelOverall)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SignalId("abc123"), got[0].SignalRef)
	assert.Equal(t, domain.CategoryGreat, got[0].Category)
	assert.Equal(t, 3.252, got[0].Actual)
	require.NoError(t, mock.ExpectationsWereMet())
}
