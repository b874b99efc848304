// Package postgres archives the prediction-error ledger to PostgreSQL. The
// ledger is append-only and unbounded; every row also stays in the JSON
// reputation store, and the archive makes the full history queryable.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/persistence"
)

// errorsRepo implements persistence.Archiver for PostgreSQL.
type errorsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewErrorsRepo creates a PostgreSQL prediction-error archive.
func NewErrorsRepo(db *sqlx.DB, timeout time.Duration) persistence.Archiver {
	return &errorsRepo{
		db:      db,
		timeout: timeout,
	}
}

// ArchivePredictionError inserts one ledger row. The (signal_ref, scope)
// pair is unique: a terminal signal produces at most one error per
// estimate, so a conflicting insert is a replay and is ignored.
func (r *errorsRepo) ArchivePredictionError(ctx context.Context, channelID string, scope persistence.ErrorScope, rec domain.PredictionError) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO prediction_errors
		(at, signal_ref, channel_id, scope, coin_key, entry_price, ath_price,
		 days_to_ath, predicted_roi, actual_roi, error, error_pct, outcome_category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (signal_ref, scope) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		rec.At, string(rec.SignalRef), channelID, string(scope), rec.CoinKey,
		rec.EntryPrice, rec.AthPrice, rec.DaysToAth,
		rec.Predicted, rec.Actual, rec.Error, rec.ErrorPct, string(rec.Category))
	if err != nil {
		return fmt.Errorf("failed to archive prediction error: %w", err)
	}
	return nil
}

// ListByChannel returns the archived ledger for one channel and scope,
// oldest first.
func (r *errorsRepo) ListByChannel(ctx context.Context, channelID string, scope persistence.ErrorScope) ([]domain.PredictionError, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT at, signal_ref, coin_key, entry_price, ath_price, days_to_ath,
		       predicted_roi, actual_roi, error, error_pct, outcome_category
		FROM prediction_errors
		WHERE channel_id = $1 AND scope = $2
		ORDER BY at ASC`

	rows, err := r.db.QueryxContext(ctx, query, channelID, string(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to list prediction errors: %w", err)
	}
	defer rows.Close()

	var out []domain.PredictionError
	for rows.Next() {
		var rec domain.PredictionError
		var signalRef, category string
		if err := rows.Scan(&rec.At, &signalRef, &rec.CoinKey, &rec.EntryPrice,
			&rec.AthPrice, &rec.DaysToAth, &rec.Predicted, &rec.Actual,
			&rec.Error, &rec.ErrorPct, &category); err != nil {
			return nil, fmt.Errorf("failed to scan prediction error: %w", err)
		}
		rec.SignalRef = domain.SignalId(signalRef)
		rec.Category = domain.OutcomeCategory(category)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prediction error rows: %w", err)
	}
	return out, nil
}
