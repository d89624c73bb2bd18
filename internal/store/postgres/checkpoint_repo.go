package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
)

type CheckpointRepo struct {
	db *DB
}

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

func (r *CheckpointRepo) Get(ctx context.Context, processor string) (*model.ProcessorStatus, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var (
		st   model.ProcessorStatus
		txTS sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT processor, last_success_version, last_transaction_timestamp, last_updated
		FROM processor_status
		WHERE processor = $1
	`, processor).Scan(&st.Processor, &st.LastSuccessVersion, &txTS, &st.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get processor status: %w", err)
	}
	if txTS.Valid {
		ts := txTS.Time.UTC()
		st.LastTransactionTimestamp = &ts
	}
	st.LastUpdated = st.LastUpdated.UTC()
	return &st, nil
}

func (r *CheckpointRepo) AdvanceTx(ctx context.Context, tx *sql.Tx, processor string, version int64, txTimestamp *time.Time) error {
	var ts sql.NullTime
	if txTimestamp != nil {
		ts = sql.NullTime{Time: txTimestamp.UTC(), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO processor_status (processor, last_success_version, last_transaction_timestamp)
		VALUES ($1, $2, $3)
		ON CONFLICT (processor) DO UPDATE SET
			last_success_version = GREATEST(processor_status.last_success_version, EXCLUDED.last_success_version),
			last_transaction_timestamp = CASE
				WHEN EXCLUDED.last_success_version >= processor_status.last_success_version
				THEN COALESCE(EXCLUDED.last_transaction_timestamp, processor_status.last_transaction_timestamp)
				ELSE processor_status.last_transaction_timestamp
			END,
			last_updated = now() AT TIME ZONE 'utc'
	`, processor, version, ts)
	if err != nil {
		return fmt.Errorf("advance processor status: %w", err)
	}
	return nil
}
