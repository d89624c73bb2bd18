package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
)

type SupplyRepo struct {
	db *DB
}

func NewSupplyRepo(db *DB) *SupplyRepo {
	return &SupplyRepo{db: db}
}

// BulkUpsertTx appends supply rows keyed by (transaction_version, coin_type_hash).
// Re-recording a key overwrites its supply value.
func (r *SupplyRepo) BulkUpsertTx(ctx context.Context, tx *sql.Tx, rows []model.SupplySnapshot) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	const cols = 6
	var written int64
	for _, c := range chunks(len(rows), cols) {
		part := rows[c[0]:c[1]]
		args := make([]any, 0, len(part)*cols)
		for i := range part {
			s := &part[i]
			args = append(args,
				s.TransactionVersion, s.CoinTypeHash, s.CoinType, s.Supply, s.TransactionTimestamp.UTC(), s.TransactionEpoch,
			)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO coin_supply (transaction_version, coin_type_hash, coin_type, supply, transaction_timestamp, transaction_epoch)
			VALUES `+valuesClause(len(part), cols)+`
			ON CONFLICT (transaction_version, coin_type_hash) DO UPDATE SET
				supply = EXCLUDED.supply,
				transaction_timestamp = EXCLUDED.transaction_timestamp,
				transaction_epoch = EXCLUDED.transaction_epoch
		`, args...)
		if err != nil {
			return written, fmt.Errorf("bulk upsert coin supply: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return written, fmt.Errorf("bulk upsert coin supply rows affected: %w", err)
		}
		written += n
	}
	return written, nil
}

// Latest returns the newest supply row for coinType, or nil when none exists.
func (r *SupplyRepo) Latest(ctx context.Context, coinType string) (*model.SupplySnapshot, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var s model.SupplySnapshot
	err := r.db.QueryRowContext(ctx, `
		SELECT transaction_version, coin_type_hash, coin_type, supply, transaction_timestamp, transaction_epoch, inserted_at
		FROM coin_supply
		WHERE coin_type_hash = $1
		ORDER BY transaction_version DESC
		LIMIT 1
	`, model.HashCoinType(coinType)).Scan(
		&s.TransactionVersion, &s.CoinTypeHash, &s.CoinType, &s.Supply, &s.TransactionTimestamp, &s.TransactionEpoch, &s.InsertedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest coin supply: %w", err)
	}
	s.TransactionTimestamp = s.TransactionTimestamp.UTC()
	s.InsertedAt = s.InsertedAt.UTC()
	return &s, nil
}
