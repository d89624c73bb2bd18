package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/lib/pq"
)

type BalanceRepo struct {
	db *DB
}

func NewBalanceRepo(db *DB) *BalanceRepo {
	return &BalanceRepo{db: db}
}

const balanceColumns = `storage_id, owner_address, asset_type, is_primary, is_frozen, is_deleted, amount,
	last_transaction_version, last_event_index, last_transaction_timestamp, token_standard, inserted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(s rowScanner) (*model.CurrentBalance, error) {
	var b model.CurrentBalance
	if err := s.Scan(
		&b.StorageID, &b.OwnerAddress, &b.AssetType, &b.IsPrimary, &b.IsFrozen, &b.IsDeleted, &b.Amount,
		&b.LastTransactionVersion, &b.LastEventIndex, &b.LastTransactionTimestamp, &b.TokenStandard, &b.InsertedAt,
	); err != nil {
		return nil, err
	}
	b.LastTransactionTimestamp = b.LastTransactionTimestamp.UTC()
	b.InsertedAt = b.InsertedAt.UTC()
	return &b, nil
}

// BulkGet loads the snapshots of storageIDs. Missing ids are absent from the map.
func (r *BalanceRepo) BulkGet(ctx context.Context, storageIDs []string) (map[string]*model.CurrentBalance, error) {
	result := make(map[string]*model.CurrentBalance, len(storageIDs))
	if len(storageIDs) == 0 {
		return result, nil
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+balanceColumns+`
		FROM current_balances
		WHERE storage_id = ANY($1)
	`, pq.Array(storageIDs))
	if err != nil {
		return nil, fmt.Errorf("bulk get balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("bulk get balances scan: %w", err)
		}
		result[b.StorageID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bulk get balances rows: %w", err)
	}
	return result, nil
}

// BulkUpsertTx writes rows in multi-VALUES statements. A stored row is only
// replaced by one at a strictly later (version, event_index).
func (r *BalanceRepo) BulkUpsertTx(ctx context.Context, tx *sql.Tx, rows []*model.CurrentBalance) (int64, error) {
	rows = newestBalancePerKey(rows)
	if len(rows) == 0 {
		return 0, nil
	}

	const cols = 11
	var written int64
	for _, c := range chunks(len(rows), cols) {
		part := rows[c[0]:c[1]]
		args := make([]any, 0, len(part)*cols)
		for _, b := range part {
			args = append(args,
				b.StorageID, b.OwnerAddress, b.AssetType, b.IsPrimary, b.IsFrozen, b.IsDeleted, b.Amount,
				b.LastTransactionVersion, b.LastEventIndex, b.LastTransactionTimestamp.UTC(), b.TokenStandard,
			)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO current_balances (storage_id, owner_address, asset_type, is_primary, is_frozen, is_deleted, amount,
				last_transaction_version, last_event_index, last_transaction_timestamp, token_standard)
			VALUES `+valuesClause(len(part), cols)+`
			ON CONFLICT (storage_id) DO UPDATE SET
				owner_address = EXCLUDED.owner_address,
				asset_type = EXCLUDED.asset_type,
				is_primary = EXCLUDED.is_primary,
				is_frozen = EXCLUDED.is_frozen,
				is_deleted = EXCLUDED.is_deleted,
				amount = EXCLUDED.amount,
				last_transaction_version = EXCLUDED.last_transaction_version,
				last_event_index = EXCLUDED.last_event_index,
				last_transaction_timestamp = EXCLUDED.last_transaction_timestamp,
				token_standard = EXCLUDED.token_standard,
				inserted_at = now() AT TIME ZONE 'utc'
			WHERE (current_balances.last_transaction_version, current_balances.last_event_index)
				< (EXCLUDED.last_transaction_version, EXCLUDED.last_event_index)
		`, args...)
		if err != nil {
			return written, fmt.Errorf("bulk upsert balances: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return written, fmt.Errorf("bulk upsert balances rows affected: %w", err)
		}
		written += n
	}
	return written, nil
}

// GetByOwner lists the live (non-deleted) balances of owner.
func (r *BalanceRepo) GetByOwner(ctx context.Context, owner string) ([]model.CurrentBalance, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+balanceColumns+`
		FROM current_balances
		WHERE owner_address = $1 AND NOT is_deleted
		ORDER BY asset_type, storage_id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("get balances by owner: %w", err)
	}
	defer rows.Close()

	var out []model.CurrentBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("get balances by owner scan: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get balances by owner rows: %w", err)
	}
	return out, nil
}

// BulkInsertHistoryTx appends balance history rows. A redelivered batch
// finds its rows already present and writes nothing.
func (r *BalanceRepo) BulkInsertHistoryTx(ctx context.Context, tx *sql.Tx, rows []model.BalanceChange) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	const cols = 11
	var written int64
	for _, c := range chunks(len(rows), cols) {
		part := rows[c[0]:c[1]]
		args := make([]any, 0, len(part)*cols)
		for i := range part {
			h := &part[i]
			args = append(args,
				h.TransactionVersion, h.EventIndex, h.StorageID, h.OwnerAddress, h.AssetType, h.IsPrimary,
				h.IsFrozen, h.IsDeleted, h.Amount, h.TransactionTimestamp.UTC(), h.TokenStandard,
			)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO fungible_asset_balances (transaction_version, event_index, storage_id, owner_address,
				asset_type, is_primary, is_frozen, is_deleted, amount, transaction_timestamp, token_standard)
			VALUES `+valuesClause(len(part), cols)+`
			ON CONFLICT (transaction_version, event_index) DO NOTHING
		`, args...)
		if err != nil {
			return written, fmt.Errorf("bulk insert balance history: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return written, fmt.Errorf("bulk insert balance history rows affected: %w", err)
		}
		written += n
	}
	return written, nil
}

// newestBalancePerKey drops all but the newest row per storage id; postgres
// rejects a statement that updates the same row twice.
func newestBalancePerKey(rows []*model.CurrentBalance) []*model.CurrentBalance {
	idx := make(map[string]int, len(rows))
	out := make([]*model.CurrentBalance, 0, len(rows))
	for _, b := range rows {
		if b == nil {
			continue
		}
		if i, ok := idx[b.StorageID]; ok {
			if b.Position().After(out[i].Position()) {
				out[i] = b
			}
			continue
		}
		idx[b.StorageID] = len(out)
		out = append(out, b)
	}
	return out
}
