package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
)

type ActivityRepo struct {
	db *DB
}

func NewActivityRepo(db *DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// BulkInsertFungibleAssetTx appends activity rows. Rows already present at the
// same (transaction_version, event_index) are left untouched.
func (r *ActivityRepo) BulkInsertFungibleAssetTx(ctx context.Context, tx *sql.Tx, rows []model.FungibleAssetActivity) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	const cols = 16
	var written int64
	for _, c := range chunks(len(rows), cols) {
		part := rows[c[0]:c[1]]
		args := make([]any, 0, len(part)*cols)
		for i := range part {
			a := &part[i]
			args = append(args,
				a.TransactionVersion, a.EventIndex, a.OwnerAddress, a.StorageID, a.AssetType, a.IsFrozen, a.Amount,
				a.Type, a.IsGasFee, a.GasFeePayerAddress, a.IsTransactionSuccess, a.EntryFunctionID,
				a.BlockHeight, a.TokenStandard, a.TransactionTimestamp.UTC(), a.StorageRefundAmount,
			)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO fungible_asset_activities (transaction_version, event_index, owner_address, storage_id,
				asset_type, is_frozen, amount, type, is_gas_fee, gas_fee_payer_address, is_transaction_success,
				entry_function_id_str, block_height, token_standard, transaction_timestamp, storage_refund_amount)
			VALUES `+valuesClause(len(part), cols)+`
			ON CONFLICT (transaction_version, event_index) DO NOTHING
		`, args...)
		if err != nil {
			return written, fmt.Errorf("bulk insert fungible asset activities: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return written, fmt.Errorf("bulk insert fungible asset activities rows affected: %w", err)
		}
		written += n
	}
	return written, nil
}

func (r *ActivityRepo) BulkInsertTokenTx(ctx context.Context, tx *sql.Tx, rows []model.TokenActivity) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	const cols = 15
	var written int64
	for _, c := range chunks(len(rows), cols) {
		part := rows[c[0]:c[1]]
		args := make([]any, 0, len(part)*cols)
		for i := range part {
			a := &part[i]
			args = append(args,
				a.TransactionVersion, a.EventIndex, a.EventAccountAddress, a.TokenDataID, a.PropertyVersionV1,
				a.Type, a.FromAddress, a.ToAddress, a.TokenAmount, a.BeforeValue, a.AfterValue,
				a.EntryFunctionID, a.TokenStandard, a.IsFungibleV2, a.TransactionTimestamp.UTC(),
			)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO token_activities (transaction_version, event_index, event_account_address, token_data_id,
				property_version_v1, type, from_address, to_address, token_amount, before_value, after_value,
				entry_function_id_str, token_standard, is_fungible_v2, transaction_timestamp)
			VALUES `+valuesClause(len(part), cols)+`
			ON CONFLICT (transaction_version, event_index) DO NOTHING
		`, args...)
		if err != nil {
			return written, fmt.Errorf("bulk insert token activities: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return written, fmt.Errorf("bulk insert token activities rows affected: %w", err)
		}
		written += n
	}
	return written, nil
}
