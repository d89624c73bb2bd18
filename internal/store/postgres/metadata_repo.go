package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type MetadataRepo struct {
	db *DB
}

func NewMetadataRepo(db *DB) *MetadataRepo {
	return &MetadataRepo{db: db}
}

const metadataColumns = `asset_type, creator_address, name, symbol, decimals, icon_uri, project_uri,
	supply_aggregator_table_handle_v1, supply_aggregator_table_key_v1, supply_v2, maximum_v2,
	token_standard, is_token_v2, last_transaction_version, last_event_index, last_transaction_timestamp, inserted_at`

func scanMetadata(s rowScanner) (*model.AssetMetadata, error) {
	var (
		m                model.AssetMetadata
		supply, maximum  decimal.NullDecimal
		iconURI, project sql.NullString
		handle, key      sql.NullString
		isTokenV2        sql.NullBool
	)
	if err := s.Scan(
		&m.AssetType, &m.CreatorAddress, &m.Name, &m.Symbol, &m.Decimals, &iconURI, &project,
		&handle, &key, &supply, &maximum,
		&m.TokenStandard, &isTokenV2, &m.LastTransactionVersion, &m.LastEventIndex, &m.LastTransactionTimestamp, &m.InsertedAt,
	); err != nil {
		return nil, err
	}
	m.IconURI = nullString(iconURI)
	m.ProjectURI = nullString(project)
	m.SupplyAggregatorTableHandleV1 = nullString(handle)
	m.SupplyAggregatorTableKeyV1 = nullString(key)
	m.SupplyV2 = nullDecimal(supply)
	m.MaximumV2 = nullDecimal(maximum)
	if isTokenV2.Valid {
		v := isTokenV2.Bool
		m.IsTokenV2 = &v
	}
	m.LastTransactionTimestamp = m.LastTransactionTimestamp.UTC()
	m.InsertedAt = m.InsertedAt.UTC()
	return &m, nil
}

func (r *MetadataRepo) Get(ctx context.Context, assetType string) (*model.AssetMetadata, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	m, err := scanMetadata(r.db.QueryRowContext(ctx, `
		SELECT `+metadataColumns+` FROM asset_metadata WHERE asset_type = $1
	`, assetType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset metadata: %w", err)
	}
	return m, nil
}

func (r *MetadataRepo) BulkGet(ctx context.Context, assetTypes []string) (map[string]*model.AssetMetadata, error) {
	result := make(map[string]*model.AssetMetadata, len(assetTypes))
	if len(assetTypes) == 0 {
		return result, nil
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+metadataColumns+` FROM asset_metadata WHERE asset_type = ANY($1)
	`, pq.Array(assetTypes))
	if err != nil {
		return nil, fmt.Errorf("bulk get asset metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("bulk get asset metadata scan: %w", err)
		}
		result[m.AssetType] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bulk get asset metadata rows: %w", err)
	}
	return result, nil
}

// BulkUpsertTx writes merged metadata rows. Rows at the stored position are
// rewritten so a redelivered batch converges on the same content.
func (r *MetadataRepo) BulkUpsertTx(ctx context.Context, tx *sql.Tx, rows []*model.AssetMetadata) (int64, error) {
	rows = newestMetadataPerKey(rows)
	if len(rows) == 0 {
		return 0, nil
	}

	const cols = 16
	var written int64
	for _, c := range chunks(len(rows), cols) {
		part := rows[c[0]:c[1]]
		args := make([]any, 0, len(part)*cols)
		for _, m := range part {
			args = append(args,
				m.AssetType, m.CreatorAddress, m.Name, m.Symbol, m.Decimals, m.IconURI, m.ProjectURI,
				m.SupplyAggregatorTableHandleV1, m.SupplyAggregatorTableKeyV1, m.SupplyV2, m.MaximumV2,
				m.TokenStandard, m.IsTokenV2, m.LastTransactionVersion, m.LastEventIndex, m.LastTransactionTimestamp.UTC(),
			)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO asset_metadata (asset_type, creator_address, name, symbol, decimals, icon_uri, project_uri,
				supply_aggregator_table_handle_v1, supply_aggregator_table_key_v1, supply_v2, maximum_v2,
				token_standard, is_token_v2, last_transaction_version, last_event_index, last_transaction_timestamp)
			VALUES `+valuesClause(len(part), cols)+`
			ON CONFLICT (asset_type) DO UPDATE SET
				creator_address = EXCLUDED.creator_address,
				name = EXCLUDED.name,
				symbol = EXCLUDED.symbol,
				decimals = EXCLUDED.decimals,
				icon_uri = EXCLUDED.icon_uri,
				project_uri = EXCLUDED.project_uri,
				supply_aggregator_table_handle_v1 = EXCLUDED.supply_aggregator_table_handle_v1,
				supply_aggregator_table_key_v1 = EXCLUDED.supply_aggregator_table_key_v1,
				supply_v2 = EXCLUDED.supply_v2,
				maximum_v2 = EXCLUDED.maximum_v2,
				token_standard = EXCLUDED.token_standard,
				is_token_v2 = EXCLUDED.is_token_v2,
				last_transaction_version = EXCLUDED.last_transaction_version,
				last_event_index = EXCLUDED.last_event_index,
				last_transaction_timestamp = EXCLUDED.last_transaction_timestamp,
				inserted_at = now() AT TIME ZONE 'utc'
			WHERE (asset_metadata.last_transaction_version, asset_metadata.last_event_index)
				<= (EXCLUDED.last_transaction_version, EXCLUDED.last_event_index)
		`, args...)
		if err != nil {
			return written, fmt.Errorf("bulk upsert asset metadata: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return written, fmt.Errorf("bulk upsert asset metadata rows affected: %w", err)
		}
		written += n
	}
	return written, nil
}

func newestMetadataPerKey(rows []*model.AssetMetadata) []*model.AssetMetadata {
	idx := make(map[string]int, len(rows))
	out := make([]*model.AssetMetadata, 0, len(rows))
	for _, m := range rows {
		if m == nil {
			continue
		}
		if i, ok := idx[m.AssetType]; ok {
			if !out[i].Position().After(m.Position()) {
				out[i] = m
			}
			continue
		}
		idx[m.AssetType] = len(out)
		out = append(out, m)
	}
	return out
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
