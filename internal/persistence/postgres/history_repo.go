package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riftline/inspectgate/internal/persistence"
)

// historyRepo implements persistence.HistoryRepo for PostgreSQL.
type historyRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHistoryRepo creates a new PostgreSQL history repository.
func NewHistoryRepo(db *sqlx.DB, timeout time.Duration) persistence.HistoryRepo {
	return &historyRepo{db: db, timeout: timeout}
}

// Insert appends a history record, written opportunistically by the Inspect
// Service when a new observation differs from the last one for the same
// unique_id.
func (r *historyRepo) Insert(ctx context.Context, h persistence.History) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prevStickersJSON, err := json.Marshal(h.PrevStickers)
	if err != nil {
		return fmt.Errorf("failed to marshal prev_stickers: %w", err)
	}
	currStickersJSON, err := json.Marshal(h.CurrStickers)
	if err != nil {
		return fmt.Errorf("failed to marshal curr_stickers: %w", err)
	}
	prevKeychainsJSON, err := json.Marshal(h.PrevKeychains)
	if err != nil {
		return fmt.Errorf("failed to marshal prev_keychains: %w", err)
	}
	currKeychainsJSON, err := json.Marshal(h.CurrKeychains)
	if err != nil {
		return fmt.Errorf("failed to marshal curr_keychains: %w", err)
	}

	query := `
		INSERT INTO history (
			unique_id, type, prev_owner, curr_owner, prev_asset_id, curr_asset_id,
			prev_stickers, curr_stickers, prev_keychains, curr_keychains
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		h.UniqueID, h.Type, h.PrevOwner, h.CurrOwner, h.PrevAssetID, h.CurrAssetID,
		prevStickersJSON, currStickersJSON, prevKeychainsJSON, currKeychainsJSON,
	).Scan(&h.ID, &h.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert history for %s: %w", h.UniqueID, err)
	}
	return nil
}

// ListByUniqueID retrieves the history for a unique_id, newest first.
func (r *historyRepo) ListByUniqueID(ctx context.Context, uniqueID string, limit int) ([]persistence.History, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, historySelectQuery+" WHERE unique_id = $1 ORDER BY created_at DESC LIMIT $2", uniqueID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for %s: %w", uniqueID, err)
	}
	defer rows.Close()

	var out []persistence.History
	for rows.Next() {
		h, err := scanHistoryFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

// Latest returns the most recent history record for a unique_id, if any.
func (r *historyRepo) Latest(ctx context.Context, uniqueID string) (*persistence.History, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := historySelectQuery + " WHERE unique_id = $1 ORDER BY created_at DESC LIMIT 1"
	row := r.db.QueryRowxContext(ctx, query, uniqueID)

	h, err := scanHistory(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest history for %s: %w", uniqueID, err)
	}
	return h, nil
}

const historySelectQuery = `
	SELECT id, unique_id, type, prev_owner, curr_owner, prev_asset_id, curr_asset_id,
		prev_stickers, curr_stickers, prev_keychains, curr_keychains, created_at
	FROM history`

func scanHistory(row *sqlx.Row) (*persistence.History, error) {
	var h persistence.History
	var prevStickersJSON, currStickersJSON, prevKeychainsJSON, currKeychainsJSON []byte

	err := row.Scan(
		&h.ID, &h.UniqueID, &h.Type, &h.PrevOwner, &h.CurrOwner, &h.PrevAssetID,
		&h.CurrAssetID, &prevStickersJSON, &currStickersJSON, &prevKeychainsJSON,
		&currKeychainsJSON, &h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalRecords(prevStickersJSON, &h.PrevStickers); err != nil {
		return nil, err
	}
	if err := unmarshalRecords(currStickersJSON, &h.CurrStickers); err != nil {
		return nil, err
	}
	if err := unmarshalRecords(prevKeychainsJSON, &h.PrevKeychains); err != nil {
		return nil, err
	}
	if err := unmarshalRecords(currKeychainsJSON, &h.CurrKeychains); err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHistoryFromRows(rows *sqlx.Rows) (*persistence.History, error) {
	var h persistence.History
	var prevStickersJSON, currStickersJSON, prevKeychainsJSON, currKeychainsJSON []byte

	err := rows.Scan(
		&h.ID, &h.UniqueID, &h.Type, &h.PrevOwner, &h.CurrOwner, &h.PrevAssetID,
		&h.CurrAssetID, &prevStickersJSON, &currStickersJSON, &prevKeychainsJSON,
		&currKeychainsJSON, &h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalRecords(prevStickersJSON, &h.PrevStickers); err != nil {
		return nil, err
	}
	if err := unmarshalRecords(currStickersJSON, &h.CurrStickers); err != nil {
		return nil, err
	}
	if err := unmarshalRecords(prevKeychainsJSON, &h.PrevKeychains); err != nil {
		return nil, err
	}
	if err := unmarshalRecords(currKeychainsJSON, &h.CurrKeychains); err != nil {
		return nil, err
	}
	return &h, nil
}
