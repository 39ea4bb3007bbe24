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

// assetRepo implements persistence.AssetRepo for PostgreSQL.
type assetRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAssetRepo creates a new PostgreSQL asset repository.
func NewAssetRepo(db *sqlx.DB, timeout time.Duration) persistence.AssetRepo {
	return &assetRepo{db: db, timeout: timeout}
}

// Upsert inserts a new asset or updates the existing row keyed by
// asset_id: rows are created on first successful inspect and updated on
// refresh, never deleted here.
func (r *assetRepo) Upsert(ctx context.Context, asset persistence.Asset) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stickersJSON, err := json.Marshal(asset.Stickers)
	if err != nil {
		return fmt.Errorf("failed to marshal stickers: %w", err)
	}
	keychainsJSON, err := json.Marshal(asset.Keychains)
	if err != nil {
		return fmt.Errorf("failed to marshal keychains: %w", err)
	}

	query := `
		INSERT INTO assets (
			asset_id, unique_id, ms, d, paint_seed, paint_index, paint_wear_raw,
			def_index, quality, rarity, origin, custom_name, quest_id, reason,
			music_index, ent_index, is_stattrak, is_souvenir, stickers, keychains,
			killeater_score_type, killeater_value, pet_index, inventory, drop_reason
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25
		)
		ON CONFLICT (asset_id) DO UPDATE SET
			unique_id = EXCLUDED.unique_id,
			ms = EXCLUDED.ms,
			d = EXCLUDED.d,
			paint_seed = EXCLUDED.paint_seed,
			paint_index = EXCLUDED.paint_index,
			paint_wear_raw = EXCLUDED.paint_wear_raw,
			def_index = EXCLUDED.def_index,
			quality = EXCLUDED.quality,
			rarity = EXCLUDED.rarity,
			origin = EXCLUDED.origin,
			custom_name = EXCLUDED.custom_name,
			quest_id = EXCLUDED.quest_id,
			reason = EXCLUDED.reason,
			music_index = EXCLUDED.music_index,
			ent_index = EXCLUDED.ent_index,
			is_stattrak = EXCLUDED.is_stattrak,
			is_souvenir = EXCLUDED.is_souvenir,
			stickers = EXCLUDED.stickers,
			keychains = EXCLUDED.keychains,
			killeater_score_type = EXCLUDED.killeater_score_type,
			killeater_value = EXCLUDED.killeater_value,
			pet_index = EXCLUDED.pet_index,
			inventory = EXCLUDED.inventory,
			drop_reason = EXCLUDED.drop_reason,
			updated_at = now()
		RETURNING created_at, updated_at`

	err = r.db.QueryRowxContext(ctx, query,
		asset.AssetID, asset.UniqueID, asset.MS, asset.D, asset.PaintSeed,
		asset.PaintIndex, asset.PaintWear, asset.DefIndex, asset.Quality,
		asset.Rarity, asset.Origin, asset.CustomName, asset.QuestID,
		asset.Reason, asset.MusicIndex, asset.EntIndex, asset.IsStatTrak,
		asset.IsSouvenir, stickersJSON, keychainsJSON, asset.KilleaterScoreType,
		asset.KilleaterValue, asset.PetIndex, asset.Inventory, asset.DropReason,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert asset %d: %w", asset.AssetID, err)
	}

	return nil
}

// GetByAssetID retrieves the current row for an asset id, if any.
func (r *assetRepo) GetByAssetID(ctx context.Context, assetID int64) (*persistence.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, assetSelectQuery+" WHERE asset_id = $1", assetID)
	asset, err := scanAsset(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset %d: %w", assetID, err)
	}
	return asset, nil
}

// GetByUniqueID retrieves the most recent row sharing a unique_id.
func (r *assetRepo) GetByUniqueID(ctx context.Context, uniqueID string) (*persistence.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := assetSelectQuery + " WHERE unique_id = $1 ORDER BY updated_at DESC LIMIT 1"
	row := r.db.QueryRowxContext(ctx, query, uniqueID)
	asset, err := scanAsset(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset by unique_id %s: %w", uniqueID, err)
	}
	return asset, nil
}

// ListByUniqueID retrieves every row sharing a unique_id.
func (r *assetRepo) ListByUniqueID(ctx context.Context, uniqueID string) ([]persistence.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := assetSelectQuery + " WHERE unique_id = $1 ORDER BY asset_id"
	rows, err := r.db.QueryxContext(ctx, query, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets by unique_id %s: %w", uniqueID, err)
	}
	defer rows.Close()

	var assets []persistence.Asset
	for rows.Next() {
		asset, err := scanAssetFromRows(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// Count returns the number of persisted assets.
func (r *assetRepo) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	if err := r.db.QueryRowxContext(ctx, "SELECT COUNT(*) FROM assets").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return count, nil
}

const assetSelectQuery = `
	SELECT
		asset_id, unique_id, ms, d, paint_seed, paint_index, paint_wear_raw,
		def_index, quality, rarity, origin, custom_name, quest_id, reason,
		music_index, ent_index, is_stattrak, is_souvenir, stickers, keychains,
		killeater_score_type, killeater_value, pet_index, inventory, drop_reason,
		created_at, updated_at
	FROM assets`

func scanAsset(row *sqlx.Row) (*persistence.Asset, error) {
	var a persistence.Asset
	var stickersJSON, keychainsJSON []byte

	err := row.Scan(
		&a.AssetID, &a.UniqueID, &a.MS, &a.D, &a.PaintSeed, &a.PaintIndex,
		&a.PaintWear, &a.DefIndex, &a.Quality, &a.Rarity, &a.Origin,
		&a.CustomName, &a.QuestID, &a.Reason, &a.MusicIndex, &a.EntIndex,
		&a.IsStatTrak, &a.IsSouvenir, &stickersJSON, &keychainsJSON,
		&a.KilleaterScoreType, &a.KilleaterValue, &a.PetIndex, &a.Inventory,
		&a.DropReason, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalRecords(stickersJSON, &a.Stickers); err != nil {
		return nil, err
	}
	if err := unmarshalRecords(keychainsJSON, &a.Keychains); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAssetFromRows(rows *sqlx.Rows) (*persistence.Asset, error) {
	var a persistence.Asset
	var stickersJSON, keychainsJSON []byte

	err := rows.Scan(
		&a.AssetID, &a.UniqueID, &a.MS, &a.D, &a.PaintSeed, &a.PaintIndex,
		&a.PaintWear, &a.DefIndex, &a.Quality, &a.Rarity, &a.Origin,
		&a.CustomName, &a.QuestID, &a.Reason, &a.MusicIndex, &a.EntIndex,
		&a.IsStatTrak, &a.IsSouvenir, &stickersJSON, &keychainsJSON,
		&a.KilleaterScoreType, &a.KilleaterValue, &a.PetIndex, &a.Inventory,
		&a.DropReason, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalRecords(stickersJSON, &a.Stickers); err != nil {
		return nil, err
	}
	if err := unmarshalRecords(keychainsJSON, &a.Keychains); err != nil {
		return nil, err
	}
	return &a, nil
}

func unmarshalRecords(data []byte, out *[]persistence.StickerRecord) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal sticker/keychain records: %w", err)
	}
	return nil
}
