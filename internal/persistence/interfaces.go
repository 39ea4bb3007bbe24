package persistence

import (
	"context"
	"time"
)

// StickerRecord is one slot of an asset's stickers or keychains array.
// All fields besides Slot are nullable.
type StickerRecord struct {
	Slot     int      `json:"slot" db:"slot"`
	ID       *int64   `json:"sticker_id,omitempty" db:"sticker_id"`
	Wear     *float64 `json:"wear,omitempty" db:"wear"`
	Scale    *float64 `json:"scale,omitempty" db:"scale"`
	Rotation *float64 `json:"rotation,omitempty" db:"rotation"`
	Tint     *int64   `json:"tint_id,omitempty" db:"tint_id"`
	OffsetX  *float64 `json:"offset_x,omitempty" db:"offset_x"`
	OffsetY  *float64 `json:"offset_y,omitempty" db:"offset_y"`
	OffsetZ  *float64 `json:"offset_z,omitempty" db:"offset_z"`
	Pattern  *int64   `json:"pattern,omitempty" db:"pattern"`
}

// Asset is a known item instance, persisted and upserted by asset_id.
// PaintWear holds the raw 32-bit wear integer as the GC reported it; the
// formatter reinterprets it as an IEEE-754 single when reading back.
type Asset struct {
	AssetID  int64  `json:"asset_id" db:"asset_id"`
	UniqueID string `json:"unique_id" db:"unique_id"`

	MS         int64   `json:"ms" db:"ms"`
	D          string  `json:"d" db:"d"`
	PaintSeed  *int64  `json:"paint_seed,omitempty" db:"paint_seed"`
	PaintIndex *int64  `json:"paint_index,omitempty" db:"paint_index"`
	PaintWear  *int64  `json:"paint_wear_raw,omitempty" db:"paint_wear_raw"`
	DefIndex   *int64  `json:"def_index,omitempty" db:"def_index"`
	Quality    *int64  `json:"quality,omitempty" db:"quality"`
	Rarity     *int64  `json:"rarity,omitempty" db:"rarity"`
	Origin     *int64  `json:"origin,omitempty" db:"origin"`
	CustomName *string `json:"custom_name,omitempty" db:"custom_name"`
	QuestID    *int64  `json:"quest_id,omitempty" db:"quest_id"`
	Reason     *int64  `json:"reason,omitempty" db:"reason"`
	MusicIndex *int64  `json:"music_index,omitempty" db:"music_index"`
	EntIndex   *int64  `json:"ent_index,omitempty" db:"ent_index"`
	IsStatTrak bool    `json:"is_stattrak" db:"is_stattrak"`
	IsSouvenir bool    `json:"is_souvenir" db:"is_souvenir"`

	Stickers  []StickerRecord `json:"stickers" db:"stickers"`
	Keychains []StickerRecord `json:"keychains" db:"keychains"`

	KilleaterScoreType *int64 `json:"killeater_score_type,omitempty" db:"killeater_score_type"`
	KilleaterValue     *int64 `json:"killeater_value,omitempty" db:"killeater_value"`
	PetIndex           *int64 `json:"pet_index,omitempty" db:"pet_index"`
	Inventory          *int64 `json:"inventory,omitempty" db:"inventory"`
	DropReason         *int64 `json:"drop_reason,omitempty" db:"drop_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// History is an ordered transition of an asset's ownership/decoration,
// written opportunistically when a new observation differs from the last.
type History struct {
	ID            int64           `json:"id" db:"id"`
	UniqueID      string          `json:"unique_id" db:"unique_id"`
	Type          string          `json:"type" db:"type"`
	PrevOwner     *int64          `json:"prev_owner,omitempty" db:"prev_owner"`
	CurrOwner     *int64          `json:"curr_owner,omitempty" db:"curr_owner"`
	PrevAssetID   *int64          `json:"prev_asset_id,omitempty" db:"prev_asset_id"`
	CurrAssetID   int64           `json:"curr_asset_id" db:"curr_asset_id"`
	PrevStickers  []StickerRecord `json:"prev_stickers,omitempty" db:"prev_stickers"`
	CurrStickers  []StickerRecord `json:"curr_stickers,omitempty" db:"curr_stickers"`
	PrevKeychains []StickerRecord `json:"prev_keychains,omitempty" db:"prev_keychains"`
	CurrKeychains []StickerRecord `json:"curr_keychains,omitempty" db:"curr_keychains"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// RankingRow is one row of the materialized dense-rank projection over
// paint_wear, read by unique_id. low/high bound the rank range tied
// observations share within this identity's own partition; global_low/
// global_high bound the same tie across the entire population, and their
// span is reported to callers as total_count.
type RankingRow struct {
	UniqueID   string `json:"unique_id" db:"unique_id"`
	LowRank    int64  `json:"low_rank" db:"low_rank"`
	HighRank   int64  `json:"high_rank" db:"high_rank"`
	GlobalLow  int64  `json:"global_low" db:"global_low"`
	GlobalHigh int64  `json:"global_high" db:"global_high"`
}

// AssetRepo provides asset persistence with upsert-on-refresh semantics.
type AssetRepo interface {
	// Upsert inserts a new asset or updates the existing row keyed by asset_id.
	Upsert(ctx context.Context, asset Asset) error

	// GetByAssetID retrieves the current row for an asset id, if any.
	GetByAssetID(ctx context.Context, assetID int64) (*Asset, error)

	// GetByUniqueID retrieves the most recent row sharing a unique_id,
	// used to detect whether a new observation differs from the last one.
	GetByUniqueID(ctx context.Context, uniqueID string) (*Asset, error)

	// ListByUniqueID retrieves every row sharing a unique_id, used by the
	// maintenance path that resolves identity.Repair collisions.
	ListByUniqueID(ctx context.Context, uniqueID string) ([]Asset, error)

	// Count returns the number of persisted assets.
	Count(ctx context.Context) (int64, error)
}

// HistoryRepo provides ordered history persistence for an asset's lineage.
type HistoryRepo interface {
	// Insert appends a history record.
	Insert(ctx context.Context, h History) error

	// ListByUniqueID retrieves the history for a unique_id, newest first.
	ListByUniqueID(ctx context.Context, uniqueID string, limit int) ([]History, error)

	// Latest returns the most recent history record for a unique_id, if any.
	Latest(ctx context.Context, uniqueID string) (*History, error)
}

// RankingRepo reads the externally-maintained ranking view.
type RankingRepo interface {
	// GetByUniqueID returns the ranking row for a unique_id, if the view has
	// been refreshed with it yet.
	GetByUniqueID(ctx context.Context, uniqueID string) (*RankingRow, error)
}
