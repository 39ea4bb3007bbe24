// Package identity implements the content-hash contract shared between the
// gateway and the out-of-core SQL maintenance routines: the same nine-tuple
// always yields the same unique_id, in any process, in any language.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// NineTuple holds the nine numeric fields that determine an asset's
// unique_id. A nil pointer means "absent" and is defaulted to 0 before
// joining.
type NineTuple struct {
	PaintSeed  *int64
	PaintIndex *int64
	PaintWear  *int64
	DefIndex   *int64
	Origin     *int64
	Rarity     *int64
	QuestID    *int64
	Quality    *int64
	DropReason *int64
}

func orZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// Hash returns the 8 lowercase hex characters identifying this nine-tuple:
// SHA-1 of the dash-joined decimal fields, first 8 hex chars.
func Hash(t NineTuple) string {
	fields := []int64{
		orZero(t.PaintSeed),
		orZero(t.PaintIndex),
		orZero(t.PaintWear),
		orZero(t.DefIndex),
		orZero(t.Origin),
		orZero(t.Rarity),
		orZero(t.QuestID),
		orZero(t.Quality),
		orZero(t.DropReason),
	}

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%d", f)
	}
	joined := strings.Join(parts, "-")

	sum := sha1.Sum([]byte(joined))
	return hex.EncodeToString(sum[:])[:8]
}

// Row is the minimal shape the Repair operator needs: an asset's identity
// fields, its stored unique_id, and its primary key.
type Row struct {
	AssetID  int64
	UniqueID string
	NineTuple
}

// Repair partitions rows by recomputed unique_id, resolving collisions by
// keeping the row with the larger asset_id. Exposed for the maintenance
// path that repairs stale unique_id values; the gateway itself only ever
// writes forward.
func Repair(rows []Row) (keep []Row, drop []Row) {
	bestByHash := make(map[string]Row, len(rows))

	for _, r := range rows {
		want := Hash(r.NineTuple)
		current, ok := bestByHash[want]
		if !ok || r.AssetID > current.AssetID {
			if ok {
				drop = append(drop, current)
			}
			r.UniqueID = want
			bestByHash[want] = r
		} else {
			drop = append(drop, r)
		}
	}

	keep = make([]Row, 0, len(bestByHash))
	for _, r := range bestByHash {
		keep = append(keep, r)
	}
	return keep, drop
}
