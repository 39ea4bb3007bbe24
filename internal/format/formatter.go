package format

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/riftline/inspectgate/internal/format/patterns"
	"github.com/riftline/inspectgate/internal/identity"
	"github.com/riftline/inspectgate/internal/persistence"
)

// Special item def_index values.
const (
	defIndexSticker   = 1209
	defIndexGraffitiA = 1348
	defIndexGraffitiB = 1349
	defIndexKeychain  = 1355
)

var phaseSuffix = regexp.MustCompile(`\s*\((Phase [1-4]|Ruby|Sapphire|Black Pearl|Emerald)\)\s*$`)

// Format transforms a persisted Asset (plus its optional ranking row and
// the loaded item schema) into the response object the HTTP surface
// returns.
func Format(asset persistence.Asset, ranking *persistence.RankingRow, schema ItemSchema) (*Response, error) {
	if asset.DefIndex == nil {
		return formatUnknown(asset), nil
	}

	weapon, isWeapon := schema.Weapons[*asset.DefIndex]
	if !isWeapon {
		return formatSpecial(asset, schema), nil
	}

	info := formatWeapon(asset, weapon)
	applyRanking(&info, ranking)
	return &Response{ItemInfo: info}, nil
}

func formatUnknown(asset persistence.Asset) *Response {
	return &Response{ItemInfo: ItemInfo{
		Type:       TypeUnknown,
		DefIndex:   asset.DefIndex,
		PaintIndex: asset.PaintIndex,
		PaintSeed:  asset.PaintSeed,
		Quality:    asset.Quality,
		Rarity:     asset.Rarity,
		Origin:     asset.Origin,
		CustomName: asset.CustomName,
		IsStatTrak: asset.IsStatTrak,
		IsSouvenir: asset.IsSouvenir,
	}}
}

func formatSpecial(asset persistence.Asset, schema ItemSchema) *Response {
	defIndex := *asset.DefIndex
	info := ItemInfo{
		DefIndex:   asset.DefIndex,
		PaintIndex: asset.PaintIndex,
		PaintSeed:  asset.PaintSeed,
		Quality:    asset.Quality,
		Rarity:     asset.Rarity,
		Origin:     asset.Origin,
		CustomName: asset.CustomName,
		IsStatTrak: asset.IsStatTrak,
		IsSouvenir: asset.IsSouvenir,
	}

	switch {
	case defIndex == defIndexSticker:
		info.Type = TypeSticker
		if len(asset.Stickers) > 0 {
			info.Stickers = []StickerInfo{enrichRecord(asset.Stickers[0], schema.Stickers)}
		}

	case defIndex == defIndexGraffitiA || defIndex == defIndexGraffitiB:
		info.Type = TypeGraffiti
		if len(asset.Stickers) > 0 {
			info.Stickers = []StickerInfo{enrichRecord(asset.Stickers[0], schema.Stickers)}
		}

	case defIndex == defIndexKeychain:
		info.Type = TypeKeychain
		if len(asset.Keychains) > 0 {
			info.Keychains = []StickerInfo{enrichKeychain(asset.Keychains[0], schema.Keychains)}
		}

	default:
		if _, ok := schema.Agents[defIndex]; ok {
			info.Type = TypeAgent
			info.Stickers = enrichRecords(asset.Stickers, schema.Stickers)
		} else {
			info.Type = TypeUnknown
		}
	}

	return &Response{ItemInfo: info}
}

func formatWeapon(asset persistence.Asset, weapon WeaponSchema) ItemInfo {
	info := ItemInfo{
		DefIndex:   asset.DefIndex,
		PaintIndex: asset.PaintIndex,
		PaintSeed:  asset.PaintSeed,
		Quality:    asset.Quality,
		Rarity:     asset.Rarity,
		Origin:     asset.Origin,
		CustomName: asset.CustomName,
		IsStatTrak: asset.IsStatTrak,
		IsSouvenir: asset.IsSouvenir,
	}

	var wear *float32
	if asset.PaintWear != nil {
		w := identity.WearFromUint32(uint32(*asset.PaintWear))
		wear = &w
		wearF64 := float64(w)
		info.PaintWear = &wearF64
	}

	paintName, phase := "", ""
	paintKnown := false
	if asset.PaintIndex != nil {
		if name, ok := weapon.Paints[*asset.PaintIndex]; ok {
			paintKnown = true
			paintName, phase = splitPhase(name)
		}
	}

	parts := make([]string, 0, 6)
	if asset.Quality != nil && *asset.Quality == 3 {
		parts = append(parts, "★")
	}

	killeaterValue := asset.KilleaterValue != nil
	if killeaterValue {
		parts = append(parts, "StatTrak™")
	} else if asset.Quality != nil && *asset.Quality == 12 {
		parts = append(parts, "Souvenir")
	}

	parts = append(parts, weapon.Name)

	if paintKnown {
		parts = append(parts, fmt.Sprintf("| %s", paintName))
	}
	if paintKnown && wear != nil {
		info.WearBucket = WearBucket(*wear)
		parts = append(parts, fmt.Sprintf("(%s)", info.WearBucket))
	}
	if phase != "" {
		parts = append(parts, fmt.Sprintf("- %s", phase))
		info.Phase = phase
	}

	marketHashName := strings.Join(parts, " ")
	info.MarketHashName = marketHashName

	if asset.PaintSeed != nil {
		family := patterns.DetectFamily(marketHashName)
		if name, ok := patterns.Lookup(family, *asset.PaintSeed); ok {
			info.Pattern = name
		}
	}

	return info
}

// splitPhase strips a trailing "(Phase N|Ruby|Sapphire|Black Pearl|Emerald)"
// tag from a schema paint name, returning the bare name and the phase.
func splitPhase(paintName string) (name string, phase string) {
	match := phaseSuffix.FindStringSubmatch(paintName)
	if match == nil {
		return paintName, ""
	}
	return strings.TrimSpace(phaseSuffix.ReplaceAllString(paintName, "")), match[1]
}

func applyRanking(info *ItemInfo, ranking *persistence.RankingRow) {
	if ranking == nil {
		return
	}
	low, high := ranking.LowRank, ranking.HighRank
	total := ranking.GlobalHigh - ranking.GlobalLow + 1
	info.LowRank, info.HighRank, info.TotalCount = &low, &high, &total
}

func enrichRecord(r persistence.StickerRecord, names map[int64]StickerSchema) StickerInfo {
	out := StickerInfo{Slot: r.Slot, ID: r.ID, Wear: r.Wear, Scale: r.Scale, Rotation: r.Rotation}
	if r.ID != nil {
		if s, ok := names[*r.ID]; ok {
			out.Name = s.Name
		}
	}
	return out
}

func enrichRecords(recs []persistence.StickerRecord, names map[int64]StickerSchema) []StickerInfo {
	out := make([]StickerInfo, len(recs))
	for i, r := range recs {
		out[i] = enrichRecord(r, names)
	}
	return out
}

func enrichKeychain(r persistence.StickerRecord, names map[int64]KeychainSchema) StickerInfo {
	out := StickerInfo{Slot: r.Slot, ID: r.ID, Wear: r.Wear, Scale: r.Scale, Rotation: r.Rotation}
	if r.ID != nil {
		if k, ok := names[*r.ID]; ok {
			out.Name = k.Name
		}
	}
	return out
}
