// Package patterns holds bundled lookup tables for the paint-seed-dependent
// pattern names (Case Hardened blue gems, Marble Fade %, Fade %, Doppler and
// Gamma Doppler phases) that the formatter reports as an item's pattern name,
// alongside (not appended to) its market hash name.
//
// This is a representative sample, not the full upstream catalog: the
// complete pattern corpus is external item-schema data, out of scope here.
package patterns

import "strings"

// Family identifies which pattern table a paint name belongs to.
type Family int

const (
	FamilyNone Family = iota
	FamilyCaseHardened
	FamilyMarbleFade
	FamilyFade
	FamilyDoppler
	FamilyGammaDoppler
)

// doppler and gammaDoppler map paint_seed to the phase name the market hash
// name carries as a trailing "- <phase>" suffix, stripped out of the paint
// name it's embedded in.
var doppler = map[int64]string{
	1: "Phase 1", 2: "Phase 2", 3: "Phase 3", 4: "Phase 4",
	420: "Ruby", 555: "Sapphire", 690: "Black Pearl",
}

var gammaDoppler = map[int64]string{
	1: "Phase 1", 2: "Phase 2", 3: "Phase 3", 4: "Phase 4",
	820: "Emerald",
}

// caseHardenedBlueGems names a handful of well-known high-tier seeds; real
// deployments source the full table from the item-schema provider.
var caseHardenedBlueGems = map[int64]string{
	661: "Blue Gem", 555: "Blue Gem", 387: "Blue Gem",
}

var marbleFadePercent = map[int64]string{
	412: "Fire and Ice", 602: "Fire and Ice", 955: "Fire and Ice",
}

var fadePercent = map[int64]string{
	763: "100% Fade", 555: "98% Fade", 648: "97% Fade",
}

// DetectFamily inspects a paint name for the tokens that identify which
// pattern table, if any, applies.
func DetectFamily(paintName string) Family {
	lower := strings.ToLower(paintName)
	switch {
	case strings.Contains(lower, "gamma doppler"):
		return FamilyGammaDoppler
	case strings.Contains(lower, "doppler"):
		return FamilyDoppler
	case strings.Contains(lower, "marble fade"):
		return FamilyMarbleFade
	case strings.Contains(lower, "fade"):
		return FamilyFade
	case strings.Contains(lower, "case hardened"):
		return FamilyCaseHardened
	default:
		return FamilyNone
	}
}

// Lookup returns a pattern descriptor (e.g. "Blue Gem", "Phase 2",
// "100% Fade") for a family and paint seed, and whether one was found in
// the bundled sample tables.
func Lookup(family Family, paintSeed int64) (string, bool) {
	var table map[int64]string
	switch family {
	case FamilyCaseHardened:
		table = caseHardenedBlueGems
	case FamilyMarbleFade:
		table = marbleFadePercent
	case FamilyFade:
		table = fadePercent
	case FamilyDoppler:
		table = doppler
	case FamilyGammaDoppler:
		table = gammaDoppler
	default:
		return "", false
	}
	name, ok := table[paintSeed]
	return name, ok
}
