// Package triage holds the fixed set of rash labels the model may score and
// the static severity tier attached to each of them.
package triage

import (
	"strings"

	"github.com/arbovm/levenshtein"
)

// Tier is a static severity classification for a label
type Tier string

const (
	TierGreen     Tier = "Green"
	TierYellow    Tier = "Yellow"
	TierYellowRed Tier = "Yellow/Red"
	TierRed       Tier = "Red"
)

// Label is one of the disease tags the model is permitted to score
type Label string

const (
	Measles          Label = "measles"
	Rubella          Label = "rubella"
	FifthDisease     Label = "fifth_disease"
	Roseola          Label = "roseola"
	Varicella        Label = "varicella"
	HFMD             Label = "hfmd"
	DiaperRash       Label = "diaper_rash"
	Tinea            Label = "tinea"
	AtopicDermatitis Label = "atopic_dermatitis"
)

// allowedLabels keeps the order labels are presented to the model
var allowedLabels = []Label{
	Measles,
	Rubella,
	FifthDisease,
	Roseola,
	Varicella,
	HFMD,
	DiaperRash,
	Tinea,
	AtopicDermatitis,
}

var tiers = map[Label]Tier{
	Measles:          TierRed,
	Rubella:          TierYellowRed,
	Varicella:        TierYellowRed,
	FifthDisease:     TierYellow,
	Roseola:          TierYellow,
	HFMD:             TierYellow,
	DiaperRash:       TierGreen,
	Tinea:            TierGreen,
	AtopicDermatitis: TierGreen,
}

// AllowedLabels returns a copy of the allowed label set
func AllowedLabels() []Label {
	out := make([]Label, len(allowedLabels))
	copy(out, allowedLabels)
	return out
}

// Tiers returns the four tiers from least to most severe
func Tiers() []Tier {
	return []Tier{TierGreen, TierYellow, TierYellowRed, TierRed}
}

// IsAllowed reports whether name is an allowed label
func IsAllowed(name string) bool {
	_, ok := tiers[Label(name)]
	return ok
}

// IsTier reports whether value names one of the four tiers
func IsTier(value string) bool {
	for _, tier := range Tiers() {
		if string(tier) == value {
			return true
		}
	}
	return false
}

// TierFor returns the static tier of a label
func TierFor(name string) (Tier, bool) {
	tier, ok := tiers[Label(name)]
	return tier, ok
}

// ParseLabelFilter splits comma separated values into a clean, de-duplicated filter.
func ParseLabelFilter(values ...string) []string {
	seen := make(map[string]struct{})
	var filter []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			filter = append(filter, part)
		}
	}
	return filter
}

// EffectiveLabels intersects the allowed set with filter. An empty filter
// selects every allowed label. The allowed set's order is kept.
func EffectiveLabels(filter []string) []Label {
	if len(filter) == 0 {
		return AllowedLabels()
	}
	wanted := make(map[string]struct{}, len(filter))
	for _, f := range filter {
		wanted[f] = struct{}{}
	}
	effective := make([]Label, 0, len(filter))
	for _, label := range allowedLabels {
		if _, ok := wanted[string(label)]; ok {
			effective = append(effective, label)
		}
	}
	return effective
}

// UnknownLabels returns the filter entries that are not allowed labels
func UnknownLabels(filter []string) []string {
	var unknown []string
	for _, f := range filter {
		if !IsAllowed(f) {
			unknown = append(unknown, f)
		}
	}
	return unknown
}

// maxSuggestDistance bounds how far a typo may be from a label to be suggested
const maxSuggestDistance = 3

// Suggest returns the closest allowed label to name, if one is near enough.
func Suggest(name string) (Label, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	best := Label("")
	bestDistance := maxSuggestDistance + 1
	for _, label := range allowedLabels {
		d := levenshtein.Distance(name, string(label))
		if d < bestDistance {
			best, bestDistance = label, d
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// Strings converts labels to plain strings
func Strings(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}
