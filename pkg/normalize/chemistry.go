package normalize

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canonical chemistry names. Every value Chemistry returns is either one of
// these or a title-cased passthrough.
const (
	ChemOther        = "Other"
	ChemUnknown      = "Unknown"
	ChemLeadAcid     = "Lead Acid"
	ChemNiCd         = "Nickel Cadmium"
	ChemNiMH         = "Nickel Metal Hydride"
	ChemLiIon        = "Lithium-ion"
	ChemZincAir      = "Zinc Air"
	ChemLiPo         = "Lithium Polymer"
	ChemLiIonPolymer = "Lithium-ion Polymer"
	ChemLiIonNCM     = "Lithium-ion NCM"
	ChemLiIonNCA     = "Lithium-ion NCA"
	ChemLFP          = "Lithium Iron Phosphate"
	ChemLCO          = "Lithium Cobalt Oxide"
	ChemLMO          = "Lithium Manganese Oxide"
)

// chemistryCodes is the numeric chemistry code table used by firmware
// instrumentation (Win32_Battery.Chemistry and friends).
var chemistryCodes = map[int]string{
	1: ChemOther,
	2: ChemUnknown,
	3: ChemLeadAcid,
	4: ChemNiCd,
	5: ChemNiMH,
	6: ChemLiIon,
	7: ChemZincAir,
	8: ChemLiPo,
}

var chemistryAliases = map[string]string{
	"li-ion":                 ChemLiIon,
	"lion":                   ChemLiIon,
	"lithium ion":            ChemLiIon,
	"lithium-ion":            ChemLiIon,
	"li ion":                 ChemLiIon,
	"liion":                  ChemLiIon,
	"ncm":                    ChemLiIonNCM,
	"nmc":                    ChemLiIonNCM,
	"nca":                    ChemLiIonNCA,
	"li-poly":                ChemLiPo,
	"lipo":                   ChemLiPo,
	"lithium polymer":        ChemLiPo,
	"lithium-polymer":        ChemLiPo,
	"li-po":                  ChemLiPo,
	"lipolymer":              ChemLiPo,
	"li-ion polymer":         ChemLiIonPolymer,
	"lithium ion polymer":    ChemLiIonPolymer,
	"lfp":                    ChemLFP,
	"lifepo4":                ChemLFP,
	"life":                   ChemLFP,
	"lithium iron phosphate": ChemLFP,
	"lco":                    ChemLCO,
	"lmo":                    ChemLMO,
	"nimh":                   ChemNiMH,
	"ni-mh":                  ChemNiMH,
	"nickel metal hydride":   ChemNiMH,
	"nicd":                   ChemNiCd,
	"ni-cd":                  ChemNiCd,
	"nickel cadmium":         ChemNiCd,
	"lead acid":              ChemLeadAcid,
	"pbac":                   ChemLeadAcid,
	"pb":                     ChemLeadAcid,
}

var (
	// aliasOrder holds the alias keys, longest first, so that
	// "li-ion polymer" wins over "li-ion".
	aliasOrder []string
	canonical  = map[string]string{}
	titleCaser = cases.Title(language.Und)
)

func init() {
	for k := range chemistryAliases {
		aliasOrder = append(aliasOrder, k)
	}
	sort.Slice(aliasOrder, func(i, j int) bool {
		if len(aliasOrder[i]) != len(aliasOrder[j]) {
			return len(aliasOrder[i]) > len(aliasOrder[j])
		}
		return aliasOrder[i] < aliasOrder[j]
	})

	for _, v := range chemistryCodes {
		canonical[strings.ToLower(v)] = v
	}
	for _, v := range chemistryAliases {
		canonical[strings.ToLower(v)] = v
	}
	for _, v := range []string{ChemLCO, ChemLMO, ChemLiIonPolymer} {
		canonical[strings.ToLower(v)] = v
	}
}

// ChemistryFromCode maps a numeric chemistry code. ok is false for codes
// outside the table.
func ChemistryFromCode(code int) (name string, ok bool) {
	name, ok = chemistryCodes[code]
	return
}

// Chemistry canonicalizes a chemistry string as reported by any source.
// Numeric codes go through the code table, known spellings through the alias
// table, then a few substring heuristics apply. Anything else is title-cased,
// and an empty input is "Unknown". Chemistry(Chemistry(x)) == Chemistry(x).
func Chemistry(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChemUnknown
	}

	if code, err := strconv.Atoi(s); err == nil {
		if name, ok := ChemistryFromCode(code); ok {
			return name
		}
		return ChemUnknown
	}

	lower := strings.ToLower(s)
	if name, ok := canonical[lower]; ok {
		return name
	}

	for _, alias := range aliasOrder {
		if strings.Contains(lower, alias) {
			return chemistryAliases[alias]
		}
	}

	switch {
	case strings.Contains(lower, "li") && strings.Contains(lower, "ion"):
		if strings.Contains(lower, "poly") {
			return ChemLiIonPolymer
		}
		return ChemLiIon
	case strings.Contains(lower, "li") && strings.Contains(lower, "poly"):
		return ChemLiPo
	case strings.Contains(lower, "nickel") && (strings.Contains(lower, "metal") || strings.Contains(lower, "mh")):
		return ChemNiMH
	case strings.Contains(lower, "nickel") && (strings.Contains(lower, "cadmium") || strings.Contains(lower, "cd")):
		return ChemNiCd
	}

	return titleCaser.String(lower)
}

// IsKnownChemistry reports whether name is one of the canonical names.
func IsKnownChemistry(name string) bool {
	_, ok := canonical[strings.ToLower(name)]
	return ok && name != ChemUnknown
}
