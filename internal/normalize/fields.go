// Package normalize turns heterogeneous raw property records into a canonical,
// deduplicated set carrying a confidence score.
package normalize

import (
	"regexp"
	"strings"
)

var punctuationRegexp = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// streetAbbreviations maps long street words onto the short form used for matching.
var streetAbbreviations = map[string]string{
	"street":    "st",
	"st":        "st",
	"avenue":    "ave",
	"av":        "ave",
	"ave":       "ave",
	"road":      "rd",
	"rd":        "rd",
	"boulevard": "blvd",
	"blvd":      "blvd",
	"drive":     "dr",
	"dr":        "dr",
	"lane":      "ln",
	"ln":        "ln",
	"court":     "ct",
	"ct":        "ct",
	"place":     "pl",
	"pl":        "pl",
	"parkway":   "pkwy",
	"pkwy":      "pkwy",
	"highway":   "hwy",
	"hwy":       "hwy",
	"circle":    "cir",
	"terrace":   "ter",
	"square":    "sq",
	"suite":     "ste",
	"apartment": "apt",
	"building":  "bldg",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
	"northeast": "ne",
	"northwest": "nw",
	"southeast": "se",
	"southwest": "sw",
}

// NormalizeAddress lowercases, strips punctuation, collapses whitespace and
// abbreviates street words so that equivalent spellings compare equal.
func NormalizeAddress(address string) string {
	address = strings.ToLower(address)
	address = punctuationRegexp.ReplaceAllString(address, "")
	fields := strings.Fields(address)
	for i, f := range fields {
		if short, ok := streetAbbreviations[f]; ok {
			fields[i] = short
		}
	}
	return strings.Join(fields, " ")
}

// Canonical property categories.
const (
	TypeApartment   = "apartment"
	TypeOffice      = "office"
	TypeRetail      = "retail"
	TypeIndustrial  = "industrial"
	TypeLand        = "land"
	TypeHospitality = "hospitality"
	TypeMixedUse    = "mixed-use"
)

var propertyTypeSynonyms = map[string]string{
	"apartment":          TypeApartment,
	"apartments":         TypeApartment,
	"apartment complex":  TypeApartment,
	"multi-family":       TypeApartment,
	"multifamily":        TypeApartment,
	"multi family":       TypeApartment,
	"residential income": TypeApartment,
	"office":             TypeOffice,
	"offices":            TypeOffice,
	"office building":    TypeOffice,
	"medical office":     TypeOffice,
	"retail":             TypeRetail,
	"shopping center":    TypeRetail,
	"strip center":       TypeRetail,
	"strip mall":         TypeRetail,
	"storefront":         TypeRetail,
	"restaurant":         TypeRetail,
	"industrial":         TypeIndustrial,
	"warehouse":          TypeIndustrial,
	"distribution":       TypeIndustrial,
	"manufacturing":      TypeIndustrial,
	"flex":               TypeIndustrial,
	"flex space":         TypeIndustrial,
	"land":               TypeLand,
	"vacant land":        TypeLand,
	"lot":                TypeLand,
	"acreage":            TypeLand,
	"hospitality":        TypeHospitality,
	"hotel":              TypeHospitality,
	"motel":              TypeHospitality,
	"mixed-use":          TypeMixedUse,
	"mixed use":          TypeMixedUse,
	"mixeduse":           TypeMixedUse,
}

// NormalizePropertyType maps known synonyms onto a canonical category.
// Unknown values pass through lowercased and trimmed.
func NormalizePropertyType(propertyType string) string {
	key := strings.Join(strings.Fields(strings.ToLower(propertyType)), " ")
	if canonical, ok := propertyTypeSynonyms[key]; ok {
		return canonical
	}
	return key
}

var stateCodes = map[string]string{
	"alabama":              "AL",
	"alaska":               "AK",
	"arizona":              "AZ",
	"arkansas":             "AR",
	"california":           "CA",
	"colorado":             "CO",
	"connecticut":          "CT",
	"delaware":             "DE",
	"district of columbia": "DC",
	"florida":              "FL",
	"georgia":              "GA",
	"hawaii":               "HI",
	"idaho":                "ID",
	"illinois":             "IL",
	"indiana":              "IN",
	"iowa":                 "IA",
	"kansas":               "KS",
	"kentucky":             "KY",
	"louisiana":            "LA",
	"maine":                "ME",
	"maryland":             "MD",
	"massachusetts":        "MA",
	"michigan":             "MI",
	"minnesota":            "MN",
	"mississippi":          "MS",
	"missouri":             "MO",
	"montana":              "MT",
	"nebraska":             "NE",
	"nevada":               "NV",
	"new hampshire":        "NH",
	"new jersey":           "NJ",
	"new mexico":           "NM",
	"new york":             "NY",
	"north carolina":       "NC",
	"north dakota":         "ND",
	"ohio":                 "OH",
	"oklahoma":             "OK",
	"oregon":               "OR",
	"pennsylvania":         "PA",
	"rhode island":         "RI",
	"south carolina":       "SC",
	"south dakota":         "SD",
	"tennessee":            "TN",
	"texas":                "TX",
	"utah":                 "UT",
	"vermont":              "VT",
	"virginia":             "VA",
	"washington":           "WA",
	"west virginia":        "WV",
	"wisconsin":            "WI",
	"wyoming":              "WY",
}

// NormalizeState returns the two-letter code for a full state name. Anything
// else is upper-cased as-is; unknown states are not rejected here.
func NormalizeState(state string) string {
	key := strings.Join(strings.Fields(strings.ToLower(state)), " ")
	if code, ok := stateCodes[key]; ok {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(state))
}

// NormalizeZipCode keeps the first five digits, left-padded with zeros.
func NormalizeZipCode(zip string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, zip)
	if len(digits) > 5 {
		digits = digits[:5]
	}
	return strings.Repeat("0", 5-len(digits)) + digits
}
