package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ListingInfo is the result of running the heuristic extractor over a free-text
// property description. Pointer fields are nil when nothing matched.
type ListingInfo struct {
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description"`
	Price        *float64 `json:"price,omitempty"`
	Size         *float64 `json:"size,omitempty"`
	Location     *string  `json:"location,omitempty"`
	PropertyType string   `json:"propertyType"`
	TypeMatched  bool     `json:"typeMatched"`
	Confidence   float64  `json:"confidence"`
}

// Pattern lists are evaluated in order, first match wins. Earlier, more
// specific patterns take priority over the generic trailing ones; the order is
// a deliberate tie-break policy, so do not merge them into one expression.
var (
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`prix[:\s]*(\d+(?:\.\d+)?)\s*(?:€|euros?|fcfa)`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:€|euros?|fcfa)`),
		regexp.MustCompile(`(?:coût|prix)[:\s]*(\d+(?:\.\d+)?)`),
	}

	sizePatterns = []*regexp.Regexp{
		regexp.MustCompile(`taille[:\s]*(\d+(?:\.\d+)?)\s*(?:m²|m2|mètres?\s*carrés?)`),
		regexp.MustCompile(`superficie[:\s]*(\d+(?:\.\d+)?)\s*(?:m²|m2)`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:m²|m2)`),
	}

	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)localisation[:\s]*([^\n,]+)`),
		regexp.MustCompile(`(?i)adresse[:\s]*([^\n,]+)`),
		regexp.MustCompile(`(?i)situé(?:e|es|s)?\s+à[:\s]*([^\n,]+)`),
		regexp.MustCompile(`(?i)lieu[:\s]*([^\n,]+)`),
		regexp.MustCompile(`(?i)(?:^|\s)à\s+([^\n,]+)`),
	}
)

// typeKeywords maps French keywords to the canonical property type codes.
// Ordered: the first keyword found in the text decides.
var typeKeywords = []struct {
	keyword string
	code    string
}{
	{"terrain", "land"},
	{"maison", "house"},
	{"appartement", "apartment"},
	{"local commercial", "commercial"},
	{"bureau", "commercial"},
	{"studio", "apartment"},
	{"villa", "house"},
}

var typeFrench = map[string]string{
	"land":       "Terrain",
	"house":      "Maison",
	"apartment":  "Appartement",
	"commercial": "Local commercial",
}

// ParseListing extracts structured property information from free text.
// Deterministic and side-effect free. The confidence score is a [0,1] estimate
// of extraction completeness, not a probability.
func ParseListing(text string) ListingInfo {
	lower := strings.ToLower(text)

	info := ListingInfo{
		Description:  text,
		PropertyType: "land", // default when no keyword matches
	}

	confidence := 0.0

	if price, ok := extractNumber(lower, pricePatterns); ok {
		info.Price = &price
		confidence += 0.3
	}

	if size, ok := extractNumber(lower, sizePatterns); ok {
		info.Size = &size
		confidence += 0.2
	}

	// Location keeps the original casing.
	if location, ok := extractLocation(text); ok {
		info.Location = &location
		confidence += 0.2
	}

	if code, ok := detectPropertyType(lower); ok {
		info.PropertyType = code
		info.TypeMatched = true
		confidence += 0.2
	}

	// Title synthesis needs both a type and a location.
	if info.TypeMatched && info.Location != nil {
		info.Title = typeFrench[info.PropertyType] + " à " + *info.Location
		confidence += 0.1
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	info.Confidence = confidence

	return info
}

func extractNumber(text string, patterns []*regexp.Regexp) (float64, bool) {
	for _, pattern := range patterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		return value, true
	}
	return 0, false
}

func extractLocation(text string) (string, bool) {
	for _, pattern := range locationPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		location := strings.TrimSpace(match[1])
		location = strings.TrimRight(location, ".!?")
		// Too-short captures are noise, keep looking. Counted in runes so
		// accented names are measured like the user typed them.
		if utf8.RuneCountInString(location) > 3 {
			return location, true
		}
	}
	return "", false
}

func detectPropertyType(text string) (string, bool) {
	for _, entry := range typeKeywords {
		if strings.Contains(text, entry.keyword) {
			return entry.code, true
		}
	}
	return "", false
}
