// Package normalize canonicalizes address components and derives the
// address-identity digest used for caching and clustering.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"rollguard/internal/address/models"
)

var abbreviations = map[string]string{
	"st":    "street",
	"str":   "street",
	"rd":    "road",
	"ave":   "avenue",
	"av":    "avenue",
	"ln":    "lane",
	"blvd":  "boulevard",
	"dr":    "drive",
	"ct":    "court",
	"pl":    "place",
	"sq":    "square",
	"hwy":   "highway",
	"apt":   "apartment",
	"bldg":  "building",
	"fl":    "floor",
	"no":    "number",
	"opp":   "opposite",
	"nr":    "near",
	"ext":   "extension",
	"sec":   "sector",
	"dist":  "district",
	"po":    "post office",
	"n":     "north",
	"s":     "south",
	"e":     "east",
	"w":     "west",
	"ne":    "northeast",
	"nw":    "northwest",
	"se":    "southeast",
	"sw":    "southwest",
	"mg":    "mahatma gandhi",
	"colny": "colony",
	"ngr":   "nagar",
}

// Text folds diacritics, lower-cases, drops punctuation other than - / #,
// collapses whitespace and expands common abbreviations token by token.
func Text(s string) string {
	folded := fold(s)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == '-' || r == '/' || r == '#':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	for i, tok := range tokens {
		if full, ok := abbreviations[tok]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

// PostalCode keeps only the digits and letters of a postal code.
func PostalCode(s string) string {
	var b strings.Builder
	for _, r := range fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Components normalizes every component.
func Components(c models.Components) models.Components {
	return models.Components{
		HouseNumber: Text(c.HouseNumber),
		Street:      Text(c.Street),
		Locality:    Text(c.Locality),
		District:    Text(c.District),
		State:       Text(c.State),
		PostalCode:  PostalCode(c.PostalCode),
	}
}

// Canonical joins the non-empty normalized components with ", ".
func Canonical(normalized models.Components) string {
	parts := make([]string, 0, 6)
	for _, v := range normalized.Values() {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// Digest is the hex SHA-256 of the canonical string.
func Digest(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Address normalizes c and returns the normalized components, the canonical
// string and its digest.
func Address(c models.Components) (models.Components, string, string) {
	normalized := Components(c)
	canonical := Canonical(normalized)
	return normalized, canonical, Digest(canonical)
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
