package player

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that do not decompose into a base letter plus a combining mark.
var foldReplacer = strings.NewReplacer(
	"ø", "o",
	"æ", "ae",
	"œ", "oe",
	"ß", "ss",
	"ł", "l",
	"đ", "d",
	"ð", "d",
	"þ", "th",
	"ı", "i",
	"'", "",
	"’", "",
)

// Normalize lower-cases value, strips diacritics and re-joins its word tokens with single spaces.
func Normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}

	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, value)
	if err != nil {
		stripped = value
	}
	stripped = foldReplacer.Replace(stripped)

	tokens := strings.FieldsFunc(stripped, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(tokens, " ")
}
