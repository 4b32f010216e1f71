package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugBaseLength = 60

// NewSlug builds a URL-safe slug from a recipe name followed by a short random suffix.
func NewSlug(name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	base := Slugify(name)
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

// Slugify lower-cases name, strips diacritics and joins words with dashes.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > maxSlugBaseLength {
		slug = strings.TrimSuffix(slug[:maxSlugBaseLength], "-")
	}
	return slug
}
