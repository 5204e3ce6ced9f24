package proposal

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeSlug turns a free-form client or project name into the lowercase,
// accent-free, hyphen-separated form used in directory and file names.
func NormalizeSlug(text string) string {
	decomposed := norm.NFD.String(text)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		switch {
		case r == ' ' || r == '_':
			b.WriteByte('-')
		case r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	slug := b.String()
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// DirName builds the proposal directory name: yyyy-mm-{client}-{project}.
func DirName(yearMonth, clientSlug, projectSlug string) string {
	return fmt.Sprintf("%s-%s-%s", yearMonth, clientSlug, projectSlug)
}

// FileName builds the document file name: proposta-{client}-{project}.yml.
func FileName(clientSlug, projectSlug string) string {
	return fmt.Sprintf("proposta-%s-%s.yml", clientSlug, projectSlug)
}
