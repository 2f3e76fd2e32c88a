package ingest

import (
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/engramhq/engram/internal/privacy"
)

// sanitize strips non-printable runes (preserving newline, tab, carriage
// return) and redacts secret-shaped substrings in place, logging a warning
// for every match rather than rejecting the record outright.
func sanitize(text string, tags []string, log zerolog.Logger) (string, []string) {
	cleaned := stripNonPrintable(text)

	if privacy.ContainsSecretsInAny(cleaned, tags) {
		log.Warn().Msg("redacted secret-shaped substring from ingested text")
		cleaned = privacy.RedactSecrets(cleaned)
		for i, tag := range tags {
			tags[i] = privacy.RedactSecrets(tag)
		}
	}

	return cleaned, tags
}

func stripNonPrintable(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch r {
		case '\n', '\t', '\r':
			b.WriteRune(r)
		default:
			if unicode.IsPrint(r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
