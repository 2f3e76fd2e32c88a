package ingest

import (
	"unicode/utf8"

	"github.com/engramhq/engram/internal/engramerr"
)

const (
	maxTextChars = 100_000
	maxTags      = 50
)

func validate(text string, tags []string) error {
	if text == "" {
		return engramerr.ValidationErrorf("text must not be empty")
	}
	if utf8.RuneCountInString(text) > maxTextChars {
		return engramerr.ValidationErrorf("text exceeds maximum length of %d characters", maxTextChars)
	}
	if len(tags) > maxTags {
		return engramerr.ValidationErrorf("too many tags: %d exceeds maximum of %d", len(tags), maxTags)
	}
	return nil
}
