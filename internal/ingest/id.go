package ingest

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// assignID derives a 16-hex-character identifier from text, the current
// wall-clock time, and a random salt, so repeated identical text ingested
// at different times never collides.
func assignID(text string, now time.Time) string {
	salt := uuid.New()

	h, _ := blake2b.New(8, nil)
	h.Write([]byte(text))
	h.Write([]byte(now.Format(time.RFC3339Nano)))
	h.Write(salt[:])

	return hex.EncodeToString(h.Sum(nil))
}
