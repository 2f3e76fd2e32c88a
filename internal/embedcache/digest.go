package embedcache

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// digest computes a 128-bit cache key for text: two independently-seeded
// 64-bit xxhash passes combined into 16 bytes, hex-encoded. This substitutes
// for the reference implementation's blake2b(text, digest_size=16) digest —
// xxhash is the pack's actual fast-hash dependency, blake2b is not used
// anywhere in the example corpus.
func digest(text string) string {
	h1 := xxhash.Sum64String(text)
	h2 := xxhash.Sum64String("engram-embed-cache-v1\x00" + text)

	buf := make([]byte, 16)
	putUint64(buf[0:8], h1)
	putUint64(buf[8:16], h2)
	return hex.EncodeToString(buf)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}
