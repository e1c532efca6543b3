package cache

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// Fingerprint derives the cache key of a lookup URL within a site. URLs
// are compared case-insensitively by every match strategy, so the key is too.
func Fingerprint(url string, siteID uint64) string {
	var b strings.Builder
	b.Grow(len(url) + 21)
	b.WriteString(strconv.FormatUint(siteID, 10))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(url))

	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
