package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

func RateLimitKey(subject string) string {
	return fmt.Sprintf("ratelimit:%s", subject)
}

// PhishingVerdictKey keys a cached LLM verdict by content type and a digest of
// the content, so raw text never lands in Redis key space.
func PhishingVerdictKey(contentType, content string) string {
	sum := sha256.Sum256([]byte(contentType + "|" + content))
	return fmt.Sprintf("phishing:%s", hex.EncodeToString(sum[:]))
}
