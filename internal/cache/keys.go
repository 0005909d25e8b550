package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RunStatusKey(orgID, runID uuid.UUID) string {
	return fmt.Sprintf("run:%s:%s", orgID, runID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// ResultKey addresses a serialized result. Results are immutable, so entries
// never need invalidation.
func ResultKey(orgID, resultID uuid.UUID) string {
	return fmt.Sprintf("result:%s:%s", orgID, resultID)
}
