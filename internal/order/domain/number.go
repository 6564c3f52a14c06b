package domain

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewNumber returns the public order reference, ORD- followed by a ULID.
// It sorts by creation time and is what gateways see as the merchant
// reference.
func NewNumber(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return "ORD-" + ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
