package certificate

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator generates unique ids for render sessions.
// Interface allows fixed ids in tests.
type IDGenerator interface {
	Generate() string
}

// ULIDGenerator generates ULIDs. Ids created later sort after earlier ones,
// so leftover browser profiles can be told apart by age.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator creates a ULID generator with monotonic entropy.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID string.
// Format: 01HQX7Z9PMRGWKT8HHFQNR3XYZ (26 characters)
func (g *ULIDGenerator) Generate() string {
	// MonotonicEntropy is not safe for concurrent use.
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
