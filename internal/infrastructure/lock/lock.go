// Package lock provides the run-level mutual exclusion of the pipeline: a
// Redis lock shared across instances and an in-process fallback.
package lock

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
)

// ErrNotHeld is returned by Release when the token no longer owns the lock.
var ErrNotHeld = errors.New("lock: not held by this token")

// DefaultKey is the lock key of the sync pipeline.
const DefaultKey = "pnv:catalog-sync:run"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newToken returns a unique owner token.
func newToken() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}
