package lock

import (
	"context"
	"fmt"

	"github.com/amirasaad/retailpay/pkg/domain"
)

// ErrLockTimeout is returned when a keyed lock could not be acquired before
// the context deadline.
var ErrLockTimeout = fmt.Errorf("lock wait: %w", domain.ErrTimeout)

// Locker serializes work per key. The returned release function must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}
