package queue

import (
	"math/rand"
	"sync"
	"time"
)

const jitterWindow = 250 * time.Millisecond

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// backoffFor returns the delay before the given retry attempt (1-based):
// exponential doubling from base, capped at max, plus a small jitter so
// simultaneous failures do not retry in lockstep.
func backoffFor(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			delay = max
			break
		}
	}
	if max > 0 && delay > max {
		delay = max
	}
	return delay + jitter()
}

func jitter() time.Duration {
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
