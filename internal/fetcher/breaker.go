package fetcher

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrHostSuspended is returned when a request is rejected because its host
// recently failed too many times in a row.
var ErrHostSuspended = eris.New("fetcher: host suspended after repeated failures")

// breakerSet holds one failure counter per host. A host that keeps failing
// gets suspended for a cool-down instead of burning the rate-limit budget
// the remaining platforms share.
type breakerSet struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	threshold int
	cooldown  time.Duration

	now func() time.Time // test injection
}

type hostState struct {
	failures    int
	suspendedAt time.Time
}

func newBreakerSet(threshold int, cooldown time.Duration) *breakerSet {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &breakerSet{
		hosts:     make(map[string]*hostState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// allow reports whether the host may be called. A suspended host becomes
// callable again once the cool-down has elapsed; the next call is the probe
// that either resets it or suspends it again.
func (b *breakerSet) allow(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.hosts[host]
	if !ok || s.failures < b.threshold {
		return true
	}
	return b.now().Sub(s.suspendedAt) >= b.cooldown
}

func (b *breakerSet) record(host string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.hosts[host]
	if !ok {
		s = &hostState{}
		b.hosts[host] = s
	}

	if err == nil {
		s.failures = 0
		return
	}

	s.failures++
	if s.failures == b.threshold {
		s.suspendedAt = b.now()
		zap.L().Warn("suspending host",
			zap.String("host", host),
			zap.Int("failures", s.failures),
			zap.Duration("cooldown", b.cooldown),
		)
	} else if s.failures > b.threshold {
		// Failed probe: restart the cool-down.
		s.suspendedAt = b.now()
	}
}
