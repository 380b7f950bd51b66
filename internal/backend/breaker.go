package backend

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the backend while the breaker
// is open.
var ErrCircuitOpen = errors.New("backend unavailable: circuit breaker is open")

// BreakerState is the position of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	}
	return "unknown"
}

// BreakerConfig tunes a Breaker. Zero fields take the defaults of
// DefaultBreakerConfig.
type BreakerConfig struct {
	Threshold int           // consecutive failures that open the breaker
	Probes    int           // successful probes needed to close it again
	Cooldown  time.Duration // time spent open before probing

	// OnChange is called synchronously, in transition order, after the
	// breaker's lock is released. It must not call back into the Breaker.
	OnChange func(from, to BreakerState)
}

// DefaultBreakerConfig opens after 5 failures, waits 30s, then closes after
// 2 successful probes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Probes: 2, Cooldown: 30 * time.Second}
}

// Breaker fails backend calls fast while the backend keeps erroring. It never
// retries. While probing, one call at a time is let through.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     BreakerState
	epoch     uint64 // bumped on every transition
	streak    int    // consecutive failures while closed, successes while probing
	probing   bool
	openUntil time.Time

	hookMu sync.Mutex
}

// Ticket is one call admitted by Acquire. Exactly one of Report or Release
// must be called on it. Outcomes of tickets issued before the breaker last
// changed state are ignored.
type Ticket struct {
	b     *Breaker
	epoch uint64
	probe bool
}

type transition struct{ from, to BreakerState }

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Probes <= 0 {
		cfg.Probes = def.Probes
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Acquire asks to make one call.
func (b *Breaker) Acquire() (Ticket, error) {
	b.mu.Lock()

	var tr *transition
	if b.state == BreakerOpen {
		if b.now().Before(b.openUntil) {
			b.mu.Unlock()
			return Ticket{}, ErrCircuitOpen
		}
		tr = b.move(BreakerProbing)
	}

	t := Ticket{b: b, epoch: b.epoch}
	if b.state == BreakerProbing {
		if b.probing {
			b.unlock(tr)
			return Ticket{}, ErrCircuitOpen
		}
		b.probing = true
		t.probe = true
	}
	b.unlock(tr)
	return t, nil
}

// Report records the outcome of the call. A nil err is a success.
func (t Ticket) Report(err error) {
	b := t.b
	if b == nil {
		return
	}
	b.mu.Lock()
	if t.epoch != b.epoch {
		b.mu.Unlock()
		return
	}

	var tr *transition
	switch {
	case b.state == BreakerClosed:
		if err == nil {
			b.streak = 0
			break
		}
		b.streak++
		if b.streak >= b.cfg.Threshold {
			tr = b.move(BreakerOpen)
		}
	case b.state == BreakerProbing && t.probe:
		b.probing = false
		if err != nil {
			tr = b.move(BreakerOpen)
			break
		}
		b.streak++
		if b.streak >= b.cfg.Probes {
			tr = b.move(BreakerClosed)
		}
	}
	b.unlock(tr)
}

// Release gives the call back without an outcome, for calls the caller
// abandoned.
func (t Ticket) Release() {
	b := t.b
	if b == nil || !t.probe {
		return
	}
	b.mu.Lock()
	if t.epoch == b.epoch {
		b.probing = false
	}
	b.mu.Unlock()
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// move must be called with mu held. It returns nil when the state is unchanged.
func (b *Breaker) move(to BreakerState) *transition {
	from := b.state
	b.state = to
	b.epoch++
	b.streak = 0
	b.probing = false
	if to == BreakerOpen {
		b.openUntil = b.now().Add(b.cfg.Cooldown)
	}
	if from == to {
		return nil
	}
	return &transition{from: from, to: to}
}

// unlock releases mu and then reports tr to OnChange. hookMu is taken before
// mu is released so hooks run in the order the transitions happened.
func (b *Breaker) unlock(tr *transition) {
	if tr == nil || b.cfg.OnChange == nil {
		b.mu.Unlock()
		return
	}
	b.hookMu.Lock()
	b.mu.Unlock()
	defer b.hookMu.Unlock()
	b.cfg.OnChange(tr.from, tr.to)
}
