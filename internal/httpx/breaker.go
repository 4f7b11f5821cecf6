package httpx

import (
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// Breakers holds one circuit breaker per upstream host, so a dead API on
// one side stops consuming retries while the other sources keep going.
type Breakers struct {
	mu sync.RWMutex
	m  map[string]*circuit.Breaker
}

// NewBreakers creates an empty breaker set.
func NewBreakers() *Breakers {
	return &Breakers{m: make(map[string]*circuit.Breaker)}
}

// get returns or creates the circuit breaker for the given host.
func (b *Breakers) get(host string) *circuit.Breaker {
	b.mu.RLock()
	br, ok := b.m[host]
	b.mu.RUnlock()

	if ok {
		return br
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Double-check after acquiring write lock
	if br, ok := b.m[host]; ok {
		return br
	}

	// Trips after 5 consecutive failures; reset probes back off
	// exponentially from 30s up to 5m.
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	br = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	})

	b.m[host] = br
	return br
}

// States reports each known host's breaker state (for logging and health
// output).
func (b *Breakers) States() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]string, len(b.m))
	for host, br := range b.m {
		if br.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}
