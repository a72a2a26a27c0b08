package provider

import (
	"context"
	"sync"
	"time"

	"github.com/listsync/internal/logging"
	"github.com/listsync/internal/models"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	// BreakerClosed means calls to the list provider are allowed
	BreakerClosed BreakerState = "closed"
	// BreakerOpen means calls are short-circuited without hitting the provider
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen means a limited number of probe calls are allowed
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig configures a Breaker
type BreakerConfig struct {
	ConsecutiveFailures int
	CooldownPeriod      time.Duration
	HalfOpenProbes      int
}

// DefaultBreakerConfig returns a default breaker configuration
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		ConsecutiveFailures: 5,
		CooldownPeriod:      30 * time.Second,
		HalfOpenProbes:      2,
	}
}

// Breaker trips after a run of transient provider failures so that queued
// operations stop hammering a remote that is already down. Permanent errors
// (validation, not found, duplicates) never count against the breaker: the
// provider answered, it just said no.
type Breaker struct {
	consecutiveFailures int
	cooldown            time.Duration
	halfOpenProbes      int

	mu              sync.Mutex
	state           BreakerState
	failures        int
	probeSuccesses  int
	probesInFlight  int
	lastStateChange time.Time
}

// NewBreaker creates a breaker in the closed state
func NewBreaker(config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{
		consecutiveFailures: config.ConsecutiveFailures,
		cooldown:            config.CooldownPeriod,
		halfOpenProbes:      config.HalfOpenProbes,
		state:               BreakerClosed,
		lastStateChange:     time.Now(),
	}
}

// State returns the current breaker state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// allow reports whether a call may proceed. Returns a remote-unavailable
// error when the circuit is open.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if time.Since(b.lastStateChange) > b.cooldown {
			b.setState(BreakerHalfOpen)
			b.probeSuccesses = 0
			b.probesInFlight = 0
			logging.WithField("state", string(BreakerHalfOpen)).Info("Provider breaker allowing probe calls")
			b.probesInFlight++
			return nil
		}
		return NewTransientError(CodeRemoteDown, "list provider circuit is open", nil)
	case BreakerHalfOpen:
		if b.probesInFlight >= b.halfOpenProbes {
			return NewTransientError(CodeRemoteDown, "list provider circuit is probing", nil)
		}
		b.probesInFlight++
		return nil
	}
	return nil
}

// record feeds the outcome of a provider call back into the breaker
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen && b.probesInFlight > 0 {
		b.probesInFlight--
	}

	// Only transient failures indicate the provider itself is unhealthy.
	if err != nil && !IsTransient(err) {
		err = nil
	}

	if err == nil {
		b.failures = 0
		if b.state == BreakerHalfOpen {
			b.probeSuccesses++
			if b.probeSuccesses >= b.halfOpenProbes {
				b.setState(BreakerClosed)
				logging.WithField("state", string(BreakerClosed)).Info("Provider breaker closed after recovery")
			}
		}
		return
	}

	b.failures++
	switch b.state {
	case BreakerClosed:
		if b.failures >= b.consecutiveFailures {
			b.setState(BreakerOpen)
			logging.WithFields(map[string]interface{}{
				"state":    string(BreakerOpen),
				"failures": b.failures,
			}).Warn("Provider breaker opened after consecutive transient failures")
		}
	case BreakerHalfOpen:
		b.setState(BreakerOpen)
		logging.WithField("state", string(BreakerOpen)).Warn("Provider breaker reopened after failed probe")
	}
}

func (b *Breaker) setState(state BreakerState) {
	b.state = state
	b.lastStateChange = time.Now()
}

// Reset forces the breaker back to the closed state
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(BreakerClosed)
	b.failures = 0
	b.probeSuccesses = 0
	b.probesInFlight = 0
}

// BreakerClient wraps a ListClient with circuit breaker protection. When the
// circuit is open every call fails fast with a transient remote-unavailable
// error, which the queue treats like any other outage: operations stay
// pending and back off.
type BreakerClient struct {
	client  ListClient
	breaker *Breaker
}

// NewBreakerClient wraps client with the given breaker
func NewBreakerClient(client ListClient, breaker *Breaker) *BreakerClient {
	if breaker == nil {
		breaker = NewBreaker(nil)
	}
	return &BreakerClient{client: client, breaker: breaker}
}

// Breaker exposes the underlying breaker for health reporting
func (c *BreakerClient) Breaker() *Breaker {
	return c.breaker
}

func (c *BreakerClient) call(fn func() error) error {
	if err := c.breaker.allow(); err != nil {
		return err
	}
	err := fn()
	c.breaker.record(err)
	return err
}

func (c *BreakerClient) CreateList(ctx context.Context, ownerID, name, description string, isPublic bool) (*models.RemoteList, error) {
	var list *models.RemoteList
	err := c.call(func() error {
		var callErr error
		list, callErr = c.client.CreateList(ctx, ownerID, name, description, isPublic)
		return callErr
	})
	return list, err
}

func (c *BreakerClient) UpdateList(ctx context.Context, listID, ownerID string, fields ListFields) (*models.RemoteList, error) {
	var list *models.RemoteList
	err := c.call(func() error {
		var callErr error
		list, callErr = c.client.UpdateList(ctx, listID, ownerID, fields)
		return callErr
	})
	return list, err
}

func (c *BreakerClient) DeleteList(ctx context.Context, listID, ownerID string) error {
	return c.call(func() error {
		return c.client.DeleteList(ctx, listID, ownerID)
	})
}

func (c *BreakerClient) ClearList(ctx context.Context, listID, ownerID string) error {
	return c.call(func() error {
		return c.client.ClearList(ctx, listID, ownerID)
	})
}

func (c *BreakerClient) AddMovie(ctx context.Context, listID, ownerID string, movieID int64) error {
	return c.call(func() error {
		return c.client.AddMovie(ctx, listID, ownerID, movieID)
	})
}

func (c *BreakerClient) RemoveMovie(ctx context.Context, listID, ownerID string, movieID int64) error {
	return c.call(func() error {
		return c.client.RemoveMovie(ctx, listID, ownerID, movieID)
	})
}

func (c *BreakerClient) FetchList(ctx context.Context, listID, ownerID string) (*models.RemoteList, error) {
	var list *models.RemoteList
	err := c.call(func() error {
		var callErr error
		list, callErr = c.client.FetchList(ctx, listID, ownerID)
		return callErr
	})
	return list, err
}

func (c *BreakerClient) FetchListMovies(ctx context.Context, listID, ownerID string) ([]int64, error) {
	var movies []int64
	err := c.call(func() error {
		var callErr error
		movies, callErr = c.client.FetchListMovies(ctx, listID, ownerID)
		return callErr
	})
	return movies, err
}
