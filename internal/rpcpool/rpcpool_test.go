package rpcpool

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(endpoints []Endpoint, resetAfter time.Duration) *Pool {
	p := &Pool{
		maxAttempts:       len(endpoints) * 2,
		failureResetAfter: resetAfter,
		rng:               rand.New(rand.NewSource(1)),
	}
	for _, e := range endpoints {
		p.endpoints = append(p.endpoints, &endpointState{cfg: e})
	}
	return p
}

// TestEndpointFailover is seed scenario 6: with two endpoints, a transport
// error on the first bumps its failure counter without affecting the
// second, and an endpoint still under MaxRetries remains selectable.
func TestEndpointFailover(t *testing.T) {
	p := newTestPool([]Endpoint{
		{URL: "a", Weight: 1, MaxRetries: 3},
		{URL: "b", Weight: 1, MaxRetries: 3},
	}, time.Hour)

	first := p.endpoints[0]
	second := p.endpoints[1]

	p.recordFailure(first)
	assert.Equal(t, 1, first.failureCount)
	assert.Equal(t, 0, second.failureCount)

	// Both endpoints are still under MaxRetries, so either may still be picked.
	ep, err := p.pick(nil)
	require.NoError(t, err)
	assert.NotNil(t, ep)
}

func TestFailureCounterResetsAfterWallClock(t *testing.T) {
	p := newTestPool([]Endpoint{{URL: "a", Weight: 1, MaxRetries: 1}}, 10*time.Millisecond)

	ep := p.endpoints[0]
	p.recordFailure(ep)
	assert.Equal(t, 1, ep.failureCount)

	// Endpoint is unhealthy (failureCount >= MaxRetries) until the reset window elapses.
	_, err := p.pick(nil)
	assert.Error(t, err)

	time.Sleep(20 * time.Millisecond)

	picked, err := p.pick(nil)
	require.NoError(t, err)
	assert.Equal(t, ep, picked)
	assert.Equal(t, 0, ep.failureCount, "counter resets unconditionally after failure_reset_seconds")
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	p := newTestPool([]Endpoint{{URL: "a", Weight: 1, MaxRetries: 3}}, time.Hour)
	ep := p.endpoints[0]
	p.recordFailure(ep)
	p.recordFailure(ep)
	assert.Equal(t, 2, ep.failureCount)

	p.recordSuccess(ep)
	assert.Equal(t, 0, ep.failureCount)
}

func TestPickErrorsWhenAllUnhealthy(t *testing.T) {
	p := newTestPool([]Endpoint{{URL: "a", Weight: 1, MaxRetries: 1}}, 0)
	ep := p.endpoints[0]
	p.recordFailure(ep)

	_, err := p.pick(nil)
	assert.Error(t, err)
}

func TestExcludeSkipsEndpoint(t *testing.T) {
	p := newTestPool([]Endpoint{
		{URL: "a", Weight: 1, MaxRetries: 3},
		{URL: "b", Weight: 1, MaxRetries: 3},
	}, time.Hour)

	ep, err := p.pick(map[*endpointState]bool{p.endpoints[0]: true})
	require.NoError(t, err)
	assert.Equal(t, p.endpoints[1], ep)
}
