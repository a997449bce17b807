package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreakerWithWindow(maxFailures, 10*time.Second, time.Minute)
	cb.now = clock.now
	return cb, clock
}

var errBackend = errors.New("connection refused")

func fail() error    { return errBackend }
func succeed() error { return nil }

func TestOpensAfterTooManyFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)

	for i := 0; i < 3; i++ {
		assert.Equal(t, errBackend, cb.Execute(fail))
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestHalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(0)
	cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.GetState())

	clock.advance(11 * time.Second)
	assert.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateClosed, cb.GetState())

	cb.Execute(fail)
	clock.advance(11 * time.Second)
	cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestFailuresOutsideWindowAreForgotten(t *testing.T) {
	cb, clock := newTestBreaker(1)
	cb.Execute(fail)
	clock.advance(2 * time.Minute)
	cb.Execute(fail)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCountOnly(t *testing.T) {
	cb, _ := newTestBreaker(0)
	notCounted := errors.New("not found")
	cb.CountOnly(func(err error) bool { return errors.Is(err, errBackend) })

	assert.Equal(t, notCounted, cb.Execute(func() error { return notCounted }))
	assert.Equal(t, StateClosed, cb.GetState())

	cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
