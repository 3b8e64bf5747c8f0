package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/caseta-bridge/internal/clock"
)

type handle struct{ id string }

type result struct {
	h   *handle
	err error
}

func newFakeBroker() (*Broker[*handle], *clock.Fake) {
	fake := clock.NewFake()
	return New[*handle](Options{Clock: fake}), fake
}

// getAsync starts a Get and waits until its timeout timer is armed, so the
// caller can advance the fake clock deterministically.
func getAsync(t *testing.T, ctx context.Context, b *Broker[*handle], fake *clock.Fake, hubID string) <-chan result {
	t.Helper()
	before := fake.Pending()
	out := make(chan result, 1)
	go func() {
		h, err := b.Get(ctx, hubID)
		out <- result{h, err}
	}()
	require.Eventually(t, func() bool { return fake.Pending() == before+1 },
		time.Second, time.Millisecond, "waiter never armed its timeout")
	return out
}

func receive(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("Get did not return")
		return result{}
	}
}

func TestBroker_GetAfterAddReturnsImmediately(t *testing.T) {
	b, fake := newFakeBroker()
	h := &handle{"a"}

	assert.False(t, b.Has("032E7E88"))
	assert.True(t, b.Add("032E7E88", h))
	assert.True(t, b.Has("032E7E88"))

	got, err := b.Get(context.Background(), "032E7E88")
	require.NoError(t, err)
	assert.Same(t, h, got)
	assert.Zero(t, fake.Pending(), "no timer for an already published hub")
}

func TestBroker_AddReleasesAllWaiters(t *testing.T) {
	b, fake := newFakeBroker()
	ctx := context.Background()

	waiters := []<-chan result{
		getAsync(t, ctx, b, fake, "HUB1"),
		getAsync(t, ctx, b, fake, "HUB1"),
		getAsync(t, ctx, b, fake, "HUB1"),
	}
	assert.Equal(t, 3, b.Pending("HUB1"))

	h := &handle{"hub1"}
	require.True(t, b.Add("HUB1", h))

	for _, w := range waiters {
		r := receive(t, w)
		require.NoError(t, r.err)
		assert.Same(t, h, r.h)
	}
	assert.Zero(t, b.Pending("HUB1"))
	require.Eventually(t, func() bool { return fake.Pending() == 0 },
		time.Second, time.Millisecond, "resolved waiters must stop their timers")
}

func TestBroker_AddIsIdempotent(t *testing.T) {
	b, _ := newFakeBroker()
	first, second := &handle{"first"}, &handle{"second"}

	assert.True(t, b.Add("HUB1", first))
	assert.False(t, b.Add("HUB1", second))

	got, ok := b.Lookup("HUB1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestBroker_WaiterTimesOut(t *testing.T) {
	b, fake := newFakeBroker()
	w := getAsync(t, context.Background(), b, fake, "HUB1")

	fake.Advance(DefaultTimeout - time.Millisecond)
	select {
	case r := <-w:
		t.Fatalf("Get returned early: %+v", r)
	default:
	}

	fake.Advance(time.Millisecond)
	r := receive(t, w)
	assert.True(t, errors.Is(r.err, ErrTimeout))
	assert.Contains(t, r.err.Error(), "timed out waiting for bridge to appear")
	assert.Zero(t, b.Pending("HUB1"))

	// A late publication does not touch the expired waiter.
	assert.True(t, b.Add("HUB1", &handle{"late"}))
}

func TestBroker_TimeoutsAreIndependent(t *testing.T) {
	b, fake := newFakeBroker()
	ctx := context.Background()

	early := getAsync(t, ctx, b, fake, "HUB1")
	fake.Advance(3 * time.Second)
	late := getAsync(t, ctx, b, fake, "HUB1")

	fake.Advance(2 * time.Second)
	assert.ErrorIs(t, receive(t, early).err, ErrTimeout)
	assert.Equal(t, 1, b.Pending("HUB1"))

	h := &handle{"hub1"}
	b.Add("HUB1", h)
	r := receive(t, late)
	require.NoError(t, r.err)
	assert.Same(t, h, r.h)
}

func TestBroker_WaitersAreKeyedByHub(t *testing.T) {
	b, fake := newFakeBroker()
	ctx := context.Background()

	other := getAsync(t, ctx, b, fake, "HUB2")
	b.Add("HUB1", &handle{"hub1"})

	assert.Equal(t, 1, b.Pending("HUB2"))
	fake.Advance(DefaultTimeout)
	assert.ErrorIs(t, receive(t, other).err, ErrTimeout)
}

func TestBroker_ContextCancelRemovesWaiter(t *testing.T) {
	b, fake := newFakeBroker()
	ctx, cancel := context.WithCancel(context.Background())

	w := getAsync(t, ctx, b, fake, "HUB1")
	cancel()

	r := receive(t, w)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Zero(t, b.Pending("HUB1"))
}

func TestBroker_Hubs(t *testing.T) {
	b, _ := newFakeBroker()
	b.Add("B", &handle{})
	b.Add("A", &handle{})

	assert.Equal(t, []string{"A", "B"}, b.Hubs())
}

func TestBroker_RealClockTimeout(t *testing.T) {
	b := New[string](Options{Timeout: 10 * time.Millisecond})

	start := time.Now()
	_, err := b.Get(context.Background(), "HUB1")

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Zero(t, b.Pending("HUB1"))
}
