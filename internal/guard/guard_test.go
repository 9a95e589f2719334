package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leochui/tifa-api/internal/store"
)

type recordingNotifier struct {
	events []string
	ips    []string
}

func (n *recordingNotifier) Notify(event, ip string) {
	n.events = append(n.events, event)
	n.ips = append(n.ips, ip)
}

// newTestGovernor wires a governor and its store to one fake clock.
func newTestGovernor(t *testing.T, cfg Config, alerts Notifier) (*Governor, *time.Time) {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := store.NewMemoryStore()
	st.SetClock(func() time.Time { return now })
	t.Cleanup(func() { _ = st.Close() })

	g := New(st, cfg, alerts)
	g.SetClock(func() time.Time { return now })
	return g, &now
}

func TestCooldownRejection(t *testing.T) {
	g, now := newTestGovernor(t, Config{}, nil)
	ctx := context.Background()
	id := Identity{IP: "203.0.113.7", SessionID: "sess-1"}

	d, err := g.Check(ctx, id)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	*now = now.Add(5 * time.Second)

	d, err = g.Check(ctx, id)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonCooldown, d.Reason)
	assert.Equal(t, 25, d.RetryAfter)
}

func TestCooldownWindowReset(t *testing.T) {
	g, now := newTestGovernor(t, Config{}, nil)
	ctx := context.Background()
	id := Identity{IP: "203.0.113.7", SessionID: "sess-1"}

	d, err := g.Check(ctx, id)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	*now = now.Add(31 * time.Second)

	d, err = g.Check(ctx, id)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "request after the cooldown window must be admitted")
}

func TestRateLimitExhaustion(t *testing.T) {
	cfg := Config{
		Cooldown:    time.Second,
		GlobalLimit: 3,
		LimitWindow: time.Hour,
	}
	g, now := newTestGovernor(t, cfg, nil)
	ctx := context.Background()
	id := Identity{IP: "203.0.113.7", SessionID: "sess-1"}

	for i := 0; i < 3; i++ {
		*now = now.Add(2 * time.Second)
		d, err := g.Check(ctx, id)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d should be admitted", i+1)
	}

	*now = now.Add(2 * time.Second)
	d, err := g.Check(ctx, id)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRateLimited, d.Reason)
	assert.Greater(t, d.RetryAfter, 0)
}

func TestRateLimitWindowReset(t *testing.T) {
	cfg := Config{
		Cooldown:    time.Second,
		GlobalLimit: 1,
		LimitWindow: time.Minute,
	}
	g, now := newTestGovernor(t, cfg, nil)
	ctx := context.Background()
	id := Identity{IP: "203.0.113.7", SessionID: "sess-1"}

	d, err := g.Check(ctx, id)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	*now = now.Add(5 * time.Second)
	d, err = g.Check(ctx, id)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Past the window the counter must reflect only the new request.
	*now = now.Add(2 * time.Minute)
	d, err = g.Check(ctx, id)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestBanEscalation(t *testing.T) {
	alerts := &recordingNotifier{}
	g, now := newTestGovernor(t, Config{}, alerts)
	ctx := context.Background()
	id := Identity{IP: "198.51.100.4", SessionID: "sess-2"}

	var last Decision
	for i := 0; i < 6; i++ {
		*now = now.Add(31 * time.Second)
		d, err := g.Check(ctx, id)
		require.NoError(t, err)
		require.True(t, d.Allowed)

		// Immediate retry violates the cooldown and earns a strike.
		*now = now.Add(time.Second)
		last, err = g.Check(ctx, id)
		require.NoError(t, err)
		require.False(t, last.Allowed)
	}

	assert.Equal(t, ReasonBanned, last.Reason)
	assert.InDelta(t, 1800, last.RetryAfter, 1)
	assert.Contains(t, alerts.events, EventBanIssued)

	// Next request hits the ban gate directly.
	*now = now.Add(time.Minute)
	d, err := g.Check(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ReasonBanned, d.Reason)
	assert.InDelta(t, 1740, d.RetryAfter, 1)
	assert.Contains(t, alerts.events, EventBanActive)
}

func TestBanIsIdempotent(t *testing.T) {
	g, now := newTestGovernor(t, Config{}, nil)
	ctx := context.Background()
	ip := "198.51.100.9"

	// Drive the IP into a ban.
	var state abuseState
	var err error
	for i := 0; i < DefaultStrikeLimit; i++ {
		state, err = g.registerStrike(ctx, ip)
		require.NoError(t, err)
	}
	require.Positive(t, state.BannedUntil)
	banned := state.BannedUntil

	// Further strikes while banned must not move the ban or the window.
	*now = now.Add(5 * time.Minute)
	for i := 0; i < 10; i++ {
		state, err = g.registerStrike(ctx, ip)
		require.NoError(t, err)
		assert.Equal(t, banned, state.BannedUntil)
		assert.Zero(t, state.Strikes)
	}
}

func TestStrikeWindowExpiry(t *testing.T) {
	g, now := newTestGovernor(t, Config{}, nil)
	ctx := context.Background()
	ip := "198.51.100.10"

	state, err := g.registerStrike(ctx, ip)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Strikes)

	// After the strike window, the counter starts over.
	*now = now.Add(11 * time.Minute)
	state, err = g.registerStrike(ctx, ip)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Strikes)
	assert.Zero(t, state.BannedUntil)
}

func TestAllowlistBypass(t *testing.T) {
	cfg := Config{AllowIPs: []string{"192.0.2.1"}}
	g, now := newTestGovernor(t, cfg, nil)
	ctx := context.Background()
	id := Identity{IP: "192.0.2.1", SessionID: "sess-3"}

	// Rapid-fire requests from an allowlisted IP are never rejected.
	for i := 0; i < 20; i++ {
		*now = now.Add(time.Second)
		d, err := g.Check(ctx, id)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestCooldownViolationAlerts(t *testing.T) {
	alerts := &recordingNotifier{}
	g, now := newTestGovernor(t, Config{}, alerts)
	ctx := context.Background()
	id := Identity{IP: "203.0.113.44", SessionID: "sess-4"}

	d, err := g.Check(ctx, id)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	*now = now.Add(time.Second)
	d, err = g.Check(ctx, id)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NotEmpty(t, alerts.events)
	assert.Equal(t, EventCooldownViolation, alerts.events[0])
	assert.Equal(t, "203.0.113.44", alerts.ips[0])
}
