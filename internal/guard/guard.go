// Package guard implements admission control for the chat endpoint:
// per-session and per-IP cooldowns, sliding-window rate limits, and a
// strike-based ban ladder, all backed by the shared key-value store.
package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leochui/tifa-api/internal/store"
)

// Default policy values.
const (
	DefaultCooldown     = 30 * time.Second
	DefaultLimitWindow  = 30 * 24 * time.Hour
	DefaultGlobalLimit  = 250
	DefaultSessionLimit = 250
	DefaultIPLimit      = 250
	DefaultStrikeLimit  = 6
	DefaultStrikeWindow = 10 * time.Minute
	DefaultBanDuration  = 30 * time.Minute
)

// ttlSlack is added on top of each record's logical expiry so entries
// self-evict from the store shortly after they stop mattering.
const ttlSlack = time.Minute

// Alert event types emitted by the governor.
const (
	EventCooldownViolation = "cooldown_violation"
	EventBanActive         = "ban_active"
	EventBanIssued         = "ban_issued"
)

// Notifier receives security events. Implementations must not block;
// the governor calls Notify on the request path.
type Notifier interface {
	Notify(event, ip string)
}

// Reason classifies why a request was rejected.
type Reason string

const (
	ReasonBanned      Reason = "banned"
	ReasonCooldown    Reason = "cooldown"
	ReasonRateLimited Reason = "rate_limited"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter int // seconds until the caller may retry
}

var admit = Decision{Allowed: true}

// Identity is the tuple admission decisions are keyed by.
type Identity struct {
	IP        string
	SessionID string
}

// Config holds governor policy. Zero values fall back to defaults.
type Config struct {
	Cooldown     time.Duration
	LimitWindow  time.Duration
	GlobalLimit  int
	SessionLimit int
	IPLimit      int
	StrikeLimit  int
	StrikeWindow time.Duration
	BanDuration  time.Duration
	// AllowIPs bypass every check.
	AllowIPs []string
}

func (c *Config) applyDefaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.LimitWindow <= 0 {
		c.LimitWindow = DefaultLimitWindow
	}
	if c.GlobalLimit <= 0 {
		c.GlobalLimit = DefaultGlobalLimit
	}
	if c.SessionLimit <= 0 {
		c.SessionLimit = DefaultSessionLimit
	}
	if c.IPLimit <= 0 {
		c.IPLimit = DefaultIPLimit
	}
	if c.StrikeLimit <= 0 {
		c.StrikeLimit = DefaultStrikeLimit
	}
	if c.StrikeWindow <= 0 {
		c.StrikeWindow = DefaultStrikeWindow
	}
	if c.BanDuration <= 0 {
		c.BanDuration = DefaultBanDuration
	}
}

// Stored record shapes. Timestamps are unix milliseconds, matching the
// records written by earlier deployments of this service.
type rateLimitState struct {
	Count int   `json:"count"`
	Reset int64 `json:"reset"`
}

type cooldownState struct {
	Last int64 `json:"last"`
}

type abuseState struct {
	Strikes     int   `json:"strikes"`
	Reset       int64 `json:"reset"`
	BannedUntil int64 `json:"bannedUntil"`
}

// Governor composes the admission checks into one decision.
type Governor struct {
	store   store.Store
	cfg     Config
	alerts  Notifier
	allowed map[string]struct{}
	now     func() time.Time
}

// New creates a governor over the given store. alerts may be nil.
func New(st store.Store, cfg Config, alerts Notifier) *Governor {
	cfg.applyDefaults()

	allowed := make(map[string]struct{}, len(cfg.AllowIPs))
	for _, ip := range cfg.AllowIPs {
		if ip != "" {
			allowed[ip] = struct{}{}
		}
	}

	return &Governor{
		store:   st,
		cfg:     cfg,
		alerts:  alerts,
		allowed: allowed,
		now:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (g *Governor) SetClock(now func() time.Time) { g.now = now }

// Check runs every admission gate in order, short-circuiting on the
// first rejection. Cooldown violations register an abuse strike against
// the IP; rate-limit exhaustion does not (it is a capacity guard, not a
// policy violation).
func (g *Governor) Check(ctx context.Context, id Identity) (Decision, error) {
	if _, ok := g.allowed[id.IP]; ok {
		return admit, nil
	}

	checks := []func(context.Context, Identity) (Decision, error){
		g.checkBan,
		g.checkSessionCooldown,
		g.checkIPCooldown,
		g.checkGlobalLimit,
		g.checkSessionLimit,
		g.checkIPLimit,
	}

	for _, check := range checks {
		d, err := check(ctx, id)
		if err != nil {
			return Decision{}, err
		}
		if !d.Allowed {
			return d, nil
		}
	}
	return admit, nil
}

func (g *Governor) checkBan(ctx context.Context, id Identity) (Decision, error) {
	state, err := g.loadAbuse(ctx, id.IP)
	if err != nil {
		return Decision{}, err
	}

	now := g.nowMillis()
	if state != nil && state.BannedUntil > now {
		g.notify(EventBanActive, id.IP)
		return Decision{
			Reason:     ReasonBanned,
			RetryAfter: ceilSeconds(state.BannedUntil - now),
		}, nil
	}
	return admit, nil
}

func (g *Governor) checkSessionCooldown(ctx context.Context, id Identity) (Decision, error) {
	return g.checkCooldown(ctx, "session:"+id.SessionID, id)
}

func (g *Governor) checkIPCooldown(ctx context.Context, id Identity) (Decision, error) {
	return g.checkCooldown(ctx, "ip:"+id.IP, id)
}

func (g *Governor) checkGlobalLimit(ctx context.Context, _ Identity) (Decision, error) {
	return g.checkRateLimit(ctx, "global", g.cfg.GlobalLimit)
}

func (g *Governor) checkSessionLimit(ctx context.Context, id Identity) (Decision, error) {
	return g.checkRateLimit(ctx, "session:"+id.SessionID, g.cfg.SessionLimit)
}

func (g *Governor) checkIPLimit(ctx context.Context, id Identity) (Decision, error) {
	return g.checkRateLimit(ctx, "ip:"+id.IP, g.cfg.IPLimit)
}

// checkCooldown enforces a minimum spacing between admitted requests for
// one key. A violation counts as a strike against the caller's IP and
// may flip the rejection into a ban.
func (g *Governor) checkCooldown(ctx context.Context, key string, id Identity) (Decision, error) {
	storageKey := "cooldown:" + key
	now := g.nowMillis()
	window := g.cfg.Cooldown.Milliseconds()

	data, err := g.store.Get(ctx, storageKey)
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return Decision{}, fmt.Errorf("cooldown read: %w", err)
	}

	if err == nil {
		var state cooldownState
		if jsonErr := json.Unmarshal(data, &state); jsonErr == nil {
			if elapsed := now - state.Last; elapsed < window {
				return g.rejectCooldown(ctx, id, window-elapsed)
			}
		}
	}

	value, err := json.Marshal(cooldownState{Last: now})
	if err != nil {
		return Decision{}, fmt.Errorf("cooldown marshal: %w", err)
	}
	if err := g.store.Put(ctx, storageKey, value, g.cfg.Cooldown+ttlSlack); err != nil {
		return Decision{}, fmt.Errorf("cooldown write: %w", err)
	}
	return admit, nil
}

// rejectCooldown registers a strike and reports the violation. If the
// strike tips the IP into a ban, the rejection is reported as the ban.
func (g *Governor) rejectCooldown(ctx context.Context, id Identity, remaining int64) (Decision, error) {
	state, err := g.registerStrike(ctx, id.IP)
	if err != nil {
		return Decision{}, err
	}

	now := g.nowMillis()
	if state.BannedUntil > now {
		g.notify(EventBanIssued, id.IP)
		return Decision{
			Reason:     ReasonBanned,
			RetryAfter: ceilSeconds(state.BannedUntil - now),
		}, nil
	}

	g.notify(EventCooldownViolation, id.IP)
	return Decision{
		Reason:     ReasonCooldown,
		RetryAfter: ceilSeconds(remaining),
	}, nil
}

// checkRateLimit enforces a fixed window counter for one scope. The
// read-modify-write is not atomic; concurrent requests may both pass a
// stale check, which is acceptable for abuse deterrence.
func (g *Governor) checkRateLimit(ctx context.Context, key string, max int) (Decision, error) {
	storageKey := "rl:" + key
	now := g.nowMillis()

	state := rateLimitState{Count: 0, Reset: now + g.cfg.LimitWindow.Milliseconds()}

	data, err := g.store.Get(ctx, storageKey)
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return Decision{}, fmt.Errorf("rate limit read: %w", err)
	}
	if err == nil {
		var current rateLimitState
		if jsonErr := json.Unmarshal(data, &current); jsonErr == nil && current.Reset >= now {
			state = current
		}
	}

	if state.Count >= max {
		return Decision{
			Reason:     ReasonRateLimited,
			RetryAfter: ceilSeconds(state.Reset - now),
		}, nil
	}

	state.Count++
	value, err := json.Marshal(state)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit marshal: %w", err)
	}
	ttl := time.Duration(state.Reset-now)*time.Millisecond + ttlSlack
	if err := g.store.Put(ctx, storageKey, value, ttl); err != nil {
		return Decision{}, fmt.Errorf("rate limit write: %w", err)
	}
	return admit, nil
}

// registerStrike increments the IP's strike counter and issues a ban
// once the limit is reached inside the strike window. Registering while
// already banned is a no-op so repeat violations never extend a ban.
func (g *Governor) registerStrike(ctx context.Context, ip string) (abuseState, error) {
	now := g.nowMillis()

	state, err := g.loadAbuse(ctx, ip)
	if err != nil {
		return abuseState{}, err
	}
	if state == nil || state.Reset < now {
		state = &abuseState{Reset: now + g.cfg.StrikeWindow.Milliseconds()}
	}

	if state.BannedUntil > now {
		return *state, nil
	}

	state.Strikes++
	if state.Strikes >= g.cfg.StrikeLimit {
		state.BannedUntil = now + g.cfg.BanDuration.Milliseconds()
		state.Strikes = 0
		state.Reset = now + g.cfg.StrikeWindow.Milliseconds()
	}

	expiry := state.Reset
	if state.BannedUntil > expiry {
		expiry = state.BannedUntil
	}
	ttl := time.Duration(expiry-now)*time.Millisecond + ttlSlack

	value, err := json.Marshal(state)
	if err != nil {
		return abuseState{}, fmt.Errorf("abuse marshal: %w", err)
	}
	if err := g.store.Put(ctx, "abuse:ip:"+ip, value, ttl); err != nil {
		return abuseState{}, fmt.Errorf("abuse write: %w", err)
	}
	return *state, nil
}

func (g *Governor) loadAbuse(ctx context.Context, ip string) (*abuseState, error) {
	data, err := g.store.Get(ctx, "abuse:ip:"+ip)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("abuse read: %w", err)
	}

	var state abuseState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil // unreadable record, treat as absent
	}
	return &state, nil
}

func (g *Governor) notify(event, ip string) {
	if g.alerts != nil {
		g.alerts.Notify(event, ip)
	}
}

func (g *Governor) nowMillis() int64 {
	return g.now().UnixMilli()
}

func ceilSeconds(millis int64) int {
	if millis <= 0 {
		return 0
	}
	return int((millis + 999) / 1000)
}
