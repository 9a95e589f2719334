package convo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/leochui/tifa-api/internal/store"
)

// cacheVersion is bumped manually whenever the system prompt or the
// shaping pipeline changes in a way that makes old replies wrong. Old
// entries stop matching fingerprints and age out via TTL.
const cacheVersion = "v2"

// DefaultCacheTTL favors reuse of expensive model calls: resume answers
// are low-churn, so 90 days of staleness is fine.
const DefaultCacheTTL = 90 * 24 * time.Hour

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeText lowercases, trims, and collapses internal whitespace.
func NormalizeText(s string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

type cacheEntry struct {
	Reply   string `json:"reply"`
	Expires int64  `json:"expires"` // unix milliseconds
}

// Cache maps conversation fingerprints to previously shaped replies.
type Cache struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewCache creates a reply cache. A zero ttl falls back to DefaultCacheTTL.
func NewCache(st store.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{store: st, ttl: ttl, now: time.Now}
}

// SetClock overrides the time source for tests.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// Fingerprint derives the deterministic cache key for a conversation
// state: normalized prompt, requested bullet count (0 = prose), and the
// signature of the session's recent history.
func Fingerprint(prompt string, bullets int, history []Message) string {
	key := cacheVersion + "|" + NormalizeText(prompt)
	if bullets > 0 {
		key += "|bullets:" + strconv.Itoa(bullets)
	}
	key += "|history:" + Signature(history)

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// Lookup returns the cached reply for a fingerprint, if present and not
// expired. Reads never mutate entries.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	data, err := c.store.Get(ctx, "cache:"+fingerprint)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache read: %w", err)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", false, nil
	}
	if entry.Expires <= c.now().UnixMilli() {
		return "", false, nil
	}
	return entry.Reply, true, nil
}

// Store writes a reply under the fingerprint with the cache TTL.
func (c *Cache) Store(ctx context.Context, fingerprint, reply string) error {
	entry := cacheEntry{
		Reply:   reply,
		Expires: c.now().Add(c.ttl).UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.store.Put(ctx, "cache:"+fingerprint, data, c.ttl); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
