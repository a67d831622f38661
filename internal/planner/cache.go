package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
)

// decisionCache is the bounded TTL-evicting planner cache, keyed by
// hash(normalized_query, strategy, override-set) — spec §4.2 "Caching.
// The planner caches by a key = hash(normalized_query, strategy,
// override-set). TTL = configured (default 1 h)." A hit skips selection;
// the Front Door runs detection before calling Plan, so detection is not
// skipped. Hand-rolled bounded map, matching the teacher's own idiom
// (internal/channels/ratelimit.go) rather than a cache library, same as
// the detector's resultCache.
type decisionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]decisionCacheEntry
}

type decisionCacheEntry struct {
	decision  *LoadDecision
	createdAt time.Time
}

func newDecisionCache(ttl time.Duration, maxSize int) *decisionCache {
	return &decisionCache{ttl: ttl, maxSize: maxSize, entries: make(map[string]decisionCacheEntry)}
}

func (c *decisionCache) get(key string) (*LoadDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(e.createdAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.decision, true
}

func (c *decisionCache) put(key string, d *LoadDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = decisionCacheEntry{decision: d, createdAt: time.Now()}
}

func (c *decisionCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}
	type kv struct {
		key string
		at  time.Time
	}
	all := make([]kv, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, kv{k, e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	n := len(all) / 4
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}

// DecisionCacheKey hashes the normalized query, strategy, and a
// canonicalized override-set digest.
func DecisionCacheKey(query string, strategy Strategy, o Overrides) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(query))))
	h.Write([]byte("|" + string(strategy) + "|"))
	h.Write([]byte(overrideDigest(o)))
	return hex.EncodeToString(h.Sum(nil))
}

func overrideDigest(o Overrides) string {
	force := categoriesToStrings(o.ForceCategories)
	disable := categoriesToStrings(o.DisableCategories)
	sort.Strings(force)
	sort.Strings(disable)
	return strings.Join(force, ",") + "|" + strings.Join(disable, ",") + "|" + string(o.Strategy)
}

func categoriesToStrings(cats []catalog.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
