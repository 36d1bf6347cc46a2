package db

import (
	"budgee-automation/src/models"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"
)

// ActiveRuleSource is the uncached lookup behind RuleCache.
type ActiveRuleSource interface {
	ListActive(ctx context.Context, userID int64, trigger models.TriggerType) ([]models.TransactionRule, error)
	RecordRun(ctx context.Context, ruleID int64, at time.Time) error
}

// RuleCache keeps each user's active rules per trigger in ristretto. Cache keys
// are tracked per user so that a rule write can drop every entry of that user.
// A load that overlaps an invalidation is returned but not stored.
type RuleCache struct {
	next  ActiveRuleSource
	cache *ristretto.Cache
	ttl   time.Duration

	mu    sync.Mutex
	keys  map[int64]map[string]struct{}
	gens  map[int64]uint64
	epoch uint64
}

func NewRuleCache(next ActiveRuleSource, ttl time.Duration) (*RuleCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        10000, // number of keys to track frequency of
		MaxCost:            10000, // one unit per cached rule
		BufferItems:        64,    // number of keys per Get buffer
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rule cache: %w", err)
	}
	return &RuleCache{
		next:  next,
		cache: cache,
		ttl:   ttl,
		keys:  make(map[int64]map[string]struct{}),
		gens:  make(map[int64]uint64),
	}, nil
}

func ruleCacheKey(userID int64, trigger models.TriggerType) string {
	return fmt.Sprintf("rules:%d:%s", userID, trigger)
}

func (c *RuleCache) ListActive(ctx context.Context, userID int64, trigger models.TriggerType) ([]models.TransactionRule, error) {
	key := ruleCacheKey(userID, trigger)
	if v, ok := c.cache.Get(key); ok {
		if rules, ok := v.([]models.TransactionRule); ok {
			return cloneRules(rules), nil
		}
	}

	c.mu.Lock()
	gen, epoch := c.gens[userID], c.epoch
	c.mu.Unlock()

	rules, err := c.next.ListActive(ctx, userID, trigger)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen || c.epoch != epoch {
		log.Debug().Int64("user_id", userID).Msg("Rule cache invalidated during load, not storing")
		return rules, nil
	}
	if c.keys[userID] == nil {
		c.keys[userID] = make(map[string]struct{})
	}
	c.keys[userID][key] = struct{}{}
	c.cache.SetWithTTL(key, cloneRules(rules), int64(len(rules))+1, c.ttl)

	return rules, nil
}

// RecordRun is never cached; runs_count in cached rules may lag behind.
func (c *RuleCache) RecordRun(ctx context.Context, ruleID int64, at time.Time) error {
	return c.next.RecordRun(ctx, ruleID, at)
}

// InvalidateUser drops every cached rule list of the user.
func (c *RuleCache) InvalidateUser(userID int64) {
	c.mu.Lock()
	keys := c.keys[userID]
	delete(c.keys, userID)
	c.gens[userID]++
	c.mu.Unlock()

	for key := range keys {
		c.cache.Del(key)
	}
	log.Debug().Int64("user_id", userID).Int("entries", len(keys)).Msg("Invalidated rule cache")
}

// Clear drops every cached entry.
func (c *RuleCache) Clear() {
	c.mu.Lock()
	c.keys = make(map[int64]map[string]struct{})
	c.epoch++
	c.mu.Unlock()
	c.cache.Clear()
}

// Wait blocks until pending cache writes are visible.
func (c *RuleCache) Wait() {
	c.cache.Wait()
}

func (c *RuleCache) Close() {
	c.cache.Close()
}

// cloneRules copies the slices a caller could mutate so cached entries stay intact.
func cloneRules(rules []models.TransactionRule) []models.TransactionRule {
	out := make([]models.TransactionRule, len(rules))
	for i, r := range rules {
		r.Conditions.Conditions = append([]models.Condition(nil), r.Conditions.Conditions...)
		r.Actions = append([]models.Action(nil), r.Actions...)
		out[i] = r
	}
	return out
}
