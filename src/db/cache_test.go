package db

import (
	"budgee-automation/src/models"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	lists  atomic.Int32
	runs   atomic.Int32
	rules  []models.TransactionRule
	onList func()
}

func (s *countingSource) ListActive(_ context.Context, userID int64, trigger models.TriggerType) ([]models.TransactionRule, error) {
	s.lists.Add(1)
	var out []models.TransactionRule
	for _, r := range s.rules {
		if r.UserID == userID && r.TriggerType == trigger {
			out = append(out, r)
		}
	}
	if s.onList != nil {
		s.onList()
	}
	return out, nil
}

func (s *countingSource) RecordRun(context.Context, int64, time.Time) error {
	s.runs.Add(1)
	return nil
}

func newCache(t *testing.T, src *countingSource) *RuleCache {
	t.Helper()
	c, err := NewRuleCache(src, time.Minute)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func sampleRules() []models.TransactionRule {
	return []models.TransactionRule{
		{ID: 1, UserID: 1, TriggerType: models.TriggerTransactionCreate, Name: "uber", Actions: []models.Action{{Type: models.ActionSetDescription, Template: "x"}}},
		{ID: 2, UserID: 1, TriggerType: models.TriggerTransactionUpdate, Name: "update"},
		{ID: 3, UserID: 2, TriggerType: models.TriggerTransactionCreate, Name: "other user"},
	}
}

func TestRuleCache_ServesRepeatLookupsFromCache(t *testing.T) {
	src := &countingSource{rules: sampleRules()}
	c := newCache(t, src)
	ctx := context.Background()

	first, err := c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	require.NoError(t, err)
	c.Wait()
	second, err := c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.lists.Load())
}

func TestRuleCache_KeysByUserAndTrigger(t *testing.T) {
	src := &countingSource{rules: sampleRules()}
	c := newCache(t, src)
	ctx := context.Background()

	create, _ := c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	update, _ := c.ListActive(ctx, 1, models.TriggerTransactionUpdate)
	other, _ := c.ListActive(ctx, 2, models.TriggerTransactionCreate)

	require.Len(t, create, 1)
	require.Len(t, update, 1)
	require.Len(t, other, 1)
	assert.Equal(t, int64(1), create[0].ID)
	assert.Equal(t, int64(2), update[0].ID)
	assert.Equal(t, int64(3), other[0].ID)
	assert.Equal(t, int32(3), src.lists.Load())
}

func TestRuleCache_InvalidateUser(t *testing.T) {
	src := &countingSource{rules: sampleRules()}
	c := newCache(t, src)
	ctx := context.Background()

	_, _ = c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	_, _ = c.ListActive(ctx, 2, models.TriggerTransactionCreate)
	c.Wait()

	c.InvalidateUser(1)
	_, _ = c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	_, _ = c.ListActive(ctx, 2, models.TriggerTransactionCreate)

	assert.Equal(t, int32(3), src.lists.Load())
}

func TestRuleCache_InvalidationDuringLoadIsNotOverwritten(t *testing.T) {
	src := &countingSource{rules: sampleRules()}
	c := newCache(t, src)
	ctx := context.Background()

	// A rule write lands while the first lookup is still reading the old list.
	src.onList = func() {
		src.onList = nil
		src.rules = src.rules[1:]
		c.InvalidateUser(1)
	}
	stale, err := c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	c.Wait()

	fresh, err := c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.Equal(t, int32(2), src.lists.Load())
}

func TestRuleCache_ClearDuringLoadIsNotOverwritten(t *testing.T) {
	src := &countingSource{rules: sampleRules()}
	c := newCache(t, src)
	ctx := context.Background()

	src.onList = func() {
		src.onList = nil
		c.Clear()
	}
	_, _ = c.ListActive(ctx, 2, models.TriggerTransactionCreate)
	c.Wait()
	_, _ = c.ListActive(ctx, 2, models.TriggerTransactionCreate)

	assert.Equal(t, int32(2), src.lists.Load())
}

func TestRuleCache_CachedEntriesAreNotShared(t *testing.T) {
	src := &countingSource{rules: sampleRules()}
	c := newCache(t, src)
	ctx := context.Background()

	_, _ = c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	c.Wait()
	got, _ := c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	got[0].Actions[0].Template = "mutated"

	again, _ := c.ListActive(ctx, 1, models.TriggerTransactionCreate)
	assert.Equal(t, "x", again[0].Actions[0].Template)
}

func TestRuleCache_RecordRunPassesThrough(t *testing.T) {
	src := &countingSource{}
	c := newCache(t, src)

	require.NoError(t, c.RecordRun(context.Background(), 1, time.Now()))
	require.NoError(t, c.RecordRun(context.Background(), 1, time.Now()))
	assert.Equal(t, int32(2), src.runs.Load())
}
