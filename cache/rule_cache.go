// Package cache holds the per-trigger index of active rules. Each bucket
// value is an immutable, pre-sorted snapshot: it is built once, stored,
// and never mutated afterwards, so concurrent readers always observe
// either the fully-old or fully-new rule set for a trigger. Invalidation
// drops buckets; the next read reloads from the rule store.
package cache

import (
	"sort"
	"sync"
	"time"

	c "github.com/patrickmn/go-cache"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"go.uber.org/zap"
)

type RuleCache struct {
	storage persistence.RuleStorage
	cache   *c.Cache
	loadMu  sync.Mutex
}

func NewRuleCache(storage persistence.RuleStorage) *RuleCache {
	return &RuleCache{
		storage: storage,
		cache:   c.New(c.NoExpiration, 10*time.Minute),
	}
}

// GetActiveRules returns the active rules for a trigger event in
// evaluation order: workflow priority descending, then rule sortOrder
// ascending, ties broken by rule id. Callers must not mutate the slice.
func (rc *RuleCache) GetActiveRules(triggerEvent string) ([]model.CandidateRule, error) {
	if snapshot, found := rc.cache.Get(triggerEvent); found {
		return snapshot.([]model.CandidateRule), nil
	}
	rc.loadMu.Lock()
	defer rc.loadMu.Unlock()
	// another loader may have won the race while we waited
	if snapshot, found := rc.cache.Get(triggerEvent); found {
		return snapshot.([]model.CandidateRule), nil
	}
	snapshot, err := rc.load(triggerEvent)
	if err != nil {
		return nil, err
	}
	rc.cache.Set(triggerEvent, snapshot, c.NoExpiration)
	return snapshot, nil
}

// Invalidate drops the bucket for one trigger, or the whole cache when
// triggerEvent is empty. Configuration writers call this on every
// workflow/rule create, update or delete.
func (rc *RuleCache) Invalidate(triggerEvent string) {
	if len(triggerEvent) == 0 {
		rc.cache.Flush()
		logger.Debug("rule cache flushed")
		return
	}
	rc.cache.Delete(triggerEvent)
	logger.Debug("rule cache invalidated", zap.String("trigger", triggerEvent))
}

func (rc *RuleCache) load(triggerEvent string) ([]model.CandidateRule, error) {
	rules, err := rc.storage.ListRulesByTrigger(triggerEvent)
	if err != nil {
		return nil, err
	}
	workflows, err := rc.storage.ListWorkflows()
	if err != nil {
		return nil, err
	}
	workflowById := make(map[string]model.Workflow, len(workflows))
	for _, wf := range workflows {
		workflowById[wf.Id] = wf
	}
	candidates := make([]model.CandidateRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		wf, ok := workflowById[rule.WorkflowId]
		if !ok || !wf.IsActive {
			continue
		}
		candidates = append(candidates, model.CandidateRule{Workflow: wf, Rule: rule})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Workflow.Priority != b.Workflow.Priority {
			return a.Workflow.Priority > b.Workflow.Priority
		}
		if a.Rule.SortOrder != b.Rule.SortOrder {
			return a.Rule.SortOrder < b.Rule.SortOrder
		}
		return a.Rule.Id < b.Rule.Id
	})
	logger.Debug("rule cache loaded", zap.String("trigger", triggerEvent), zap.Int("rules", len(candidates)))
	return candidates, nil
}
