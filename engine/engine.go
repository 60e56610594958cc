// Package engine orchestrates rule evaluation: events in, cache lookup,
// ordered condition evaluation, action execution, execution-log writes.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"github.com/wmsflow/rulebus/action"
	"github.com/wmsflow/rulebus/cache"
	"github.com/wmsflow/rulebus/condition"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"github.com/wmsflow/rulebus/util"
	"go.uber.org/zap"
)

const STOP_SCOPE_WORKFLOW string = "workflow"
const STOP_SCOPE_GLOBAL string = "global"

type Config struct {
	Partitions        int
	Capacity          int
	StopScope         string
	MaxConditionDepth int
}

// RuleEngine subscribes to the bus and evaluates rules against incoming
// events. Events are partitioned over a fixed worker set by document id,
// which preserves per-document ordering while different documents are
// processed in parallel.
type RuleEngine struct {
	conf     Config
	cache    *cache.RuleCache
	executor *action.Executor
	logs     persistence.ExecutionLogStorage
	workers  []*util.Worker
}

func NewRuleEngine(conf Config, ruleCache *cache.RuleCache, executor *action.Executor, logs persistence.ExecutionLogStorage, wg *sync.WaitGroup) *RuleEngine {
	if conf.Partitions <= 0 {
		conf.Partitions = 4
	}
	if conf.Capacity <= 0 {
		conf.Capacity = 512
	}
	if len(conf.StopScope) == 0 {
		conf.StopScope = STOP_SCOPE_WORKFLOW
	}
	if conf.MaxConditionDepth <= 0 {
		conf.MaxConditionDepth = condition.DEFAULT_MAX_DEPTH
	}
	e := &RuleEngine{
		conf:     conf,
		cache:    ruleCache,
		executor: executor,
		logs:     logs,
	}
	e.workers = make([]*util.Worker, conf.Partitions)
	for i := 0; i < conf.Partitions; i++ {
		e.workers[i] = util.NewWorker(fmt.Sprintf("rule-engine-%d", i), wg, func(task util.Task) error {
			e.handleEvent(task.(model.Event))
			return nil
		}, conf.Capacity)
	}
	return e
}

func (e *RuleEngine) Name() string {
	return "rule-engine"
}

func (e *RuleEngine) Start() {
	for _, w := range e.workers {
		w.Start()
	}
}

func (e *RuleEngine) Stop() {
	for _, w := range e.workers {
		w.Stop()
	}
}

// OnEvent routes the event to its document partition.
func (e *RuleEngine) OnEvent(event model.Event) {
	key := event.EntityId
	if len(key) == 0 {
		key = event.Id
	}
	partition := int(murmur3.Sum64([]byte(key)) % uint64(len(e.workers)))
	e.workers[partition].Sender() <- event
}

// handleEvent never lets an error or panic escape: a crash in evaluation
// or action execution is the engine's problem, not the publisher's.
func (e *RuleEngine) handleEvent(event model.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in rule evaluation", zap.String("eventId", event.Id), zap.Any("panic", r))
		}
	}()
	candidates, err := e.cache.GetActiveRules(event.Type)
	if err != nil {
		logger.Error("error loading rules for trigger", zap.String("trigger", event.Type), zap.Error(err))
		return
	}
	stoppedWorkflows := make(map[string]bool)
	for _, candidate := range candidates {
		if stoppedWorkflows[candidate.Workflow.Id] {
			continue
		}
		matched := e.evaluate(candidate, event)
		if !matched {
			logger.Debug("rule did not match",
				zap.String("rule", candidate.Rule.Id), zap.String("eventId", event.Id))
			continue
		}
		// The exec key is recorded before the actions run: a crash between
		// mark and execution drops those actions, a redelivered event never
		// double-runs them (at-most-once per rule and event).
		first, err := e.logs.MarkExecuted(candidate.Rule.Id, event.Id)
		if err != nil {
			logger.Error("error recording execution key",
				zap.String("rule", candidate.Rule.Id), zap.String("eventId", event.Id), zap.Error(err))
			continue
		}
		if first {
			e.runActions(candidate, event)
		} else {
			logger.Debug("rule already fired for event, skipping actions",
				zap.String("rule", candidate.Rule.Id), zap.String("eventId", event.Id))
		}
		if candidate.Rule.StopOnMatch {
			if e.conf.StopScope == STOP_SCOPE_GLOBAL {
				return
			}
			stoppedWorkflows[candidate.Workflow.Id] = true
		}
	}
}

// evaluate treats any panic in condition evaluation as a non-match; other
// rules keep evaluating.
func (e *RuleEngine) evaluate(candidate model.CandidateRule, event model.Event) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic evaluating rule condition",
				zap.String("rule", candidate.Rule.Id), zap.String("eventId", event.Id), zap.Any("panic", r))
			matched = false
		}
	}()
	return condition.Evaluate(candidate.Rule.Conditions, event.Doc(), e.conf.MaxConditionDepth)
}

func (e *RuleEngine) runActions(candidate model.CandidateRule, event model.Event) {
	ec := action.NewExecutionContext(event)
	var run, failed int
	var errs []string
	for _, spec := range candidate.Rule.Actions {
		result := e.executor.Run(spec.Type, spec.Params, ec)
		run++
		if !result.Ok {
			failed++
			errs = append(errs, fmt.Sprintf("%s: %v", spec.Type, result.Err))
		}
	}
	row := model.ExecutionLog{
		Id:            uuid.New().String(),
		RuleId:        candidate.Rule.Id,
		WorkflowId:    candidate.Workflow.Id,
		EventId:       event.Id,
		EntityId:      event.EntityId,
		Matched:       true,
		ActionsRun:    run,
		ActionsFailed: failed,
		Errors:        errs,
		Timestamp:     time.Now(),
	}
	if err := e.logs.AppendExecution(row); err != nil {
		logger.Error("error writing execution log",
			zap.String("rule", candidate.Rule.Id), zap.String("eventId", event.Id), zap.Error(err))
	}
	logger.Info("rule matched",
		zap.String("rule", candidate.Rule.Id),
		zap.String("workflow", candidate.Workflow.Id),
		zap.String("eventId", event.Id),
		zap.Int("actionsRun", run),
		zap.Int("actionsFailed", failed))
}
