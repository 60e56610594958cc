package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"github.com/wmsflow/rulebus/util"
	"go.uber.org/zap"
)

const WORKFLOW_KEY string = "WORKFLOW"
const RULE_KEY string = "RULE"

var _ persistence.RuleStorage = new(redisRuleStorage)

type redisRuleStorage struct {
	*baseDao
	workflowEncDec util.EncoderDecoder[model.Workflow]
	ruleEncDec     util.EncoderDecoder[model.WorkflowRule]
}

func NewRedisRuleStorage(conf Config) *redisRuleStorage {
	return &redisRuleStorage{
		baseDao:        newBaseDao(conf),
		workflowEncDec: util.NewJsonEncoderDecoder[model.Workflow](),
		ruleEncDec:     util.NewJsonEncoderDecoder[model.WorkflowRule](),
	}
}

func (s *redisRuleStorage) SaveWorkflow(wf model.Workflow) error {
	data, err := s.workflowEncDec.Encode(wf)
	if err != nil {
		return err
	}
	key := s.getNamespaceKey(WORKFLOW_KEY)
	ctx := context.Background()
	if err := s.redisClient.HSet(ctx, key, wf.Id, string(data)).Err(); err != nil {
		logger.Error("error in saving workflow", zap.String("workflow", wf.Id), zap.Error(err))
		return persistence.StorageLayerError{Err: err}
	}
	return nil
}

func (s *redisRuleStorage) GetWorkflow(id string) (*model.Workflow, error) {
	key := s.getNamespaceKey(WORKFLOW_KEY)
	ctx := context.Background()
	val, err := s.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "workflow", Id: id}
		}
		return nil, persistence.StorageLayerError{Err: err}
	}
	return s.workflowEncDec.Decode([]byte(val))
}

func (s *redisRuleStorage) DeleteWorkflow(id string) error {
	key := s.getNamespaceKey(WORKFLOW_KEY)
	ctx := context.Background()
	if err := s.redisClient.HDel(ctx, key, id).Err(); err != nil {
		return persistence.StorageLayerError{Err: err}
	}
	return nil
}

func (s *redisRuleStorage) ListWorkflows() ([]model.Workflow, error) {
	key := s.getNamespaceKey(WORKFLOW_KEY)
	ctx := context.Background()
	vals, err := s.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Err: err}
	}
	workflows := make([]model.Workflow, 0, len(vals))
	for _, v := range vals {
		wf, err := s.workflowEncDec.Decode([]byte(v))
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	return workflows, nil
}

func (s *redisRuleStorage) SaveRule(rule model.WorkflowRule) error {
	data, err := s.ruleEncDec.Encode(rule)
	if err != nil {
		return err
	}
	key := s.getNamespaceKey(RULE_KEY)
	ctx := context.Background()
	if err := s.redisClient.HSet(ctx, key, rule.Id, string(data)).Err(); err != nil {
		logger.Error("error in saving rule", zap.String("rule", rule.Id), zap.Error(err))
		return persistence.StorageLayerError{Err: err}
	}
	return nil
}

func (s *redisRuleStorage) GetRule(id string) (*model.WorkflowRule, error) {
	key := s.getNamespaceKey(RULE_KEY)
	ctx := context.Background()
	val, err := s.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "rule", Id: id}
		}
		return nil, persistence.StorageLayerError{Err: err}
	}
	return s.ruleEncDec.Decode([]byte(val))
}

func (s *redisRuleStorage) DeleteRule(id string) error {
	key := s.getNamespaceKey(RULE_KEY)
	ctx := context.Background()
	if err := s.redisClient.HDel(ctx, key, id).Err(); err != nil {
		return persistence.StorageLayerError{Err: err}
	}
	return nil
}

func (s *redisRuleStorage) ListRulesByTrigger(triggerEvent string) ([]model.WorkflowRule, error) {
	return s.listRules(func(r model.WorkflowRule) bool {
		return r.TriggerEvent == triggerEvent
	})
}

func (s *redisRuleStorage) ListRulesByWorkflow(workflowId string) ([]model.WorkflowRule, error) {
	return s.listRules(func(r model.WorkflowRule) bool {
		return r.WorkflowId == workflowId
	})
}

func (s *redisRuleStorage) listRules(match func(model.WorkflowRule) bool) ([]model.WorkflowRule, error) {
	key := s.getNamespaceKey(RULE_KEY)
	ctx := context.Background()
	vals, err := s.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Err: err}
	}
	var rules []model.WorkflowRule
	for _, v := range vals {
		rule, err := s.ruleEncDec.Decode([]byte(v))
		if err != nil {
			return nil, err
		}
		if match(*rule) {
			rules = append(rules, *rule)
		}
	}
	return rules, nil
}
