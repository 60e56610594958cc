// Package inmem provides map-backed implementations of the storage
// interfaces. It backs the memory storage-impl option and the test suites,
// which need no running redis.
package inmem

import (
	"fmt"
	"sync"

	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"github.com/wmsflow/rulebus/util"
)

type Storage struct {
	mu        sync.RWMutex
	workflows map[string]model.Workflow
	rules     map[string]model.WorkflowRule
	logs      map[string][]model.ExecutionLog
	execKeys  map[string]bool
	chains    map[string]model.ApprovalChain
	openChain map[string]string
	groups    map[string]model.ParallelApprovalGroup
	openGroup map[string]string
	policies  map[string]model.ApprovalPolicy

	chainEncDec util.EncoderDecoder[model.ApprovalChain]
	groupEncDec util.EncoderDecoder[model.ParallelApprovalGroup]
	ruleEncDec  util.EncoderDecoder[model.WorkflowRule]
}

var _ persistence.RuleStorage = new(Storage)
var _ persistence.ExecutionLogStorage = new(Storage)
var _ persistence.ApprovalStorage = new(Storage)
var _ persistence.PolicyStorage = new(Storage)

func NewStorage() *Storage {
	return &Storage{
		workflows:   make(map[string]model.Workflow),
		rules:       make(map[string]model.WorkflowRule),
		logs:        make(map[string][]model.ExecutionLog),
		execKeys:    make(map[string]bool),
		chains:      make(map[string]model.ApprovalChain),
		openChain:   make(map[string]string),
		groups:      make(map[string]model.ParallelApprovalGroup),
		openGroup:   make(map[string]string),
		policies:    make(map[string]model.ApprovalPolicy),
		chainEncDec: util.NewJsonEncoderDecoder[model.ApprovalChain](),
		groupEncDec: util.NewJsonEncoderDecoder[model.ParallelApprovalGroup](),
		ruleEncDec:  util.NewJsonEncoderDecoder[model.WorkflowRule](),
	}
}

func documentField(documentType string, documentId string) string {
	return fmt.Sprintf("%s:%s", documentType, documentId)
}

func (s *Storage) SaveWorkflow(wf model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.Id] = wf
	return nil
}

func (s *Storage) GetWorkflow(id string) (*model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "workflow", Id: id}
	}
	return &wf, nil
}

func (s *Storage) DeleteWorkflow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, id)
	return nil
}

func (s *Storage) ListWorkflows() ([]model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workflows := make([]model.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

func (s *Storage) SaveRule(rule model.WorkflowRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.Id] = rule
	return nil
}

func (s *Storage) GetRule(id string) (*model.WorkflowRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "rule", Id: id}
	}
	return s.cloneRule(rule)
}

func (s *Storage) DeleteRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, id)
	return nil
}

func (s *Storage) ListRulesByTrigger(triggerEvent string) ([]model.WorkflowRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rules []model.WorkflowRule
	for _, rule := range s.rules {
		if rule.TriggerEvent == triggerEvent {
			cloned, err := s.cloneRule(rule)
			if err != nil {
				return nil, err
			}
			rules = append(rules, *cloned)
		}
	}
	return rules, nil
}

func (s *Storage) ListRulesByWorkflow(workflowId string) ([]model.WorkflowRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rules []model.WorkflowRule
	for _, rule := range s.rules {
		if rule.WorkflowId == workflowId {
			cloned, err := s.cloneRule(rule)
			if err != nil {
				return nil, err
			}
			rules = append(rules, *cloned)
		}
	}
	return rules, nil
}

func (s *Storage) AppendExecution(log model.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[log.RuleId] = append(s.logs[log.RuleId], log)
	return nil
}

func (s *Storage) ListExecutions(ruleId string, page int, size int) ([]model.ExecutionLog, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.logs[ruleId]
	start := page * size
	if start >= len(logs) {
		return []model.ExecutionLog{}, nil
	}
	end := start + size
	if end > len(logs) {
		end = len(logs)
	}
	out := make([]model.ExecutionLog, end-start)
	copy(out, logs[start:end])
	return out, nil
}

func (s *Storage) MarkExecuted(ruleId string, eventId string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleId + ":" + eventId
	if s.execKeys[key] {
		return false, nil
	}
	s.execKeys[key] = true
	return true, nil
}

func (s *Storage) SaveChain(chain model.ApprovalChain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned, err := s.cloneChain(chain)
	if err != nil {
		return err
	}
	s.chains[chain.Id] = *cloned
	field := documentField(chain.DocumentType, chain.DocumentId)
	if chain.Status == model.APPROVAL_STATUS_PENDING {
		s.openChain[field] = chain.Id
	} else if s.openChain[field] == chain.Id {
		delete(s.openChain, field)
	}
	return nil
}

func (s *Storage) GetChain(id string) (*model.ApprovalChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain, ok := s.chains[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "approval chain", Id: id}
	}
	return s.cloneChain(chain)
}

func (s *Storage) GetOpenChain(documentType string, documentId string) (*model.ApprovalChain, error) {
	s.mu.RLock()
	field := documentField(documentType, documentId)
	id, ok := s.openChain[field]
	s.mu.RUnlock()
	if !ok {
		return nil, persistence.NotFoundError{Kind: "open approval chain", Id: field}
	}
	return s.GetChain(id)
}

func (s *Storage) ListOpenChains() ([]model.ApprovalChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chains := make([]model.ApprovalChain, 0, len(s.openChain))
	for _, id := range s.openChain {
		chain, ok := s.chains[id]
		if !ok {
			continue
		}
		cloned, err := s.cloneChain(chain)
		if err != nil {
			return nil, err
		}
		chains = append(chains, *cloned)
	}
	return chains, nil
}

func (s *Storage) SaveGroup(group model.ParallelApprovalGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned, err := s.cloneGroup(group)
	if err != nil {
		return err
	}
	s.groups[group.Id] = *cloned
	field := documentField(group.DocumentType, group.DocumentId)
	if group.Status == model.APPROVAL_STATUS_PENDING {
		s.openGroup[field] = group.Id
	} else if s.openGroup[field] == group.Id {
		delete(s.openGroup, field)
	}
	return nil
}

func (s *Storage) GetGroup(id string) (*model.ParallelApprovalGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.groups[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "approval group", Id: id}
	}
	return s.cloneGroup(group)
}

func (s *Storage) GetOpenGroup(documentType string, documentId string) (*model.ParallelApprovalGroup, error) {
	s.mu.RLock()
	field := documentField(documentType, documentId)
	id, ok := s.openGroup[field]
	s.mu.RUnlock()
	if !ok {
		return nil, persistence.NotFoundError{Kind: "open approval group", Id: field}
	}
	return s.GetGroup(id)
}

func (s *Storage) ListOpenGroups() ([]model.ParallelApprovalGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]model.ParallelApprovalGroup, 0, len(s.openGroup))
	for _, id := range s.openGroup {
		group, ok := s.groups[id]
		if !ok {
			continue
		}
		cloned, err := s.cloneGroup(group)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *cloned)
	}
	return groups, nil
}

func (s *Storage) SavePolicy(policy model.ApprovalPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.DocumentType] = policy
	return nil
}

func (s *Storage) GetPolicy(documentType string) (*model.ApprovalPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[documentType]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "approval policy", Id: documentType}
	}
	return &policy, nil
}

// Entities holding slices or maps are cloned through the codec so callers
// never alias stored state.
func (s *Storage) cloneChain(chain model.ApprovalChain) (*model.ApprovalChain, error) {
	data, err := s.chainEncDec.Encode(chain)
	if err != nil {
		return nil, err
	}
	return s.chainEncDec.Decode(data)
}

func (s *Storage) cloneGroup(group model.ParallelApprovalGroup) (*model.ParallelApprovalGroup, error) {
	data, err := s.groupEncDec.Encode(group)
	if err != nil {
		return nil, err
	}
	return s.groupEncDec.Decode(data)
}

func (s *Storage) cloneRule(rule model.WorkflowRule) (*model.WorkflowRule, error) {
	data, err := s.ruleEncDec.Encode(rule)
	if err != nil {
		return nil, err
	}
	return s.ruleEncDec.Decode(data)
}
