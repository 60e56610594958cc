package persistence

import (
	"fmt"

	"github.com/wmsflow/rulebus/model"
)

// RuleStorage owns the durable Workflow and WorkflowRule records. The rule
// engine reads them only through the cache.
type RuleStorage interface {
	SaveWorkflow(wf model.Workflow) error
	GetWorkflow(id string) (*model.Workflow, error)
	DeleteWorkflow(id string) error
	ListWorkflows() ([]model.Workflow, error)

	SaveRule(rule model.WorkflowRule) error
	GetRule(id string) (*model.WorkflowRule, error)
	DeleteRule(id string) error
	ListRulesByTrigger(triggerEvent string) ([]model.WorkflowRule, error)
	ListRulesByWorkflow(workflowId string) ([]model.WorkflowRule, error)
}

// ExecutionLogStorage is the append-only audit trail of rule evaluations.
type ExecutionLogStorage interface {
	AppendExecution(log model.ExecutionLog) error
	ListExecutions(ruleId string, page int, size int) ([]model.ExecutionLog, error)
	// MarkExecuted records that a rule fired for an event. It returns false
	// when the pair was already recorded, so a redelivered event does not
	// run the same rule twice.
	MarkExecuted(ruleId string, eventId string) (bool, error)
}

// ApprovalStorage persists chains, parallel groups and their open-document
// indexes. Chains and groups are stored whole so a state transition is a
// single write.
type ApprovalStorage interface {
	SaveChain(chain model.ApprovalChain) error
	GetChain(id string) (*model.ApprovalChain, error)
	GetOpenChain(documentType string, documentId string) (*model.ApprovalChain, error)
	ListOpenChains() ([]model.ApprovalChain, error)

	SaveGroup(group model.ParallelApprovalGroup) error
	GetGroup(id string) (*model.ParallelApprovalGroup, error)
	GetOpenGroup(documentType string, documentId string) (*model.ParallelApprovalGroup, error)
	ListOpenGroups() ([]model.ParallelApprovalGroup, error)
}

// PolicyStorage holds the approval chain configuration per document type.
type PolicyStorage interface {
	SavePolicy(policy model.ApprovalPolicy) error
	GetPolicy(documentType string) (*model.ApprovalPolicy, error)
}

type StorageLayerError struct {
	Err error
}

func (e StorageLayerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error in underlying storage layer: %v", e.Err)
	}
	return "error in underlying storage layer"
}

func (e StorageLayerError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}

// ConflictError is a business-rule rejection: double response, re-approval
// of a terminal step, duplicate submission. Surfaced synchronously to the
// caller.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string {
	return e.Message
}
