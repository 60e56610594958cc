package model

import "time"

const GROUP_OPERATOR_AND string = "AND"
const GROUP_OPERATOR_OR string = "OR"

const OP_EQ string = "eq"
const OP_NE string = "ne"
const OP_GT string = "gt"
const OP_GTE string = "gte"
const OP_LT string = "lt"
const OP_LTE string = "lte"
const OP_IN string = "in"
const OP_CONTAINS string = "contains"

// Workflow groups automation rules for one entity type. Priority breaks
// ties when several workflows target the same trigger event.
type Workflow struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	EntityType string `json:"entityType"`
	IsActive   bool   `json:"isActive"`
	Priority   int    `json:"priority"`
}

// WorkflowRule is one automation rule: a trigger event, a condition tree
// and an ordered action list. Rules are soft-deleted via IsActive.
type WorkflowRule struct {
	Id           string       `json:"id"`
	WorkflowId   string       `json:"workflowId"`
	Name         string       `json:"name"`
	TriggerEvent string       `json:"triggerEvent"`
	Conditions   *Condition   `json:"conditions,omitempty"`
	Actions      []ActionSpec `json:"actions"`
	IsActive     bool         `json:"isActive"`
	StopOnMatch  bool         `json:"stopOnMatch"`
	SortOrder    int          `json:"sortOrder"`
}

// Condition is either a leaf {Field, Op, Value} or a group
// {Operator, Conditions}. A node with a non-empty Operator is a group.
type Condition struct {
	Operator   string      `json:"operator,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
	Field      string      `json:"field,omitempty"`
	Op         string      `json:"op,omitempty"`
	Value      any         `json:"value,omitempty"`
}

func (c Condition) IsGroup() bool {
	return len(c.Operator) > 0
}

type ActionSpec struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// CandidateRule is a cache entry: a rule joined with its owning workflow,
// pre-sorted by (workflow.priority desc, rule.sortOrder asc, rule.id asc).
type CandidateRule struct {
	Workflow Workflow     `json:"workflow"`
	Rule     WorkflowRule `json:"rule"`
}

// ExecutionLog is one append-only row per (rule, event) match outcome.
type ExecutionLog struct {
	Id            string    `json:"id"`
	RuleId        string    `json:"ruleId"`
	WorkflowId    string    `json:"workflowId"`
	EventId       string    `json:"eventId"`
	EntityId      string    `json:"entityId"`
	Matched       bool      `json:"matched"`
	ActionsRun    int       `json:"actionsRun"`
	ActionsFailed int       `json:"actionsFailed"`
	Errors        []string  `json:"errors,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
