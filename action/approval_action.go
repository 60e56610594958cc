package action

import (
	"context"
	"strconv"
)

// Submitter is the slice of the approval state machine this action needs.
// Declared here so the action package does not depend on the approval
// package.
type Submitter interface {
	SubmitForApproval(documentType string, documentId string, amount float64, submittedById string) error
}

type submitApprovalAction struct {
	approvals Submitter
}

func NewSubmitApprovalAction(approvals Submitter) Handler {
	return &submitApprovalAction{approvals: approvals}
}

func (a *submitApprovalAction) Type() string {
	return TYPE_SUBMIT_FOR_APPROVAL
}

func (a *submitApprovalAction) Validate(params map[string]any) error {
	if _, ok := params["amount"]; !ok {
		return ConfigError{ActionType: a.Type(), Msg: "param amount is required"}
	}
	return nil
}

func (a *submitApprovalAction) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) error {
	resolved := ResolveParams(ec.Doc, params)
	documentType := stringParam(resolved, "documentType")
	if len(documentType) == 0 {
		documentType = ec.Event.EntityType
	}
	documentId := stringParam(resolved, "documentId")
	if len(documentId) == 0 {
		documentId = ec.Event.EntityId
	}
	amount, ok := coerceFloat(resolved["amount"])
	if !ok {
		return ConfigError{ActionType: a.Type(), Msg: "param amount did not resolve to a number"}
	}
	return a.approvals.SubmitForApproval(documentType, documentId, amount, ec.Event.PerformedById)
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
