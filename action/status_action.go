package action

import (
	"context"

	"github.com/wmsflow/rulebus/external"
)

type changeStatusAction struct {
	documents external.DocumentClient
}

func NewChangeStatusAction(documents external.DocumentClient) Handler {
	return &changeStatusAction{documents: documents}
}

func (a *changeStatusAction) Type() string {
	return TYPE_CHANGE_STATUS
}

func (a *changeStatusAction) Validate(params map[string]any) error {
	if len(stringParam(params, "targetStatus")) == 0 {
		return ConfigError{ActionType: a.Type(), Msg: "param targetStatus is required"}
	}
	return nil
}

func (a *changeStatusAction) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) error {
	resolved := ResolveParams(ec.Doc, params)
	return a.documents.ChangeStatus(
		ec.Event.EntityType,
		ec.Event.EntityId,
		stringParam(resolved, "targetStatus"),
		ec.Event.PerformedById,
	)
}
