package action

import (
	"context"

	"github.com/wmsflow/rulebus/model"
)

// Publisher is satisfied by the event bus; declared here to keep the
// dependency direction action -> bus out of the package graph.
type Publisher interface {
	Publish(event model.Event)
}

// emitEventAction republishes a derived event, which may in turn match
// further rules (chaining).
type emitEventAction struct {
	publisher Publisher
}

func NewEmitEventAction(publisher Publisher) Handler {
	return &emitEventAction{publisher: publisher}
}

func (a *emitEventAction) Type() string {
	return TYPE_EMIT_EVENT
}

func (a *emitEventAction) Validate(params map[string]any) error {
	if len(stringParam(params, "type")) == 0 {
		return ConfigError{ActionType: a.Type(), Msg: "param type is required"}
	}
	return nil
}

func (a *emitEventAction) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) error {
	resolved := ResolveParams(ec.Doc, params)
	payload, _ := resolved["payload"].(map[string]any)
	event := model.Event{
		Type:          stringParam(resolved, "type"),
		EntityType:    ec.Event.EntityType,
		EntityId:      ec.Event.EntityId,
		Action:        stringParam(resolved, "action"),
		Payload:       payload,
		PerformedById: ec.Event.PerformedById,
	}
	if t := stringParam(resolved, "entityType"); len(t) > 0 {
		event.EntityType = t
	}
	if id := stringParam(resolved, "entityId"); len(id) > 0 {
		event.EntityId = id
	}
	a.publisher.Publish(event)
	return nil
}
