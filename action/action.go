// Package action executes the side effects of matched rules. Dispatch
// goes through a registry keyed by action type, so new action types are
// additive and unknown types are rejected when a rule is saved, not when
// an event fires.
package action

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oliveagle/jsonpath"
	"github.com/wmsflow/rulebus/model"
)

const TYPE_CREATE_NOTIFICATION string = "create_notification"
const TYPE_CHANGE_STATUS string = "change_status"
const TYPE_SUBMIT_FOR_APPROVAL string = "submit_for_approval"
const TYPE_EMIT_EVENT string = "emit_event"
const TYPE_SCRIPT string = "script"

// ExecutionContext carries the triggering event and its document. Doc
// starts as Event.Doc() and accumulates script action outputs, so later
// actions in the same rule can resolve derived fields.
type ExecutionContext struct {
	Event model.Event
	Doc   map[string]any
}

func NewExecutionContext(event model.Event) *ExecutionContext {
	return &ExecutionContext{Event: event, Doc: event.Doc()}
}

type Handler interface {
	Type() string
	// Validate inspects params at rule-save time; a failure blocks the save.
	Validate(params map[string]any) error
	Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) error
}

type ConfigError struct {
	ActionType string
	Msg        string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid action %q: %s", e.ActionType, e.Msg)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

func (r *Registry) Get(actionType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[actionType]
	if !ok {
		return nil, ConfigError{ActionType: actionType, Msg: "unknown action type"}
	}
	return h, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ValidateSpecs checks a rule's action list at save time: every type must
// be registered and every handler must accept its params.
func (r *Registry) ValidateSpecs(specs []model.ActionSpec) error {
	for i, spec := range specs {
		h, err := r.Get(spec.Type)
		if err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
		if err := h.Validate(spec.Params); err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
	}
	return nil
}

// ResolveParams substitutes $-prefixed values in an action's params with
// jsonpath lookups against the event document. Nested maps and lists are
// resolved recursively; non-string values pass through.
func ResolveParams(doc map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any, len(params))
	resolveParams(doc, params, output)
	return output
}

func resolveParams(doc map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		switch value := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			output[k] = out
			resolveParams(doc, value, out)
		case []any:
			out := make([]any, 0, len(value))
			for _, element := range value {
				out = append(out, resolveValue(doc, element))
			}
			output[k] = out
		default:
			output[k] = resolveValue(doc, v)
		}
	}
}

func resolveValue(doc map[string]any, v any) any {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return v
	}
	resolved, err := jsonpath.JsonPathLookup(doc, s)
	if err != nil {
		return nil
	}
	return resolved
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
