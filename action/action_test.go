package action

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wmsflow/rulebus/model"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []model.Notification
}

func (f *fakeNotifier) CreateNotification(n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, n)
	return nil
}

type fakeDocuments struct {
	statuses map[string]string
	changes  []string
}

func (f *fakeDocuments) GetCurrentStatus(documentType string, documentId string) (string, error) {
	return f.statuses[documentType+":"+documentId], nil
}

func (f *fakeDocuments) ChangeStatus(documentType string, documentId string, targetStatus string, performedById string) error {
	f.changes = append(f.changes, documentType+":"+documentId+":"+targetStatus)
	return nil
}

func storedEvent() model.Event {
	return model.Event{
		Id:         "evt-1",
		Type:       model.EVENT_DOCUMENT_STATUS_CHANGED,
		EntityType: "mrrv",
		EntityId:   "doc-42",
		Action:     "status_changed",
		Payload:    map[string]any{"to": "stored", "amount": 2500.0},
		Timestamp:  time.Now(),
	}
}

func TestResolveParams(t *testing.T) {
	doc := storedEvent().Doc()
	resolved := ResolveParams(doc, map[string]any{
		"title":  "document moved",
		"status": "$.payload.to",
		"nested": map[string]any{"amount": "$.payload.amount"},
		"list":   []any{"$.entityId", "literal"},
		"count":  3,
	})
	require.Equal(t, "document moved", resolved["title"])
	require.Equal(t, "stored", resolved["status"])
	require.Equal(t, 2500.0, resolved["nested"].(map[string]any)["amount"])
	require.Equal(t, []any{"doc-42", "literal"}, resolved["list"])
	require.Equal(t, 3, resolved["count"])
	require.Nil(t, ResolveParams(doc, map[string]any{"missing": "$.payload.nope"})["missing"])
}

func TestRegistryValidateSpecs(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewNotifyAction(&fakeNotifier{}))

	err := registry.ValidateSpecs([]model.ActionSpec{{Type: "no_such_action"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown action type")

	err = registry.ValidateSpecs([]model.ActionSpec{
		{Type: TYPE_CREATE_NOTIFICATION, Params: map[string]any{"body": "missing title"}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "title")

	err = registry.ValidateSpecs([]model.ActionSpec{
		{Type: TYPE_CREATE_NOTIFICATION, Params: map[string]any{"title": "t", "recipientRole": "manager"}},
	})
	require.NoError(t, err)
}

func TestNotifyActionResolvesAndDedupes(t *testing.T) {
	notifier := &fakeNotifier{}
	handler := NewNotifyAction(notifier)
	params := map[string]any{
		"title":         "stored: {doc}",
		"body":          "$.payload.to",
		"recipientRole": "manager",
	}
	ec := NewExecutionContext(storedEvent())
	require.NoError(t, handler.Execute(context.Background(), params, ec))
	require.NoError(t, handler.Execute(context.Background(), params, ec))
	require.Len(t, notifier.calls, 1, "identical content for the same event is deduped")
	require.Equal(t, "manager", notifier.calls[0].RecipientRole)
	require.Equal(t, "stored", notifier.calls[0].Body)
	require.Equal(t, "doc-42", notifier.calls[0].ReferenceId)

	// a different event with the same content is a new notification
	other := storedEvent()
	other.Id = "evt-2"
	require.NoError(t, handler.Execute(context.Background(), params, NewExecutionContext(other)))
	require.Len(t, notifier.calls, 2)
}

func TestChangeStatusAction(t *testing.T) {
	documents := &fakeDocuments{statuses: map[string]string{}}
	handler := NewChangeStatusAction(documents)
	require.Error(t, handler.Validate(map[string]any{}))

	ec := NewExecutionContext(storedEvent())
	require.NoError(t, handler.Execute(context.Background(), map[string]any{"targetStatus": "archived"}, ec))
	require.Equal(t, []string{"mrrv:doc-42:archived"}, documents.changes)
}

func TestScriptActionDerivesFields(t *testing.T) {
	handler := NewScriptAction()
	ec := NewExecutionContext(storedEvent())
	params := map[string]any{
		"expression": "$.priority = $.payload.amount > 1000 ? 'high' : 'low';",
	}
	require.NoError(t, handler.Execute(context.Background(), params, ec))
	require.Equal(t, "high", ec.Doc["priority"])
}

type slowHandler struct{}

func (slowHandler) Type() string                        { return "slow" }
func (slowHandler) Validate(params map[string]any) error { return nil }
func (slowHandler) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) error {
	time.Sleep(500 * time.Millisecond)
	return nil
}

func TestExecutorTimeout(t *testing.T) {
	registry := NewRegistry()
	registry.Register(slowHandler{})
	executor := NewExecutor(registry, 50*time.Millisecond)

	result := executor.Run("slow", nil, NewExecutionContext(storedEvent()))
	require.False(t, result.Ok)
	require.Contains(t, result.Err.Error(), "timed out")
}

type panicHandler struct{}

func (panicHandler) Type() string                        { return "panics" }
func (panicHandler) Validate(params map[string]any) error { return nil }
func (panicHandler) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) error {
	panic("boom")
}

func TestExecutorIsolatesPanics(t *testing.T) {
	registry := NewRegistry()
	registry.Register(panicHandler{})
	executor := NewExecutor(registry, time.Second)

	result := executor.Run("panics", nil, NewExecutionContext(storedEvent()))
	require.False(t, result.Ok)
	require.Contains(t, result.Err.Error(), "panic")
}

func TestExecutorUnknownType(t *testing.T) {
	executor := NewExecutor(NewRegistry(), time.Second)
	result := executor.Run("nope", nil, NewExecutionContext(storedEvent()))
	require.False(t, result.Ok)
}
