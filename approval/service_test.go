package approval

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"github.com/wmsflow/rulebus/persistence/inmem"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(event model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) byType(eventType string) []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type stubDocuments struct {
	status string
}

func (d stubDocuments) GetCurrentStatus(documentType string, documentId string) (string, error) {
	return d.status, nil
}

func (d stubDocuments) ChangeStatus(documentType string, documentId string, targetStatus string, performedById string) error {
	return nil
}

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	storage   *inmem.Storage
	publisher *recordingPublisher
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		storage:   inmem.NewStorage(),
		publisher: &recordingPublisher{},
	}
	require.NoError(t, f.storage.SavePolicy(model.ApprovalPolicy{
		DocumentType: "mrrv",
		Levels: []model.ApprovalLevelDef{
			{Level: 1, ApproverRole: "supervisor", SlaHours: 24, MinAmount: 0},
			{Level: 2, ApproverRole: "manager", SlaHours: 48, MinAmount: 10000},
		},
	}))
	f.service = NewService(f.storage, f.storage, f.publisher, stubDocuments{status: "submitted"})
	f.service.now = func() time.Time { return testNow }
	return f
}

func TestSubmitOpensFirstLevel(t *testing.T) {
	f := newFixture(t)

	chain, err := f.service.SubmitForApproval("mrrv", "doc-1", 25000, "user-1")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_PENDING, chain.Status)
	require.Len(t, chain.Steps, 1)
	require.Equal(t, 1, chain.Steps[0].Level)
	require.Equal(t, "supervisor", chain.Steps[0].ApproverRole)
	require.Equal(t, testNow.Add(24*time.Hour), chain.Steps[0].SlaDueDate)

	requested := f.publisher.byType(model.EVENT_APPROVAL_REQUESTED)
	require.Len(t, requested, 1)
	require.Equal(t, "doc-1", requested[0].EntityId)
	require.Equal(t, "supervisor", requested[0].Payload["approverRole"])
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SubmitForApproval("mrrv", "doc-1", 500, "user-1")
	require.NoError(t, err)

	_, err = f.service.SubmitForApproval("mrrv", "doc-1", 500, "user-2")
	require.IsType(t, persistence.ConflictError{}, err)
}

func TestSubmitWithoutApplicableLevelRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.storage.SavePolicy(model.ApprovalPolicy{
		DocumentType: "grn",
		Levels:       []model.ApprovalLevelDef{{Level: 1, ApproverRole: "manager", SlaHours: 24, MinAmount: 1000}},
	}))

	_, err := f.service.SubmitForApproval("grn", "doc-1", 200, "user-1")
	require.IsType(t, persistence.ConflictError{}, err)
}

func TestApprovalAdvancesToNextLevelWithFreshSla(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.SubmitForApproval("mrrv", "doc-1", 25000, "user-1")
	require.NoError(t, err)

	later := testNow.Add(3 * time.Hour)
	f.service.now = func() time.Time { return later }

	chain, err := f.service.ProcessApproval("mrrv", "doc-1", model.DECISION_APPROVED, "sup-1", "ok")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_PENDING, chain.Status)
	require.Len(t, chain.Steps, 2)
	require.Equal(t, model.APPROVAL_STATUS_APPROVED, chain.Steps[0].Status)
	require.Equal(t, "sup-1", chain.Steps[0].DecidedById)
	require.Equal(t, 2, chain.Steps[1].Level)
	require.Equal(t, "manager", chain.Steps[1].ApproverRole)
	require.Equal(t, later.Add(48*time.Hour), chain.Steps[1].SlaDueDate,
		"next level gets an SLA counted from its own opening")

	require.Len(t, f.publisher.byType(model.EVENT_APPROVAL_LEVEL_COMPLETED), 1)
	require.Empty(t, f.publisher.byType(model.EVENT_APPROVAL_COMPLETED))
}

func TestFinalApprovalCompletesChain(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.SubmitForApproval("mrrv", "doc-1", 25000, "user-1")
	require.NoError(t, err)
	_, err = f.service.ProcessApproval("mrrv", "doc-1", model.DECISION_APPROVED, "sup-1", "")
	require.NoError(t, err)

	chain, err := f.service.ProcessApproval("mrrv", "doc-1", model.DECISION_APPROVED, "mgr-1", "")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_APPROVED, chain.Status)
	require.NotNil(t, chain.CompletedAt)
	require.Nil(t, chain.CurrentStep())
	require.Len(t, f.publisher.byType(model.EVENT_APPROVAL_COMPLETED), 1)

	_, err = f.storage.GetOpenChain("mrrv", "doc-1")
	require.IsType(t, persistence.NotFoundError{}, err, "completed chain leaves the open index")
}

func TestSmallAmountSkipsHigherLevels(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.SubmitForApproval("mrrv", "doc-1", 500, "user-1")
	require.NoError(t, err)

	chain, err := f.service.ProcessApproval("mrrv", "doc-1", model.DECISION_APPROVED, "sup-1", "")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_APPROVED, chain.Status)
	require.Len(t, chain.Steps, 1, "amount below the level-2 bracket needs only level 1")
}

func TestRejectionHaltsChain(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.SubmitForApproval("mrrv", "doc-1", 25000, "user-1")
	require.NoError(t, err)

	chain, err := f.service.ProcessApproval("mrrv", "doc-1", model.DECISION_REJECTED, "sup-1", "missing paperwork")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_REJECTED, chain.Status)
	require.NotNil(t, chain.CompletedAt)
	require.Len(t, chain.Steps, 1, "no level-2 step after a rejection")
	require.Len(t, f.publisher.byType(model.EVENT_APPROVAL_REJECTED), 1)

	_, err = f.service.ProcessApproval("mrrv", "doc-1", model.DECISION_APPROVED, "mgr-1", "")
	require.Error(t, err, "a rejected chain accepts no further decisions")
}

func TestCancelledDocumentBlocksDecision(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.SubmitForApproval("mrrv", "doc-1", 500, "user-1")
	require.NoError(t, err)

	f.service.documents = stubDocuments{status: "cancelled"}
	_, err = f.service.ProcessApproval("mrrv", "doc-1", model.DECISION_APPROVED, "sup-1", "")
	require.IsType(t, persistence.ConflictError{}, err)
}

func TestUnknownDecisionRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.SubmitForApproval("mrrv", "doc-1", 500, "user-1")
	require.NoError(t, err)

	_, err = f.service.ProcessApproval("mrrv", "doc-1", "maybe", "sup-1", "")
	require.IsType(t, persistence.ConflictError{}, err)
}

func TestLockFootprintStaysBounded(t *testing.T) {
	f := newFixture(t)

	first := f.service.lock("mrrv:doc-1")
	require.Same(t, first, f.service.lock("mrrv:doc-1"), "same key always serializes on the same mutex")

	seen := make(map[*sync.Mutex]bool)
	for i := 0; i < 10000; i++ {
		seen[f.service.lock(fmt.Sprintf("mrrv:doc-%d", i))] = true
	}
	require.LessOrEqual(t, len(seen), lockStripes, "distinct documents never grow the lock set past the stripe count")
}

func TestPreviewChainDoesNotCreateState(t *testing.T) {
	f := newFixture(t)

	levels, err := f.service.PreviewChain("mrrv", 25000)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	levels, err = f.service.PreviewChain("mrrv", 500)
	require.NoError(t, err)
	require.Len(t, levels, 1)

	_, err = f.storage.GetOpenChain("mrrv", "doc-1")
	require.IsType(t, persistence.NotFoundError{}, err)
}
