package approval

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
)

func openGroup(t *testing.T, f *fixture, mode string, approvers ...string) *model.ParallelApprovalGroup {
	t.Helper()
	group, err := f.service.CreateGroup("mrrv", "doc-1", 1, mode, approvers, 24)
	require.NoError(t, err)
	return group
}

func TestAllModeNeedsEveryApprover(t *testing.T) {
	f := newFixture(t)
	group := openGroup(t, f, model.APPROVAL_MODE_ALL, "u1", "u2", "u3")

	g, err := f.service.Respond(group.Id, "u1", model.DECISION_APPROVED, "")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_PENDING, g.Status)

	g, err = f.service.Respond(group.Id, "u2", model.DECISION_APPROVED, "")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_PENDING, g.Status, "two of three approvals keep the group open")

	g, err = f.service.Respond(group.Id, "u3", model.DECISION_APPROVED, "")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_APPROVED, g.Status)
	require.NotNil(t, g.CompletedAt)
	require.Len(t, f.publisher.byType(model.EVENT_APPROVAL_GROUP_COMPLETED), 1)
}

func TestAllModeRejectionResolvesImmediately(t *testing.T) {
	f := newFixture(t)
	group := openGroup(t, f, model.APPROVAL_MODE_ALL, "u1", "u2", "u3")

	g, err := f.service.Respond(group.Id, "u2", model.DECISION_REJECTED, "wrong quantities")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_REJECTED, g.Status)

	_, err = f.service.Respond(group.Id, "u1", model.DECISION_APPROVED, "")
	require.IsType(t, persistence.ConflictError{}, err, "a resolved group accepts no further responses")
}

func TestAnyModeFirstApprovalResolves(t *testing.T) {
	f := newFixture(t)
	group := openGroup(t, f, model.APPROVAL_MODE_ANY, "u1", "u2", "u3")

	g, err := f.service.Respond(group.Id, "u2", model.DECISION_APPROVED, "")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_APPROVED, g.Status)

	_, err = f.service.Respond(group.Id, "u1", model.DECISION_APPROVED, "")
	require.IsType(t, persistence.ConflictError{}, err)
	_, err = f.service.Respond(group.Id, "u3", model.DECISION_REJECTED, "")
	require.IsType(t, persistence.ConflictError{}, err)
}

func TestAnyModeRejectedOnlyWhenAllReject(t *testing.T) {
	f := newFixture(t)
	group := openGroup(t, f, model.APPROVAL_MODE_ANY, "u1", "u2")

	g, err := f.service.Respond(group.Id, "u1", model.DECISION_REJECTED, "")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_PENDING, g.Status, "one rejection does not resolve an any-mode group")

	g, err = f.service.Respond(group.Id, "u2", model.DECISION_REJECTED, "")
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_REJECTED, g.Status)
}

func TestDoubleResponseRejected(t *testing.T) {
	f := newFixture(t)
	group := openGroup(t, f, model.APPROVAL_MODE_ALL, "u1", "u2")

	_, err := f.service.Respond(group.Id, "u1", model.DECISION_APPROVED, "")
	require.NoError(t, err)
	_, err = f.service.Respond(group.Id, "u1", model.DECISION_APPROVED, "")
	require.IsType(t, persistence.ConflictError{}, err)
}

func TestNonNominatedApproverRejected(t *testing.T) {
	f := newFixture(t)
	group := openGroup(t, f, model.APPROVAL_MODE_ALL, "u1", "u2")

	_, err := f.service.Respond(group.Id, "intruder", model.DECISION_APPROVED, "")
	require.IsType(t, persistence.ConflictError{}, err)
}

func TestGroupCreationValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateGroup("mrrv", "doc-1", 1, "most", []string{"u1"}, 0)
	require.IsType(t, persistence.ConflictError{}, err)

	_, err = f.service.CreateGroup("mrrv", "doc-1", 1, model.APPROVAL_MODE_ALL, nil, 0)
	require.IsType(t, persistence.ConflictError{}, err)

	_, err = f.service.CreateGroup("mrrv", "doc-1", 1, model.APPROVAL_MODE_ALL, []string{"u1", "u1"}, 0)
	require.IsType(t, persistence.ConflictError{}, err)
}

func TestOpenGroupBlocksSecondTrack(t *testing.T) {
	f := newFixture(t)
	openGroup(t, f, model.APPROVAL_MODE_ALL, "u1", "u2")

	_, err := f.service.CreateGroup("mrrv", "doc-1", 1, model.APPROVAL_MODE_ANY, []string{"u3"}, 0)
	require.IsType(t, persistence.ConflictError{}, err)

	_, err = f.service.SubmitForApproval("mrrv", "doc-1", 500, "user-1")
	require.IsType(t, persistence.ConflictError{}, err, "an open group blocks a sequential chain on the same document")
}

func TestConcurrentResponsesResolveOnce(t *testing.T) {
	f := newFixture(t)
	group := openGroup(t, f, model.APPROVAL_MODE_ANY, "u1", "u2", "u3", "u4")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i, approver := range []string{"u1", "u2", "u3", "u4"} {
		wg.Add(1)
		go func(i int, approver string) {
			defer wg.Done()
			_, errs[i] = f.service.Respond(group.Id, approver, model.DECISION_APPROVED, "")
		}(i, approver)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if _, isConflict := err.(persistence.ConflictError); isConflict {
			conflict++
		}
	}
	require.Equal(t, 1, ok, "exactly one approval resolves an any-mode group")
	require.Equal(t, 3, conflict)

	g, err := f.storage.GetGroup(group.Id)
	require.NoError(t, err)
	require.Equal(t, model.APPROVAL_STATUS_APPROVED, g.Status)
	require.Len(t, g.Responses, 1)
	require.Len(t, f.publisher.byType(model.EVENT_APPROVAL_GROUP_COMPLETED), 1)
}

func TestPendingForUserCombinesStepsAndGroups(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("mrrv", "doc-g", 1, model.APPROVAL_MODE_ALL, []string{"u1", "u2"}, 24)
	require.NoError(t, err)
	_, err = f.service.SubmitForApproval("mrrv", "doc-c", 500, "user-1")
	require.NoError(t, err)

	pending, err := f.service.PendingForUser("u1", []string{"supervisor"})
	require.NoError(t, err)
	require.Len(t, pending, 2)

	kinds := map[string]model.PendingApproval{}
	for _, p := range pending {
		kinds[p.Kind] = p
	}
	require.Equal(t, group.Id, kinds[model.PENDING_KIND_GROUP].GroupId)
	require.Equal(t, "doc-c", kinds[model.PENDING_KIND_STEP].DocumentId)

	_, err = f.service.Respond(group.Id, "u1", model.DECISION_APPROVED, "")
	require.NoError(t, err)
	pending, err = f.service.PendingForUser("u1", nil)
	require.NoError(t, err)
	require.Empty(t, pending, "a responded approver no longer sees the group")
}
