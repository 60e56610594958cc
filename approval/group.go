package approval

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"go.uber.org/zap"
)

// CreateGroup opens a parallel approval group: one level resolved by
// consensus among the nominated approvers. slaHours of zero means no
// deadline.
func (s *Service) CreateGroup(documentType string, documentId string, level int, mode string, approverIds []string, slaHours int) (*model.ParallelApprovalGroup, error) {
	if mode != model.APPROVAL_MODE_ALL && mode != model.APPROVAL_MODE_ANY {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("unknown approval mode %q", mode)}
	}
	if len(approverIds) == 0 {
		return nil, persistence.ConflictError{Message: "approval group requires at least one approver"}
	}
	seen := make(map[string]bool, len(approverIds))
	for _, id := range approverIds {
		if seen[id] {
			return nil, persistence.ConflictError{Message: fmt.Sprintf("approver %s nominated twice", id)}
		}
		seen[id] = true
	}

	mu := s.lock(documentKey(documentType, documentId))
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.storage.GetOpenGroup(documentType, documentId); err == nil {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("document %s/%s already has an open approval group", documentType, documentId)}
	} else if _, ok := err.(persistence.NotFoundError); !ok {
		return nil, err
	}
	if _, err := s.storage.GetOpenChain(documentType, documentId); err == nil {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("document %s/%s already has an open approval chain", documentType, documentId)}
	} else if _, ok := err.(persistence.NotFoundError); !ok {
		return nil, err
	}

	now := s.now()
	group := model.ParallelApprovalGroup{
		Id:            uuid.New().String(),
		DocumentType:  documentType,
		DocumentId:    documentId,
		ApprovalLevel: level,
		Mode:          mode,
		Status:        model.APPROVAL_STATUS_PENDING,
		ApproverIds:   approverIds,
		Responses:     []model.ApprovalResponse{},
		CreatedAt:     now,
	}
	if slaHours > 0 {
		group.SlaDueDate = now.Add(time.Duration(slaHours) * time.Hour)
	}
	if err := s.storage.SaveGroup(group); err != nil {
		return nil, err
	}
	logger.Info("parallel approval group opened",
		zap.String("groupId", group.Id),
		zap.String("documentType", documentType),
		zap.String("documentId", documentId),
		zap.String("mode", mode),
		zap.Int("approvers", len(approverIds)))
	return &group, nil
}

// Respond records one approver's decision and recomputes the consensus.
// An approver may respond only once, and a resolved group rejects all
// further responses.
func (s *Service) Respond(groupId string, approverId string, decision string, comments string) (*model.ParallelApprovalGroup, error) {
	if decision != model.DECISION_APPROVED && decision != model.DECISION_REJECTED {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("unknown approval decision %q", decision)}
	}
	mu := s.lock("group:" + groupId)
	mu.Lock()
	defer mu.Unlock()

	group, err := s.storage.GetGroup(groupId)
	if err != nil {
		return nil, err
	}
	if group.Status != model.APPROVAL_STATUS_PENDING {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("approval group %s is already resolved as %s", groupId, group.Status)}
	}
	if !group.IsNominated(approverId) {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("approver %s is not nominated in group %s", approverId, groupId)}
	}
	if group.HasResponded(approverId) {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("approver %s already responded in group %s", approverId, groupId)}
	}

	now := s.now()
	group.Responses = append(group.Responses, model.ApprovalResponse{
		ApproverId: approverId,
		Decision:   decision,
		Comments:   comments,
		DecidedAt:  now,
	})
	group.Status = consensus(group)
	if group.Status != model.APPROVAL_STATUS_PENDING {
		group.CompletedAt = &now
	}
	if err := s.storage.SaveGroup(*group); err != nil {
		return nil, err
	}
	if group.Status != model.APPROVAL_STATUS_PENDING {
		s.publisher.Publish(model.Event{
			Type:          model.EVENT_APPROVAL_GROUP_COMPLETED,
			EntityType:    group.DocumentType,
			EntityId:      group.DocumentId,
			Action:        group.Status,
			PerformedById: approverId,
			Payload: map[string]any{
				"groupId":      group.Id,
				"documentType": group.DocumentType,
				"documentId":   group.DocumentId,
				"level":        group.ApprovalLevel,
				"status":       group.Status,
			},
		})
	}
	return group, nil
}

// consensus applies the resolution rule. mode=all: one rejection resolves
// the group rejected, approval requires every nominated approver to have
// approved. mode=any: the first approval resolves the group approved, and
// it only becomes rejected once every approver has responded rejected.
func consensus(group *model.ParallelApprovalGroup) string {
	approved, rejected := 0, 0
	for _, r := range group.Responses {
		switch r.Decision {
		case model.DECISION_APPROVED:
			approved++
		case model.DECISION_REJECTED:
			rejected++
		}
	}
	switch group.Mode {
	case model.APPROVAL_MODE_ALL:
		if rejected > 0 {
			return model.APPROVAL_STATUS_REJECTED
		}
		if approved == len(group.ApproverIds) {
			return model.APPROVAL_STATUS_APPROVED
		}
	case model.APPROVAL_MODE_ANY:
		if approved > 0 {
			return model.APPROVAL_STATUS_APPROVED
		}
		if rejected == len(group.ApproverIds) {
			return model.APPROVAL_STATUS_REJECTED
		}
	}
	return model.APPROVAL_STATUS_PENDING
}

// PendingForUser lists the open approvals awaiting the user: groups the
// user is nominated in and has not responded to, and chain steps routed
// to one of the user's roles.
func (s *Service) PendingForUser(userId string, roles []string) ([]model.PendingApproval, error) {
	roleSet := make(map[string]bool, len(roles))
	for _, role := range roles {
		roleSet[role] = true
	}
	var pending []model.PendingApproval

	groups, err := s.storage.ListOpenGroups()
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		if group.IsNominated(userId) && !group.HasResponded(userId) {
			pending = append(pending, model.PendingApproval{
				Kind:         model.PENDING_KIND_GROUP,
				DocumentType: group.DocumentType,
				DocumentId:   group.DocumentId,
				Level:        group.ApprovalLevel,
				GroupId:      group.Id,
				SlaDueDate:   group.SlaDueDate,
			})
		}
	}

	chains, err := s.storage.ListOpenChains()
	if err != nil {
		return nil, err
	}
	for i := range chains {
		step := chains[i].CurrentStep()
		if step != nil && roleSet[step.ApproverRole] {
			pending = append(pending, model.PendingApproval{
				Kind:         model.PENDING_KIND_STEP,
				DocumentType: chains[i].DocumentType,
				DocumentId:   chains[i].DocumentId,
				Level:        step.Level,
				ApproverRole: step.ApproverRole,
				SlaDueDate:   step.SlaDueDate,
			})
		}
	}
	return pending, nil
}
