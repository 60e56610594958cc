package approval

import (
	"time"

	"github.com/wmsflow/rulebus/model"
)

// SLA breach is advisory: it publishes an event and stamps the entity as
// notified, it never transitions approval state. The stamp plus the
// dedupe window make concurrent sweeps idempotent.

func (s *Service) NotifyStepBreach(chainId string, level int, now time.Time, window time.Duration) (bool, error) {
	chain, err := s.storage.GetChain(chainId)
	if err != nil {
		return false, err
	}
	mu := s.lock(documentKey(chain.DocumentType, chain.DocumentId))
	mu.Lock()
	defer mu.Unlock()

	chain, err = s.storage.GetChain(chainId)
	if err != nil {
		return false, err
	}
	if chain.Status != model.APPROVAL_STATUS_PENDING {
		return false, nil
	}
	var step *model.ApprovalStep
	for i := range chain.Steps {
		if chain.Steps[i].Level == level {
			step = &chain.Steps[i]
		}
	}
	if step == nil || step.Status != model.APPROVAL_STATUS_PENDING || step.SlaDueDate.After(now) {
		return false, nil
	}
	if step.BreachNotifiedAt != nil && now.Sub(*step.BreachNotifiedAt) < window {
		return false, nil
	}
	step.BreachNotifiedAt = &now
	if err := s.storage.SaveChain(*chain); err != nil {
		return false, err
	}
	s.publisher.Publish(model.Event{
		Type:       model.EVENT_SLA_BREACHED,
		EntityType: chain.DocumentType,
		EntityId:   chain.DocumentId,
		Action:     "sla_breached",
		Payload: map[string]any{
			"kind":         "step",
			"chainId":      chain.Id,
			"level":        step.Level,
			"approverRole": step.ApproverRole,
			"slaDueDate":   step.SlaDueDate,
		},
	})
	return true, nil
}

func (s *Service) NotifyGroupBreach(groupId string, now time.Time, window time.Duration) (bool, error) {
	mu := s.lock("group:" + groupId)
	mu.Lock()
	defer mu.Unlock()

	group, err := s.storage.GetGroup(groupId)
	if err != nil {
		return false, err
	}
	if group.Status != model.APPROVAL_STATUS_PENDING {
		return false, nil
	}
	if group.SlaDueDate.IsZero() || group.SlaDueDate.After(now) {
		return false, nil
	}
	if group.BreachNotifiedAt != nil && now.Sub(*group.BreachNotifiedAt) < window {
		return false, nil
	}
	group.BreachNotifiedAt = &now
	if err := s.storage.SaveGroup(*group); err != nil {
		return false, err
	}
	s.publisher.Publish(model.Event{
		Type:       model.EVENT_SLA_BREACHED,
		EntityType: group.DocumentType,
		EntityId:   group.DocumentId,
		Action:     "sla_breached",
		Payload: map[string]any{
			"kind":       "group",
			"groupId":    group.Id,
			"level":      group.ApprovalLevel,
			"slaDueDate": group.SlaDueDate,
		},
	})
	return true, nil
}
