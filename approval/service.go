// Package approval owns the approval state machine: sequential chains
// with SLA deadlines per level, and parallel groups resolved by all/any
// consensus. It is the only writer of approval entities; the rule engine
// initiates chains and observes completion through bus events.
package approval

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"github.com/wmsflow/rulebus/external"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(event model.Event)
}

const lockStripes = 64

type Service struct {
	storage   persistence.ApprovalStorage
	policies  persistence.PolicyStorage
	publisher Publisher
	documents external.DocumentClient

	locks [lockStripes]sync.Mutex

	now func() time.Time
}

func NewService(storage persistence.ApprovalStorage, policies persistence.PolicyStorage, publisher Publisher, documents external.DocumentClient) *Service {
	return &Service{
		storage:   storage,
		policies:  policies,
		publisher: publisher,
		documents: documents,
		now:       time.Now,
	}
}

// lock serializes state transitions per key so two concurrent callers can
// never both complete the same chain step or group. Keys hash onto a
// fixed stripe set, so the lock footprint stays constant no matter how
// many documents pass through. No caller ever holds two stripes at once.
func (s *Service) lock(key string) *sync.Mutex {
	return &s.locks[murmur3.Sum64([]byte(key))%lockStripes]
}

func documentKey(documentType string, documentId string) string {
	return documentType + ":" + documentId
}

// PreviewChain returns the levels a submission of this amount would go
// through, without creating any state.
func (s *Service) PreviewChain(documentType string, amount float64) ([]model.ApprovalLevelDef, error) {
	policy, err := s.policies.GetPolicy(documentType)
	if err != nil {
		return nil, err
	}
	return policy.LevelsFor(amount), nil
}

// SubmitForApproval opens a sequential chain for the document. A document
// with an open chain or group is rejected; the second submission must not
// silently create a parallel approval track.
func (s *Service) SubmitForApproval(documentType string, documentId string, amount float64, submittedById string) (*model.ApprovalChain, error) {
	mu := s.lock(documentKey(documentType, documentId))
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.storage.GetOpenChain(documentType, documentId); err == nil {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("document %s/%s already has an open approval chain", documentType, documentId)}
	} else if _, ok := err.(persistence.NotFoundError); !ok {
		return nil, err
	}
	if _, err := s.storage.GetOpenGroup(documentType, documentId); err == nil {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("document %s/%s already has an open approval group", documentType, documentId)}
	} else if _, ok := err.(persistence.NotFoundError); !ok {
		return nil, err
	}

	levels, err := s.PreviewChain(documentType, amount)
	if err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("no approval level configured for %s amount %.2f", documentType, amount)}
	}

	now := s.now()
	first := levels[0]
	chain := model.ApprovalChain{
		Id:            uuid.New().String(),
		DocumentType:  documentType,
		DocumentId:    documentId,
		Amount:        amount,
		Status:        model.APPROVAL_STATUS_PENDING,
		SubmittedById: submittedById,
		Steps: []model.ApprovalStep{{
			Level:        first.Level,
			ApproverRole: first.ApproverRole,
			Status:       model.APPROVAL_STATUS_PENDING,
			SlaHours:     first.SlaHours,
			SlaDueDate:   now.Add(time.Duration(first.SlaHours) * time.Hour),
		}},
		CreatedAt: now,
	}
	if err := s.storage.SaveChain(chain); err != nil {
		return nil, err
	}
	logger.Info("approval chain opened",
		zap.String("documentType", documentType),
		zap.String("documentId", documentId),
		zap.Int("levels", len(levels)),
		zap.String("approverRole", first.ApproverRole))
	s.publisher.Publish(model.Event{
		Type:          model.EVENT_APPROVAL_REQUESTED,
		EntityType:    documentType,
		EntityId:      documentId,
		Action:        "submitted",
		PerformedById: submittedById,
		Payload: map[string]any{
			"chainId":      chain.Id,
			"level":        first.Level,
			"approverRole": first.ApproverRole,
			"slaHours":     first.SlaHours,
			"amount":       amount,
		},
	})
	return &chain, nil
}

// ProcessApproval records a decision on the current pending step. On
// approval the next applicable level opens with a fresh SLA deadline, or
// the chain completes when the step was the last level. A rejection halts
// the chain immediately.
func (s *Service) ProcessApproval(documentType string, documentId string, decision string, processedById string, comments string) (*model.ApprovalChain, error) {
	if decision != model.DECISION_APPROVED && decision != model.DECISION_REJECTED {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("unknown approval decision %q", decision)}
	}
	mu := s.lock(documentKey(documentType, documentId))
	mu.Lock()
	defer mu.Unlock()

	chain, err := s.storage.GetOpenChain(documentType, documentId)
	if err != nil {
		return nil, err
	}
	step := chain.CurrentStep()
	if step == nil {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("approval chain %s has no pending step", chain.Id)}
	}
	if status, err := s.documents.GetCurrentStatus(documentType, documentId); err != nil {
		return nil, fmt.Errorf("error reading document status: %w", err)
	} else if status == "cancelled" {
		return nil, persistence.ConflictError{Message: fmt.Sprintf("document %s/%s is cancelled", documentType, documentId)}
	}

	now := s.now()
	step.Status = decision
	step.DecidedAt = &now
	step.DecidedById = processedById
	step.Comments = comments

	if decision == model.DECISION_REJECTED {
		chain.Status = model.APPROVAL_STATUS_REJECTED
		chain.CompletedAt = &now
		if err := s.storage.SaveChain(*chain); err != nil {
			return nil, err
		}
		s.publishChainEvent(model.EVENT_APPROVAL_REJECTED, chain, step.Level, processedById)
		return chain, nil
	}

	next := s.nextLevel(chain, step.Level)
	if next == nil {
		chain.Status = model.APPROVAL_STATUS_APPROVED
		chain.CompletedAt = &now
		if err := s.storage.SaveChain(*chain); err != nil {
			return nil, err
		}
		s.publishChainEvent(model.EVENT_APPROVAL_COMPLETED, chain, step.Level, processedById)
		return chain, nil
	}

	chain.Steps = append(chain.Steps, model.ApprovalStep{
		Level:        next.Level,
		ApproverRole: next.ApproverRole,
		Status:       model.APPROVAL_STATUS_PENDING,
		SlaHours:     next.SlaHours,
		SlaDueDate:   now.Add(time.Duration(next.SlaHours) * time.Hour),
	})
	if err := s.storage.SaveChain(*chain); err != nil {
		return nil, err
	}
	s.publishChainEvent(model.EVENT_APPROVAL_LEVEL_COMPLETED, chain, step.Level, processedById)
	return chain, nil
}

func (s *Service) nextLevel(chain *model.ApprovalChain, currentLevel int) *model.ApprovalLevelDef {
	policy, err := s.policies.GetPolicy(chain.DocumentType)
	if err != nil {
		logger.Error("approval policy missing for open chain",
			zap.String("documentType", chain.DocumentType), zap.Error(err))
		return nil
	}
	for _, level := range policy.LevelsFor(chain.Amount) {
		if level.Level > currentLevel {
			l := level
			return &l
		}
	}
	return nil
}

func (s *Service) publishChainEvent(eventType string, chain *model.ApprovalChain, level int, performedById string) {
	s.publisher.Publish(model.Event{
		Type:          eventType,
		EntityType:    chain.DocumentType,
		EntityId:      chain.DocumentId,
		Action:        chain.Status,
		PerformedById: performedById,
		Payload: map[string]any{
			"chainId": chain.Id,
			"level":   level,
			"status":  chain.Status,
			"amount":  chain.Amount,
		},
	})
}
