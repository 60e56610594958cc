// Package external declares the invocation contracts of collaborators
// that live outside the engine: the notification subsystem and the
// document services. The engine only calls these interfaces; delivery,
// retries and document persistence are the collaborators' concern.
package external

import (
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"go.uber.org/zap"
)

// Notifier creates a notification. Fire-and-forget from the engine's
// perspective; the notification subsystem owns delivery retries.
type Notifier interface {
	CreateNotification(notification model.Notification) error
}

// DocumentClient is the slice of the document services the engine needs:
// status reads for approval preconditions and status writes for the
// change_status action.
type DocumentClient interface {
	GetCurrentStatus(documentType string, documentId string) (string, error)
	ChangeStatus(documentType string, documentId string, targetStatus string, performedById string) error
}

// LogNotifier is the default wiring when no notification subsystem is
// attached: it records the call and succeeds.
type LogNotifier struct{}

func (LogNotifier) CreateNotification(n model.Notification) error {
	logger.Info("notification created",
		zap.String("recipientId", n.RecipientId),
		zap.String("recipientRole", n.RecipientRole),
		zap.String("title", n.Title),
		zap.String("type", n.NotificationType))
	return nil
}

// LogDocumentClient is the default wiring when no document service is
// attached. Status reads report unknown, status writes only log.
type LogDocumentClient struct{}

func (LogDocumentClient) GetCurrentStatus(documentType string, documentId string) (string, error) {
	return "", nil
}

func (LogDocumentClient) ChangeStatus(documentType string, documentId string, targetStatus string, performedById string) error {
	logger.Info("document status changed",
		zap.String("documentType", documentType),
		zap.String("documentId", documentId),
		zap.String("targetStatus", targetStatus))
	return nil
}
