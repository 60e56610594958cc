package action

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	c "github.com/patrickmn/go-cache"
	"github.com/wmsflow/rulebus/external"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"go.uber.org/zap"
)

// notifyAction invokes the notification subsystem. Re-deliveries of the
// same event produce the same content fingerprint and are dropped, so a
// rule firing twice does not double-notify.
type notifyAction struct {
	notifier external.Notifier
	seen     *c.Cache
}

func NewNotifyAction(notifier external.Notifier) Handler {
	return &notifyAction{
		notifier: notifier,
		seen:     c.New(time.Hour, 10*time.Minute),
	}
}

func (a *notifyAction) Type() string {
	return TYPE_CREATE_NOTIFICATION
}

func (a *notifyAction) Validate(params map[string]any) error {
	if len(stringParam(params, "title")) == 0 {
		return ConfigError{ActionType: a.Type(), Msg: "param title is required"}
	}
	if len(stringParam(params, "recipientRole")) == 0 && len(stringParam(params, "recipientId")) == 0 {
		return ConfigError{ActionType: a.Type(), Msg: "one of recipientRole, recipientId is required"}
	}
	return nil
}

func (a *notifyAction) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) error {
	resolved := ResolveParams(ec.Doc, params)
	notification := model.Notification{
		RecipientId:      stringParam(resolved, "recipientId"),
		RecipientRole:    stringParam(resolved, "recipientRole"),
		Title:            stringParam(resolved, "title"),
		Body:             stringParam(resolved, "body"),
		NotificationType: stringParam(resolved, "notificationType"),
		ReferenceTable:   stringParam(resolved, "referenceTable"),
		ReferenceId:      stringParam(resolved, "referenceId"),
	}
	if len(notification.ReferenceId) == 0 {
		notification.ReferenceId = ec.Event.EntityId
	}
	if len(notification.ReferenceTable) == 0 {
		notification.ReferenceTable = ec.Event.EntityType
	}
	fingerprint := a.fingerprint(ec.Event.Id, notification)
	if _, dup := a.seen.Get(fingerprint); dup {
		logger.Debug("duplicate notification suppressed",
			zap.String("eventId", ec.Event.Id), zap.String("title", notification.Title))
		return nil
	}
	if err := a.notifier.CreateNotification(notification); err != nil {
		return err
	}
	a.seen.Set(fingerprint, true, c.DefaultExpiration)
	return nil
}

func (a *notifyAction) fingerprint(eventId string, n model.Notification) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		eventId, n.RecipientId, n.RecipientRole, n.Title, n.Body, n.NotificationType)))
	return hex.EncodeToString(sum[:])
}
