// Package analytics provides the audit subscriber: every event published
// on the bus is appended to a JSON audit log file, independent of rule
// evaluation.
package analytics

import (
	"os"

	"github.com/wmsflow/rulebus/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type EventAuditLogger struct {
	fileName string
	logger   *zap.Logger
}

func NewEventAuditLogger(fileName string) (*EventAuditLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewTee(zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel))
	return &EventAuditLogger{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (a *EventAuditLogger) Name() string {
	return "event-audit"
}

func (a *EventAuditLogger) OnEvent(event model.Event) {
	a.logger.Info("event",
		zap.String("id", event.Id),
		zap.String("type", event.Type),
		zap.String("entityType", event.EntityType),
		zap.String("entityId", event.EntityId),
		zap.String("action", event.Action),
		zap.Any("payload", event.Payload),
		zap.String("performedById", event.PerformedById),
		zap.Time("timestamp", event.Timestamp))
}
