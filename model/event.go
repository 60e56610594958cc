package model

import "time"

const EVENT_DOCUMENT_STATUS_CHANGED string = "document:status_changed"
const EVENT_APPROVAL_REQUESTED string = "approval:requested"
const EVENT_APPROVAL_LEVEL_COMPLETED string = "approval:level_completed"
const EVENT_APPROVAL_COMPLETED string = "approval:completed"
const EVENT_APPROVAL_REJECTED string = "approval:rejected"
const EVENT_APPROVAL_GROUP_COMPLETED string = "approval:group_completed"
const EVENT_SLA_BREACHED string = "sla:breached"

// Event is the unit published on the bus by document services and by the
// approval state machine. EntityId identifies the document the event is
// about; events for the same EntityId are processed in publish order.
type Event struct {
	Id            string         `json:"id"`
	Type          string         `json:"type"`
	EntityType    string         `json:"entityType"`
	EntityId      string         `json:"entityId"`
	Action        string         `json:"action"`
	Payload       map[string]any `json:"payload"`
	PerformedById string         `json:"performedById,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Doc flattens the event into the document condition fields are resolved
// against. Payload is kept under "payload" so rule fields read naturally
// as payload.to, entityType, action and so on.
func (e Event) Doc() map[string]any {
	return map[string]any{
		"id":            e.Id,
		"type":          e.Type,
		"entityType":    e.EntityType,
		"entityId":      e.EntityId,
		"action":        e.Action,
		"payload":       e.Payload,
		"performedById": e.PerformedById,
	}
}
