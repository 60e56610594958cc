package model

import "time"

const APPROVAL_STATUS_PENDING string = "pending"
const APPROVAL_STATUS_APPROVED string = "approved"
const APPROVAL_STATUS_REJECTED string = "rejected"
const APPROVAL_STATUS_SKIPPED string = "skipped"

const APPROVAL_MODE_ALL string = "all"
const APPROVAL_MODE_ANY string = "any"

const DECISION_APPROVED string = "approved"
const DECISION_REJECTED string = "rejected"

// ApprovalChain is the single active sequential approval track of a
// document. Steps are kept inline so a chain mutates atomically.
type ApprovalChain struct {
	Id            string         `json:"id"`
	DocumentType  string         `json:"documentType"`
	DocumentId    string         `json:"documentId"`
	Amount        float64        `json:"amount"`
	Status        string         `json:"status"`
	SubmittedById string         `json:"submittedById"`
	Steps         []ApprovalStep `json:"steps"`
	CreatedAt     time.Time      `json:"createdAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

// ApprovalStep is one level of a chain. At most one step per chain is
// pending at a time.
type ApprovalStep struct {
	Level            int        `json:"level"`
	ApproverRole     string     `json:"approverRole"`
	Status           string     `json:"status"`
	SlaHours         int        `json:"slaHours"`
	SlaDueDate       time.Time  `json:"slaDueDate"`
	DecidedAt        *time.Time `json:"decidedAt,omitempty"`
	DecidedById      string     `json:"decidedById,omitempty"`
	Comments         string     `json:"comments,omitempty"`
	BreachNotifiedAt *time.Time `json:"breachNotifiedAt,omitempty"`
}

// CurrentStep returns the pending step of the chain, nil when the chain is
// resolved.
func (c *ApprovalChain) CurrentStep() *ApprovalStep {
	for i := range c.Steps {
		if c.Steps[i].Status == APPROVAL_STATUS_PENDING {
			return &c.Steps[i]
		}
	}
	return nil
}

// ParallelApprovalGroup is a single approval level resolved by consensus
// among nominated approvers instead of one sequential approver.
type ParallelApprovalGroup struct {
	Id               string             `json:"id"`
	DocumentType     string             `json:"documentType"`
	DocumentId       string             `json:"documentId"`
	ApprovalLevel    int                `json:"approvalLevel"`
	Mode             string             `json:"mode"`
	Status           string             `json:"status"`
	ApproverIds      []string           `json:"approverIds"`
	Responses        []ApprovalResponse `json:"responses"`
	SlaDueDate       time.Time          `json:"slaDueDate,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty"`
	BreachNotifiedAt *time.Time         `json:"breachNotifiedAt,omitempty"`
}

func (g *ParallelApprovalGroup) HasResponded(approverId string) bool {
	for _, r := range g.Responses {
		if r.ApproverId == approverId {
			return true
		}
	}
	return false
}

func (g *ParallelApprovalGroup) IsNominated(approverId string) bool {
	for _, id := range g.ApproverIds {
		if id == approverId {
			return true
		}
	}
	return false
}

type ApprovalResponse struct {
	ApproverId string    `json:"approverId"`
	Decision   string    `json:"decision"`
	Comments   string    `json:"comments,omitempty"`
	DecidedAt  time.Time `json:"decidedAt"`
}

// ApprovalPolicy configures the chain for one document type. A level
// applies to a submission when amount >= MinAmount; levels are ordered
// ascending by Level.
type ApprovalPolicy struct {
	DocumentType string             `json:"documentType"`
	Levels       []ApprovalLevelDef `json:"levels"`
}

type ApprovalLevelDef struct {
	Level        int     `json:"level"`
	ApproverRole string  `json:"approverRole"`
	SlaHours     int     `json:"slaHours"`
	MinAmount    float64 `json:"minAmount"`
}

// LevelsFor returns the levels that apply to the given amount, in level
// order.
func (p ApprovalPolicy) LevelsFor(amount float64) []ApprovalLevelDef {
	var levels []ApprovalLevelDef
	for _, l := range p.Levels {
		if amount >= l.MinAmount {
			levels = append(levels, l)
		}
	}
	return levels
}

// PendingApproval is one item awaiting a user's decision, either a chain
// step routed to one of the user's roles or a group the user is nominated
// in.
type PendingApproval struct {
	Kind         string    `json:"kind"`
	DocumentType string    `json:"documentType"`
	DocumentId   string    `json:"documentId"`
	Level        int       `json:"level"`
	ApproverRole string    `json:"approverRole,omitempty"`
	GroupId      string    `json:"groupId,omitempty"`
	SlaDueDate   time.Time `json:"slaDueDate"`
}

const PENDING_KIND_STEP string = "step"
const PENDING_KIND_GROUP string = "group"

// Notification is the invocation contract of the external notification
// subsystem; delivery is its responsibility.
type Notification struct {
	RecipientId      string `json:"recipientId,omitempty"`
	RecipientRole    string `json:"recipientRole,omitempty"`
	Title            string `json:"title"`
	Body             string `json:"body"`
	NotificationType string `json:"notificationType"`
	ReferenceTable   string `json:"referenceTable,omitempty"`
	ReferenceId      string `json:"referenceId,omitempty"`
}
