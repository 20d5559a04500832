package models

import "time"

// AuditAction constants represent HTTP operations to be logged.
const (
	AuditActionBidSubmit         = "BID_SUBMIT"
	AuditActionBidWithdraw       = "BID_WITHDRAW"
	AuditActionSelectionRun      = "SELECTION_RUN"
	AuditActionSelectionReset    = "SELECTION_RESET"
	AuditActionSelectionAuto     = "SELECTION_AUTO"
	AuditActionOpportunityDelete = "OPPORTUNITY_DELETE"
	AuditActionClassDelete       = "CLASS_DELETE"
	AuditActionStudentRemove     = "STUDENT_REMOVE"
	AuditActionTokenTopup        = "TOKEN_TOPUP"
	AuditActionOpportunityCreate = "OPPORTUNITY_CREATE"
	AuditActionEnrollmentCreate  = "ENROLLMENT_CREATE"
)

// AuditLog records who invoked which operation. Distinct from the token
// history: this is request-level telemetry, written asynchronously.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail     []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
