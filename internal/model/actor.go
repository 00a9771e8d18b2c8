package model

import "time"

// Role is the coarse permission class resolved by the identity provider.
type Role string

// Roles understood by the core.
const (
	RoleOwner      Role = "owner"
	RoleSubmitter  Role = "submitter"
	RoleSupervisor Role = "supervisor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleSubmitter || r == RoleSupervisor
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
	IP   string
}

// IsStaff reports whether the actor may use owner operations.
func (a Actor) IsStaff() bool { return a.Role == RoleOwner || a.Role == RoleSupervisor }

// SystemActor attributes sweeper mutations in the audit trail.
var SystemActor = Actor{ID: "system:sweeper", Role: RoleSupervisor}

// StaffMember is a staff account known to the directory.
type StaffMember struct {
	ID          string
	DisplayName string
	Role        Role
	Active      bool
	CreatedAt   time.Time
}

// CanOwnCases reports whether cases may be assigned to the member.
func (s StaffMember) CanOwnCases() bool {
	return s.Active && (s.Role == RoleOwner || s.Role == RoleSupervisor)
}

// Action names an audited mutation.
type Action string

// Audited actions.
const (
	ActionCaseCreated         Action = "CASE_CREATED"
	ActionDocumentUploaded    Action = "DOCUMENT_UPLOADED"
	ActionCaseSubmitted       Action = "CASE_SUBMITTED"
	ActionCaseApproved        Action = "CASE_APPROVED"
	ActionCaseRejected        Action = "CASE_REJECTED"
	ActionStatusChanged       Action = "STATUS_CHANGED"
	ActionCaseExpired         Action = "CASE_EXPIRED"
	ActionCaseReopened        Action = "CASE_REOPENED"
	ActionCaseReassigned      Action = "CASE_REASSIGNED"
	ActionEscalationRaised    Action = "ESCALATION_RAISED"
	ActionEscalationConfirmed Action = "ESCALATION_CONFIRMED"
	ActionNotesUpdated        Action = "NOTES_UPDATED"
	ActionCaseDeleted         Action = "CASE_DELETED"
)
