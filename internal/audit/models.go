// Package audit records every operation that touches personally identifiable
// information. The log is append-only: nothing in the application updates or
// deletes an entry, and a failed write never aborts the operation it observes.
package audit

import "time"

// PIIType categorizes the personal data touched by an operation.
type PIIType string

const (
	PIINationalID     PIIType = "national_id"
	PIIBiometric      PIIType = "biometric"
	PIIDocument       PIIType = "identity_document"
	PIIRegistryRecord PIIType = "registry_record"
	PIIProfile        PIIType = "profile"
)

// Action names for audit entries. Keep them stable: compliance reports key on
// these strings.
const (
	ActionIdentityVerify    = "identity_verify"
	ActionIdentityStatus    = "identity_status_read"
	ActionCredentialIssue   = "credential_issue"
	ActionCredentialRevoke  = "credential_revoke"
	ActionCredentialLookup  = "credential_lookup"
	ActionAuditFetch        = "audit_fetch"
)

// Resource types referenced by entries.
const (
	ResourceIdentityRecord = "identity_verification_record"
	ResourceCredential     = "credential"
	ResourceAuditLog       = "audit_log"
)

// Entry is one append-only audit record. Entries reference identity records
// and credentials by ResourceID without owning them.
type Entry struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	PIITypes     []PIIType
	Purpose      string
	ClientIP     string
	UserAgent    string
	Success      bool
	ErrorMessage string
	Metadata     map[string]string
	Timestamp    time.Time
}

// Filter narrows a compliance fetch. Zero values mean "any".
type Filter struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	PIIType      PIIType
	From         time.Time
	To           time.Time
	Limit        int
}
