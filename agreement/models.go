package agreement

import "time"

// Status is the lifecycle state of an agreement. The documented order is
// Draft -> Sent -> Signed; transition rules live in transitions.go.
type Status string

const (
	StatusDraft  Status = "Draft"
	StatusSent   Status = "Sent"
	StatusSigned Status = "Signed"
)

// Audit action labels. The column is open vocabulary, these are the values
// the engine writes.
const (
	ActionCreated = "Created"
	ActionViewed  = "Viewed"
	ActionSent    = "Sent"
	ActionSigned  = "Signed"
)

// Agreement mirrors the agreements table.
type Agreement struct {
	ID          int64
	Title       string
	FileURL     string
	Status      Status
	SenderID    string
	SignerID    *string
	SignerEmail *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Actor is the resolved caller on whose behalf an operation runs. The API
// layer populates it from the verified token; the engine never reads
// identity from ambient state.
type Actor struct {
	ID    string
	Email string
}

// AuditEntry is one immutable record of an action taken on an agreement.
// Entries are append-only; no code path updates or deletes them.
type AuditEntry struct {
	ID          int64
	AgreementID int64
	Action      string
	PerformedBy string
	CreatedAt   time.Time
}

// Performer is the display identity of an audit entry's actor.
type Performer struct {
	FirstName string
	LastName  string
	Email     string
}

// EnrichedAuditEntry pairs an audit entry with its resolved performer.
type EnrichedAuditEntry struct {
	AuditEntry
	Performer Performer
}

// CreateParams carries caller input for creating an agreement. FileURL must
// reference bytes the file store has already persisted; the engine treats it
// as opaque.
type CreateParams struct {
	Title       string
	SignerEmail string
	FileURL     string
}
