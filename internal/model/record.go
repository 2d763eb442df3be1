package model

import "time"

// Status is the approval state of a decision record.
// APPROVED, REJECTED and AUTO_APPROVED are terminal.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusApproved     Status = "APPROVED"
	StatusRejected     Status = "REJECTED"
	StatusAutoApproved Status = "AUTO_APPROVED"
)

// Terminal reports whether no further transition is legal out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusAutoApproved:
		return true
	}
	return false
}

// Decision values accepted on the callback URL.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// StatusForDecision maps a callback decision parameter to its target status.
func StatusForDecision(decision string) (Status, bool) {
	switch decision {
	case DecisionApproved:
		return StatusApproved, true
	case DecisionRejected:
		return StatusRejected, true
	}
	return "", false
}

// RecordKey is the composite key of a decision record.
type RecordKey struct {
	SubjectID string `json:"subject_id"`
	ItemID    string `json:"item_id"`
}

// DecisionRecord is the durable per-(subject,item) approval entity.
// Records are never deleted; terminal records remain as an audit trail.
type DecisionRecord struct {
	SubjectID     string     `json:"subject_id"`
	ItemID        string     `json:"item_id"`
	ApprovalToken string     `json:"approval_token"`
	Status        Status     `json:"status"`
	SentAt        time.Time  `json:"sent_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	Comment       string     `json:"comment,omitempty"`
}

// Key returns the record's composite key.
func (r DecisionRecord) Key() RecordKey {
	return RecordKey{SubjectID: r.SubjectID, ItemID: r.ItemID}
}
