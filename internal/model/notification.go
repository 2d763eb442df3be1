package model

import "time"

// NotificationTypeApprovalRequested identifies approval-request messages on
// the notification topic.
const NotificationTypeApprovalRequested = "approval_requested"

// ApprovalNotification is the message handed to the external notifier after a
// token is issued. The notifier owns email composition; this is everything it
// needs to build the approve/reject links.
type ApprovalNotification struct {
	SubjectID    string    `json:"subject_id"`
	ItemID       string    `json:"item_id"`
	RecipientRef string    `json:"recipient_ref"`
	Token        string    `json:"token"`
	ApproveURL   string    `json:"approve_url"`
	RejectURL    string    `json:"reject_url"`
	Type         string    `json:"type"`
	CreatedAt    time.Time `json:"created_at"`
}
