package models

// Attachment is a file sent along with a notification, for example an
// iCalendar invite.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// Notification is one outgoing mail. ID is assigned when it is queued.
type Notification struct {
	ID         string      `json:"id"`
	To         []string    `json:"to"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`
}
