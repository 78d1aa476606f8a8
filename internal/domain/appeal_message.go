package domain

import "time"

// AttachmentKind differentiates chat platform file types.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "PHOTO"
	AttachmentDocument AttachmentKind = "DOCUMENT"
)

// Attachment references a file stored by the chat platform.
type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	FileID   string         `json:"file_id"`
	FileName string         `json:"file_name,omitempty"`
}

// AppealMessage is one entry in an appeal thread. Messages are append-only.
type AppealMessage struct {
	ID          int64
	AppealID    int64
	SenderID    int64
	SenderName  string
	IsFromStaff bool
	Text        string
	Attachments []Attachment
	SentAt      time.Time
}
