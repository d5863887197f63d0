package models

import "time"

// Message is one entry of a chat. No is the public identifier, ID never
// leaves the storage layer.
type Message struct {
	ID          int64        `db:"id" json:"-"`
	No          int          `db:"no" json:"no"`
	SenderID    int64        `db:"sender_id" json:"sender"`
	Text        *string      `db:"text" json:"text"`
	Attachments []Attachment `db:"-" json:"attachments"`
	TimeSent    time.Time    `db:"time_sent" json:"time_sent"`
	TimeEdit    *time.Time   `db:"time_edit" json:"time_edit"`
	ReplyTo     *int         `db:"reply_to" json:"reply_to"`
}

// SentBy reports whether the actor authored the message.
func (m Message) SentBy(actor Actor) bool {
	return m.SenderID == actor.ID
}

// Attachment places a media item inside a chat. No is counted per chat and
// per media kind. AttachedBy is the sender of the carrying message, which is
// not necessarily whoever first uploaded the content.
type Attachment struct {
	No         int   `db:"no" json:"no"`
	MessageNo  int   `db:"message_no" json:"message_no"`
	AttachedBy int64 `db:"attached_by" json:"attached_by"`
	Media      Media `db:"-" json:"media"`
}

// MessageDraft is the input of a new message.
type MessageDraft struct {
	Text             *string
	AttachmentHashes []string
	ReplyTo          *int
}

// HasContent reports whether the draft carries text or attachments.
func (d MessageDraft) HasContent() bool {
	return d.Text != nil || len(d.AttachmentHashes) > 0
}
