package models

import "time"

// ChatKind tells dialogs and conferences apart on the wire.
type ChatKind string

const (
	ChatDialog     ChatKind = "dialog"
	ChatConference ChatKind = "conference"
)

// Chat is a relation through which an actor reads and writes messages.
// It is implemented by *Dialog and *ConferenceParticipation only.
type Chat interface {
	// SequenceID identifies the message sequence shared by every relation
	// pointing at the same conversation.
	SequenceID() int64
	// RelatedID is the entity id the relation points at.
	RelatedID() int64
	Kind() ChatKind
	// EffectivePermissions resolves the override or the related default.
	EffectivePermissions() Permissions
	isChat()
}

// Dialog links an actor to another user or bot.
type Dialog struct {
	ID          int64        `db:"id" json:"id"`
	ChatID      int64        `db:"chat_id" json:"-"`
	Actor       Actor        `db:"-" json:"actor"`
	Related     Actor        `db:"-" json:"related"`
	Permissions *Permissions `db:"permissions" json:"permissions,omitempty"`
}

func (d *Dialog) SequenceID() int64 { return d.ChatID }
func (d *Dialog) RelatedID() int64  { return d.Related.ID }
func (d *Dialog) Kind() ChatKind    { return ChatDialog }
func (d *Dialog) isChat()           {}

func (d *Dialog) EffectivePermissions() Permissions {
	if d.Permissions != nil {
		return *d.Permissions
	}
	return d.Related.DefaultPermissions
}

// ConferencePresence is a span of message ordinals during which a member was
// in the conference. LeaveAt is nil while the member is still present.
type ConferencePresence struct {
	JoinAt  int  `db:"join_at" json:"join_at"`
	LeaveAt *int `db:"leave_at" json:"leave_at,omitempty"`
}

// Covers reports whether ordinal no falls in [JoinAt, LeaveAt).
func (p ConferencePresence) Covers(no int) bool {
	if no < p.JoinAt {
		return false
	}
	return p.LeaveAt == nil || no < *p.LeaveAt
}

// Presences is the presence history of one member.
type Presences []ConferencePresence

// Covers reports whether any presence window contains no.
func (ps Presences) Covers(no int) bool {
	for _, p := range ps {
		if p.Covers(no) {
			return true
		}
	}
	return false
}

// ConferenceParticipation links an actor to a conference.
type ConferenceParticipation struct {
	ID          int64        `db:"id" json:"-"`
	No          int          `db:"no" json:"no"`
	Actor       Actor        `db:"-" json:"actor"`
	Conference  Conference   `db:"-" json:"conference"`
	Role        string       `db:"role" json:"role"`
	Permissions *Permissions `db:"permissions" json:"permissions,omitempty"`
	Presences   Presences    `db:"-" json:"presences,omitempty"`
	JoinedAt    time.Time    `db:"joined_at" json:"joined_at"`
	LeftAt      *time.Time   `db:"left_at" json:"left_at,omitempty"`
}

func (p *ConferenceParticipation) SequenceID() int64 { return p.Conference.ChatID }
func (p *ConferenceParticipation) RelatedID() int64  { return p.Conference.ID }
func (p *ConferenceParticipation) Kind() ChatKind    { return ChatConference }
func (p *ConferenceParticipation) isChat()           {}

func (p *ConferenceParticipation) EffectivePermissions() Permissions {
	if p.Permissions != nil {
		return *p.Permissions
	}
	return p.Conference.DefaultPermissions
}

// Active reports whether the member has not left the conference.
func (p *ConferenceParticipation) Active() bool {
	return p.LeftAt == nil
}

// Roles of conference members.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)
