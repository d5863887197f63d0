// Package events defines the domain facts pushed to subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"

	"microchat/internal/models"
)

// Event is a tagged domain fact. Kind doubles as the SSE event name.
type Event interface {
	Kind() string
	Recipients() []int64
}

// Audience is the set of user ids an event is routed to. It is never part of
// the serialized body.
type Audience struct {
	to []int64
}

func (a Audience) Recipients() []int64 { return a.to }

func (a *Audience) route(ids []int64) {
	a.to = lo.Uniq(ids)
}

func audience(ids ...int64) Audience {
	var a Audience
	a.route(ids)
	return a
}

const (
	KindMessageReceive    = "MessageReceive"
	KindMessageEdit       = "MessageEdit"
	KindMessageDelete     = "MessageDelete"
	KindMediaDelete       = "MediaDelete"
	KindMemberAdd         = "MemberAdd"
	KindMemberRemove      = "MemberRemove"
	KindPermissionsChange = "PermissionsChange"

	KindDialogPermissionsChange = "DialogPermissionsChange"
	KindConferenceEdit          = "ConferenceEdit"
	KindConferenceDelete        = "ConferenceDelete"
)

// MessageReceive announces a new message. Receiver is the related entity of
// the sender's relation: the peer of a dialog or the conference.
type MessageReceive struct {
	Audience
	ChatType    models.ChatKind     `json:"chat_type"`
	Sender      int64               `json:"sender"`
	Receiver    int64               `json:"receiver"`
	No          int                 `json:"no"`
	Text        *string             `json:"text"`
	Attachments []models.Attachment `json:"attachments"`
	ReplyTo     *int                `json:"reply_to,omitempty"`
	TimeSent    time.Time           `json:"time_sent"`
}

func (MessageReceive) Kind() string { return KindMessageReceive }

func NewMessageReceive(chat models.Chat, msg models.Message, recipients []int64) *MessageReceive {
	return &MessageReceive{
		Audience:    audience(recipients...),
		ChatType:    chat.Kind(),
		Sender:      msg.SenderID,
		Receiver:    chat.RelatedID(),
		No:          msg.No,
		Text:        msg.Text,
		Attachments: msg.Attachments,
		ReplyTo:     msg.ReplyTo,
		TimeSent:    msg.TimeSent,
	}
}

type MessageEdit struct {
	Audience
	ChatType    models.ChatKind     `json:"chat_type"`
	Sender      int64               `json:"sender"`
	Receiver    int64               `json:"receiver"`
	No          int                 `json:"no"`
	Text        *string             `json:"text"`
	Attachments []models.Attachment `json:"attachments"`
	TimeEdit    *time.Time          `json:"time_edit"`
}

func (MessageEdit) Kind() string { return KindMessageEdit }

func NewMessageEdit(chat models.Chat, msg models.Message, recipients []int64) *MessageEdit {
	return &MessageEdit{
		Audience:    audience(recipients...),
		ChatType:    chat.Kind(),
		Sender:      msg.SenderID,
		Receiver:    chat.RelatedID(),
		No:          msg.No,
		Text:        msg.Text,
		Attachments: msg.Attachments,
		TimeEdit:    msg.TimeEdit,
	}
}

// MessageDelete is sent after a message slot was cleared. Actor is whoever
// removed it, which may differ from the sender.
type MessageDelete struct {
	Audience
	ChatType models.ChatKind `json:"chat_type"`
	Actor    int64           `json:"actor"`
	Receiver int64           `json:"receiver"`
	No       int             `json:"no"`
}

func (MessageDelete) Kind() string { return KindMessageDelete }

func NewMessageDelete(chat models.Chat, actor int64, no int, recipients []int64) *MessageDelete {
	return &MessageDelete{
		Audience: audience(recipients...),
		ChatType: chat.Kind(),
		Actor:    actor,
		Receiver: chat.RelatedID(),
		No:       no,
	}
}

type MediaDelete struct {
	Audience
	ChatType  models.ChatKind  `json:"chat_type"`
	Actor     int64            `json:"actor"`
	Receiver  int64            `json:"receiver"`
	MediaKind models.MediaKind `json:"media_type"`
	No        int              `json:"no"`
}

func (MediaDelete) Kind() string { return KindMediaDelete }

func NewMediaDelete(chat models.Chat, actor int64, kind models.MediaKind, no int, recipients []int64) *MediaDelete {
	return &MediaDelete{
		Audience:  audience(recipients...),
		ChatType:  chat.Kind(),
		Actor:     actor,
		Receiver:  chat.RelatedID(),
		MediaKind: kind,
		No:        no,
	}
}

// MemberAdd, MemberRemove and PermissionsChange describe membership changes
// of one conference. Member is the participation ordinal, MemberID the actor.
type MemberAdd struct {
	Audience
	Conference int64 `json:"conference"`
	Actor      int64 `json:"actor"`
	Member     int   `json:"member"`
	MemberID   int64 `json:"member_id"`
}

func (MemberAdd) Kind() string { return KindMemberAdd }

type MemberRemove struct {
	Audience
	Conference int64 `json:"conference"`
	Actor      int64 `json:"actor"`
	Member     int   `json:"member"`
	MemberID   int64 `json:"member_id"`
}

func (MemberRemove) Kind() string { return KindMemberRemove }

type PermissionsChange struct {
	Audience
	Conference  int64              `json:"conference"`
	Actor       int64              `json:"actor"`
	Member      int                `json:"member"`
	MemberID    int64              `json:"member_id"`
	Permissions models.Permissions `json:"permissions"`
}

func (PermissionsChange) Kind() string { return KindPermissionsChange }

func NewMemberAdd(actor int64, member *models.ConferenceParticipation, recipients []int64) *MemberAdd {
	return &MemberAdd{
		Audience:   audience(recipients...),
		Conference: member.Conference.ID,
		Actor:      actor,
		Member:     member.No,
		MemberID:   member.Actor.ID,
	}
}

func NewMemberRemove(actor int64, member *models.ConferenceParticipation, recipients []int64) *MemberRemove {
	return &MemberRemove{
		Audience:   audience(recipients...),
		Conference: member.Conference.ID,
		Actor:      actor,
		Member:     member.No,
		MemberID:   member.Actor.ID,
	}
}

func NewPermissionsChange(actor int64, member *models.ConferenceParticipation, perms models.Permissions, recipients []int64) *PermissionsChange {
	return &PermissionsChange{
		Audience:    audience(recipients...),
		Conference:  member.Conference.ID,
		Actor:       actor,
		Member:      member.No,
		MemberID:    member.Actor.ID,
		Permissions: perms,
	}
}

// DialogPermissionsChange tells both sides of a dialog that Actor changed
// what Peer may do in it.
type DialogPermissionsChange struct {
	Audience
	Actor       int64              `json:"actor"`
	Peer        int64              `json:"peer"`
	Permissions models.Permissions `json:"permissions"`
}

func (DialogPermissionsChange) Kind() string { return KindDialogPermissionsChange }

func NewDialogPermissionsChange(actor, peer int64, perms models.Permissions, recipients []int64) *DialogPermissionsChange {
	return &DialogPermissionsChange{
		Audience:    audience(recipients...),
		Actor:       actor,
		Peer:        peer,
		Permissions: perms,
	}
}

type ConferenceEdit struct {
	Audience
	Actor      int64             `json:"actor"`
	Conference models.Conference `json:"conference"`
}

func (ConferenceEdit) Kind() string { return KindConferenceEdit }

func NewConferenceEdit(actor int64, conference models.Conference, recipients []int64) *ConferenceEdit {
	return &ConferenceEdit{Audience: audience(recipients...), Actor: actor, Conference: conference}
}

// ConferenceDelete goes to everyone who was a member when the conference
// was deleted.
type ConferenceDelete struct {
	Audience
	Actor      int64 `json:"actor"`
	Conference int64 `json:"conference"`
}

func (ConferenceDelete) Kind() string { return KindConferenceDelete }

func NewConferenceDelete(actor, conference int64, recipients []int64) *ConferenceDelete {
	return &ConferenceDelete{Audience: audience(recipients...), Actor: actor, Conference: conference}
}

// Decode rebuilds an event serialized by another instance.
func Decode(kind string, data []byte, recipients []int64) (Event, error) {
	var evt interface {
		Event
		route([]int64)
	}
	switch kind {
	case KindMessageReceive:
		evt = &MessageReceive{}
	case KindMessageEdit:
		evt = &MessageEdit{}
	case KindMessageDelete:
		evt = &MessageDelete{}
	case KindMediaDelete:
		evt = &MediaDelete{}
	case KindMemberAdd:
		evt = &MemberAdd{}
	case KindMemberRemove:
		evt = &MemberRemove{}
	case KindPermissionsChange:
		evt = &PermissionsChange{}
	case KindDialogPermissionsChange:
		evt = &DialogPermissionsChange{}
	case KindConferenceEdit:
		evt = &ConferenceEdit{}
	case KindConferenceDelete:
		evt = &ConferenceDelete{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	evt.route(recipients)
	return evt, nil
}
