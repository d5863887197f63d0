package models

import "time"

// ActorKind distinguishes users from bots.
type ActorKind string

const (
	ActorUser ActorKind = "user"
	ActorBot  ActorKind = "bot"
)

// Actor is a user or a bot able to take part in chats.
type Actor struct {
	ID                 int64       `db:"id" json:"id"`
	Kind               ActorKind   `db:"kind" json:"kind"`
	Alias              *string     `db:"alias" json:"alias,omitempty"`
	Name               string      `db:"name" json:"name"`
	Avatar             *string     `db:"avatar" json:"avatar,omitempty"`
	DefaultPermissions Permissions `db:"default_permissions" json:"-"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
}

// Conference represents a group chat.
type Conference struct {
	ID                 int64       `db:"id" json:"id"`
	ChatID             int64       `db:"chat_id" json:"-"`
	OwnerID            int64       `db:"owner_id" json:"owner_id"`
	Alias              *string     `db:"alias" json:"alias,omitempty"`
	Title              string      `db:"title" json:"title"`
	Description        *string     `db:"description" json:"description,omitempty"`
	Private            bool        `db:"private" json:"private"`
	DefaultPermissions Permissions `db:"default_permissions" json:"default_permissions"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
}

// EntityConference tags conference rows of the shared entity id space.
const EntityConference = "conference"

// Entity is the common head of users, bots and conferences, which share one
// id space and one alias namespace.
type Entity struct {
	ID    int64   `db:"id" json:"id"`
	Kind  string  `db:"kind" json:"kind"`
	Alias *string `db:"alias" json:"alias,omitempty"`
	Name  string  `db:"name" json:"name"`
}

// IsActor reports whether the entity can act in chats.
func (e Entity) IsActor() bool {
	return e.Kind == string(ActorUser) || e.Kind == string(ActorBot)
}
