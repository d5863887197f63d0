package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Permissions is the set of capability flags of a chat relation.
type Permissions struct {
	Read             bool `db:"read" json:"read"`
	Send             bool `db:"send" json:"send"`
	Delete           bool `db:"delete" json:"delete"`
	SendMedia        bool `db:"send_media" json:"send_media"`
	SendMediaMessage bool `db:"send_mediamessage" json:"send_mediamessage"`
	AddUser          bool `db:"add_user" json:"add_user"`
	RemoveUser       bool `db:"remove_user" json:"remove_user"`
	PinMessage       bool `db:"pin_message" json:"pin_message"`
	EditConference   bool `db:"edit_conference" json:"edit_conference"`
}

// AllPermissions grants every flag. Conference owners start with it.
func AllPermissions() Permissions {
	return Permissions{
		Read:             true,
		Send:             true,
		Delete:           true,
		SendMedia:        true,
		SendMediaMessage: true,
		AddUser:          true,
		RemoveUser:       true,
		PinMessage:       true,
		EditConference:   true,
	}
}

// MemberPermissions is the baseline for ordinary participants and dialogs.
func MemberPermissions() Permissions {
	return Permissions{
		Read:             true,
		Send:             true,
		SendMedia:        true,
		SendMediaMessage: true,
	}
}

// PermissionsUpdate carries a partial change. A nil flag is left untouched,
// a non-nil flag overwrites the current value even when it is false.
type PermissionsUpdate struct {
	Read             *bool `json:"read,omitempty"`
	Send             *bool `json:"send,omitempty"`
	Delete           *bool `json:"delete,omitempty"`
	SendMedia        *bool `json:"send_media,omitempty"`
	SendMediaMessage *bool `json:"send_mediamessage,omitempty"`
	AddUser          *bool `json:"add_user,omitempty"`
	RemoveUser       *bool `json:"remove_user,omitempty"`
	PinMessage       *bool `json:"pin_message,omitempty"`
	EditConference   *bool `json:"edit_conference,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u PermissionsUpdate) Empty() bool {
	return u == PermissionsUpdate{}
}

// Apply returns base with every present flag of u written over it.
func (u PermissionsUpdate) Apply(base Permissions) Permissions {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.Read, u.Read)
	set(&base.Send, u.Send)
	set(&base.Delete, u.Delete)
	set(&base.SendMedia, u.SendMedia)
	set(&base.SendMediaMessage, u.SendMediaMessage)
	set(&base.AddUser, u.AddUser)
	set(&base.RemoveUser, u.RemoveUser)
	set(&base.PinMessage, u.PinMessage)
	set(&base.EditConference, u.EditConference)
	return base
}

// Value stores permissions as a JSON document.
func (p Permissions) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan reads permissions written by Value.
func (p *Permissions) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = Permissions{}
		return nil
	default:
		return fmt.Errorf("permissions: unsupported source %T", src)
	}
}
