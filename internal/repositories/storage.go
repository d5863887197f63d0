package repositories

import (
	"context"
	"io"
	"os"

	"github.com/jmoiron/sqlx"

	"microchat/internal/models"
)

// Storage is the unit of work handed to the services.
type Storage struct {
	Entities    EntityRepository
	Relations   RelationRepository
	Chats       ChatRepository
	Conferences ConferenceRepository
	Media       MediaRepository
}

// NewPostgres wires the sqlx repositories around one pool.
func NewPostgres(db *sqlx.DB, blobs *Blobs) Storage {
	entities := NewEntityRepo(db)
	return Storage{
		Entities:    entities,
		Relations:   NewRelationRepo(db),
		Chats:       NewChatRepo(db),
		Conferences: NewConferenceRepo(db),
		Media:       NewMediaRepo(db, blobs),
	}
}

// EntityRepository reads users, bots and conferences.
type EntityRepository interface {
	GetByID(ctx context.Context, id int64) (models.Entity, error)
	GetByAlias(ctx context.Context, alias string) (models.Entity, error)
	GetActor(ctx context.Context, id int64) (models.Actor, error)
	GetConference(ctx context.Context, id int64) (models.Conference, error)
	CreateActor(ctx context.Context, actor models.Actor) (models.Actor, error)
}

// RelationRepository resolves the relation between an actor and an entity.
type RelationRepository interface {
	// GetRelation returns a *models.Dialog when relatedID is a user or bot and
	// a *models.ConferenceParticipation when it is a conference.
	GetRelation(ctx context.Context, actor models.Actor, relatedID int64) (models.Chat, error)
	// EnsureDialog creates the relation rows of both sides and their shared
	// message sequence unless they already exist.
	EnsureDialog(ctx context.Context, actor, related models.Actor) (*models.Dialog, error)
	// UpdateDialogPermissions overwrites the override of one side of a dialog.
	UpdateDialogPermissions(ctx context.Context, dialog *models.Dialog, perms models.Permissions) error
}

// ChatRepository stores messages and attachments. Every listing takes an
// offset/count pair interpreted by Window and returns ascending ordinals.
type ChatRepository interface {
	UserChats(ctx context.Context, actor models.Actor, offset, count int) ([]models.Chat, error)

	DialogMessages(ctx context.Context, dialog *models.Dialog, offset, count int) ([]models.Message, error)
	ConferenceMessages(ctx context.Context, conference models.Conference, offset, count int) ([]models.Message, error)
	PrivateConferenceMessages(ctx context.Context, conference models.Conference, presences models.Presences, offset, count int) ([]models.Message, error)

	// AddMessage assigns the next ordinal of the sequence atomically.
	AddMessage(ctx context.Context, chatID int64, message NewMessage) (models.Message, error)
	EditMessage(ctx context.Context, chatID int64, no int, patch MessagePatch) (models.Message, error)
	RemoveMessage(ctx context.Context, chatID int64, no int) error

	DialogMedia(ctx context.Context, dialog *models.Dialog, kind models.MediaKind, offset, count int) ([]models.Attachment, error)
	ConferenceMedia(ctx context.Context, conference models.Conference, kind models.MediaKind, offset, count int) ([]models.Attachment, error)
	PrivateConferenceMedia(ctx context.Context, conference models.Conference, presences models.Presences, kind models.MediaKind, offset, count int) ([]models.Attachment, error)
	RemoveMedia(ctx context.Context, chatID int64, kind models.MediaKind, no int) error
}

// NewMessage is a message ready to be stored.
type NewMessage struct {
	SenderID int64
	Text     *string
	Media    []models.Media
	ReplyTo  *int
}

// MessagePatch replaces the text and, when ReplaceMedia is set, the
// attachments of a message.
type MessagePatch struct {
	Text         *string
	Media        []models.Media
	ReplaceMedia bool
}

// ConferenceRepository manages conference membership.
type ConferenceRepository interface {
	CreateConference(ctx context.Context, conference models.Conference, owner models.Actor) (*models.ConferenceParticipation, error)
	ListMembers(ctx context.Context, conference models.Conference, offset, count int) ([]models.ConferenceParticipation, error)
	// FindMember returns the participation of actorID, including one that
	// already left.
	FindMember(ctx context.Context, conference models.Conference, actorID int64) (*models.ConferenceParticipation, error)
	// AddMember creates the participation or reactivates a previous one,
	// keeping its ordinal and opening a new presence window.
	AddMember(ctx context.Context, conference models.Conference, actor models.Actor) (*models.ConferenceParticipation, error)
	// RemoveMember closes the participation and its open presence window.
	RemoveMember(ctx context.Context, member *models.ConferenceParticipation) error
	// UpdatePermissions overwrites the override of one member only.
	UpdatePermissions(ctx context.Context, member *models.ConferenceParticipation, perms models.Permissions) error
	// MemberIDs lists the actor ids of members that have not left.
	MemberIDs(ctx context.Context, conference models.Conference) ([]int64, error)
	// UpdateConference stores the title, alias, description, privacy and
	// default permissions of conference.
	UpdateConference(ctx context.Context, conference models.Conference) (models.Conference, error)
	// DeleteConference removes the conference with its members and its
	// message sequence.
	DeleteConference(ctx context.Context, conference models.Conference) error
}

// MediaRepository keeps media metadata and their blobs.
type MediaRepository interface {
	GetByHash(ctx context.Context, hash string) (models.Media, error)
	// GetByHashes resolves hashes in the given order and fails with
	// ErrNotFound if any of them is unknown.
	GetByHashes(ctx context.Context, hashes []string) ([]models.Media, error)
	// SaveMedia moves the temp file at tmpPath into the blob store and records
	// the media. An already known hash returns the stored media.
	SaveMedia(ctx context.Context, media models.Media, tmpPath string) (models.Media, error)
	CreateTempFile(ctx context.Context) (*os.File, error)
	Open(ctx context.Context, media models.Media) (io.ReadCloser, error)
}
