package mocks

import (
	"context"
	"io"
	"os"

	"github.com/stretchr/testify/mock"

	"microchat/internal/events"
	"microchat/internal/models"
	"microchat/internal/repositories"
)

type EntityRepositoryMock struct {
	mock.Mock
}

func (m *EntityRepositoryMock) GetByID(ctx context.Context, id int64) (models.Entity, error) {
	args := m.Called(ctx, id)
	var entity models.Entity
	if val := args.Get(0); val != nil {
		entity = val.(models.Entity)
	}
	return entity, args.Error(1)
}

func (m *EntityRepositoryMock) GetByAlias(ctx context.Context, alias string) (models.Entity, error) {
	args := m.Called(ctx, alias)
	var entity models.Entity
	if val := args.Get(0); val != nil {
		entity = val.(models.Entity)
	}
	return entity, args.Error(1)
}

func (m *EntityRepositoryMock) GetActor(ctx context.Context, id int64) (models.Actor, error) {
	args := m.Called(ctx, id)
	var actor models.Actor
	if val := args.Get(0); val != nil {
		actor = val.(models.Actor)
	}
	return actor, args.Error(1)
}

func (m *EntityRepositoryMock) GetConference(ctx context.Context, id int64) (models.Conference, error) {
	args := m.Called(ctx, id)
	var conference models.Conference
	if val := args.Get(0); val != nil {
		conference = val.(models.Conference)
	}
	return conference, args.Error(1)
}

func (m *EntityRepositoryMock) CreateActor(ctx context.Context, actor models.Actor) (models.Actor, error) {
	args := m.Called(ctx, actor)
	var created models.Actor
	if val := args.Get(0); val != nil {
		created = val.(models.Actor)
	}
	return created, args.Error(1)
}

type RelationRepositoryMock struct {
	mock.Mock
}

func (m *RelationRepositoryMock) GetRelation(ctx context.Context, actor models.Actor, relatedID int64) (models.Chat, error) {
	args := m.Called(ctx, actor, relatedID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *RelationRepositoryMock) EnsureDialog(ctx context.Context, actor, related models.Actor) (*models.Dialog, error) {
	args := m.Called(ctx, actor, related)
	var dialog *models.Dialog
	if val := args.Get(0); val != nil {
		dialog = val.(*models.Dialog)
	}
	return dialog, args.Error(1)
}

func (m *RelationRepositoryMock) UpdateDialogPermissions(ctx context.Context, dialog *models.Dialog, perms models.Permissions) error {
	args := m.Called(ctx, dialog, perms)
	return args.Error(0)
}

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) UserChats(ctx context.Context, actor models.Actor, offset, count int) ([]models.Chat, error) {
	args := m.Called(ctx, actor, offset, count)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *ChatRepositoryMock) DialogMessages(ctx context.Context, dialog *models.Dialog, offset, count int) ([]models.Message, error) {
	args := m.Called(ctx, dialog, offset, count)
	return messages(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) ConferenceMessages(ctx context.Context, conference models.Conference, offset, count int) ([]models.Message, error) {
	args := m.Called(ctx, conference, offset, count)
	return messages(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) PrivateConferenceMessages(ctx context.Context, conference models.Conference, presences models.Presences, offset, count int) ([]models.Message, error) {
	args := m.Called(ctx, conference, presences, offset, count)
	return messages(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) AddMessage(ctx context.Context, chatID int64, message repositories.NewMessage) (models.Message, error) {
	args := m.Called(ctx, chatID, message)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatRepositoryMock) EditMessage(ctx context.Context, chatID int64, no int, patch repositories.MessagePatch) (models.Message, error) {
	args := m.Called(ctx, chatID, no, patch)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatRepositoryMock) RemoveMessage(ctx context.Context, chatID int64, no int) error {
	args := m.Called(ctx, chatID, no)
	return args.Error(0)
}

func (m *ChatRepositoryMock) DialogMedia(ctx context.Context, dialog *models.Dialog, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	args := m.Called(ctx, dialog, kind, offset, count)
	return attachments(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) ConferenceMedia(ctx context.Context, conference models.Conference, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	args := m.Called(ctx, conference, kind, offset, count)
	return attachments(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) PrivateConferenceMedia(ctx context.Context, conference models.Conference, presences models.Presences, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	args := m.Called(ctx, conference, presences, kind, offset, count)
	return attachments(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) RemoveMedia(ctx context.Context, chatID int64, kind models.MediaKind, no int) error {
	args := m.Called(ctx, chatID, kind, no)
	return args.Error(0)
}

func messages(val any) []models.Message {
	if val == nil {
		return nil
	}
	return val.([]models.Message)
}

func attachments(val any) []models.Attachment {
	if val == nil {
		return nil
	}
	return val.([]models.Attachment)
}

type ConferenceRepositoryMock struct {
	mock.Mock
}

func (m *ConferenceRepositoryMock) CreateConference(ctx context.Context, conference models.Conference, owner models.Actor) (*models.ConferenceParticipation, error) {
	args := m.Called(ctx, conference, owner)
	return participation(args.Get(0)), args.Error(1)
}

func (m *ConferenceRepositoryMock) ListMembers(ctx context.Context, conference models.Conference, offset, count int) ([]models.ConferenceParticipation, error) {
	args := m.Called(ctx, conference, offset, count)
	var members []models.ConferenceParticipation
	if val := args.Get(0); val != nil {
		members = val.([]models.ConferenceParticipation)
	}
	return members, args.Error(1)
}

func (m *ConferenceRepositoryMock) FindMember(ctx context.Context, conference models.Conference, actorID int64) (*models.ConferenceParticipation, error) {
	args := m.Called(ctx, conference, actorID)
	return participation(args.Get(0)), args.Error(1)
}

func (m *ConferenceRepositoryMock) AddMember(ctx context.Context, conference models.Conference, actor models.Actor) (*models.ConferenceParticipation, error) {
	args := m.Called(ctx, conference, actor)
	return participation(args.Get(0)), args.Error(1)
}

func (m *ConferenceRepositoryMock) RemoveMember(ctx context.Context, member *models.ConferenceParticipation) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *ConferenceRepositoryMock) UpdatePermissions(ctx context.Context, member *models.ConferenceParticipation, perms models.Permissions) error {
	args := m.Called(ctx, member, perms)
	return args.Error(0)
}

func (m *ConferenceRepositoryMock) MemberIDs(ctx context.Context, conference models.Conference) ([]int64, error) {
	args := m.Called(ctx, conference)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *ConferenceRepositoryMock) UpdateConference(ctx context.Context, conference models.Conference) (models.Conference, error) {
	args := m.Called(ctx, conference)
	var updated models.Conference
	if val := args.Get(0); val != nil {
		updated = val.(models.Conference)
	}
	return updated, args.Error(1)
}

func (m *ConferenceRepositoryMock) DeleteConference(ctx context.Context, conference models.Conference) error {
	args := m.Called(ctx, conference)
	return args.Error(0)
}

func participation(val any) *models.ConferenceParticipation {
	if val == nil {
		return nil
	}
	return val.(*models.ConferenceParticipation)
}

type MediaRepositoryMock struct {
	mock.Mock
}

func (m *MediaRepositoryMock) GetByHash(ctx context.Context, hash string) (models.Media, error) {
	args := m.Called(ctx, hash)
	var media models.Media
	if val := args.Get(0); val != nil {
		media = val.(models.Media)
	}
	return media, args.Error(1)
}

func (m *MediaRepositoryMock) GetByHashes(ctx context.Context, hashes []string) ([]models.Media, error) {
	args := m.Called(ctx, hashes)
	var media []models.Media
	if val := args.Get(0); val != nil {
		media = val.([]models.Media)
	}
	return media, args.Error(1)
}

func (m *MediaRepositoryMock) SaveMedia(ctx context.Context, media models.Media, tmpPath string) (models.Media, error) {
	args := m.Called(ctx, media, tmpPath)
	var saved models.Media
	if val := args.Get(0); val != nil {
		saved = val.(models.Media)
	}
	return saved, args.Error(1)
}

func (m *MediaRepositoryMock) CreateTempFile(ctx context.Context) (*os.File, error) {
	args := m.Called(ctx)
	var f *os.File
	if val := args.Get(0); val != nil {
		f = val.(*os.File)
	}
	return f, args.Error(1)
}

func (m *MediaRepositoryMock) Open(ctx context.Context, media models.Media) (io.ReadCloser, error) {
	args := m.Called(ctx, media)
	var rc io.ReadCloser
	if val := args.Get(0); val != nil {
		rc = val.(io.ReadCloser)
	}
	return rc, args.Error(1)
}

// EmitterMock records emitted events.
type EmitterMock struct {
	mock.Mock
}

func (m *EmitterMock) Emit(evt events.Event) {
	m.Called(evt)
}
