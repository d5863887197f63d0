package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"microchat/internal/events"
	"microchat/internal/models"
	"microchat/internal/observability"
	"microchat/internal/repositories"
)

// DefaultOrdinalRetries bounds AddMessage retries on ordinal conflicts.
const DefaultOrdinalRetries = 3

// Chats implements message and media operations inside a resolved chat.
type Chats struct {
	storage repositories.Storage
	emitter Emitter
	log     *slog.Logger
	retries int
}

func NewChats(storage repositories.Storage, emitter Emitter, log *slog.Logger, retries int) *Chats {
	if retries <= 0 {
		retries = DefaultOrdinalRetries
	}
	return &Chats{storage: storage, emitter: emitter, log: log, retries: retries}
}

// ListChats returns the relations of user.
func (s *Chats) ListChats(ctx context.Context, user models.Actor, offset, count int) ([]models.Chat, error) {
	chats, err := s.storage.Chats.UserChats(ctx, user, offset, count)
	if err != nil {
		return nil, storageErr("list chats", err)
	}
	return chats, nil
}

// OpenDialog returns the dialog of user with relatedID, creating it on first use.
func (s *Chats) OpenDialog(ctx context.Context, user models.Actor, relatedID int64) (*models.Dialog, error) {
	if relatedID == user.ID {
		return nil, invalid("cannot open a dialog with yourself")
	}
	related, err := s.storage.Entities.GetActor(ctx, relatedID)
	if err != nil {
		return nil, storageErr("get actor", err)
	}
	dialog, err := s.storage.Relations.EnsureDialog(ctx, user, related)
	if err != nil {
		return nil, storageErr("ensure dialog", err)
	}
	return dialog, nil
}

// ListMessages returns the visible messages of the offset/count window in
// ascending order. Members of a private conference only see what was sent
// while they were present.
func (s *Chats) ListMessages(ctx context.Context, user models.Actor, chat models.Chat, offset, count int) ([]models.Message, error) {
	ctx, span := tracer.Start(ctx, "Chats.ListMessages")
	defer span.End()

	var (
		msgs []models.Message
		err  error
	)
	switch c := chat.(type) {
	case *models.Dialog:
		msgs, err = s.storage.Chats.DialogMessages(ctx, c, offset, count)
	case *models.ConferenceParticipation:
		if c.Conference.Private {
			msgs, err = s.storage.Chats.PrivateConferenceMessages(ctx, c.Conference, c.Presences, offset, count)
		} else {
			msgs, err = s.storage.Chats.ConferenceMessages(ctx, c.Conference, offset, count)
		}
	default:
		return nil, fmt.Errorf("list messages: unsupported chat %T", chat)
	}
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	return msgs, nil
}

// GetMessage fetches a single message by ordinal.
func (s *Chats) GetMessage(ctx context.Context, user models.Actor, chat models.Chat, no int) (models.Message, error) {
	msgs, err := s.ListMessages(ctx, user, chat, no, 1)
	if err != nil {
		return models.Message{}, err
	}
	if len(msgs) == 0 || msgs[0].No != no {
		return models.Message{}, fmt.Errorf("message %d: %w", no, ErrDoesNotExist)
	}
	return msgs[0], nil
}

// AddMessage stores a new message and announces it with MessageReceive.
func (s *Chats) AddMessage(ctx context.Context, user models.Actor, chat models.Chat, draft models.MessageDraft) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "Chats.AddMessage")
	defer span.End()

	if !draft.HasContent() {
		return models.Message{}, invalid("message needs text or attachments")
	}
	if member, ok := chat.(*models.ConferenceParticipation); ok && !member.Active() {
		return models.Message{}, denied("not a member of the conference anymore")
	}
	perms := chat.EffectivePermissions()
	if !perms.Send {
		return models.Message{}, denied("sending is not allowed in this chat")
	}
	if len(draft.AttachmentHashes) > 0 && !perms.SendMedia {
		return models.Message{}, denied("sending media is not allowed in this chat")
	}

	if draft.ReplyTo != nil {
		if _, err := s.GetMessage(ctx, user, chat, *draft.ReplyTo); err != nil {
			return models.Message{}, fmt.Errorf("reply target: %w", err)
		}
	}
	media, err := s.resolveMedia(ctx, draft.AttachmentHashes)
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.insert(ctx, chat.SequenceID(), repositories.NewMessage{
		SenderID: user.ID,
		Text:     draft.Text,
		Media:    media,
		ReplyTo:  draft.ReplyTo,
	})
	if err != nil {
		return models.Message{}, err
	}

	s.emit(ctx, chat, func(to []int64) events.Event { return events.NewMessageReceive(chat, msg, to) })
	return msg, nil
}

// insert retries the store call while another writer wins the ordinal.
func (s *Chats) insert(ctx context.Context, chatID int64, message repositories.NewMessage) (models.Message, error) {
	for attempt := 0; ; attempt++ {
		msg, err := s.storage.Chats.AddMessage(ctx, chatID, message)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, repositories.ErrOrdinalConflict) {
			return models.Message{}, storageErr("add message", err)
		}
		observability.IncOrdinalRetry()
		if attempt >= s.retries {
			s.log.Warn("Ordinal retries exhausted", "chat_id", chatID, "attempts", attempt+1)
			return models.Message{}, fmt.Errorf("add message: %w: %w", ErrTransient, err)
		}
		s.log.Debug("Ordinal conflict, retrying", "chat_id", chatID, "attempt", attempt+1)
	}
}

func (s *Chats) resolveMedia(ctx context.Context, hashes []string) ([]models.Media, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	media, err := s.storage.Media.GetByHashes(ctx, hashes)
	if err != nil {
		return nil, storageErr("resolve attachments", err)
	}
	return media, nil
}

// EditMessage replaces the text, and the attachments when hashes are given.
// Only the sender may edit a message.
func (s *Chats) EditMessage(ctx context.Context, user models.Actor, chat models.Chat, no int, draft models.MessageDraft) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "Chats.EditMessage")
	defer span.End()

	msg, err := s.GetMessage(ctx, user, chat, no)
	if err != nil {
		return models.Message{}, err
	}
	if !msg.SentBy(user) {
		return models.Message{}, denied("cannot edit messages of other users")
	}

	patch := repositories.MessagePatch{Text: draft.Text, ReplaceMedia: draft.AttachmentHashes != nil}
	hasMedia := len(msg.Attachments) > 0
	if patch.ReplaceMedia {
		if len(draft.AttachmentHashes) > 0 && !chat.EffectivePermissions().SendMedia {
			return models.Message{}, denied("sending media is not allowed in this chat")
		}
		if patch.Media, err = s.resolveMedia(ctx, draft.AttachmentHashes); err != nil {
			return models.Message{}, err
		}
		hasMedia = len(patch.Media) > 0
	}
	if draft.Text == nil && !hasMedia {
		return models.Message{}, invalid("message needs text or attachments")
	}

	updated, err := s.storage.Chats.EditMessage(ctx, chat.SequenceID(), no, patch)
	if err != nil {
		return models.Message{}, storageErr("edit message", err)
	}
	s.emit(ctx, chat, func(to []int64) events.Event { return events.NewMessageEdit(chat, updated, to) })
	return updated, nil
}

// RemoveMessage is allowed to the sender and to holders of delete.
func (s *Chats) RemoveMessage(ctx context.Context, user models.Actor, chat models.Chat, no int) error {
	ctx, span := tracer.Start(ctx, "Chats.RemoveMessage")
	defer span.End()

	msg, err := s.GetMessage(ctx, user, chat, no)
	if err != nil {
		return err
	}
	if !msg.SentBy(user) && !chat.EffectivePermissions().Delete {
		return denied("cannot delete messages of other users")
	}
	if err := s.storage.Chats.RemoveMessage(ctx, chat.SequenceID(), no); err != nil {
		return storageErr("remove message", err)
	}
	s.emit(ctx, chat, func(to []int64) events.Event { return events.NewMessageDelete(chat, user.ID, no, to) })
	return nil
}

// ListMedia returns the attachments of one media kind.
func (s *Chats) ListMedia(ctx context.Context, user models.Actor, chat models.Chat, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	var (
		attachments []models.Attachment
		err         error
	)
	switch c := chat.(type) {
	case *models.Dialog:
		attachments, err = s.storage.Chats.DialogMedia(ctx, c, kind, offset, count)
	case *models.ConferenceParticipation:
		if c.Conference.Private {
			attachments, err = s.storage.Chats.PrivateConferenceMedia(ctx, c.Conference, c.Presences, kind, offset, count)
		} else {
			attachments, err = s.storage.Chats.ConferenceMedia(ctx, c.Conference, kind, offset, count)
		}
	default:
		return nil, fmt.Errorf("list media: unsupported chat %T", chat)
	}
	if err != nil {
		return nil, storageErr("list media", err)
	}
	return attachments, nil
}

func (s *Chats) GetMedia(ctx context.Context, user models.Actor, chat models.Chat, kind models.MediaKind, no int) (models.Attachment, error) {
	attachments, err := s.ListMedia(ctx, user, chat, kind, no, 1)
	if err != nil {
		return models.Attachment{}, err
	}
	if len(attachments) == 0 || attachments[0].No != no {
		return models.Attachment{}, fmt.Errorf("%s %d: %w", kind, no, ErrDoesNotExist)
	}
	return attachments[0], nil
}

// RemoveMedia is allowed to the sender of the carrying message and to holders
// of delete.
func (s *Chats) RemoveMedia(ctx context.Context, user models.Actor, chat models.Chat, kind models.MediaKind, no int) error {
	ctx, span := tracer.Start(ctx, "Chats.RemoveMedia")
	defer span.End()

	attachment, err := s.GetMedia(ctx, user, chat, kind, no)
	if err != nil {
		return err
	}
	if attachment.AttachedBy != user.ID && !chat.EffectivePermissions().Delete {
		return denied("cannot delete media of other users")
	}
	if err := s.storage.Chats.RemoveMedia(ctx, chat.SequenceID(), kind, no); err != nil {
		return storageErr("remove media", err)
	}
	s.emit(ctx, chat, func(to []int64) events.Event { return events.NewMediaDelete(chat, user.ID, kind, no, to) })
	return nil
}

// EditDialogPermissions changes what the peer of a dialog may do in it. The
// flags present in update overwrite the peer's effective permissions.
// Conference permissions are edited per member instead.
func (s *Chats) EditDialogPermissions(ctx context.Context, user models.Actor, chat models.Chat, update models.PermissionsUpdate) (models.Permissions, error) {
	ctx, span := tracer.Start(ctx, "Chats.EditDialogPermissions")
	defer span.End()

	dialog, ok := chat.(*models.Dialog)
	if !ok {
		return models.Permissions{}, invalid("conference permissions are managed per member")
	}
	if update.Empty() {
		return models.Permissions{}, invalid("no permission flags given")
	}
	relation, err := s.storage.Relations.GetRelation(ctx, dialog.Related, user.ID)
	if err != nil {
		return models.Permissions{}, storageErr("resolve peer relation", err)
	}
	peer, ok := relation.(*models.Dialog)
	if !ok {
		return models.Permissions{}, fmt.Errorf("peer relation %T: %w", relation, ErrUnresolvedRelation)
	}

	updated := update.Apply(peer.EffectivePermissions())
	if err := s.storage.Relations.UpdateDialogPermissions(ctx, peer, updated); err != nil {
		return models.Permissions{}, storageErr("update dialog permissions", err)
	}
	s.log.Info("Dialog permissions changed", "actor_id", user.ID, "peer_id", dialog.Related.ID)
	s.emit(ctx, chat, func(to []int64) events.Event {
		return events.NewDialogPermissionsChange(user.ID, dialog.Related.ID, updated, to)
	})
	return updated, nil
}

// emit announces a mutation that already succeeded. A failed recipient
// lookup is logged and the event skipped; the mutation stands.
func (s *Chats) emit(ctx context.Context, chat models.Chat, build func(to []int64) events.Event) {
	if s.emitter == nil {
		return
	}
	to, err := recipients(ctx, s.storage.Conferences, chat)
	if err != nil {
		s.log.Error("Resolve event recipients", "error", err, "chat_id", chat.SequenceID())
		return
	}
	s.emitter.Emit(build(to))
}
