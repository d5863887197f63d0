package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"microchat/internal/models"
)

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const messageColumns = `id, no, sender_id, text, reply_to, time_sent, time_edit`

// UserChats lists the dialogs and active participations of actor, oldest
// relation first.
func (r *ChatRepo) UserChats(ctx context.Context, actor models.Actor, offset, count int) ([]models.Chat, error) {
	type entry struct {
		chat  models.Chat
		since time.Time
	}
	var entries []entry

	var dialogs []struct {
		dialogRow
		CreatedAt time.Time `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &dialogs, `SELECT id, chat_id, related_id, permissions, created_at FROM dialogs WHERE actor_id=$1`, actor.ID); err != nil {
		return nil, err
	}
	for _, row := range dialogs {
		dialog, err := hydrateDialog(ctx, r.db, actor, row.dialogRow)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{chat: dialog, since: row.CreatedAt})
	}

	var conferenceIDs []int64
	if err := r.db.SelectContext(ctx, &conferenceIDs, `SELECT conference_id FROM participations WHERE actor_id=$1 AND left_at IS NULL`, actor.ID); err != nil {
		return nil, err
	}
	for _, id := range conferenceIDs {
		conference, err := getConference(ctx, r.db, id)
		if err != nil {
			return nil, err
		}
		member, err := findMember(ctx, r.db, conference, actor.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{chat: member, since: member.JoinedAt})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].since.Before(entries[j].since) })
	from, to := Window(offset, count, len(entries))
	chats := make([]models.Chat, 0, to-from)
	for _, e := range entries[from:to] {
		chats = append(chats, e.chat)
	}
	return chats, nil
}

func (r *ChatRepo) DialogMessages(ctx context.Context, dialog *models.Dialog, offset, count int) ([]models.Message, error) {
	return r.messages(ctx, dialog.ChatID, offset, count, nil)
}

func (r *ChatRepo) ConferenceMessages(ctx context.Context, conference models.Conference, offset, count int) ([]models.Message, error) {
	return r.messages(ctx, conference.ChatID, offset, count, nil)
}

func (r *ChatRepo) PrivateConferenceMessages(ctx context.Context, conference models.Conference, presences models.Presences, offset, count int) ([]models.Message, error) {
	if presences == nil {
		presences = models.Presences{}
	}
	return r.messages(ctx, conference.ChatID, offset, count, presences)
}

// messages returns the visible messages of the ordinal window. When
// presences is not nil only ordinals covered by it are kept.
func (r *ChatRepo) messages(ctx context.Context, chatID int64, offset, count int, presences models.Presences) ([]models.Message, error) {
	n, err := total(ctx, r.db, chatID, scopeMessage)
	if err != nil {
		return nil, err
	}
	from, to := Window(offset, count, n)
	if from == to {
		return []models.Message{}, nil
	}

	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 AND no >= $2 AND no < $3 AND deleted_at IS NULL ORDER BY no`, chatID, from, to); err != nil {
		return nil, err
	}
	if presences != nil {
		msgs = lo.Filter(msgs, func(m models.Message, _ int) bool { return presences.Covers(m.No) })
	}
	if err := r.attach(ctx, r.db, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

type attachmentRecord struct {
	MessageID int64 `db:"message_id"`
	No        int   `db:"attachment_no"`
	MessageNo  int   `db:"message_no"`
	AttachedBy int64 `db:"attached_by"`
	mediaRecord
}

const attachmentQuery = `SELECT a.message_id, a.no AS attachment_no, a.message_no, a.attached_by, ` + mediaColumns + `
    FROM attachments a INNER JOIN media m ON m.id = a.media_id`

func toAttachments(ctx context.Context, q sqlx.QueryerContext, records []attachmentRecord) ([]models.Attachment, error) {
	media, err := withPreviews(ctx, q, lo.Map(records, func(r attachmentRecord, _ int) mediaRecord { return r.mediaRecord }))
	if err != nil {
		return nil, err
	}
	out := make([]models.Attachment, 0, len(records))
	for i, r := range records {
		out = append(out, models.Attachment{No: r.No, MessageNo: r.MessageNo, AttachedBy: r.AttachedBy, Media: media[i]})
	}
	return out, nil
}

// attach loads the live attachments of msgs in message order.
func (r *ChatRepo) attach(ctx context.Context, q sqlx.QueryerContext, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := lo.Map(msgs, func(m models.Message, _ int) int64 { return m.ID })
	var records []attachmentRecord
	if err := sqlx.SelectContext(ctx, q, &records, attachmentQuery+`
        WHERE a.message_id = ANY($1) AND a.deleted_at IS NULL ORDER BY a.message_id, a.position`, pq.Array(ids)); err != nil {
		return err
	}
	attachments, err := toAttachments(ctx, q, records)
	if err != nil {
		return err
	}

	byMessage := map[int64][]models.Attachment{}
	for i, record := range records {
		byMessage[record.MessageID] = append(byMessage[record.MessageID], attachments[i])
	}
	for i := range msgs {
		msgs[i].Attachments = byMessage[msgs[i].ID]
		if msgs[i].Attachments == nil {
			msgs[i].Attachments = []models.Attachment{}
		}
	}
	return nil
}

func (r *ChatRepo) AddMessage(ctx context.Context, chatID int64, message NewMessage) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer rollback(tx)

	no, err := nextOrdinal(ctx, tx, chatID, scopeMessage)
	if err != nil {
		return models.Message{}, err
	}
	msg := models.Message{No: no, SenderID: message.SenderID, Text: message.Text, ReplyTo: message.ReplyTo}
	if err := tx.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, no, sender_id, text, reply_to)
        VALUES ($1, $2, $3, $4, $5) RETURNING id, time_sent`, chatID, no, message.SenderID, message.Text, message.ReplyTo).
		Scan(&msg.ID, &msg.TimeSent); err != nil {
		return models.Message{}, translate(err)
	}
	if msg.Attachments, err = insertAttachments(ctx, tx, chatID, msg, message.Media); err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func insertAttachments(ctx context.Context, tx *sqlx.Tx, chatID int64, msg models.Message, media []models.Media) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(media))
	for position, m := range media {
		no, err := nextOrdinal(ctx, tx, chatID, mediaScope(m.Kind))
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO attachments (chat_id, message_id, message_no, kind, no, position, media_id, attached_by)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, chatID, msg.ID, msg.No, m.Kind, no, position, m.ID, msg.SenderID); err != nil {
			return nil, translate(err)
		}
		attachments = append(attachments, models.Attachment{No: no, MessageNo: msg.No, AttachedBy: msg.SenderID, Media: m})
	}
	return attachments, nil
}

func (r *ChatRepo) EditMessage(ctx context.Context, chatID int64, no int, patch MessagePatch) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer rollback(tx)

	var msg models.Message
	err = tx.GetContext(ctx, &msg, `UPDATE messages SET text=$3, time_edit=NOW()
        WHERE chat_id=$1 AND no=$2 AND deleted_at IS NULL RETURNING `+messageColumns, chatID, no, patch.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	if patch.ReplaceMedia {
		if _, err := tx.ExecContext(ctx, `UPDATE attachments SET deleted_at=NOW() WHERE message_id=$1 AND deleted_at IS NULL`, msg.ID); err != nil {
			return models.Message{}, err
		}
		if _, err := insertAttachments(ctx, tx, chatID, msg, patch.Media); err != nil {
			return models.Message{}, err
		}
	}
	msgs := []models.Message{msg}
	if err := r.attach(ctx, tx, msgs); err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// RemoveMessage clears the slot and the attachments of the message. The
// ordinal stays taken.
func (r *ChatRepo) RemoveMessage(ctx context.Context, chatID int64, no int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	var id int64
	err = tx.GetContext(ctx, &id, `UPDATE messages SET deleted_at=NOW()
        WHERE chat_id=$1 AND no=$2 AND deleted_at IS NULL RETURNING id`, chatID, no)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE attachments SET deleted_at=NOW() WHERE message_id=$1 AND deleted_at IS NULL`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ChatRepo) DialogMedia(ctx context.Context, dialog *models.Dialog, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	return r.media(ctx, dialog.ChatID, kind, offset, count, nil)
}

func (r *ChatRepo) ConferenceMedia(ctx context.Context, conference models.Conference, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	return r.media(ctx, conference.ChatID, kind, offset, count, nil)
}

func (r *ChatRepo) PrivateConferenceMedia(ctx context.Context, conference models.Conference, presences models.Presences, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	if presences == nil {
		presences = models.Presences{}
	}
	return r.media(ctx, conference.ChatID, kind, offset, count, presences)
}

// media windows the attachment ordinals of one kind. Presence windows apply
// to the ordinal of the carrying message.
func (r *ChatRepo) media(ctx context.Context, chatID int64, kind models.MediaKind, offset, count int, presences models.Presences) ([]models.Attachment, error) {
	n, err := total(ctx, r.db, chatID, mediaScope(kind))
	if err != nil {
		return nil, err
	}
	from, to := Window(offset, count, n)
	if from == to {
		return []models.Attachment{}, nil
	}

	var records []attachmentRecord
	if err := r.db.SelectContext(ctx, &records, attachmentQuery+`
        WHERE a.chat_id=$1 AND a.kind=$2 AND a.no >= $3 AND a.no < $4 AND a.deleted_at IS NULL ORDER BY a.no`,
		chatID, kind, from, to); err != nil {
		return nil, err
	}
	if presences != nil {
		records = lo.Filter(records, func(r attachmentRecord, _ int) bool { return presences.Covers(r.MessageNo) })
	}
	return toAttachments(ctx, r.db, records)
}

func (r *ChatRepo) RemoveMedia(ctx context.Context, chatID int64, kind models.MediaKind, no int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE attachments SET deleted_at=NOW()
        WHERE chat_id=$1 AND kind=$2 AND no=$3 AND deleted_at IS NULL`, chatID, kind, no)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
