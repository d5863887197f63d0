// Package memstore keeps the whole storage port in process memory. It backs
// the service tests and single-node deployments without a database.
package memstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"microchat/internal/models"
	"microchat/internal/repositories"
)

type dialogRecord struct {
	id          int64
	chatID      int64
	permissions *models.Permissions
	createdAt   time.Time
}

type memberRecord struct {
	id          int64
	no          int
	actorID     int64
	role        string
	permissions *models.Permissions
	presences   models.Presences
	joinedAt    time.Time
	leftAt      *time.Time
}

type messageRecord struct {
	msg         models.Message
	attachments []*attachmentRecord
	deleted     bool
}

type attachmentRecord struct {
	no         int
	messageNo  int
	attachedBy int64
	hash       string
	deleted    bool
}

func (s *Store) attachment(a *attachmentRecord) models.Attachment {
	return models.Attachment{No: a.no, MessageNo: a.messageNo, AttachedBy: a.attachedBy, Media: s.media[a.hash]}
}

// Store implements every repository of repositories.Storage. A single mutex
// guards all state, which makes ordinal assignment trivially atomic.
type Store struct {
	mu    sync.Mutex
	blobs *repositories.Blobs

	lastID      int64
	actors      map[int64]models.Actor
	conferences map[int64]models.Conference
	aliases     map[string]int64

	pairs   map[[2]int64]int64
	dialogs map[[2]int64]*dialogRecord
	members map[int64]map[int64]*memberRecord

	counters    map[int64]map[string]int
	messages    map[int64][]*messageRecord
	attachments map[int64]map[models.MediaKind][]*attachmentRecord

	media map[string]models.Media
}

// New creates an empty store. blobs may be nil when no media is uploaded.
func New(blobs *repositories.Blobs) *Store {
	return &Store{
		blobs:       blobs,
		actors:      map[int64]models.Actor{},
		conferences: map[int64]models.Conference{},
		aliases:     map[string]int64{},
		pairs:       map[[2]int64]int64{},
		dialogs:     map[[2]int64]*dialogRecord{},
		members:     map[int64]map[int64]*memberRecord{},
		counters:    map[int64]map[string]int{},
		messages:    map[int64][]*messageRecord{},
		attachments: map[int64]map[models.MediaKind][]*attachmentRecord{},
		media:       map[string]models.Media{},
	}
}

// Storage exposes the store through the storage port.
func (s *Store) Storage() repositories.Storage {
	return repositories.Storage{
		Entities:    s,
		Relations:   s,
		Chats:       s,
		Conferences: s,
		Media:       s,
	}
}

func (s *Store) newID() int64 {
	s.lastID++
	return s.lastID
}

func (s *Store) next(chatID int64, scope string) int {
	if _, ok := s.counters[chatID]; !ok {
		s.counters[chatID] = map[string]int{}
	}
	no := s.counters[chatID][scope]
	s.counters[chatID][scope] = no + 1
	return no
}

func (s *Store) total(chatID int64, scope string) int {
	return s.counters[chatID][scope]
}

const (
	scopeMessage = "message"
	scopeMember  = "member"
)

func mediaScope(kind models.MediaKind) string {
	return "media:" + string(kind)
}

// Entities

func (s *Store) GetByID(ctx context.Context, id int64) (models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entity(id)
}

func (s *Store) entity(id int64) (models.Entity, error) {
	if actor, ok := s.actors[id]; ok {
		return models.Entity{ID: actor.ID, Kind: string(actor.Kind), Alias: actor.Alias, Name: actor.Name}, nil
	}
	if conference, ok := s.conferences[id]; ok {
		return models.Entity{ID: conference.ID, Kind: models.EntityConference, Alias: conference.Alias, Name: conference.Title}, nil
	}
	return models.Entity{}, repositories.ErrNotFound
}

func (s *Store) GetByAlias(ctx context.Context, alias string) (models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.aliases[alias]
	if !ok {
		return models.Entity{}, repositories.ErrNotFound
	}
	return s.entity(id)
}

func (s *Store) GetActor(ctx context.Context, id int64) (models.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[id]
	if !ok {
		return models.Actor{}, repositories.ErrNotFound
	}
	return actor, nil
}

func (s *Store) GetConference(ctx context.Context, id int64) (models.Conference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conference, ok := s.conferences[id]
	if !ok {
		return models.Conference{}, repositories.ErrNotFound
	}
	return conference, nil
}

func (s *Store) CreateActor(ctx context.Context, actor models.Actor) (models.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimAlias(actor.Alias); err != nil {
		return models.Actor{}, err
	}
	actor.ID = s.newID()
	actor.CreatedAt = time.Now()
	if actor.Alias != nil {
		s.aliases[*actor.Alias] = actor.ID
	}
	s.actors[actor.ID] = actor
	return actor, nil
}

func (s *Store) claimAlias(alias *string) error {
	if alias == nil {
		return nil
	}
	if _, taken := s.aliases[*alias]; taken {
		return fmt.Errorf("alias %q: %w", *alias, repositories.ErrAliasTaken)
	}
	return nil
}

// Relations

func (s *Store) GetRelation(ctx context.Context, actor models.Actor, relatedID int64) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conference, ok := s.conferences[relatedID]; ok {
		member, err := s.findMember(conference, actor.ID)
		if err != nil {
			return nil, err
		}
		return member, nil
	}
	if _, ok := s.actors[relatedID]; !ok {
		return nil, repositories.ErrNotFound
	}
	dialog, err := s.dialog(actor, relatedID)
	if err != nil {
		return nil, err
	}
	return dialog, nil
}

func (s *Store) dialog(actor models.Actor, relatedID int64) (*models.Dialog, error) {
	rec, ok := s.dialogs[[2]int64{actor.ID, relatedID}]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &models.Dialog{
		ID:          rec.id,
		ChatID:      rec.chatID,
		Actor:       actor,
		Related:     s.actors[relatedID],
		Permissions: rec.permissions,
	}, nil
}

func (s *Store) EnsureDialog(ctx context.Context, actor, related models.Actor) (*models.Dialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair := [2]int64{min(actor.ID, related.ID), max(actor.ID, related.ID)}
	chatID, ok := s.pairs[pair]
	if !ok {
		chatID = s.newID()
		s.pairs[pair] = chatID
	}
	for _, key := range [][2]int64{{actor.ID, related.ID}, {related.ID, actor.ID}} {
		if _, exists := s.dialogs[key]; !exists {
			s.dialogs[key] = &dialogRecord{id: s.newID(), chatID: chatID, createdAt: time.Now()}
		}
	}
	return s.dialog(actor, related.ID)
}

func (s *Store) UpdateDialogPermissions(ctx context.Context, dialog *models.Dialog, perms models.Permissions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dialogs[[2]int64{dialog.Actor.ID, dialog.Related.ID}]
	if !ok {
		return repositories.ErrNotFound
	}
	rec.permissions = &perms
	return nil
}

// Conferences

func (s *Store) CreateConference(ctx context.Context, conference models.Conference, owner models.Actor) (*models.ConferenceParticipation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimAlias(conference.Alias); err != nil {
		return nil, err
	}
	conference.ID = s.newID()
	conference.ChatID = s.newID()
	conference.OwnerID = owner.ID
	conference.CreatedAt = time.Now()
	if conference.Alias != nil {
		s.aliases[*conference.Alias] = conference.ID
	}
	s.conferences[conference.ID] = conference
	s.members[conference.ID] = map[int64]*memberRecord{}

	all := models.AllPermissions()
	s.join(conference, owner.ID, models.RoleOwner, &all)
	return s.findMember(conference, owner.ID)
}

func (s *Store) join(conference models.Conference, actorID int64, role string, perms *models.Permissions) {
	members := s.members[conference.ID]
	rec, ok := members[actorID]
	switch {
	case ok && rec.leftAt == nil:
		return
	case ok:
		rec.leftAt = nil
		rec.joinedAt = time.Now()
	default:
		rec = &memberRecord{
			id:          s.newID(),
			no:          s.next(conference.ChatID, scopeMember),
			actorID:     actorID,
			role:        role,
			permissions: perms,
			joinedAt:    time.Now(),
		}
		members[actorID] = rec
	}
	rec.presences = append(rec.presences, models.ConferencePresence{JoinAt: s.total(conference.ChatID, scopeMessage)})
}

func (s *Store) participation(conference models.Conference, rec *memberRecord) models.ConferenceParticipation {
	return models.ConferenceParticipation{
		ID:          rec.id,
		No:          rec.no,
		Actor:       s.actors[rec.actorID],
		Conference:  s.conferences[conference.ID],
		Role:        rec.role,
		Permissions: rec.permissions,
		Presences:   append(models.Presences(nil), rec.presences...),
		JoinedAt:    rec.joinedAt,
		LeftAt:      rec.leftAt,
	}
}

func (s *Store) findMember(conference models.Conference, actorID int64) (*models.ConferenceParticipation, error) {
	rec, ok := s.members[conference.ID][actorID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	member := s.participation(conference, rec)
	return &member, nil
}

func (s *Store) ListMembers(ctx context.Context, conference models.Conference, offset, count int) ([]models.ConferenceParticipation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to := repositories.Window(offset, count, s.total(conference.ChatID, scopeMember))

	var out []models.ConferenceParticipation
	for _, rec := range s.members[conference.ID] {
		if rec.leftAt == nil && rec.no >= from && rec.no < to {
			out = append(out, s.participation(conference, rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].No < out[j].No })
	if out == nil {
		out = []models.ConferenceParticipation{}
	}
	return out, nil
}

func (s *Store) FindMember(ctx context.Context, conference models.Conference, actorID int64) (*models.ConferenceParticipation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findMember(conference, actorID)
}

func (s *Store) AddMember(ctx context.Context, conference models.Conference, actor models.Actor) (*models.ConferenceParticipation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conferences[conference.ID]; !ok {
		return nil, repositories.ErrNotFound
	}
	s.join(conference, actor.ID, models.RoleMember, nil)
	return s.findMember(conference, actor.ID)
}

func (s *Store) RemoveMember(ctx context.Context, member *models.ConferenceParticipation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.members[member.Conference.ID][member.Actor.ID]
	if !ok || rec.leftAt != nil {
		return repositories.ErrNotFound
	}
	now := time.Now()
	rec.leftAt = &now
	leaveAt := s.total(member.Conference.ChatID, scopeMessage)
	for i := range rec.presences {
		if rec.presences[i].LeaveAt == nil {
			rec.presences[i].LeaveAt = lo.ToPtr(leaveAt)
		}
	}
	return nil
}

func (s *Store) UpdatePermissions(ctx context.Context, member *models.ConferenceParticipation, perms models.Permissions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.members[member.Conference.ID][member.Actor.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	rec.permissions = &perms
	return nil
}

func (s *Store) MemberIDs(ctx context.Context, conference models.Conference) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []*memberRecord
	for _, rec := range s.members[conference.ID] {
		if rec.leftAt == nil {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].no < recs[j].no })
	return lo.Map(recs, func(rec *memberRecord, _ int) int64 { return rec.actorID }), nil
}

func (s *Store) UpdateConference(ctx context.Context, conference models.Conference) (models.Conference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.conferences[conference.ID]
	if !ok {
		return models.Conference{}, repositories.ErrNotFound
	}
	if lo.FromPtr(conference.Alias) != lo.FromPtr(current.Alias) {
		if err := s.claimAlias(conference.Alias); err != nil {
			return models.Conference{}, err
		}
		if current.Alias != nil {
			delete(s.aliases, *current.Alias)
		}
		if conference.Alias != nil {
			s.aliases[*conference.Alias] = conference.ID
		}
	}
	current.Alias = conference.Alias
	current.Title = conference.Title
	current.Description = conference.Description
	current.Private = conference.Private
	current.DefaultPermissions = conference.DefaultPermissions
	s.conferences[conference.ID] = current
	return current, nil
}

func (s *Store) DeleteConference(ctx context.Context, conference models.Conference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.conferences[conference.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if current.Alias != nil {
		delete(s.aliases, *current.Alias)
	}
	delete(s.conferences, current.ID)
	delete(s.members, current.ID)
	delete(s.messages, current.ChatID)
	delete(s.attachments, current.ChatID)
	delete(s.counters, current.ChatID)
	return nil
}

// Chats

func (s *Store) UserChats(ctx context.Context, actor models.Actor, offset, count int) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type entry struct {
		chat  models.Chat
		since time.Time
		id    int64
	}
	var entries []entry
	for key, rec := range s.dialogs {
		if key[0] != actor.ID {
			continue
		}
		dialog, err := s.dialog(actor, key[1])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{chat: dialog, since: rec.createdAt, id: rec.id})
	}
	for conferenceID, members := range s.members {
		rec, ok := members[actor.ID]
		if !ok || rec.leftAt != nil {
			continue
		}
		member := s.participation(s.conferences[conferenceID], rec)
		entries = append(entries, entry{chat: &member, since: rec.joinedAt, id: rec.id})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].since.Equal(entries[j].since) {
			return entries[i].id < entries[j].id
		}
		return entries[i].since.Before(entries[j].since)
	})

	from, to := repositories.Window(offset, count, len(entries))
	chats := make([]models.Chat, 0, to-from)
	for _, e := range entries[from:to] {
		chats = append(chats, e.chat)
	}
	return chats, nil
}

func (s *Store) DialogMessages(ctx context.Context, dialog *models.Dialog, offset, count int) ([]models.Message, error) {
	return s.list(dialog.ChatID, offset, count, nil), nil
}

func (s *Store) ConferenceMessages(ctx context.Context, conference models.Conference, offset, count int) ([]models.Message, error) {
	return s.list(conference.ChatID, offset, count, nil), nil
}

func (s *Store) PrivateConferenceMessages(ctx context.Context, conference models.Conference, presences models.Presences, offset, count int) ([]models.Message, error) {
	if presences == nil {
		presences = models.Presences{}
	}
	return s.list(conference.ChatID, offset, count, presences), nil
}

func (s *Store) list(chatID int64, offset, count int, presences models.Presences) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.messages[chatID]
	from, to := repositories.Window(offset, count, len(records))

	out := []models.Message{}
	for _, rec := range records[from:to] {
		if rec.deleted || (presences != nil && !presences.Covers(rec.msg.No)) {
			continue
		}
		out = append(out, s.render(rec))
	}
	return out
}

func (s *Store) render(rec *messageRecord) models.Message {
	msg := rec.msg
	msg.Attachments = []models.Attachment{}
	for _, a := range rec.attachments {
		if !a.deleted {
			msg.Attachments = append(msg.Attachments, s.attachment(a))
		}
	}
	return msg
}

func (s *Store) AddMessage(ctx context.Context, chatID int64, message repositories.NewMessage) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	no := s.next(chatID, scopeMessage)
	rec := &messageRecord{msg: models.Message{
		ID:       s.newID(),
		No:       no,
		SenderID: message.SenderID,
		Text:     message.Text,
		TimeSent: time.Now(),
		ReplyTo:  message.ReplyTo,
	}}
	s.messages[chatID] = append(s.messages[chatID], rec)
	s.attach(chatID, rec, message.Media)
	return s.render(rec), nil
}

func (s *Store) attach(chatID int64, rec *messageRecord, media []models.Media) {
	if _, ok := s.attachments[chatID]; !ok {
		s.attachments[chatID] = map[models.MediaKind][]*attachmentRecord{}
	}
	for _, m := range media {
		a := &attachmentRecord{
			no:         s.next(chatID, mediaScope(m.Kind)),
			messageNo:  rec.msg.No,
			attachedBy: rec.msg.SenderID,
			hash:       m.Hash,
		}
		s.media[m.Hash] = m
		s.attachments[chatID][m.Kind] = append(s.attachments[chatID][m.Kind], a)
		rec.attachments = append(rec.attachments, a)
	}
}

func (s *Store) lookup(chatID int64, no int) (*messageRecord, error) {
	records := s.messages[chatID]
	if no < 0 || no >= len(records) || records[no].deleted {
		return nil, repositories.ErrNotFound
	}
	return records[no], nil
}

func (s *Store) EditMessage(ctx context.Context, chatID int64, no int, patch repositories.MessagePatch) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(chatID, no)
	if err != nil {
		return models.Message{}, err
	}
	rec.msg.Text = patch.Text
	rec.msg.TimeEdit = lo.ToPtr(time.Now())
	if patch.ReplaceMedia {
		for _, a := range rec.attachments {
			a.deleted = true
		}
		rec.attachments = nil
		s.attach(chatID, rec, patch.Media)
	}
	return s.render(rec), nil
}

func (s *Store) RemoveMessage(ctx context.Context, chatID int64, no int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(chatID, no)
	if err != nil {
		return err
	}
	rec.deleted = true
	for _, a := range rec.attachments {
		a.deleted = true
	}
	return nil
}

func (s *Store) DialogMedia(ctx context.Context, dialog *models.Dialog, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	return s.listMedia(dialog.ChatID, kind, offset, count, nil), nil
}

func (s *Store) ConferenceMedia(ctx context.Context, conference models.Conference, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	return s.listMedia(conference.ChatID, kind, offset, count, nil), nil
}

func (s *Store) PrivateConferenceMedia(ctx context.Context, conference models.Conference, presences models.Presences, kind models.MediaKind, offset, count int) ([]models.Attachment, error) {
	if presences == nil {
		presences = models.Presences{}
	}
	return s.listMedia(conference.ChatID, kind, offset, count, presences), nil
}

func (s *Store) listMedia(chatID int64, kind models.MediaKind, offset, count int, presences models.Presences) []models.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.attachments[chatID][kind]
	from, to := repositories.Window(offset, count, len(records))

	out := []models.Attachment{}
	for _, a := range records[from:to] {
		if a.deleted || (presences != nil && !presences.Covers(a.messageNo)) {
			continue
		}
		out = append(out, s.attachment(a))
	}
	return out
}

func (s *Store) RemoveMedia(ctx context.Context, chatID int64, kind models.MediaKind, no int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.attachments[chatID][kind]
	if no < 0 || no >= len(records) || records[no].deleted {
		return repositories.ErrNotFound
	}
	records[no].deleted = true
	return nil
}

// Media

// PutMedia records media without a blob. Tests use it to seed attachments.
func (s *Store) PutMedia(media models.Media) models.Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.media[media.Hash]; ok {
		return existing
	}
	media.ID = s.newID()
	if media.LoadedAt.IsZero() {
		media.LoadedAt = time.Now()
	}
	s.media[media.Hash] = media
	return media
}

func (s *Store) GetByHash(ctx context.Context, hash string) (models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	media, ok := s.media[hash]
	if !ok {
		return models.Media{}, repositories.ErrNotFound
	}
	return media, nil
}

func (s *Store) GetByHashes(ctx context.Context, hashes []string) ([]models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Media, 0, len(hashes))
	for _, hash := range hashes {
		media, ok := s.media[hash]
		if !ok {
			return nil, fmt.Errorf("media %s: %w", hash, repositories.ErrNotFound)
		}
		out = append(out, media)
	}
	return out, nil
}

func (s *Store) SaveMedia(ctx context.Context, media models.Media, tmpPath string) (models.Media, error) {
	if existing, err := s.GetByHash(ctx, media.Hash); err == nil {
		_ = os.Remove(tmpPath)
		return existing, nil
	}
	if s.blobs == nil {
		return models.Media{}, fmt.Errorf("memstore: no blob store configured")
	}
	path, err := s.blobs.Place(tmpPath, media.Hash)
	if err != nil {
		return models.Media{}, err
	}
	media.Path = path
	return s.PutMedia(media), nil
}

func (s *Store) CreateTempFile(ctx context.Context) (*os.File, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("memstore: no blob store configured")
	}
	return s.blobs.CreateTemp()
}

func (s *Store) Open(ctx context.Context, media models.Media) (io.ReadCloser, error) {
	if s.blobs == nil {
		return nil, repositories.ErrNotFound
	}
	return s.blobs.Open(media.Path)
}
