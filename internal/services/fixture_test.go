package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"microchat/internal/events"
	"microchat/internal/models"
	"microchat/internal/repositories"
	"microchat/internal/repositories/memstore"
)

// recorder is an Emitter keeping every event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	ctx         context.Context
	store       *memstore.Store
	emitted     *recorder
	chats       *Chats
	conferences *Conferences
}

func newFixture(t *testing.T, blobs *repositories.Blobs) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := memstore.New(blobs)
	emitted := &recorder{}
	return &fixture{
		ctx:         context.Background(),
		store:       store,
		emitted:     emitted,
		chats:       NewChats(store.Storage(), emitted, log, 0),
		conferences: NewConferences(store.Storage(), emitted, log),
	}
}

func (f *fixture) actor(t *testing.T, name string) models.Actor {
	t.Helper()
	actor, err := f.store.CreateActor(f.ctx, models.Actor{
		Kind:               models.ActorUser,
		Name:               name,
		DefaultPermissions: models.MemberPermissions(),
	})
	require.NoError(t, err)
	return actor
}

// relation re-reads the chat of actor with relatedID so that permission
// changes are visible.
func (f *fixture) relation(t *testing.T, actor models.Actor, relatedID int64) models.Chat {
	t.Helper()
	chat, err := f.store.GetRelation(f.ctx, actor, relatedID)
	require.NoError(t, err)
	return chat
}

func (f *fixture) dialog(t *testing.T, a, b models.Actor) models.Chat {
	t.Helper()
	_, err := f.store.EnsureDialog(f.ctx, a, b)
	require.NoError(t, err)
	return f.relation(t, a, b.ID)
}

// restrict overwrites the permissions actor holds in its dialog with relatedID.
func (f *fixture) restrict(t *testing.T, actor models.Actor, relatedID int64, perms models.Permissions) {
	t.Helper()
	dialog, ok := f.relation(t, actor, relatedID).(*models.Dialog)
	require.True(t, ok)
	require.NoError(t, f.store.UpdateDialogPermissions(f.ctx, dialog, perms))
}

func (f *fixture) send(t *testing.T, user models.Actor, chat models.Chat, text string) models.Message {
	t.Helper()
	msg, err := f.chats.AddMessage(f.ctx, user, chat, models.MessageDraft{Text: lo.ToPtr(text)})
	require.NoError(t, err)
	return msg
}

func texts(msgs []models.Message) []string {
	return lo.Map(msgs, func(m models.Message, _ int) string { return lo.FromPtr(m.Text) })
}
