package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"microchat/internal/hub"
	"microchat/internal/models"
	"microchat/internal/repositories"
	"microchat/internal/repositories/memstore"
	"microchat/internal/services"
)

type testEnv struct {
	store  *memstore.Store
	hub    *hub.Hub
	router *gin.Engine
}

// asUser stands in for the auth middleware: the X-Test-User header carries
// the user id.
func asUser(c *gin.Context) {
	if raw := c.GetHeader("X-Test-User"); raw != "" {
		id, _ := strconv.ParseInt(raw, 10, 64)
		c.Set("userID", id)
	}
	c.Next()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	blobs, err := repositories.NewBlobs(t.TempDir())
	require.NoError(t, err)
	store := memstore.New(blobs)
	storage := store.Storage()
	events := hub.New(log, 8)

	chats := NewChatHandler(storage, services.NewChats(storage, events, log, 0), nil, log)
	conferences := NewConferenceHandler(storage, services.NewConferences(storage, events, log), nil, log)
	media := NewMediaHandler(storage, services.NewFiles(storage.Media, log), nil, log)
	stream := NewStreamHandler(storage, events, nil, log)

	r := gin.New()
	r.Use(asUser)
	r.GET("/chats", chats.ListChats)
	r.POST("/dialogs", chats.OpenDialog)
	r.GET("/chats/:chat_id/messages", chats.ListMessages)
	r.POST("/chats/:chat_id/messages", chats.PostMessage)
	r.GET("/chats/:chat_id/messages/:no", chats.GetMessage)
	r.PATCH("/chats/:chat_id/messages/:no", chats.EditMessage)
	r.DELETE("/chats/:chat_id/messages/:no", chats.DeleteMessage)
	r.GET("/chats/:chat_id/media/:media_type", chats.ListMedia)
	r.GET("/chats/:chat_id/media/:media_type/:no", chats.GetMedia)
	r.DELETE("/chats/:chat_id/media/:media_type/:no", chats.DeleteMedia)
	r.PATCH("/chats/:chat_id/permissions", chats.EditPermissions)
	r.POST("/conferences", conferences.CreateConference)
	r.PATCH("/conferences/:conference_id", conferences.EditConference)
	r.DELETE("/conferences/:conference_id", conferences.DeleteConference)
	r.GET("/conferences/:conference_id/members", conferences.ListMembers)
	r.POST("/conferences/:conference_id/members", conferences.AddMember)
	r.GET("/conferences/:conference_id/members/:member", conferences.GetMember)
	r.DELETE("/conferences/:conference_id/members/:member", conferences.RemoveMember)
	r.GET("/conferences/:conference_id/members/:member/permissions", conferences.GetMemberPermissions)
	r.PATCH("/conferences/:conference_id/members/:member/permissions", conferences.EditMemberPermissions)
	r.POST("/media", media.Upload)
	r.GET("/media/:hash", media.Download)
	r.GET("/events", stream.SSE)
	r.GET("/ws/events", stream.WS)

	return &testEnv{store: store, hub: events, router: r}
}

func (e *testEnv) actor(t *testing.T, name string, alias *string) models.Actor {
	t.Helper()
	actor, err := e.store.CreateActor(context.Background(), models.Actor{
		Kind:               models.ActorUser,
		Name:               name,
		Alias:              alias,
		DefaultPermissions: models.MemberPermissions(),
	})
	require.NoError(t, err)
	return actor
}

func (e *testEnv) do(t *testing.T, user int64, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, payload)
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set("X-Test-User", strconv.FormatInt(user, 10))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func path(parts ...any) string {
	out := ""
	for _, p := range parts {
		switch v := p.(type) {
		case int64:
			out += "/" + strconv.FormatInt(v, 10)
		case int:
			out += "/" + strconv.Itoa(v)
		default:
			out += "/" + v.(string)
		}
	}
	return out
}

func logsForTest() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}
