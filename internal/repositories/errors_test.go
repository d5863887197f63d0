package repositories

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microchat/internal/models"
)

func TestTranslate(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})
	foreignKey := fmt.Errorf("insert: %w", &pq.Error{Code: "23503"})
	plain := errors.New("connection reset")

	assert.ErrorIs(t, translate(unique), ErrOrdinalConflict)
	assert.ErrorIs(t, translateAlias(unique), ErrAliasTaken)
	assert.Equal(t, foreignKey, translate(foreignKey))
	assert.Equal(t, plain, translateAlias(plain))
	assert.Nil(t, translate(nil))
	assert.False(t, isUniqueViolation(plain))
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestAddMessage_CounterUpsertAndConflict(t *testing.T) {
	t.Run("stored", func(t *testing.T) {
		db, mock := newMockDB(t)
		sent := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectBegin()
		mock.ExpectQuery(`(?s)INSERT INTO chat_counters .* ON CONFLICT \(chat_id, scope\) DO UPDATE`).
			WithArgs(int64(9), scopeMessage).
			WillReturnRows(sqlmock.NewRows([]string{"no"}).AddRow(3))
		mock.ExpectQuery(`INSERT INTO messages`).
			WithArgs(int64(9), 3, int64(1), "hi", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "time_sent"}).AddRow(int64(77), sent))
		mock.ExpectCommit()

		msg, err := NewChatRepo(db).AddMessage(t.Context(), 9, NewMessage{SenderID: 1, Text: lo.ToPtr("hi")})

		require.NoError(t, err)
		assert.Equal(t, 3, msg.No)
		assert.Equal(t, int64(77), msg.ID)
		assert.Equal(t, sent, msg.TimeSent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ordinal taken", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO chat_counters`).
			WithArgs(int64(9), scopeMessage).
			WillReturnRows(sqlmock.NewRows([]string{"no"}).AddRow(3))
		mock.ExpectQuery(`INSERT INTO messages`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "messages_chat_id_no_key"})
		mock.ExpectRollback()

		_, err := NewChatRepo(db).AddMessage(t.Context(), 9, NewMessage{SenderID: 1, Text: lo.ToPtr("hi")})

		assert.ErrorIs(t, err, ErrOrdinalConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("attachments take a counter per kind", func(t *testing.T) {
		db, mock := newMockDB(t)
		sent := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO chat_counters`).
			WithArgs(int64(9), scopeMessage).
			WillReturnRows(sqlmock.NewRows([]string{"no"}).AddRow(0))
		mock.ExpectQuery(`INSERT INTO messages`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "time_sent"}).AddRow(int64(5), sent))
		mock.ExpectQuery(`INSERT INTO chat_counters`).
			WithArgs(int64(9), mediaScope(models.MediaImage)).
			WillReturnRows(sqlmock.NewRows([]string{"no"}).AddRow(2))
		mock.ExpectExec(`INSERT INTO attachments`).
			WithArgs(int64(9), int64(5), 0, models.MediaImage, 2, 0, int64(40), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		img := models.Media{ID: 40, Hash: "img", Kind: models.MediaImage, LoadedBy: 8}
		msg, err := NewChatRepo(db).AddMessage(t.Context(), 9, NewMessage{SenderID: 1, Media: []models.Media{img}})

		require.NoError(t, err)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, 2, msg.Attachments[0].No)
		assert.Equal(t, int64(1), msg.Attachments[0].AttachedBy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateDialogPermissions_MissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE dialogs SET permissions`).
		WithArgs(int64(10), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewRelationRepo(db).UpdateDialogPermissions(t.Context(), &models.Dialog{ID: 10}, models.Permissions{Read: true})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
