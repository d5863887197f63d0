package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"microchat/internal/models"
)

// Counter scopes of one chat.
const (
	scopeMessage = "message"
	scopeMember  = "member"
)

func mediaScope(kind models.MediaKind) string {
	return "media:" + string(kind)
}

// nextOrdinal reserves the next ordinal of scope. The upsert takes a row lock
// on the counter, so concurrent writers into one chat are serialized until
// the surrounding transaction ends.
func nextOrdinal(ctx context.Context, tx *sqlx.Tx, chatID int64, scope string) (int, error) {
	var no int
	err := tx.QueryRowxContext(ctx, `INSERT INTO chat_counters (chat_id, scope, next_no) VALUES ($1, $2, 1)
        ON CONFLICT (chat_id, scope) DO UPDATE SET next_no = chat_counters.next_no + 1
        RETURNING next_no - 1`, chatID, scope).Scan(&no)
	return no, err
}

// total returns how many ordinals of scope were handed out so far.
func total(ctx context.Context, q sqlx.QueryerContext, chatID int64, scope string) (int, error) {
	var next int
	err := sqlx.GetContext(ctx, q, &next, `SELECT next_no FROM chat_counters WHERE chat_id=$1 AND scope=$2`, chatID, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return next, err
}

// rollback is deferred by every write transaction; it is a no-op after commit.
func rollback(tx *sqlx.Tx) {
	_ = tx.Rollback()
}
