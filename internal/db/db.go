package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the pool and applies the schema.
func Connect(ctx context.Context, dsn string, log *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("Database migrations applied", "count", len(migrations))
	return db, nil
}

// Users, bots and conferences share the entities id space. Every message
// sequence lives in chats; chat_counters hands out the ordinals of messages,
// attachments (one scope per media kind) and conference members.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS entities (
        id BIGSERIAL PRIMARY KEY,
        kind TEXT NOT NULL CHECK (kind IN ('user', 'bot', 'conference')),
        alias TEXT UNIQUE,
        name TEXT NOT NULL,
        avatar TEXT,
        default_permissions JSONB NOT NULL DEFAULT '{}',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS chats (
        id BIGSERIAL PRIMARY KEY,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS chat_counters (
        chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        scope TEXT NOT NULL,
        next_no INT NOT NULL,
        PRIMARY KEY (chat_id, scope)
    );`,
	`CREATE TABLE IF NOT EXISTS conferences (
        id BIGINT PRIMARY KEY REFERENCES entities(id) ON DELETE CASCADE,
        chat_id BIGINT NOT NULL UNIQUE REFERENCES chats(id),
        owner_id BIGINT NOT NULL REFERENCES entities(id),
        description TEXT,
        private BOOLEAN NOT NULL DEFAULT FALSE
    );`,
	`CREATE TABLE IF NOT EXISTS dialog_pairs (
        chat_id BIGINT PRIMARY KEY REFERENCES chats(id) ON DELETE CASCADE,
        user1_id BIGINT NOT NULL REFERENCES entities(id),
        user2_id BIGINT NOT NULL REFERENCES entities(id),
        UNIQUE (user1_id, user2_id)
    );`,
	`CREATE TABLE IF NOT EXISTS dialogs (
        id BIGSERIAL PRIMARY KEY,
        actor_id BIGINT NOT NULL REFERENCES entities(id),
        related_id BIGINT NOT NULL REFERENCES entities(id),
        chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        permissions JSONB,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        UNIQUE (actor_id, related_id)
    );`,
	`CREATE TABLE IF NOT EXISTS participations (
        id BIGSERIAL PRIMARY KEY,
        conference_id BIGINT NOT NULL REFERENCES conferences(id) ON DELETE CASCADE,
        actor_id BIGINT NOT NULL REFERENCES entities(id),
        no INT NOT NULL,
        role TEXT NOT NULL DEFAULT 'member',
        permissions JSONB,
        joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        left_at TIMESTAMPTZ,
        UNIQUE (conference_id, actor_id),
        UNIQUE (conference_id, no)
    );`,
	`CREATE TABLE IF NOT EXISTS presences (
        id BIGSERIAL PRIMARY KEY,
        participation_id BIGINT NOT NULL REFERENCES participations(id) ON DELETE CASCADE,
        join_at INT NOT NULL,
        leave_at INT
    );`,
	`CREATE TABLE IF NOT EXISTS media (
        id BIGSERIAL PRIMARY KEY,
        hash TEXT NOT NULL UNIQUE,
        name TEXT NOT NULL,
        kind TEXT NOT NULL,
        mime_type TEXT NOT NULL,
        mime_subtype TEXT NOT NULL,
        size BIGINT NOT NULL,
        path TEXT NOT NULL,
        loaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        loaded_by BIGINT NOT NULL REFERENCES entities(id),
        preview_id BIGINT REFERENCES media(id)
    );`,
	`CREATE TABLE IF NOT EXISTS messages (
        id BIGSERIAL PRIMARY KEY,
        chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        no INT NOT NULL,
        sender_id BIGINT NOT NULL REFERENCES entities(id),
        text TEXT,
        reply_to INT,
        time_sent TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        time_edit TIMESTAMPTZ,
        deleted_at TIMESTAMPTZ,
        UNIQUE (chat_id, no)
    );`,
	`CREATE TABLE IF NOT EXISTS attachments (
        id BIGSERIAL PRIMARY KEY,
        chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        message_no INT NOT NULL,
        kind TEXT NOT NULL,
        no INT NOT NULL,
        position INT NOT NULL,
        media_id BIGINT NOT NULL REFERENCES media(id),
        attached_by BIGINT NOT NULL REFERENCES entities(id),
        deleted_at TIMESTAMPTZ,
        UNIQUE (chat_id, kind, no)
    );`,
	`CREATE INDEX IF NOT EXISTS attachments_message_idx ON attachments (message_id);`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
