package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"microchat/internal/models"
)

// RelationRepo is a sqlx implementation of RelationRepository.
type RelationRepo struct {
	db *sqlx.DB
}

// NewRelationRepo constructs a RelationRepo.
func NewRelationRepo(db *sqlx.DB) *RelationRepo {
	return &RelationRepo{db: db}
}

type dialogRow struct {
	ID          int64               `db:"id"`
	ChatID      int64               `db:"chat_id"`
	RelatedID   int64               `db:"related_id"`
	Permissions *models.Permissions `db:"permissions"`
}

func (r *RelationRepo) GetRelation(ctx context.Context, actor models.Actor, relatedID int64) (models.Chat, error) {
	var kind string
	err := r.db.GetContext(ctx, &kind, `SELECT kind FROM entities WHERE id=$1`, relatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if kind == models.EntityConference {
		conference, err := getConference(ctx, r.db, relatedID)
		if err != nil {
			return nil, err
		}
		member, err := findMember(ctx, r.db, conference, actor.ID)
		if err != nil {
			return nil, err
		}
		return member, nil
	}
	dialog, err := getDialog(ctx, r.db, actor, relatedID)
	if err != nil {
		return nil, err
	}
	return dialog, nil
}

func getDialog(ctx context.Context, q sqlx.QueryerContext, actor models.Actor, relatedID int64) (*models.Dialog, error) {
	var row dialogRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT id, chat_id, related_id, permissions FROM dialogs
        WHERE actor_id=$1 AND related_id=$2`, actor.ID, relatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return hydrateDialog(ctx, q, actor, row)
}

func hydrateDialog(ctx context.Context, q sqlx.QueryerContext, actor models.Actor, row dialogRow) (*models.Dialog, error) {
	related, err := getActor(ctx, q, row.RelatedID)
	if err != nil {
		return nil, err
	}
	return &models.Dialog{
		ID:          row.ID,
		ChatID:      row.ChatID,
		Actor:       actor,
		Related:     related,
		Permissions: row.Permissions,
	}, nil
}

// EnsureDialog finds or creates the shared sequence of the pair and the
// relation rows of both sides.
func (r *RelationRepo) EnsureDialog(ctx context.Context, actor, related models.Actor) (*models.Dialog, error) {
	participants := []int64{actor.ID, related.ID}
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })
	user1, user2 := participants[0], participants[1]

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	// Serializes concurrent creations of the same pair.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(user1), int32(user2)); err != nil {
		return nil, err
	}

	var chatID int64
	err = tx.GetContext(ctx, &chatID, `SELECT chat_id FROM dialog_pairs WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.QueryRowxContext(ctx, `INSERT INTO chats DEFAULT VALUES RETURNING id`).Scan(&chatID); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO dialog_pairs (chat_id, user1_id, user2_id) VALUES ($1, $2, $3)`, chatID, user1, user2); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	for _, pair := range [][2]int64{{actor.ID, related.ID}, {related.ID, actor.ID}} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO dialogs (actor_id, related_id, chat_id) VALUES ($1, $2, $3)
            ON CONFLICT (actor_id, related_id) DO NOTHING`, pair[0], pair[1], chatID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return getDialog(ctx, r.db, actor, related.ID)
}

func (r *RelationRepo) UpdateDialogPermissions(ctx context.Context, dialog *models.Dialog, perms models.Permissions) error {
	res, err := r.db.ExecContext(ctx, `UPDATE dialogs SET permissions=$2 WHERE id=$1`, dialog.ID, perms)
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
