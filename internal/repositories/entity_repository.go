package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"microchat/internal/models"
)

// EntityRepo is a sqlx implementation of EntityRepository.
type EntityRepo struct {
	db *sqlx.DB
}

// NewEntityRepo constructs an EntityRepo.
func NewEntityRepo(db *sqlx.DB) *EntityRepo {
	return &EntityRepo{db: db}
}

const actorColumns = `id, kind, alias, name, avatar, default_permissions, created_at`

const conferenceQuery = `SELECT e.id, c.chat_id, c.owner_id, e.alias, e.name AS title, c.description, c.private,
        e.default_permissions, e.created_at
    FROM entities e INNER JOIN conferences c ON c.id = e.id`

func (r *EntityRepo) GetByID(ctx context.Context, id int64) (models.Entity, error) {
	var entity models.Entity
	err := r.db.GetContext(ctx, &entity, `SELECT id, kind, alias, name FROM entities WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entity{}, ErrNotFound
	}
	return entity, err
}

func (r *EntityRepo) GetByAlias(ctx context.Context, alias string) (models.Entity, error) {
	var entity models.Entity
	err := r.db.GetContext(ctx, &entity, `SELECT id, kind, alias, name FROM entities WHERE alias=$1`, alias)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entity{}, ErrNotFound
	}
	return entity, err
}

// GetActor fetches a user or a bot. Conferences are reported as missing.
func (r *EntityRepo) GetActor(ctx context.Context, id int64) (models.Actor, error) {
	return getActor(ctx, r.db, id)
}

func getActor(ctx context.Context, q sqlx.QueryerContext, id int64) (models.Actor, error) {
	var actor models.Actor
	err := sqlx.GetContext(ctx, q, &actor, `SELECT `+actorColumns+` FROM entities WHERE id=$1 AND kind IN ('user', 'bot')`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Actor{}, ErrNotFound
	}
	return actor, err
}

func (r *EntityRepo) GetConference(ctx context.Context, id int64) (models.Conference, error) {
	return getConference(ctx, r.db, id)
}

func getConference(ctx context.Context, q sqlx.QueryerContext, id int64) (models.Conference, error) {
	var conference models.Conference
	err := sqlx.GetContext(ctx, q, &conference, conferenceQuery+` WHERE e.id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conference{}, ErrNotFound
	}
	return conference, err
}

// CreateActor registers a user or a bot.
func (r *EntityRepo) CreateActor(ctx context.Context, actor models.Actor) (models.Actor, error) {
	err := r.db.QueryRowxContext(ctx, `INSERT INTO entities (kind, alias, name, avatar, default_permissions)
        VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		actor.Kind, actor.Alias, actor.Name, actor.Avatar, actor.DefaultPermissions).
		Scan(&actor.ID, &actor.CreatedAt)
	return actor, translateAlias(err)
}
