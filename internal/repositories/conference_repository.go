package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"microchat/internal/models"
)

// ConferenceRepo is a sqlx implementation of ConferenceRepository.
type ConferenceRepo struct {
	db *sqlx.DB
}

// NewConferenceRepo constructs a ConferenceRepo.
func NewConferenceRepo(db *sqlx.DB) *ConferenceRepo {
	return &ConferenceRepo{db: db}
}

type participationRow struct {
	ID          int64               `db:"id"`
	No          int                 `db:"no"`
	ActorID     int64               `db:"actor_id"`
	Role        string              `db:"role"`
	Permissions *models.Permissions `db:"permissions"`
	JoinedAt    time.Time           `db:"joined_at"`
	LeftAt      *time.Time          `db:"left_at"`
}

const participationColumns = `id, no, actor_id, role, permissions, joined_at, left_at`

// CreateConference creates the conference, its message sequence and the
// owner participation with every permission granted.
func (r *ConferenceRepo) CreateConference(ctx context.Context, conference models.Conference, owner models.Actor) (*models.ConferenceParticipation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	if err := tx.QueryRowxContext(ctx, `INSERT INTO entities (kind, alias, name, default_permissions)
        VALUES ('conference', $1, $2, $3) RETURNING id, created_at`,
		conference.Alias, conference.Title, conference.DefaultPermissions).
		Scan(&conference.ID, &conference.CreatedAt); err != nil {
		return nil, translateAlias(err)
	}
	if err := tx.QueryRowxContext(ctx, `INSERT INTO chats DEFAULT VALUES RETURNING id`).Scan(&conference.ChatID); err != nil {
		return nil, err
	}
	conference.OwnerID = owner.ID
	if _, err := tx.ExecContext(ctx, `INSERT INTO conferences (id, chat_id, owner_id, description, private) VALUES ($1, $2, $3, $4, $5)`,
		conference.ID, conference.ChatID, owner.ID, conference.Description, conference.Private); err != nil {
		return nil, err
	}

	all := models.AllPermissions()
	if _, err := r.join(ctx, tx, conference, owner.ID, models.RoleOwner, &all); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.FindMember(ctx, conference, owner.ID)
}

// ListMembers windows the member ordinal space and hides members that left.
func (r *ConferenceRepo) ListMembers(ctx context.Context, conference models.Conference, offset, count int) ([]models.ConferenceParticipation, error) {
	n, err := total(ctx, r.db, conference.ChatID, scopeMember)
	if err != nil {
		return nil, err
	}
	lo, hi := Window(offset, count, n)
	if lo == hi {
		return []models.ConferenceParticipation{}, nil
	}

	var rows []participationRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+participationColumns+` FROM participations
        WHERE conference_id=$1 AND no >= $2 AND no < $3 AND left_at IS NULL ORDER BY no`,
		conference.ID, lo, hi); err != nil {
		return nil, err
	}

	members := make([]models.ConferenceParticipation, 0, len(rows))
	for _, row := range rows {
		member, err := hydrateParticipation(ctx, r.db, conference, row)
		if err != nil {
			return nil, err
		}
		members = append(members, *member)
	}
	return members, nil
}

func (r *ConferenceRepo) FindMember(ctx context.Context, conference models.Conference, actorID int64) (*models.ConferenceParticipation, error) {
	return findMember(ctx, r.db, conference, actorID)
}

func findMember(ctx context.Context, q sqlx.QueryerContext, conference models.Conference, actorID int64) (*models.ConferenceParticipation, error) {
	var row participationRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+participationColumns+` FROM participations
        WHERE conference_id=$1 AND actor_id=$2`, conference.ID, actorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return hydrateParticipation(ctx, q, conference, row)
}

func hydrateParticipation(ctx context.Context, q sqlx.QueryerContext, conference models.Conference, row participationRow) (*models.ConferenceParticipation, error) {
	actor, err := getActor(ctx, q, row.ActorID)
	if err != nil {
		return nil, err
	}
	var presences models.Presences
	if err := sqlx.SelectContext(ctx, q, &presences, `SELECT join_at, leave_at FROM presences
        WHERE participation_id=$1 ORDER BY join_at, id`, row.ID); err != nil {
		return nil, err
	}
	return &models.ConferenceParticipation{
		ID:          row.ID,
		No:          row.No,
		Actor:       actor,
		Conference:  conference,
		Role:        row.Role,
		Permissions: row.Permissions,
		Presences:   presences,
		JoinedAt:    row.JoinedAt,
		LeftAt:      row.LeftAt,
	}, nil
}

// AddMember is a no-op for an active member.
func (r *ConferenceRepo) AddMember(ctx context.Context, conference models.Conference, actor models.Actor) (*models.ConferenceParticipation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	if _, err := r.join(ctx, tx, conference, actor.ID, models.RoleMember, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.FindMember(ctx, conference, actor.ID)
}

// join inserts or reactivates the participation of actorID and opens a
// presence window at the current end of the message sequence.
func (r *ConferenceRepo) join(ctx context.Context, tx *sqlx.Tx, conference models.Conference, actorID int64, role string, perms *models.Permissions) (int64, error) {
	var existing struct {
		ID     int64      `db:"id"`
		LeftAt *time.Time `db:"left_at"`
	}
	err := tx.GetContext(ctx, &existing, `SELECT id, left_at FROM participations
        WHERE conference_id=$1 AND actor_id=$2 FOR UPDATE`, conference.ID, actorID)
	switch {
	case err == nil && existing.LeftAt == nil:
		return existing.ID, nil
	case err == nil:
		if _, err := tx.ExecContext(ctx, `UPDATE participations SET left_at = NULL, joined_at = NOW() WHERE id=$1`, existing.ID); err != nil {
			return 0, err
		}
	case errors.Is(err, sql.ErrNoRows):
		no, err := nextOrdinal(ctx, tx, conference.ChatID, scopeMember)
		if err != nil {
			return 0, err
		}
		if err := tx.QueryRowxContext(ctx, `INSERT INTO participations (conference_id, actor_id, no, role, permissions)
            VALUES ($1, $2, $3, $4, $5) RETURNING id`, conference.ID, actorID, no, role, perms).
			Scan(&existing.ID); err != nil {
			return 0, translate(err)
		}
	default:
		return 0, err
	}

	joinAt, err := total(ctx, tx, conference.ChatID, scopeMessage)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO presences (participation_id, join_at) VALUES ($1, $2)`, existing.ID, joinAt); err != nil {
		return 0, err
	}
	return existing.ID, nil
}

func (r *ConferenceRepo) RemoveMember(ctx context.Context, member *models.ConferenceParticipation) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `UPDATE participations SET left_at = NOW() WHERE id=$1 AND left_at IS NULL`, member.ID)
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

	leaveAt, err := total(ctx, tx, member.Conference.ChatID, scopeMessage)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE presences SET leave_at=$2 WHERE participation_id=$1 AND leave_at IS NULL`, member.ID, leaveAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ConferenceRepo) UpdatePermissions(ctx context.Context, member *models.ConferenceParticipation, perms models.Permissions) error {
	res, err := r.db.ExecContext(ctx, `UPDATE participations SET permissions=$2 WHERE id=$1`, member.ID, perms)
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

func (r *ConferenceRepo) MemberIDs(ctx context.Context, conference models.Conference) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT actor_id FROM participations
        WHERE conference_id=$1 AND left_at IS NULL ORDER BY no`, conference.ID)
	return ids, err
}

// UpdateConference writes the settings split between the entity row and the
// conference row in one transaction.
func (r *ConferenceRepo) UpdateConference(ctx context.Context, conference models.Conference) (models.Conference, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conference{}, err
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `UPDATE entities SET alias=$2, name=$3, default_permissions=$4
        WHERE id=$1 AND kind='conference'`, conference.ID, conference.Alias, conference.Title, conference.DefaultPermissions)
	if err != nil {
		return models.Conference{}, translateAlias(err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Conference{}, err
	}
	if count == 0 {
		return models.Conference{}, ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conferences SET description=$2, private=$3 WHERE id=$1`,
		conference.ID, conference.Description, conference.Private); err != nil {
		return models.Conference{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conference{}, err
	}
	return getConference(ctx, r.db, conference.ID)
}

// DeleteConference drops the entity, which cascades to the conference row,
// its participations and their presences, then the message sequence with
// its messages, attachments and counters.
func (r *ConferenceRepo) DeleteConference(ctx context.Context, conference models.Conference) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id=$1 AND kind='conference'`, conference.ID)
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
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, conference.ChatID); err != nil {
		return err
	}
	return tx.Commit()
}
