package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"microchat/internal/events"
	"microchat/internal/models"
	"microchat/internal/repositories"
)

// MemberSelector addresses a conference member either by participation
// ordinal or by actor.
type MemberSelector struct {
	no    int
	actor *models.Actor
}

func ByNo(no int) MemberSelector                 { return MemberSelector{no: no} }
func ByActor(actor models.Actor) MemberSelector { return MemberSelector{actor: &actor} }

func (m MemberSelector) String() string {
	if m.actor != nil {
		return fmt.Sprintf("actor %d", m.actor.ID)
	}
	return fmt.Sprintf("member %d", m.no)
}

// NewConference is the input of CreateConference.
type NewConference struct {
	Title       string
	Alias       *string
	Description *string
	Private     bool
	Defaults    *models.Permissions
}

// ConferenceUpdate is a partial change of conference settings. Nil fields
// are left untouched.
type ConferenceUpdate struct {
	Title       *string
	Alias       *string
	Description *string
	Private     *bool
	Defaults    models.PermissionsUpdate
}

func (u ConferenceUpdate) Empty() bool {
	return u.Title == nil && u.Alias == nil && u.Description == nil && u.Private == nil && u.Defaults.Empty()
}

// Conferences implements membership and member permission operations.
type Conferences struct {
	storage repositories.Storage
	emitter Emitter
	log     *slog.Logger
}

func NewConferences(storage repositories.Storage, emitter Emitter, log *slog.Logger) *Conferences {
	return &Conferences{storage: storage, emitter: emitter, log: log}
}

// CreateConference creates a conference owned by owner, who joins it as
// its first member with every permission.
func (s *Conferences) CreateConference(ctx context.Context, owner models.Actor, input NewConference) (*models.ConferenceParticipation, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, invalid("conference title is required")
	}
	defaults := models.MemberPermissions()
	if input.Defaults != nil {
		defaults = *input.Defaults
	}
	member, err := s.storage.Conferences.CreateConference(ctx, models.Conference{
		Alias:              input.Alias,
		Title:              input.Title,
		Description:        input.Description,
		Private:            input.Private,
		DefaultPermissions: defaults,
	}, owner)
	if err != nil {
		return nil, storageErr("create conference", err)
	}
	return member, nil
}

// GetConference loads a conference by id.
func (s *Conferences) GetConference(ctx context.Context, id int64) (models.Conference, error) {
	conference, err := s.storage.Entities.GetConference(ctx, id)
	if err != nil {
		return models.Conference{}, storageErr("get conference", err)
	}
	return conference, nil
}

// ListMembers lists active members. The members of a private conference
// are only listed to actors already related to it.
func (s *Conferences) ListMembers(ctx context.Context, user models.Actor, conference models.Conference, offset, count int) ([]models.ConferenceParticipation, error) {
	ctx, span := tracer.Start(ctx, "Conferences.ListMembers")
	defer span.End()

	if conference.Private {
		relation, err := s.storage.Relations.GetRelation(ctx, user, conference.ID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, storageErr("resolve relation", err)
		}
		if member, ok := relation.(*models.ConferenceParticipation); err != nil || !ok || member == nil {
			return nil, fmt.Errorf("list members of %d by %d: %w", conference.ID, user.ID, ErrUnresolvedRelation)
		}
	}
	members, err := s.storage.Conferences.ListMembers(ctx, conference, offset, count)
	if err != nil {
		return nil, storageErr("list members", err)
	}
	return members, nil
}

// GetMember resolves a selector. An ordinal must match exactly.
func (s *Conferences) GetMember(ctx context.Context, user models.Actor, conference models.Conference, selector MemberSelector) (*models.ConferenceParticipation, error) {
	if selector.actor != nil {
		member, err := s.storage.Conferences.FindMember(ctx, conference, selector.actor.ID)
		if err != nil {
			return nil, storageErr("find member", err)
		}
		return member, nil
	}
	members, err := s.ListMembers(ctx, user, conference, selector.no, 1)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 || members[0].No != selector.no {
		return nil, fmt.Errorf("%s: %w", selector, ErrDoesNotExist)
	}
	return &members[0], nil
}

// acting returns the effective permissions of user in conference. Someone
// who left holds no permissions.
func (s *Conferences) acting(ctx context.Context, user models.Actor, conference models.Conference) (models.Permissions, error) {
	self, err := s.GetMember(ctx, user, conference, ByActor(user))
	if err != nil {
		return models.Permissions{}, err
	}
	if !self.Active() {
		return models.Permissions{}, denied("not a member of the conference anymore")
	}
	return self.EffectivePermissions(), nil
}

// AddMember requires add_user. Adding someone who is already present
// returns the existing participation without an event.
func (s *Conferences) AddMember(ctx context.Context, user models.Actor, conference models.Conference, invitee models.Actor) (*models.ConferenceParticipation, error) {
	ctx, span := tracer.Start(ctx, "Conferences.AddMember")
	defer span.End()

	perms, err := s.acting(ctx, user, conference)
	if err != nil {
		return nil, err
	}
	if !perms.AddUser {
		return nil, denied("'add_user' permission is not granted")
	}

	existing, err := s.storage.Conferences.FindMember(ctx, conference, invitee.ID)
	if err == nil && existing.Active() {
		return existing, nil
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, storageErr("find member", err)
	}

	member, err := s.storage.Conferences.AddMember(ctx, conference, invitee)
	if err != nil {
		return nil, storageErr("add member", err)
	}
	s.emit(ctx, conference, func(to []int64) events.Event { return events.NewMemberAdd(user.ID, member, to) })
	return member, nil
}

// RemoveMember requires remove_user.
func (s *Conferences) RemoveMember(ctx context.Context, user models.Actor, conference models.Conference, selector MemberSelector) error {
	ctx, span := tracer.Start(ctx, "Conferences.RemoveMember")
	defer span.End()

	perms, err := s.acting(ctx, user, conference)
	if err != nil {
		return err
	}
	if !perms.RemoveUser {
		return denied("'remove_user' permission is not granted")
	}
	member, err := s.GetMember(ctx, user, conference, selector)
	if err != nil {
		return err
	}
	if !member.Active() {
		return fmt.Errorf("%s: %w", selector, ErrDoesNotExist)
	}

	// The removed member still gets the event.
	to, err := s.storage.Conferences.MemberIDs(ctx, conference)
	if err != nil {
		s.log.Error("Resolve event recipients", "error", err, "conference_id", conference.ID)
	}
	if err := s.storage.Conferences.RemoveMember(ctx, member); err != nil {
		return storageErr("remove member", err)
	}
	if s.emitter != nil && to != nil {
		s.emitter.Emit(events.NewMemberRemove(user.ID, member, to))
	}
	return nil
}

// GetMemberPermissions returns the override or the conference default.
func (s *Conferences) GetMemberPermissions(ctx context.Context, user models.Actor, conference models.Conference, selector MemberSelector) (models.Permissions, error) {
	member, err := s.GetMember(ctx, user, conference, selector)
	if err != nil {
		return models.Permissions{}, err
	}
	return member.EffectivePermissions(), nil
}

// EditMemberPermissions writes every flag present in update over the
// member's effective permissions. It is gated by remove_user.
func (s *Conferences) EditMemberPermissions(ctx context.Context, user models.Actor, conference models.Conference, selector MemberSelector, update models.PermissionsUpdate) (models.Permissions, error) {
	ctx, span := tracer.Start(ctx, "Conferences.EditMemberPermissions")
	defer span.End()

	perms, err := s.acting(ctx, user, conference)
	if err != nil {
		return models.Permissions{}, err
	}
	if !perms.RemoveUser {
		return models.Permissions{}, denied("'remove_user' permission is not granted")
	}
	member, err := s.GetMember(ctx, user, conference, selector)
	if err != nil {
		return models.Permissions{}, err
	}

	updated := update.Apply(member.EffectivePermissions())
	if err := s.storage.Conferences.UpdatePermissions(ctx, member, updated); err != nil {
		return models.Permissions{}, storageErr("update permissions", err)
	}
	s.emit(ctx, conference, func(to []int64) events.Event {
		return events.NewPermissionsChange(user.ID, member, updated, to)
	})
	return updated, nil
}

// EditConference changes the settings of conference. It requires
// edit_conference.
func (s *Conferences) EditConference(ctx context.Context, user models.Actor, conference models.Conference, update ConferenceUpdate) (models.Conference, error) {
	ctx, span := tracer.Start(ctx, "Conferences.EditConference")
	defer span.End()

	perms, err := s.acting(ctx, user, conference)
	if err != nil {
		return models.Conference{}, err
	}
	if !perms.EditConference {
		return models.Conference{}, denied("'edit_conference' permission is not granted")
	}
	if update.Empty() {
		return models.Conference{}, invalid("nothing to change")
	}
	if update.Title != nil {
		if strings.TrimSpace(*update.Title) == "" {
			return models.Conference{}, invalid("conference title is required")
		}
		conference.Title = *update.Title
	}
	if update.Alias != nil {
		conference.Alias = update.Alias
		if *update.Alias == "" {
			conference.Alias = nil
		}
	}
	if update.Description != nil {
		conference.Description = update.Description
	}
	if update.Private != nil {
		conference.Private = *update.Private
	}
	conference.DefaultPermissions = update.Defaults.Apply(conference.DefaultPermissions)

	updated, err := s.storage.Conferences.UpdateConference(ctx, conference)
	if err != nil {
		return models.Conference{}, storageErr("update conference", err)
	}
	s.emit(ctx, updated, func(to []int64) events.Event { return events.NewConferenceEdit(user.ID, updated, to) })
	return updated, nil
}

// DeleteConference is reserved to the owner. Members present at deletion
// are notified.
func (s *Conferences) DeleteConference(ctx context.Context, user models.Actor, conference models.Conference) error {
	ctx, span := tracer.Start(ctx, "Conferences.DeleteConference")
	defer span.End()

	if conference.OwnerID != user.ID {
		return denied("only the owner can delete the conference")
	}
	to, err := s.storage.Conferences.MemberIDs(ctx, conference)
	if err != nil {
		s.log.Error("Resolve event recipients", "error", err, "conference_id", conference.ID)
	}
	if err := s.storage.Conferences.DeleteConference(ctx, conference); err != nil {
		return storageErr("delete conference", err)
	}
	s.log.Info("Conference deleted", "conference_id", conference.ID, "owner_id", user.ID)
	if s.emitter != nil && to != nil {
		s.emitter.Emit(events.NewConferenceDelete(user.ID, conference.ID, to))
	}
	return nil
}

func (s *Conferences) emit(ctx context.Context, conference models.Conference, build func(to []int64) events.Event) {
	if s.emitter == nil {
		return
	}
	to, err := s.storage.Conferences.MemberIDs(ctx, conference)
	if err != nil {
		s.log.Error("Resolve event recipients", "error", err, "conference_id", conference.ID)
		return
	}
	s.emitter.Emit(build(to))
}
