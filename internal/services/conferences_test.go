package services

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microchat/internal/events"
	"microchat/internal/models"
	"microchat/internal/repositories"
)

func (f *fixture) conference(t *testing.T, owner models.Actor, private bool) models.Conference {
	t.Helper()
	member, err := f.conferences.CreateConference(f.ctx, owner, NewConference{Title: "team", Private: private})
	require.NoError(t, err)
	return member.Conference
}

func (f *fixture) join(t *testing.T, by models.Actor, conference models.Conference, actor models.Actor) *models.ConferenceParticipation {
	t.Helper()
	member, err := f.conferences.AddMember(f.ctx, by, conference, actor)
	require.NoError(t, err)
	return member
}

func TestCreateConference(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.actor(t, "owner")

	_, err := f.conferences.CreateConference(f.ctx, owner, NewConference{Title: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	member, err := f.conferences.CreateConference(f.ctx, owner, NewConference{Title: "team", Alias: lo.ToPtr("team")})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, member.Role)
	assert.Equal(t, 0, member.No)
	assert.Equal(t, models.AllPermissions(), member.EffectivePermissions())
	assert.Equal(t, models.MemberPermissions(), member.Conference.DefaultPermissions)

	_, err = f.conferences.CreateConference(f.ctx, owner, NewConference{Title: "again", Alias: lo.ToPtr("team")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddMember_RequiresAddUser(t *testing.T) {
	f := newFixture(t, nil)
	owner, bob, dave := f.actor(t, "owner"), f.actor(t, "bob"), f.actor(t, "dave")
	conference := f.conference(t, owner, false)
	f.join(t, owner, conference, bob)

	_, err := f.conferences.AddMember(f.ctx, bob, conference, dave)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = f.conferences.AddMember(f.ctx, dave, conference, bob)
	assert.ErrorIs(t, err, ErrDoesNotExist, "outsiders have no permissions")

	member := f.join(t, owner, conference, dave)
	assert.Equal(t, 2, member.No)
	added, ok := f.emitted.last().(*events.MemberAdd)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{owner.ID, bob.ID, dave.ID}, added.Recipients())

	emitted := f.emitted.len()
	again := f.join(t, owner, conference, dave)
	assert.Equal(t, member.No, again.No)
	assert.Equal(t, emitted, f.emitted.len(), "adding a present member is silent")
}

func TestEditMemberPermissions_ExplicitFalseOverrides(t *testing.T) {
	f := newFixture(t, nil)
	owner, bob, carol := f.actor(t, "owner"), f.actor(t, "bob"), f.actor(t, "carol")
	conference := f.conference(t, owner, false)
	bobMember := f.join(t, owner, conference, bob)
	f.join(t, owner, conference, carol)

	perms, err := f.conferences.EditMemberPermissions(f.ctx, owner, conference, ByNo(bobMember.No), models.PermissionsUpdate{Send: lo.ToPtr(false)})
	require.NoError(t, err)
	assert.False(t, perms.Send)
	assert.True(t, perms.Read)

	changed, ok := f.emitted.last().(*events.PermissionsChange)
	require.True(t, ok)
	assert.Equal(t, bob.ID, changed.MemberID)
	assert.False(t, changed.Permissions.Send)

	_, err = f.chats.AddMessage(f.ctx, bob, f.relation(t, bob, conference.ID), models.MessageDraft{Text: lo.ToPtr("hi")})
	assert.ErrorIs(t, err, ErrAccessDenied)
	f.send(t, carol, f.relation(t, carol, conference.ID), "carol is unaffected")

	perms, err = f.conferences.EditMemberPermissions(f.ctx, owner, conference, ByActor(bob), models.PermissionsUpdate{Read: lo.ToPtr(false)})
	require.NoError(t, err)
	assert.False(t, perms.Read)
	assert.False(t, perms.Send, "earlier override is kept")

	stored, err := f.conferences.GetMemberPermissions(f.ctx, carol, conference, ByActor(bob))
	require.NoError(t, err)
	assert.Equal(t, perms, stored)

	carolPerms, err := f.conferences.GetMemberPermissions(f.ctx, bob, conference, ByActor(carol))
	require.NoError(t, err)
	assert.Equal(t, models.MemberPermissions(), carolPerms)

	_, err = f.conferences.EditMemberPermissions(f.ctx, carol, conference, ByActor(bob), models.PermissionsUpdate{Send: lo.ToPtr(true)})
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t, nil)
	owner, bob, carol := f.actor(t, "owner"), f.actor(t, "bob"), f.actor(t, "carol")
	conference := f.conference(t, owner, false)
	bobMember := f.join(t, owner, conference, bob)
	f.join(t, owner, conference, carol)

	err := f.conferences.RemoveMember(f.ctx, carol, conference, ByActor(bob))
	assert.ErrorIs(t, err, ErrAccessDenied)

	require.NoError(t, f.conferences.RemoveMember(f.ctx, owner, conference, ByActor(bob)))
	removed, ok := f.emitted.last().(*events.MemberRemove)
	require.True(t, ok)
	assert.Contains(t, removed.Recipients(), bob.ID, "the removed member is told")

	err = f.conferences.RemoveMember(f.ctx, owner, conference, ByActor(bob))
	assert.ErrorIs(t, err, ErrDoesNotExist)

	_, err = f.chats.AddMessage(f.ctx, bob, f.relation(t, bob, conference.ID), models.MessageDraft{Text: lo.ToPtr("still here?")})
	assert.ErrorIs(t, err, ErrAccessDenied)

	members, err := f.conferences.ListMembers(f.ctx, carol, conference, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{owner.ID, carol.ID}, lo.Map(members, func(m models.ConferenceParticipation, _ int) int64 { return m.Actor.ID }))

	back := f.join(t, owner, conference, bob)
	assert.Equal(t, bobMember.No, back.No, "ordinal survives re-adding")
	assert.Len(t, back.Presences, 2)
}

func TestPrivateConference_HistoryFollowsPresence(t *testing.T) {
	f := newFixture(t, nil)
	owner, bob := f.actor(t, "owner"), f.actor(t, "bob")
	conference := f.conference(t, owner, true)
	ownerChat := f.relation(t, owner, conference.ID)

	f.send(t, owner, ownerChat, "before")
	f.join(t, owner, conference, bob)
	f.send(t, owner, ownerChat, "after")
	require.NoError(t, f.conferences.RemoveMember(f.ctx, owner, conference, ByActor(bob)))
	f.send(t, owner, ownerChat, "gone")
	f.join(t, owner, conference, bob)
	f.send(t, owner, ownerChat, "back")

	seen, err := f.chats.ListMessages(f.ctx, bob, f.relation(t, bob, conference.ID), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"after", "back"}, texts(seen))

	all, err := f.chats.ListMessages(f.ctx, owner, ownerChat, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after", "gone", "back"}, texts(all))

	_, err = f.chats.GetMessage(f.ctx, bob, f.relation(t, bob, conference.ID), 0)
	assert.ErrorIs(t, err, ErrDoesNotExist)
}

func TestListMembers_PrivateNeedsRelation(t *testing.T) {
	f := newFixture(t, nil)
	owner, outsider := f.actor(t, "owner"), f.actor(t, "outsider")
	private := f.conference(t, owner, true)
	public := f.conference(t, owner, false)

	_, err := f.conferences.ListMembers(f.ctx, outsider, private, 0, 10)
	assert.ErrorIs(t, err, ErrUnresolvedRelation)

	members, err := f.conferences.ListMembers(f.ctx, owner, private, 0, 10)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	members, err = f.conferences.ListMembers(f.ctx, outsider, public, 0, 10)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestEditConference(t *testing.T) {
	f := newFixture(t, nil)
	owner, bob, carol := f.actor(t, "owner"), f.actor(t, "bob"), f.actor(t, "carol")
	conference := f.conference(t, owner, false)
	f.join(t, owner, conference, bob)
	f.join(t, owner, conference, carol)
	_, err := f.conferences.CreateConference(f.ctx, owner, NewConference{Title: "other", Alias: lo.ToPtr("taken")})
	require.NoError(t, err)

	_, err = f.conferences.EditConference(f.ctx, bob, conference, ConferenceUpdate{Title: lo.ToPtr("mine")})
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = f.conferences.EditConference(f.ctx, owner, conference, ConferenceUpdate{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.conferences.EditConference(f.ctx, owner, conference, ConferenceUpdate{Title: lo.ToPtr(" ")})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.conferences.EditConference(f.ctx, owner, conference, ConferenceUpdate{Alias: lo.ToPtr("taken")})
	assert.ErrorIs(t, err, ErrValidation)

	before := f.emitted.len()
	updated, err := f.conferences.EditConference(f.ctx, owner, conference, ConferenceUpdate{
		Title:    lo.ToPtr("renamed"),
		Alias:    lo.ToPtr("renamed"),
		Defaults: models.PermissionsUpdate{SendMedia: lo.ToPtr(false)},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "renamed", lo.FromPtr(updated.Alias))
	assert.False(t, updated.DefaultPermissions.SendMedia)
	assert.True(t, updated.DefaultPermissions.Send, "absent flags are kept")

	require.Equal(t, before+1, f.emitted.len())
	edited, ok := f.emitted.last().(*events.ConferenceEdit)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{owner.ID, bob.ID, carol.ID}, edited.Recipients())
	assert.Equal(t, "renamed", edited.Conference.Title)

	stored, err := f.conferences.GetConference(f.ctx, conference.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Title, stored.Title)

	// Granting edit_conference opens the path to an ordinary member.
	_, err = f.conferences.EditMemberPermissions(f.ctx, owner, conference, ByActor(bob), models.PermissionsUpdate{EditConference: lo.ToPtr(true)})
	require.NoError(t, err)
	updated, err = f.conferences.EditConference(f.ctx, bob, stored, ConferenceUpdate{Description: lo.ToPtr("bob's now")})
	require.NoError(t, err)
	assert.Equal(t, "bob's now", lo.FromPtr(updated.Description))
}

func TestDeleteConference_OwnerOnly(t *testing.T) {
	f := newFixture(t, nil)
	owner, bob := f.actor(t, "owner"), f.actor(t, "bob")
	conference := f.conference(t, owner, false)
	f.join(t, owner, conference, bob)
	_, err := f.conferences.EditMemberPermissions(f.ctx, owner, conference, ByActor(bob), models.PermissionsUpdate{
		EditConference: lo.ToPtr(true),
		RemoveUser:     lo.ToPtr(true),
	})
	require.NoError(t, err)
	f.send(t, owner, f.relation(t, owner, conference.ID), "last words")

	err = f.conferences.DeleteConference(f.ctx, bob, conference)
	assert.ErrorIs(t, err, ErrAccessDenied)

	require.NoError(t, f.conferences.DeleteConference(f.ctx, owner, conference))
	deleted, ok := f.emitted.last().(*events.ConferenceDelete)
	require.True(t, ok)
	assert.Equal(t, conference.ID, deleted.Conference)
	assert.ElementsMatch(t, []int64{owner.ID, bob.ID}, deleted.Recipients())

	_, err = f.conferences.GetConference(f.ctx, conference.ID)
	assert.ErrorIs(t, err, ErrDoesNotExist)
	_, err = f.store.GetRelation(f.ctx, bob, conference.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	err = f.conferences.DeleteConference(f.ctx, owner, conference)
	assert.ErrorIs(t, err, ErrDoesNotExist)
}
