package models

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionsUpdateApplyOverwritesFalse(t *testing.T) {
	base := MemberPermissions()
	base.Send = false

	got := PermissionsUpdate{Read: lo.ToPtr(false)}.Apply(base)

	assert.False(t, got.Read)
	assert.False(t, got.Send, "flags absent from the update stay as they were")
	assert.True(t, got.SendMedia)
}

func TestPermissionsUpdateApplyGrants(t *testing.T) {
	got := PermissionsUpdate{AddUser: lo.ToPtr(true), Delete: lo.ToPtr(true)}.Apply(Permissions{})
	assert.Equal(t, Permissions{AddUser: true, Delete: true}, got)
}

func TestPermissionsUpdateEmpty(t *testing.T) {
	assert.True(t, PermissionsUpdate{}.Empty())
	assert.False(t, PermissionsUpdate{PinMessage: lo.ToPtr(false)}.Empty())
}

func TestPermissionsScanRoundTrip(t *testing.T) {
	value, err := AllPermissions().Value()
	require.NoError(t, err)

	var got Permissions
	require.NoError(t, got.Scan(value))
	assert.Equal(t, AllPermissions(), got)

	require.NoError(t, got.Scan(nil))
	assert.Equal(t, Permissions{}, got)
}

func TestEffectivePermissionsFallsBackToDefault(t *testing.T) {
	conf := Conference{DefaultPermissions: MemberPermissions()}
	member := &ConferenceParticipation{Conference: conf}
	assert.Equal(t, MemberPermissions(), member.EffectivePermissions())

	override := Permissions{Read: true}
	member.Permissions = &override
	assert.Equal(t, override, member.EffectivePermissions())

	dialog := &Dialog{Related: Actor{DefaultPermissions: AllPermissions()}}
	assert.Equal(t, AllPermissions(), dialog.EffectivePermissions())
}

func TestPresenceCoversHalfOpenWindow(t *testing.T) {
	presences := Presences{
		{JoinAt: 2, LeaveAt: lo.ToPtr(5)},
		{JoinAt: 8},
	}
	cases := map[int]bool{1: false, 2: true, 4: true, 5: false, 7: false, 8: true, 100: true}
	for no, want := range cases {
		assert.Equal(t, want, presences.Covers(no), "no=%d", no)
	}
}
