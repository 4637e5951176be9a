package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openshelf/openshelf-go/internal/appstate"
)

func TestGateSetEvaluatesAuthSnapshot(t *testing.T) {
	gates, err := NewGateSet(map[string]string{
		"admin":      `auth.isAdmin && !auth.isDeleted`,
		"subscribed": `auth.isSubscribed`,
	})
	require.NoError(t, err)
	require.True(t, gates.Has("admin"))
	require.False(t, gates.Has("unknown"))
	require.Equal(t, []string{"admin", "subscribed"}, gates.Names())

	now := time.Now()
	admin := appstate.AuthState{IsLoggedIn: true, IsAdmin: true}

	ok, err := gates.Allow("admin", admin, now)
	require.NoError(t, err)
	require.True(t, ok)

	admin.IsDeleted = true
	ok, err = gates.Allow("admin", admin, now)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = gates.Allow("subscribed", appstate.AuthState{IsSubscribed: true}, now)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGateSetReadsNestedUserFields(t *testing.T) {
	gates, err := NewGateSet(map[string]string{
		"named": `auth.user.name == "Ada"`,
	})
	require.NoError(t, err)

	ok, err := gates.Allow("named", appstate.AuthState{
		User: appstate.AuthUser{Name: "Ada"},
	}, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGateSetRejectsBadExpressions(t *testing.T) {
	_, err := NewGateSet(map[string]string{"broken": `auth.isAdmin &&`})
	require.Error(t, err)
}

func TestGateSetRejectsNonBooleanGates(t *testing.T) {
	_, err := NewGateSet(map[string]string{"name": `auth.user.name`})
	require.Error(t, err)
}

func TestGateSetUnknownGateDenies(t *testing.T) {
	gates, err := NewGateSet(nil)
	require.NoError(t, err)

	ok, err := gates.Allow("missing", appstate.AuthState{}, time.Now())
	require.Error(t, err)
	require.False(t, ok)
}
