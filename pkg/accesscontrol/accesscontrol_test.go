package accesscontrol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorizer(t *testing.T) {
	e, err := NewEnforcer(nil)
	require.NoError(t, err)
	a := NewAuthorizer(e)

	require.True(t, a.Allowed("user", "/api/v1/affiliate/links", "POST"))
	require.True(t, a.Allowed("user", "/api/v1/affiliate/links/:id", "GET"))
	require.True(t, a.Allowed("user", "/api/v1/payments/verify", "POST"))
	require.False(t, a.Allowed("user", "/api/v1/affiliate/links/:id/status", "PATCH"))
	require.False(t, a.Allowed("user", "/api/v1/admin/reconcile", "POST"))
	require.False(t, a.Allowed("guest", "/api/v1/affiliate/links", "POST"))

	require.True(t, a.Allowed("admin", "/api/v1/affiliate/links/:id/status", "PATCH"))
	require.True(t, a.Allowed("admin", "/api/v1/affiliate/links", "GET"))
	require.True(t, a.Allowed("admin", "/api/v1/affiliate/leaderboard/export", "GET"))
}
