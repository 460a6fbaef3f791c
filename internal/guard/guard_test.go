package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"santrack/dashboard/internal/models"
)

func testGuard() Guard {
	return New("/login", "/unauthorized", DefaultLanding())
}

func sessionWith(role models.UserRole) *models.Session {
	return &models.Session{Token: "tok", User: models.User{ID: "u", Role: role}}
}

var allRoles = []models.UserRole{models.UserRoleAdmin, models.UserRoleInspector, models.UserRoleCommunityLeader}

func TestPendingWinsOverEverything(t *testing.T) {
	g := testGuard()
	admin := Route{Path: "/users", RequireAuth: true, Roles: []models.UserRole{models.UserRoleAdmin}}

	for _, sess := range []*models.Session{nil, sessionWith(models.UserRoleInspector), sessionWith(models.UserRoleAdmin)} {
		d := g.Decide(sess, true, admin, "/users")
		assert.Equal(t, Loading, d.Kind)
		assert.False(t, d.Redirect())
	}
}

func TestEmptyAllowListAdmitsIffAuthenticated(t *testing.T) {
	g := testGuard()
	route := Route{Path: "/dashboard", RequireAuth: true}

	assert.Equal(t, RedirectLogin, g.Decide(nil, false, route, "/dashboard").Kind)
	assert.Equal(t, RedirectLogin, g.Decide(&models.Session{Token: "tok"}, false, route, "/dashboard").Kind,
		"a session without a role is not authenticated")
	for _, role := range allRoles {
		assert.Equal(t, Admit, g.Decide(sessionWith(role), false, route, "/dashboard").Kind, role)
	}
}

func TestAllowListMembership(t *testing.T) {
	g := New("/login", "/unauthorized", nil)
	lists := [][]models.UserRole{
		{models.UserRoleAdmin},
		{models.UserRoleInspector, models.UserRoleAdmin},
		{models.UserRoleCommunityLeader},
		allRoles,
	}

	for _, list := range lists {
		route := Route{Path: "/x", RequireAuth: true, Roles: list}
		for _, role := range allRoles {
			d := g.Decide(sessionWith(role), false, route, "/x")
			if route.Allows(role) {
				assert.Equal(t, Admit, d.Kind, "%s in %v", role, list)
			} else {
				assert.Equal(t, RedirectUnauthorized, d.Kind, "%s not in %v", role, list)
				assert.Equal(t, "/unauthorized", d.Location)
			}
		}
	}
}

func TestMissingSessionRecordsAttemptedPath(t *testing.T) {
	g := testGuard()
	route := Route{Path: "/villages", RequireAuth: true, Roles: []models.UserRole{models.UserRoleAdmin}}

	d := g.Decide(nil, false, route, "/villages?page=2")
	require.Equal(t, RedirectLogin, d.Kind)
	assert.Equal(t, "/villages?page=2", d.From)
	assert.Equal(t, "/login?from=%2Fvillages%3Fpage%3D2", d.Location)
}

func TestMismatchPrefersOwnDashboard(t *testing.T) {
	g := testGuard()
	route := Route{Path: "/users", RequireAuth: true, Roles: []models.UserRole{models.UserRoleAdmin}}

	d := g.Decide(sessionWith(models.UserRoleInspector), false, route, "/users")
	assert.Equal(t, RedirectLanding, d.Kind)
	assert.Equal(t, "/inspector/dashboard", d.Location)

	noLanding := New("/login", "/unauthorized", map[models.UserRole]string{models.UserRoleAdmin: "/admin/dashboard"})
	d = noLanding.Decide(sessionWith(models.UserRoleInspector), false, route, "/users")
	assert.Equal(t, RedirectUnauthorized, d.Kind)
	assert.Equal(t, "/unauthorized", d.Location)
}

func TestLandingNeverLoops(t *testing.T) {
	landing := map[models.UserRole]string{models.UserRoleInspector: "/inspector/dashboard"}
	g := New("/login", "/unauthorized", landing)
	route := Route{Path: "/inspector/dashboard", RequireAuth: true, Roles: []models.UserRole{models.UserRoleAdmin}}

	d := g.Decide(sessionWith(models.UserRoleInspector), false, route, "/inspector/dashboard?tab=1")
	assert.Equal(t, RedirectUnauthorized, d.Kind)
}

func TestPublicRouteAdmitsAnonymous(t *testing.T) {
	g := testGuard()
	d := g.Decide(nil, false, Route{Path: "/"}, "/")
	assert.Equal(t, Admit, d.Kind)
}

func TestNewCopiesLanding(t *testing.T) {
	landing := DefaultLanding()
	g := New("/login", "/unauthorized", landing)
	landing[models.UserRoleAdmin] = "/elsewhere"
	assert.Equal(t, "/admin/dashboard", g.LandingFor(models.UserRoleAdmin, "/dashboard"))
	assert.Equal(t, "/dashboard", g.LandingFor("", "/dashboard"))
}

func TestSafeReturnPath(t *testing.T) {
	cases := map[string]string{
		"/villages":               "/villages",
		"/issues?status=open":     "/issues?status=open",
		"":                        "",
		"villages":                "",
		"//evil.example/x":        "",
		"/\\evil.example":         "",
		"https://evil.example/":   "",
		"/ok\r\nSet-Cookie: x=1":  "",
		"  /facilities  ":         "/facilities",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeReturnPath(in), in)
	}
}

func TestLoginLocation(t *testing.T) {
	g := testGuard()
	assert.Equal(t, "/login", g.LoginLocation(""))
	assert.Equal(t, "/login", g.LoginLocation("/login"))
	assert.Equal(t, "/login?from=%2Fissues", g.LoginLocation("/issues"))
}

func TestDefaultRoutesRequireAuth(t *testing.T) {
	seen := map[string]bool{}
	for _, view := range DefaultRoutes() {
		assert.True(t, view.RequireAuth, view.Path)
		assert.False(t, seen[view.Path], "duplicate %s", view.Path)
		seen[view.Path] = true
		for _, role := range view.Roles {
			assert.True(t, role.Valid(), view.Path)
		}
	}

	landing := DefaultLanding()
	g := New("/login", "/unauthorized", landing)
	for role, path := range landing {
		for _, view := range DefaultRoutes() {
			if view.Path == path {
				assert.Equal(t, Admit, g.Decide(sessionWith(role), false, view.Route, path).Kind,
					"%s must be admitted to its own landing page", role)
			}
		}
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "admit", Admit.String())
	assert.Equal(t, "redirect_landing", RedirectLanding.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestActionRolesNarrowTheView(t *testing.T) {
	for _, view := range DefaultRoutes() {
		if len(view.Actions) > 0 {
			assert.NotEmpty(t, view.Resource, view.Name)
		}
		for action, roles := range view.Actions {
			require.NotEmpty(t, roles, "%s %s", view.Name, action)
			for _, role := range roles {
				assert.True(t, view.Allows(role), "%s may %s %s without seeing the list", role, action, view.Name)
			}
		}
	}
}

func TestActionRoute(t *testing.T) {
	var facilities View
	for _, view := range DefaultRoutes() {
		if view.Name == "facilities" {
			facilities = view
		}
	}
	require.Equal(t, "/facilities", facilities.Path)

	show, ok := facilities.ActionRoute(ActionShow)
	require.True(t, ok)
	assert.Equal(t, "/facilities/:id", show.Path)
	assert.True(t, show.Allows(models.UserRoleInspector))

	create, ok := facilities.ActionRoute(ActionCreate)
	require.True(t, ok)
	assert.Equal(t, "/facilities", create.Path)
	assert.False(t, create.Allows(models.UserRoleInspector))
	assert.True(t, create.Allows(models.UserRoleAdmin))

	create.Roles[0] = models.UserRoleCommunityLeader
	again, _ := facilities.ActionRoute(ActionCreate)
	assert.Equal(t, []models.UserRole{models.UserRoleAdmin}, again.Roles, "routes get their own allow-list")

	var issues View
	for _, view := range DefaultRoutes() {
		if view.Name == "issues" {
			issues = view
		}
	}
	_, ok = issues.ActionRoute(ActionDelete)
	assert.False(t, ok)
}
