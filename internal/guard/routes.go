package guard

import "santrack/dashboard/internal/models"

func adminOnly() []models.UserRole {
	return []models.UserRole{models.UserRoleAdmin}
}

func fieldStaff() []models.UserRole {
	return []models.UserRole{models.UserRoleInspector, models.UserRoleAdmin}
}

func anyStaffMember() []models.UserRole {
	return []models.UserRole{models.UserRoleCommunityLeader, models.UserRoleInspector, models.UserRoleAdmin}
}

// DefaultLanding maps each role to its own dashboard.
func DefaultLanding() map[models.UserRole]string {
	return map[models.UserRole]string{
		models.UserRoleAdmin:           "/admin/dashboard",
		models.UserRoleInspector:       "/inspector/dashboard",
		models.UserRoleCommunityLeader: "/leader/dashboard",
	}
}

// DefaultRoutes is the dashboard's route table. Resource names the REST
// collection a view lists, when it lists one; Actions lists the record
// operations the view offers and who may perform them.
func DefaultRoutes() []View {
	return []View{
		{Route: Route{Name: "dashboard", Path: "/dashboard", RequireAuth: true}},
		{Route: Route{Name: "profile", Path: "/profile", RequireAuth: true}},
		{Route: Route{Name: "settings", Path: "/settings", RequireAuth: true}},

		{Route: Route{Name: "admin_dashboard", Path: "/admin/dashboard", RequireAuth: true, Roles: adminOnly()}, Resource: "/analytics/dashboard"},
		{Route: Route{Name: "inspector_dashboard", Path: "/inspector/dashboard", RequireAuth: true, Roles: fieldStaff()}, Resource: "/inspections"},
		{Route: Route{Name: "leader_dashboard", Path: "/leader/dashboard", RequireAuth: true, Roles: anyStaffMember()}, Resource: "/issues"},

		{
			Route:    Route{Name: "users", Path: "/users", RequireAuth: true, Roles: adminOnly()},
			Resource: "/users",
			Actions: map[Action][]models.UserRole{
				ActionShow:   adminOnly(),
				ActionCreate: adminOnly(),
				ActionUpdate: adminOnly(),
				ActionDelete: adminOnly(),
			},
		},
		{
			Route:    Route{Name: "villages", Path: "/villages", RequireAuth: true, Roles: adminOnly()},
			Resource: "/villages",
			Actions: map[Action][]models.UserRole{
				ActionShow:   adminOnly(),
				ActionCreate: adminOnly(),
				ActionUpdate: adminOnly(),
				ActionDelete: adminOnly(),
			},
		},
		{
			Route:    Route{Name: "reports", Path: "/reports", RequireAuth: true, Roles: adminOnly()},
			Resource: "/reports",
			Actions:  map[Action][]models.UserRole{ActionShow: adminOnly()},
		},
		{Route: Route{Name: "analytics", Path: "/analytics", RequireAuth: true, Roles: adminOnly()}, Resource: "/analytics/villages"},
		{
			// Field staff read facilities; only admins change them.
			Route:    Route{Name: "facilities", Path: "/facilities", RequireAuth: true, Roles: fieldStaff()},
			Resource: "/facilities",
			Actions: map[Action][]models.UserRole{
				ActionShow:   fieldStaff(),
				ActionCreate: adminOnly(),
				ActionUpdate: adminOnly(),
				ActionDelete: adminOnly(),
			},
		},
		{
			Route:    Route{Name: "inspections", Path: "/inspections", RequireAuth: true, Roles: fieldStaff()},
			Resource: "/inspections",
			Actions: map[Action][]models.UserRole{
				ActionShow:   fieldStaff(),
				ActionCreate: fieldStaff(),
				ActionUpdate: fieldStaff(),
			},
		},
		{
			// Leaders report issues; field staff move them through statuses.
			Route:    Route{Name: "issues", Path: "/issues", RequireAuth: true, Roles: anyStaffMember()},
			Resource: "/issues",
			Actions: map[Action][]models.UserRole{
				ActionShow:   anyStaffMember(),
				ActionCreate: anyStaffMember(),
				ActionUpdate: fieldStaff(),
			},
		},
	}
}

// Action is an operation on one record of a view's resource.
type Action string

const (
	ActionShow   Action = "show"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// View is a guarded page together with the data it shows.
type View struct {
	Route
	Resource string
	Actions  map[Action][]models.UserRole
}

// ActionRoute is the guarded route of action on v. Create targets the
// collection path; the others target "<path>/:id". ok is false when v does
// not offer action.
func (v View) ActionRoute(action Action) (Route, bool) {
	roles, ok := v.Actions[action]
	if !ok {
		return Route{}, false
	}
	path := v.Path
	if action != ActionCreate {
		path += "/:id"
	}
	cp := make([]models.UserRole, len(roles))
	copy(cp, roles)
	return Route{Name: v.Name + "_" + string(action), Path: path, RequireAuth: true, Roles: cp}, true
}
