// Package guard decides whether a navigation is admitted or redirected.
//
// Decide is a pure function of the session snapshot, the pending-auth flag
// and the route's declared allow-list. It never fails: every unmet
// condition resolves to a redirect.
package guard

import (
	"net/url"
	"strings"

	"santrack/dashboard/internal/models"
)

type Kind int

const (
	Admit Kind = iota
	// Loading means hydration is still in flight: neither admit nor redirect.
	Loading
	RedirectLogin
	// RedirectLanding sends a user whose role is not allowed to their own
	// dashboard. It is a convenience, not the access check.
	RedirectLanding
	RedirectUnauthorized
)

func (k Kind) String() string {
	switch k {
	case Admit:
		return "admit"
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case RedirectLanding:
		return "redirect_landing"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	default:
		return "unknown"
	}
}

// Route is a guarded destination. Roles is fixed at registration; an empty
// list admits any authenticated user.
type Route struct {
	Name        string
	Path        string
	RequireAuth bool
	Roles       []models.UserRole
}

func (r Route) Allows(role models.UserRole) bool {
	if len(r.Roles) == 0 {
		return true
	}
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

type Decision struct {
	Kind Kind
	// Location is the redirect target; empty for Admit and Loading.
	Location string
	// From is the originally requested location, recorded on login
	// redirects.
	From string
}

func (d Decision) Redirect() bool {
	return d.Location != ""
}

type Guard struct {
	LoginPath        string
	UnauthorizedPath string
	Landing          map[models.UserRole]string
}

func New(loginPath string, unauthorizedPath string, landing map[models.UserRole]string) Guard {
	cp := make(map[models.UserRole]string, len(landing))
	for role, path := range landing {
		cp[role] = path
	}
	return Guard{LoginPath: loginPath, UnauthorizedPath: unauthorizedPath, Landing: cp}
}

// Decide evaluates, in order: pending hydration, missing session, role
// mismatch, admit. requested is the path (and query) being navigated to.
func (g Guard) Decide(sess *models.Session, pending bool, route Route, requested string) Decision {
	if pending {
		return Decision{Kind: Loading}
	}

	authenticated := sess != nil && sess.Valid()
	if !authenticated {
		if route.RequireAuth || len(route.Roles) > 0 {
			from := SafeReturnPath(requested)
			return Decision{Kind: RedirectLogin, Location: g.LoginLocation(from), From: from}
		}
		return Decision{Kind: Admit}
	}

	if !route.Allows(sess.User.Role) {
		if landing, ok := g.Landing[sess.User.Role]; ok && landing != "" && landing != pathOf(requested) {
			return Decision{Kind: RedirectLanding, Location: landing}
		}
		return Decision{Kind: RedirectUnauthorized, Location: g.UnauthorizedPath}
	}

	return Decision{Kind: Admit}
}

// LandingFor returns the dashboard of role, or fallback when none is known.
func (g Guard) LandingFor(role models.UserRole, fallback string) string {
	if landing, ok := g.Landing[role]; ok && landing != "" {
		return landing
	}
	return fallback
}

// LoginLocation is the login path carrying from as the return target.
func (g Guard) LoginLocation(from string) string {
	if from == "" || from == g.LoginPath {
		return g.LoginPath
	}
	return g.LoginPath + "?" + url.Values{"from": {from}}.Encode()
}

// SafeReturnPath returns target if it is a local absolute path, else "".
// Anything carrying a scheme, a host or a protocol-relative prefix is
// rejected so the login flow cannot be used as an open redirect.
func SafeReturnPath(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") {
		return ""
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") || strings.ContainsAny(target, "\r\n") {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return target
}

func pathOf(requested string) string {
	if i := strings.IndexAny(requested, "?#"); i >= 0 {
		return requested[:i]
	}
	return requested
}
