package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"santrack/dashboard/internal/guard"
	"santrack/dashboard/internal/session"
)

// RequireRoute admits the request only when g admits route for the client's
// current session. Redirects answer 303; a session still loading answers 202
// so the browser retries.
func RequireRoute(g guard.Guard, route guard.Route, sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := sessions.Current(ClientID(c))
		decision := g.Decide(state.Session, state.Pending, route, c.Request.URL.RequestURI())
		c.Set(decisionKey, decision.Kind.String())

		switch {
		case decision.Kind == guard.Loading:
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusAccepted, gin.H{"status": "loading"})
			return
		case decision.Redirect():
			c.Redirect(http.StatusSeeOther, decision.Location)
			c.Abort()
			return
		}

		c.Set(sessionStateKey, state)
		c.Next()
	}
}

// SessionState returns the snapshot RequireRoute admitted the request with,
// falling back to the store's current view for public routes.
func SessionState(c *gin.Context, sessions Sessions) session.State {
	if v, ok := c.Get(sessionStateKey); ok {
		if state, ok := v.(session.State); ok {
			return state
		}
	}
	return sessions.Current(ClientID(c))
}
