package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"santrack/dashboard/internal/config"
	"santrack/dashboard/internal/ids"
	"santrack/dashboard/internal/security"
	"santrack/dashboard/internal/session"
)

const (
	clientIDKey     = "client_id"
	sessionStateKey = "session_state"
	decisionKey     = "guard_decision"
)

// Sessions is what the request middleware needs from the session store.
type Sessions interface {
	Ensure(ctx context.Context, clientID string)
	Current(clientID string) session.State
}

// ClientSession identifies the browser through a signed cookie, issuing a
// fresh client id when the cookie is missing or forged, and makes sure the
// client's persisted session has been loaded.
func ClientSession(cfg config.SessionConfig, sessions Sessions, log zerolog.Logger) gin.HandlerFunc {
	maxAge := int(cfg.TTL.Seconds())

	return func(c *gin.Context) {
		clientID := ""
		if value, err := c.Cookie(cfg.CookieName); err == nil {
			if id, ok := security.VerifyClientID(cfg.CookieSecret, value); ok && ids.Valid(id) {
				clientID = id
			} else {
				log.Debug().Str("request_id", RequestIDFrom(c)).Msg("rejected client cookie")
			}
		}
		if clientID == "" {
			clientID = ids.New()
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.CookieName, security.SignClientID(cfg.CookieSecret, clientID), maxAge, "/", "", cfg.CookieSecure, true)

		sessions.Ensure(c.Request.Context(), clientID)
		c.Set(clientIDKey, clientID)

		c.Next()
	}
}

// ClientID returns the id set by ClientSession.
func ClientID(c *gin.Context) string {
	return c.GetString(clientIDKey)
}
