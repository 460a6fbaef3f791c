package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"santrack/dashboard/internal/apiclient"
	"santrack/dashboard/internal/guard"
	"santrack/dashboard/internal/middleware"
)

// PublicPage describes a view any client may open.
func (h HandlerSet) PublicPage(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := middleware.SessionState(c, h.store)
		body := gin.H{"view": name, "authenticated": state.Authenticated()}
		if user, ok := state.User(); ok {
			body["user"] = user
			body["landing"] = h.guard.LandingFor(user.Role, defaultLanding)
		}
		c.JSON(http.StatusOK, body)
	}
}

// LoginPage hands the return target and any one-time notice to the login
// form. A client that is already signed in is sent on to its destination.
func (h HandlerSet) LoginPage(c *gin.Context) {
	clientID := middleware.ClientID(c)
	from := guard.SafeReturnPath(c.Query("from"))

	state := h.store.Current(clientID)
	if user, ok := state.User(); ok {
		c.Redirect(http.StatusSeeOther, h.redirectAfterAuth(from, user.Role))
		return
	}

	body := gin.H{"view": "login", "pending": state.Pending}
	if from != "" {
		body["from"] = from
	}
	if notice := h.store.TakeNotice(clientID); notice != "" {
		body["notice"] = notice
	}
	c.JSON(http.StatusOK, body)
}

// GuardedPage renders an admitted view, listing its REST resource with the
// client's token when it has one.
func (h HandlerSet) GuardedPage(view guard.View) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := middleware.ClientID(c)
		user, _ := middleware.SessionState(c, h.store).User()
		body := gin.H{"view": view.Name, "user": user}

		if view.Resource == "" {
			c.JSON(http.StatusOK, body)
			return
		}

		ctx, ok := h.store.AuthContext(c.Request.Context(), clientID)
		if !ok {
			// Signed out between the guard and here.
			h.redirectToLogin(c)
			return
		}

		page, err := h.resources.Fetch(ctx, view.Resource, c.Request.URL.Query())
		if err != nil {
			if apiclient.IsAuthFailure(err) {
				_ = h.store.HandleAuthFailure(c.Request.Context(), clientID, err)
				h.redirectToLogin(c)
				return
			}
			h.writeError(c, err)
			return
		}

		body["data"] = page.Data
		if len(page.Pagination) > 0 {
			body["pagination"] = page.Pagination
		}
		c.JSON(http.StatusOK, body)
	}
}

func (h HandlerSet) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"view": "not_found", "path": c.Request.URL.Path})
}
