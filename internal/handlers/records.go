package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"santrack/dashboard/internal/apiclient"
	"santrack/dashboard/internal/guard"
	"santrack/dashboard/internal/middleware"
)

var recordID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var actionMethods = map[guard.Action]string{
	guard.ActionShow:   http.MethodGet,
	guard.ActionCreate: http.MethodPost,
	guard.ActionUpdate: http.MethodPut,
	guard.ActionDelete: http.MethodDelete,
}

func (h HandlerSet) registerActions(engine *gin.Engine, view guard.View) {
	for _, action := range []guard.Action{guard.ActionShow, guard.ActionCreate, guard.ActionUpdate, guard.ActionDelete} {
		route, ok := view.ActionRoute(action)
		if !ok {
			continue
		}
		engine.Handle(actionMethods[action], route.Path, middleware.RequireRoute(h.guard, route, h.store), h.RecordAction(view, action))
	}
}

// RecordAction reads or writes one record of view's resource with the
// client's token. Writes take a JSON object body, passed through unchanged.
func (h HandlerSet) RecordAction(view guard.View, action guard.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := view.Resource
		if action != guard.ActionCreate {
			id := c.Param("id")
			if !recordID.MatchString(id) {
				h.NotFound(c)
				return
			}
			path += "/" + id
		}

		var body json.RawMessage
		if action == guard.ActionCreate || action == guard.ActionUpdate {
			raw, err := c.GetRawData()
			if err != nil || !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "body must be a JSON object"})
				return
			}
			body = raw
		}

		clientID := middleware.ClientID(c)
		ctx, ok := h.store.AuthContext(c.Request.Context(), clientID)
		if !ok {
			h.redirectToLogin(c)
			return
		}

		var (
			page apiclient.Page
			err  error
		)
		if action == guard.ActionShow {
			page, err = h.resources.Fetch(ctx, path, nil)
		} else {
			page, err = h.resources.Send(ctx, actionMethods[action], path, body)
		}
		if err != nil {
			if apiclient.IsAuthFailure(err) {
				_ = h.store.HandleAuthFailure(c.Request.Context(), clientID, err)
				h.redirectToLogin(c)
				return
			}
			h.writeError(c, err)
			return
		}

		switch action {
		case guard.ActionShow:
			user, _ := middleware.SessionState(c, h.store).User()
			c.JSON(http.StatusOK, gin.H{"view": view.Name + "_detail", "user": user, "data": page.Data})
		case guard.ActionCreate:
			c.JSON(http.StatusCreated, gin.H{"data": page.Data})
		case guard.ActionUpdate:
			c.JSON(http.StatusOK, gin.H{"data": page.Data})
		case guard.ActionDelete:
			c.Status(http.StatusNoContent)
		}
	}
}

// redirectToLogin sends a client whose session is gone back to login,
// remembering where it was.
func (h HandlerSet) redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, h.guard.LoginLocation(guard.SafeReturnPath(c.Request.URL.RequestURI())))
}
