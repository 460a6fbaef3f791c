package handlers

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"santrack/dashboard/internal/apiclient"
	"santrack/dashboard/internal/config"
	"santrack/dashboard/internal/guard"
	"santrack/dashboard/internal/middleware"
	"santrack/dashboard/internal/session"
)

// Resources reads and writes REST API resources on behalf of a signed-in
// client.
type Resources interface {
	Fetch(ctx context.Context, path string, query url.Values) (apiclient.Page, error)
	Send(ctx context.Context, method string, path string, body json.RawMessage) (apiclient.Page, error)
}

type HandlerSet struct {
	log       zerolog.Logger
	cfg       *config.AppConfig
	store     *session.Store
	resources Resources
	guard     guard.Guard
	views     []guard.View
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, store *session.Store, resources Resources, g guard.Guard, views []guard.View) HandlerSet {
	return HandlerSet{
		log:       log,
		cfg:       cfg,
		store:     store,
		resources: resources,
		guard:     g,
		views:     views,
	}
}

func (h HandlerSet) Register(engine *gin.Engine) {
	engine.GET("/healthz", h.Health)

	engine.GET("/", h.PublicPage("home"))
	engine.GET(h.cfg.Routes.LoginPath, h.LoginPage)
	engine.GET("/signup", h.PublicPage("signup"))
	engine.GET(h.cfg.Routes.UnauthorizedPath, h.PublicPage("unauthorized"))

	auth := engine.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/register", h.Register)
		auth.POST("/logout", h.Logout)
		auth.GET("/session", h.Session)
		auth.PUT("/profile", h.UpdateProfile)
		auth.DELETE("/account", h.DeleteAccount)
	}

	for _, view := range h.views {
		engine.GET(view.Path, middleware.RequireRoute(h.guard, view.Route, h.store), h.GuardedPage(view))
		h.registerActions(engine, view)
	}

	engine.NoRoute(h.NotFound)
}
