package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"santrack/dashboard/internal/apiclient"
	"santrack/dashboard/internal/guard"
	"santrack/dashboard/internal/middleware"
	"santrack/dashboard/internal/models"
	"santrack/dashboard/internal/session"
)

const defaultLanding = "/dashboard"

type loginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
	From     string `json:"from" form:"from"`
}

type registerRequest struct {
	Name     string `json:"name" form:"name" binding:"required"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=6"`
	Role     string `json:"role" form:"role"`
	Phone    string `json:"phone" form:"phone"`
	From     string `json:"from" form:"from"`
}

type profileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Phone    *string `json:"phone"`
	Avatar   *string `json:"avatar"`
	Password *string `json:"password" binding:"omitempty,min=6"`
}

type authResponse struct {
	User     models.User `json:"user"`
	Redirect string      `json:"redirect"`
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	Pending       bool         `json:"pending"`
	User          *models.User `json:"user,omitempty"`
	Landing       string       `json:"landing,omitempty"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	user, err := h.store.Login(c.Request.Context(), middleware.ClientID(c), models.Credentials{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse{User: user, Redirect: h.redirectAfterAuth(req.From, user.Role)})
}

func (h HandlerSet) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	reg := models.Registration{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Phone:    strings.TrimSpace(req.Phone),
	}
	if req.Role != "" {
		role, err := models.ParseUserRole(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}
		reg.Role = role
	}

	user, err := h.store.Register(c.Request.Context(), middleware.ClientID(c), reg)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse{User: user, Redirect: h.redirectAfterAuth(req.From, user.Role)})
}

func (h HandlerSet) Logout(c *gin.Context) {
	h.store.Logout(c.Request.Context(), middleware.ClientID(c))
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Session(c *gin.Context) {
	state := h.store.Current(middleware.ClientID(c))
	resp := sessionResponse{Authenticated: state.Authenticated(), Pending: state.Pending}
	if user, ok := state.User(); ok {
		resp.User = &user
		resp.Landing = h.guard.LandingFor(user.Role, defaultLanding)
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	update := models.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Avatar:   req.Avatar,
		Password: req.Password,
	}
	if update.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_update"})
		return
	}

	user, err := h.store.UpdateProfile(c.Request.Context(), middleware.ClientID(c), update)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h HandlerSet) DeleteAccount(c *gin.Context) {
	if err := h.store.DeleteAccount(c.Request.Context(), middleware.ClientID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// redirectAfterAuth returns the page the client was sent away from, when it
// is a safe local path, else the role's own dashboard.
func (h HandlerSet) redirectAfterAuth(from string, role models.UserRole) string {
	target := guard.SafeReturnPath(from)
	if target == "" || target == h.guard.LoginPath || strings.HasPrefix(target, h.guard.LoginPath+"?") {
		return h.guard.LandingFor(role, defaultLanding)
	}
	return target
}

func (h HandlerSet) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, session.ErrNoSession):
		status, code = http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, apiclient.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apiclient.ErrSessionExpired):
		status, code = http.StatusUnauthorized, "session_expired"
	case errors.Is(err, apiclient.ErrValidationRejected):
		status, code = http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, apiclient.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, apiclient.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apiclient.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, apiclient.ErrNetworkUnavailable):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, apiclient.ErrServer):
		status, code = http.StatusBadGateway, "upstream_error"
	}

	body := gin.H{"error": code}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			body["message"] = apiErr.Message
		}
		if len(apiErr.Fields) > 0 {
			body["fields"] = apiErr.Fields
		}
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, body)
}
