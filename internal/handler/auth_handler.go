package handler

import (
	"github.com/gin-gonic/gin"

	"fotobox/eventhub/internal/service"
	"fotobox/eventhub/pkg/response"
)

type AuthHandler struct {
	hostService service.HostService
}

func NewAuthHandler(hostService service.HostService) *AuthHandler {
	return &AuthHandler{hostService: hostService}
}

type LoginRequest struct {
	// Login accepts a username or an email address.
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	tokenSet, err := h.hostService.Authenticate(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		writeError(c, err, "login failed")
		return
	}

	response.Success(c, tokenSet)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	tokenSet, err := h.hostService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err, "token refresh failed")
		return
	}

	response.Success(c, tokenSet)
}

// Me returns the authenticated host.
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	host, err := h.hostService.GetHost(c.Request.Context(), actor.HostID)
	if err != nil {
		writeError(c, err, "failed to load account")
		return
	}
	response.Success(c, host)
}
