package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fotobox/eventhub/internal/handler/middleware"
	"fotobox/eventhub/internal/model"
	"fotobox/eventhub/internal/service"
	"fotobox/eventhub/internal/storage"
	jwtpkg "fotobox/eventhub/pkg/jwt"
	"fotobox/eventhub/pkg/response"
)

var ErrNoClaims = errors.New("claims not found in context")

func claimsFromContext(c *gin.Context) (*jwtpkg.Claims, bool) {
	claimsVal, exists := c.Get(middleware.ContextKeyUserClaims)
	if !exists {
		return nil, false
	}
	claims, ok := claimsVal.(*jwtpkg.Claims)
	return claims, ok
}

func actorFromContext(c *gin.Context) (service.Actor, error) {
	claims, ok := claimsFromContext(c)
	if !ok {
		return service.Actor{}, ErrNoClaims
	}
	id, err := claims.HostID()
	if err != nil {
		return service.Actor{}, err
	}
	return service.Actor{HostID: id, Role: model.Role(claims.Role)}, nil
}

// optionalActor returns nil for anonymous guests.
func optionalActor(c *gin.Context) *service.Actor {
	actor, err := actorFromContext(c)
	if err != nil {
		return nil
	}
	return &actor
}

func mustActor(c *gin.Context) (service.Actor, bool) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return service.Actor{}, false
	}
	return actor, true
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// writeError maps service errors onto HTTP responses. Unknown errors are
// attached to the context for the request logger and answered with 500.
func writeError(c *gin.Context, err error, fallback string) {
	var quota *service.QuotaError
	switch {
	case errors.As(err, &quota):
		response.ErrorWithData(c, http.StatusForbidden, 403, quota.Error(), gin.H{"limit": quota.Limit})
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrExpired):
		response.Gone(c, "event has expired")
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, "not allowed")
	case errors.Is(err, service.ErrConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, storage.ErrUnsafePath):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrUnsupportedMedia):
		response.UnsupportedMedia(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, "invalid credentials")
	case errors.Is(err, service.ErrTokenInvalid):
		response.Unauthorized(c, "invalid refresh token")
	default:
		_ = c.Error(err)
		response.InternalError(c, fallback)
	}
}
