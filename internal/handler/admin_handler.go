package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"fotobox/eventhub/internal/cleanup"
	"fotobox/eventhub/internal/service"
	"fotobox/eventhub/pkg/response"
)

// Sweeper runs one cleanup pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) cleanup.SweepResult
}

type AdminHandler struct {
	hostService  service.HostService
	eventService service.EventService
	sweeper      Sweeper
}

func NewAdminHandler(hostService service.HostService, eventService service.EventService, sweeper Sweeper) *AdminHandler {
	return &AdminHandler{
		hostService:  hostService,
		eventService: eventService,
		sweeper:      sweeper,
	}
}

type CreateHostRequest struct {
	Username      string     `json:"username" binding:"required"`
	Email         string     `json:"email" binding:"required"`
	Password      string     `json:"password" binding:"required"`
	MaxEvents     *int       `json:"max_events"`
	EventDate     *time.Time `json:"event_date"`
	ExpiresInDays int        `json:"expires_in_days"`
}

type UpdateHostRequest struct {
	MaxEvents      *int       `json:"max_events"`
	ClearMaxEvents bool       `json:"clear_max_events"`
	EventDate      *time.Time `json:"event_date"`
	ClearEventDate bool       `json:"clear_event_date"`
	ExpiresInDays  *int       `json:"expires_in_days"`
}

// CreateHost creates a host account.
func (h *AdminHandler) CreateHost(c *gin.Context) {
	var req CreateHostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	host, err := h.hostService.CreateHost(c.Request.Context(), service.CreateHostInput{
		Username:      req.Username,
		Email:         req.Email,
		Password:      req.Password,
		MaxEvents:     req.MaxEvents,
		EventDate:     req.EventDate,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		writeError(c, err, "failed to create host")
		return
	}

	response.Created(c, host)
}

// ListHosts returns all host accounts.
func (h *AdminHandler) ListHosts(c *gin.Context) {
	hosts, err := h.hostService.ListHosts(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to list hosts")
		return
	}

	response.Success(c, hosts)
}

// UpdateHost changes the quota and expiry policy of a host.
func (h *AdminHandler) UpdateHost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateHostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	host, err := h.hostService.UpdateHostPolicy(c.Request.Context(), id, service.HostPolicyUpdate{
		MaxEvents:      req.MaxEvents,
		ClearMaxEvents: req.ClearMaxEvents,
		EventDate:      req.EventDate,
		ClearEventDate: req.ClearEventDate,
		ExpiresInDays:  req.ExpiresInDays,
	})
	if err != nil {
		writeError(c, err, "failed to update host")
		return
	}

	response.Success(c, host)
}

// DeleteHost removes a host and everything its events hold.
func (h *AdminHandler) DeleteHost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.hostService.DeleteHost(c.Request.Context(), id); err != nil {
		writeError(c, err, "failed to delete host")
		return
	}

	response.Success(c, nil)
}

// ListEvents returns every event with its host's username.
func (h *AdminHandler) ListEvents(c *gin.Context) {
	events, err := h.eventService.ListAllEvents(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to list events")
		return
	}

	response.Success(c, events)
}

// RunCleanup triggers a sweep and reports what it did. A sweep already in
// progress is reported as skipped.
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	response.Success(c, h.sweeper.RunOnce(c.Request.Context()))
}
