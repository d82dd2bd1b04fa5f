package handler

import (
	"github.com/gin-gonic/gin"

	"fotobox/eventhub/internal/model"
	"fotobox/eventhub/internal/service"
	"fotobox/eventhub/pkg/response"
)

type EventHandler struct {
	eventService  service.EventService
	uploadService service.UploadService
}

func NewEventHandler(eventService service.EventService, uploadService service.UploadService) *EventHandler {
	return &EventHandler{eventService: eventService, uploadService: uploadService}
}

type CreateEventRequest struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	AllowView     *bool  `json:"allow_view"`
	AllowDownload *bool  `json:"allow_download"`
}

type UpdateEventRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	AllowView     *bool   `json:"allow_view"`
	AllowDownload *bool   `json:"allow_download"`
	CoverImage    *string `json:"cover_image"`
}

func (h *EventHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	event, err := h.eventService.CreateEvent(c.Request.Context(), actor, service.CreateEventInput{
		Name:          req.Name,
		Description:   req.Description,
		AllowView:     req.AllowView,
		AllowDownload: req.AllowDownload,
	})
	if err != nil {
		writeError(c, err, "failed to create event")
		return
	}

	response.Created(c, event)
}

// Mine lists the caller's events with their upload counts.
func (h *EventHandler) Mine(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	events, err := h.eventService.ListHostEvents(c.Request.Context(), actor.HostID)
	if err != nil {
		writeError(c, err, "failed to list events")
		return
	}
	response.Success(c, events)
}

// GetByCode is the public entry point for guests.
func (h *EventHandler) GetByCode(c *gin.Context) {
	event, err := h.eventService.GetEventByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err, "failed to load event")
		return
	}
	response.Success(c, event)
}

func (h *EventHandler) Get(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	event, err := h.eventService.GetEvent(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err, "failed to load event")
		return
	}
	response.Success(c, event)
}

func (h *EventHandler) Update(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	event, err := h.eventService.UpdateEvent(c.Request.Context(), actor, id, model.EventPatch{
		Name:          req.Name,
		Description:   req.Description,
		AllowView:     req.AllowView,
		AllowDownload: req.AllowDownload,
		CoverImage:    req.CoverImage,
	})
	if err != nil {
		writeError(c, err, "failed to update event")
		return
	}
	response.Success(c, event)
}

func (h *EventHandler) Delete(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.eventService.DeleteEvent(c.Request.Context(), actor, id); err != nil {
		writeError(c, err, "failed to delete event")
		return
	}
	response.Success(c, nil)
}

// ListUploads works for guests and owners; the service decides visibility.
func (h *EventHandler) ListUploads(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	uploads, err := h.uploadService.ListUploads(c.Request.Context(), optionalActor(c), id)
	if err != nil {
		writeError(c, err, "failed to list uploads")
		return
	}
	response.Success(c, uploads)
}
