package handler

import (
	"fmt"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"fotobox/eventhub/internal/service"
	"fotobox/eventhub/pkg/response"
)

type UploadHandler struct {
	uploadService service.UploadService
	maxFileBytes  int64
}

func NewUploadHandler(uploadService service.UploadService, maxFileBytes int64) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, maxFileBytes: maxFileBytes}
}

type uploadedFile struct {
	ID       uint   `json:"id"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}

// stage copies every multipart file into the staging area. On failure the
// files staged so far are discarded.
func (h *UploadHandler) stage(headers []*multipart.FileHeader) ([]service.StagedUpload, error) {
	staged := make([]service.StagedUpload, 0, len(headers))
	for _, fh := range headers {
		if h.maxFileBytes > 0 && fh.Size > h.maxFileBytes {
			h.uploadService.Discard(staged...)
			return nil, errFileTooLarge{name: fh.Filename, limit: h.maxFileBytes}
		}
		f, err := fh.Open()
		if err != nil {
			h.uploadService.Discard(staged...)
			return nil, fmt.Errorf("open %q: %w", fh.Filename, err)
		}
		s, err := h.uploadService.StageFile(f, fh.Filename, fh.Header.Get("Content-Type"))
		f.Close()
		if err != nil {
			h.uploadService.Discard(staged...)
			return nil, err
		}
		staged = append(staged, *s)
	}
	return staged, nil
}

type errFileTooLarge struct {
	name  string
	limit int64
}

func (e errFileTooLarge) Error() string {
	return fmt.Sprintf("%q exceeds the limit of %d bytes", e.name, e.limit)
}

func (h *UploadHandler) writeStageError(c *gin.Context, err error) {
	if tooLarge, ok := err.(errFileTooLarge); ok {
		response.TooLarge(c, tooLarge.Error())
		return
	}
	writeError(c, err, "failed to store upload")
}

// Upload accepts files[] from a guest for the event named by event_code.
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "invalid multipart form: "+err.Error())
		return
	}
	headers := append(form.File["files"], form.File["files[]"]...)
	if len(headers) == 0 {
		response.BadRequest(c, "at least one file is required")
		return
	}
	if len(headers) > service.MaxFilesPerUpload {
		response.BadRequest(c, fmt.Sprintf("at most %d files per upload", service.MaxFilesPerUpload))
		return
	}

	staged, err := h.stage(headers)
	if err != nil {
		h.writeStageError(c, err)
		return
	}

	uploads, err := h.uploadService.RecordUpload(c.Request.Context(), c.PostForm("event_code"), c.PostForm("guest_name"), staged)
	if err != nil {
		writeError(c, err, "upload failed")
		return
	}

	files := make([]uploadedFile, 0, len(uploads))
	for _, u := range uploads {
		files = append(files, uploadedFile{
			ID:       u.ID,
			Filename: u.OriginalFilename,
			Path:     u.Path,
			Size:     u.Size,
			Type:     u.ContentType,
		})
	}
	response.Created(c, gin.H{"count": len(files), "files": files})
}

// Cover replaces the cover image of an event the caller manages.
func (h *UploadHandler) Cover(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("cover")
	if err != nil {
		response.BadRequest(c, "cover image is required")
		return
	}

	staged, err := h.stage([]*multipart.FileHeader{fh})
	if err != nil {
		h.writeStageError(c, err)
		return
	}

	event, err := h.uploadService.SetCover(c.Request.Context(), actor, id, staged[0])
	if err != nil {
		writeError(c, err, "failed to set cover")
		return
	}
	response.Success(c, event)
}
