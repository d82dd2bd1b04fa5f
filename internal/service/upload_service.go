package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"fotobox/eventhub/internal/clock"
	"fotobox/eventhub/internal/model"
	"fotobox/eventhub/internal/repository"
	"fotobox/eventhub/internal/storage"
)

const MaxFilesPerUpload = 50

// mediaTypes maps each accepted extension to the content types a browser
// may send for it.
var mediaTypes = map[string][]string{
	".jpg":  {"image/jpeg", "image/pjpeg"},
	".jpeg": {"image/jpeg", "image/pjpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".mp4":  {"video/mp4"},
	".mov":  {"video/quicktime"},
	".avi":  {"video/x-msvideo", "video/avi", "video/msvideo"},
	".webm": {"video/webm"},
}

// MediaType resolves the stored content type of a file or reports
// ErrUnsupportedMedia. A missing or generic content type is inferred from
// the extension.
func MediaType(originalName, contentType string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	allowed, ok := mediaTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, originalName)
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		return allowed[0], nil
	}
	for _, a := range allowed {
		if ct == a {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w: %q sent as %s", ErrUnsupportedMedia, originalName, ct)
}

func isImage(contentType string) bool { return strings.HasPrefix(contentType, "image/") }

// StagedUpload is a file the caller already wrote to the staging area.
type StagedUpload struct {
	TempPath         string
	Filename         string
	OriginalFilename string
	ContentType      string
	Size             int64
}

// FileStore is the part of the asset store uploads need.
type FileStore interface {
	Stage(r io.Reader, originalName string) (*storage.StagedFile, error)
	Discard(stagedPath string)
	PlaceUpload(eventID uint, sourceTempPath, generatedFilename, originalFilename string) (string, error)
	PlaceCover(eventID uint, sourceTempPath, generatedFilename, previous string) (string, error)
	RemoveFile(ref string) error
	Resolve(ref string) (string, error)
}

// Syncer copies a stored file to the remote mirror without blocking.
type Syncer interface {
	Enqueue(eventID uint, eventName, localPath, displayName string)
}

type UploadService interface {
	StageFile(r io.Reader, originalName, contentType string) (*StagedUpload, error)
	Discard(files ...StagedUpload)
	RecordUpload(ctx context.Context, code, guestName string, files []StagedUpload) ([]model.Upload, error)
	ListUploads(ctx context.Context, actor *Actor, eventID uint) ([]model.Upload, error)
	SetCover(ctx context.Context, actor Actor, eventID uint, file StagedUpload) (*model.Event, error)
}

type uploadService struct {
	events  repository.EventRepository
	uploads repository.UploadRepository
	files   FileStore
	mirror  Syncer
	clock   clock.Clock
	logger  *zap.Logger
}

func NewUploadService(
	events repository.EventRepository,
	uploads repository.UploadRepository,
	files FileStore,
	mirror Syncer,
	clk clock.Clock,
	logger *zap.Logger,
) UploadService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &uploadService{
		events:  events,
		uploads: uploads,
		files:   files,
		mirror:  mirror,
		clock:   clk,
		logger:  logger.Named("uploads"),
	}
}

// StageFile writes one incoming stream to the staging area. Unsupported
// media is rejected before anything touches the disk.
func (s *uploadService) StageFile(r io.Reader, originalName, contentType string) (*StagedUpload, error) {
	ct, err := MediaType(originalName, contentType)
	if err != nil {
		return nil, err
	}
	staged, err := s.files.Stage(r, originalName)
	if err != nil {
		return nil, fmt.Errorf("stage %q: %w", originalName, err)
	}
	return &StagedUpload{
		TempPath:         staged.Path,
		Filename:         staged.Filename,
		OriginalFilename: staged.OriginalFilename,
		ContentType:      ct,
		Size:             staged.Size,
	}, nil
}

func (s *uploadService) Discard(files ...StagedUpload) {
	for _, f := range files {
		s.files.Discard(f.TempPath)
	}
}

// RecordUpload places every staged file in the event directory and records
// it. Files already recorded stay when a later one fails; the error names
// the failed file. Mirroring happens in the background.
func (s *uploadService) RecordUpload(ctx context.Context, code, guestName string, files []StagedUpload) (recorded []model.Upload, err error) {
	pending := files
	defer func() { s.Discard(pending...) }()

	// 1. Validate request
	guestName = strings.TrimSpace(guestName)
	switch {
	case guestName == "":
		return nil, fmt.Errorf("%w: guest name is required", ErrInvalidInput)
	case len(files) == 0:
		return nil, fmt.Errorf("%w: at least one file is required", ErrInvalidInput)
	case len(files) > MaxFilesPerUpload:
		return nil, fmt.Errorf("%w: at most %d files per upload", ErrInvalidInput, MaxFilesPerUpload)
	}
	for i := range files {
		ct, err := MediaType(files[i].OriginalFilename, files[i].ContentType)
		if err != nil {
			return nil, err
		}
		files[i].ContentType = ct
	}

	// 2. Event must exist and be open
	code = NormalizeCode(code)
	event, err := s.events.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", code, translate(err))
	}
	if event.IsExpired(s.clock.Now()) {
		return nil, fmt.Errorf("event %s: %w", code, ErrExpired)
	}

	// 3. Place and record one by one
	for i, f := range files {
		pending = files[i+1:]

		ref, err := s.files.PlaceUpload(event.ID, f.TempPath, f.Filename, f.OriginalFilename)
		if err != nil {
			s.files.Discard(f.TempPath)
			return recorded, fmt.Errorf("store %q: %w", f.OriginalFilename, err)
		}

		upload := model.Upload{
			EventID:          event.ID,
			GuestName:        guestName,
			StoredFilename:   f.Filename,
			OriginalFilename: f.OriginalFilename,
			Path:             ref,
			ContentType:      f.ContentType,
			Size:             f.Size,
		}
		if err := s.uploads.Create(ctx, &upload); err != nil {
			if rerr := s.files.RemoveFile(ref); rerr != nil {
				s.logger.Warn("remove unrecorded file failed", zap.String("path", ref), zap.Error(rerr))
			}
			return recorded, fmt.Errorf("record %q: %w", f.OriginalFilename, translate(err))
		}
		recorded = append(recorded, upload)

		// 4. Mirror, never blocking or failing the upload
		if s.mirror != nil {
			if abs, err := s.files.Resolve(ref); err == nil {
				s.mirror.Enqueue(event.ID, event.Name, abs, MirrorName(f.OriginalFilename, upload.ID))
			}
		}
	}

	s.logger.Info("files uploaded",
		zap.Uint("event_id", event.ID),
		zap.Int("count", len(recorded)),
	)
	return recorded, nil
}

// ListUploads returns the uploads of an event, newest first. A nil actor is
// a guest, who sees uploads only while the event is open and allows it.
func (s *uploadService) ListUploads(ctx context.Context, actor *Actor, eventID uint) ([]model.Upload, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", eventID, translate(err))
	}
	if actor == nil || !actor.CanManage(event) {
		if event.IsExpired(s.clock.Now()) {
			return nil, fmt.Errorf("event %d: %w", eventID, ErrExpired)
		}
		if !event.AllowView {
			return nil, fmt.Errorf("event %d: %w", eventID, ErrForbidden)
		}
	}

	uploads, err := s.uploads.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list uploads of event %d: %w", eventID, err)
	}
	return uploads, nil
}

// SetCover installs a new cover image and removes the one it replaces.
func (s *uploadService) SetCover(ctx context.Context, actor Actor, eventID uint, file StagedUpload) (*model.Event, error) {
	placed := false
	defer func() {
		if !placed {
			s.files.Discard(file.TempPath)
		}
	}()

	ct, err := MediaType(file.OriginalFilename, file.ContentType)
	if err != nil {
		return nil, err
	}
	if !isImage(ct) {
		return nil, fmt.Errorf("%w: cover must be an image", ErrUnsupportedMedia)
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", eventID, translate(err))
	}
	if !actor.CanManage(event) {
		return nil, fmt.Errorf("event %d: %w", eventID, ErrForbidden)
	}

	previous := ""
	if event.CoverImage != nil {
		previous = *event.CoverImage
	}
	ref, err := s.files.PlaceCover(eventID, file.TempPath, file.Filename, previous)
	if err != nil {
		return nil, fmt.Errorf("store cover: %w", err)
	}
	placed = true

	updated, err := s.events.UpdateMutableFields(ctx, eventID, model.EventPatch{CoverImage: &ref})
	if err != nil {
		return nil, fmt.Errorf("save cover of event %d: %w", eventID, translate(err))
	}
	return updated, nil
}

// MirrorName is the remote file name of an upload: the guest's file name
// tagged with the upload id, so two guests sending IMG_0001.jpg to the same
// event keep both copies.
func MirrorName(originalName string, uploadID uint) string {
	base := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		base = "upload"
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "upload"
	}
	return stem + "-" + strconv.FormatUint(uint64(uploadID), 10) + ext
}
