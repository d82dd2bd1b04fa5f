// Package cleanup removes events together with their files and rows, both on
// demand and from a periodic sweep of expired events.
package cleanup

import (
	"context"

	"go.uber.org/zap"

	"fotobox/eventhub/internal/model"
	"fotobox/eventhub/internal/repository"
)

// AssetRemover is the part of the asset store the purge needs.
type AssetRemover interface {
	RemoveFile(ref string) error
	RemoveEventDirectory(eventID uint) error
}

// Report describes the outcome of purging one event. File failures are
// informational; only the two database steps decide whether the event
// counts as purged.
type Report struct {
	EventID      uint
	FilesRemoved int
	FileErrors   []error
	DirErr       error
	QRErr        error
	UploadRows   int64
	UploadRowErr error
	EventRowErr  error
}

func (r Report) Purged() bool {
	return r.UploadRowErr == nil && r.EventRowErr == nil
}

type Purger struct {
	events  repository.EventRepository
	uploads repository.UploadRepository
	assets  AssetRemover
	logger  *zap.Logger
}

func NewPurger(events repository.EventRepository, uploads repository.UploadRepository, assets AssetRemover, logger *zap.Logger) *Purger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Purger{events: events, uploads: uploads, assets: assets, logger: logger.Named("purge")}
}

// Purge deletes filesystem state before database state so an interrupted
// purge leaves rows that the next sweep finds again. The event directory is
// removed once more after the event row is gone. Every step treats a
// missing event, file or row as already done.
func (p *Purger) Purge(ctx context.Context, event *model.Event) Report {
	rep := Report{EventID: event.ID}
	log := p.logger.With(zap.Uint("event_id", event.ID), zap.String("event_code", event.Code))

	uploads, err := p.uploads.ListByEvent(ctx, event.ID)
	if err != nil {
		log.Warn("list uploads failed, relying on directory removal", zap.Error(err))
	}
	for _, u := range uploads {
		if err := p.assets.RemoveFile(u.Path); err != nil {
			rep.FileErrors = append(rep.FileErrors, err)
			log.Warn("remove upload file failed", zap.Uint("upload_id", u.ID), zap.String("path", u.Path), zap.Error(err))
			continue
		}
		rep.FilesRemoved++
	}

	if err := p.assets.RemoveEventDirectory(event.ID); err != nil {
		rep.DirErr = err
		log.Warn("remove event directory failed", zap.Error(err))
	}

	if event.QRCode != nil && *event.QRCode != "" {
		if err := p.assets.RemoveFile(*event.QRCode); err != nil {
			rep.QRErr = err
			log.Debug("remove qr image failed", zap.Error(err))
		}
	}

	rep.UploadRows, rep.UploadRowErr = p.uploads.DeleteByEvent(ctx, event.ID)
	if rep.UploadRowErr != nil {
		log.Warn("delete upload rows failed", zap.Error(rep.UploadRowErr))
	}

	if err := p.events.Delete(ctx, event.ID); err != nil {
		rep.EventRowErr = err
		log.Warn("delete event row failed", zap.Error(err))
	}

	// An upload placed between the first directory removal and the row
	// deletes lost its row above; its file is swept here.
	if rep.EventRowErr == nil {
		if err := p.assets.RemoveEventDirectory(event.ID); err != nil && rep.DirErr == nil {
			rep.DirErr = err
			log.Warn("remove event directory failed", zap.Error(err))
		}
	}

	if rep.Purged() {
		log.Info("event purged",
			zap.Int("files_removed", rep.FilesRemoved),
			zap.Int("file_errors", len(rep.FileErrors)),
			zap.Int64("upload_rows", rep.UploadRows),
		)
	}
	return rep
}
