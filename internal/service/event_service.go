package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fotobox/eventhub/internal/clock"
	"fotobox/eventhub/internal/model"
	"fotobox/eventhub/internal/policy"
	"fotobox/eventhub/internal/repository"
)

const (
	DefaultCodeLength = 8
	maxCodeAttempts   = 5
	quotaLockTTL      = 30 * time.Second
)

// QRRenderer turns the event link into PNG bytes.
type QRRenderer interface {
	Render(content string) ([]byte, error)
}

// QRPlacer stores a rendered QR image and returns its reference.
type QRPlacer interface {
	PlaceQRImage(code string, png []byte) (string, error)
}

type EventConfig struct {
	DefaultExpiryDays int
	CodeLength        int
	PublicBaseURL     string
}

type CreateEventInput struct {
	Name          string
	Description   string
	AllowView     *bool
	AllowDownload *bool
}

type EventService interface {
	CreateEvent(ctx context.Context, actor Actor, in CreateEventInput) (*model.Event, error)
	GetEventByCode(ctx context.Context, code string) (*model.Event, error)
	GetEvent(ctx context.Context, actor Actor, id uint) (*model.Event, error)
	ListHostEvents(ctx context.Context, hostID uint) ([]model.Event, error)
	ListAllEvents(ctx context.Context) ([]model.Event, error)
	UpdateEvent(ctx context.Context, actor Actor, id uint, patch model.EventPatch) (*model.Event, error)
	DeleteEvent(ctx context.Context, actor Actor, id uint) error
}

type eventService struct {
	hosts   repository.HostRepository
	events  repository.EventRepository
	locks   repository.LockStore
	purger  EventPurger
	qr      QRRenderer
	placer  QRPlacer
	clock   clock.Clock
	expiry  policy.ExpiryCalculator
	cfg     EventConfig
	newCode func() string
	logger  *zap.Logger
}

func NewEventService(
	hosts repository.HostRepository,
	events repository.EventRepository,
	locks repository.LockStore,
	purger EventPurger,
	qr QRRenderer,
	placer QRPlacer,
	clk clock.Clock,
	cfg EventConfig,
	logger *zap.Logger,
) EventService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CodeLength <= 0 || cfg.CodeLength > 32 {
		cfg.CodeLength = DefaultCodeLength
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &eventService{
		hosts:   hosts,
		events:  events,
		locks:   locks,
		purger:  purger,
		qr:      qr,
		placer:  placer,
		clock:   clk,
		expiry:  policy.NewExpiryCalculator(clk),
		cfg:     cfg,
		newCode: codeGenerator(cfg.CodeLength),
		logger:  logger.Named("events"),
	}
}

// codeGenerator yields uppercase hex codes cut from a random UUID.
func codeGenerator(length int) func() string {
	return func() string {
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:length])
	}
}

// NormalizeCode is applied to every code a guest types in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateEvent runs count, quota check and insert under a per-host lock so two
// concurrent requests cannot both pass the quota at count N-1.
func (s *eventService) CreateEvent(ctx context.Context, actor Actor, in CreateEventInput) (*model.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: event name is required", ErrInvalidInput)
	}

	// 1. Load host policy
	host, err := s.hosts.GetByID(ctx, actor.HostID)
	if err != nil {
		return nil, fmt.Errorf("host %d: %w", actor.HostID, translate(err))
	}

	// 2. Serialize creation per host
	if s.locks != nil {
		unlock, err := repository.Lock(ctx, s.locks, "event-quota:host:"+strconv.FormatUint(uint64(host.ID), 10), quotaLockTTL, 0)
		if err != nil {
			return nil, fmt.Errorf("acquire quota lock: %w", err)
		}
		defer unlock()
	}

	// 3. Quota
	count, err := s.events.CountByHost(ctx, host.ID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	if err := policy.MayCreate(host.MaxEvents, count); err != nil {
		return nil, err
	}

	// 4. Expiry, fixed now and never recomputed
	days := policy.DurationOrDefault(host.ExpiresInDays, s.cfg.DefaultExpiryDays)
	expiresAt, err := s.expiry.Compute(host.EventDate, days)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	expiresAt = expiresAt.UTC()

	event := &model.Event{
		HostID:        host.ID,
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		AllowView:     in.AllowView == nil || *in.AllowView,
		AllowDownload: in.AllowDownload != nil && *in.AllowDownload,
		EventDate:     utcPtr(host.EventDate),
		ExpiresAt:     &expiresAt,
	}

	// 5. Persist with a fresh code, retrying on collision
	for attempt := 1; ; attempt++ {
		event.Code = s.newCode()
		err = s.events.Create(ctx, event)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) || attempt >= maxCodeAttempts {
			return nil, fmt.Errorf("create event: %w", translate(err))
		}
		s.logger.Debug("event code collision, retrying", zap.String("code", event.Code), zap.Int("attempt", attempt))
	}

	// 6. QR image; the event is usable without it
	s.attachQRCode(ctx, event)

	s.logger.Info("event created",
		zap.Uint("event_id", event.ID),
		zap.Uint("host_id", host.ID),
		zap.String("event_code", event.Code),
		zap.Time("expires_at", expiresAt),
	)
	return event, nil
}

// EventURL is the page a QR code points to.
func (s *eventService) EventURL(code string) string {
	return s.cfg.PublicBaseURL + "/event/" + code
}

func (s *eventService) attachQRCode(ctx context.Context, event *model.Event) {
	if s.qr == nil || s.placer == nil {
		return
	}
	log := s.logger.With(zap.Uint("event_id", event.ID))

	png, err := s.qr.Render(s.EventURL(event.Code))
	if err != nil {
		log.Warn("render qr code failed", zap.Error(err))
		return
	}
	ref, err := s.placer.PlaceQRImage(event.Code, png)
	if err != nil {
		log.Warn("store qr code failed", zap.Error(err))
		return
	}
	if err := s.events.SetQRCode(ctx, event.ID, ref); err != nil {
		log.Warn("save qr code reference failed", zap.Error(err))
		return
	}
	event.QRCode = &ref
}

func (s *eventService) GetEventByCode(ctx context.Context, code string) (*model.Event, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: event code is required", ErrInvalidInput)
	}
	event, err := s.events.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", code, translate(err))
	}
	if event.IsExpired(s.clock.Now()) {
		return nil, fmt.Errorf("event %s: %w", code, ErrExpired)
	}
	return event, nil
}

func (s *eventService) GetEvent(ctx context.Context, actor Actor, id uint) (*model.Event, error) {
	return s.managed(ctx, actor, id)
}

// managed loads an event the actor may manage.
func (s *eventService) managed(ctx context.Context, actor Actor, id uint) (*model.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", id, translate(err))
	}
	if !actor.CanManage(event) {
		return nil, fmt.Errorf("event %d: %w", id, ErrForbidden)
	}
	return event, nil
}

func (s *eventService) ListHostEvents(ctx context.Context, hostID uint) ([]model.Event, error) {
	events, err := s.events.ListByHost(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("list events of host %d: %w", hostID, err)
	}
	return events, nil
}

func (s *eventService) ListAllEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.events.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *eventService) UpdateEvent(ctx context.Context, actor Actor, id uint, patch model.EventPatch) (*model.Event, error) {
	event, err := s.managed(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: event name must not be empty", ErrInvalidInput)
		}
		patch.Name = &name
	}
	if patch.CoverImage != nil && !isCoverOf(event.ID, *patch.CoverImage) {
		return nil, fmt.Errorf("%w: cover image must belong to the event", ErrInvalidInput)
	}
	if patch.IsEmpty() {
		return event, nil
	}

	updated, err := s.events.UpdateMutableFields(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update event %d: %w", id, translate(err))
	}
	return updated, nil
}

func isCoverOf(eventID uint, ref string) bool {
	prefix := "events/" + strconv.FormatUint(uint64(eventID), 10) + "/cover-"
	rest, ok := strings.CutPrefix(ref, prefix)
	return ok && rest != "" && !strings.ContainsAny(rest, `/\`)
}

// DeleteEvent removes an event the same way the sweep does. An event that
// is already gone, for instance purged by a concurrent sweep, counts as
// deleted.
func (s *eventService) DeleteEvent(ctx context.Context, actor Actor, id uint) error {
	event, err := s.managed(ctx, actor, id)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("event already deleted", zap.Uint("event_id", id))
		return nil
	}
	if err != nil {
		return err
	}
	rep := s.purger.Purge(ctx, event)
	if !rep.Purged() {
		return fmt.Errorf("delete event %d: %w", id, errors.Join(rep.UploadRowErr, rep.EventRowErr))
	}
	return nil
}
