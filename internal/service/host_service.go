package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"fotobox/eventhub/internal/cleanup"
	"fotobox/eventhub/internal/model"
	"fotobox/eventhub/internal/policy"
	"fotobox/eventhub/internal/repository"
	"fotobox/eventhub/pkg/crypto"
	jwtpkg "fotobox/eventhub/pkg/jwt"
)

const adminUsername = "admin"

// TokenSet represents a set of tokens returned after authentication.
type TokenSet struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	Host         *model.Host `json:"host"`
}

type CreateHostInput struct {
	Username      string
	Email         string
	Password      string
	MaxEvents     *int
	EventDate     *time.Time
	ExpiresInDays int
}

// HostPolicyUpdate changes the policy applied to events a host creates from
// now on. Existing events keep their expiry.
type HostPolicyUpdate struct {
	MaxEvents      *int
	ClearMaxEvents bool
	EventDate      *time.Time
	ClearEventDate bool
	ExpiresInDays  *int
}

// EventPurger removes one event with everything attached to it.
type EventPurger interface {
	Purge(ctx context.Context, event *model.Event) cleanup.Report
}

type HostService interface {
	CreateHost(ctx context.Context, in CreateHostInput) (*model.Host, error)
	ListHosts(ctx context.Context) ([]model.Host, error)
	GetHost(ctx context.Context, id uint) (*model.Host, error)
	UpdateHostPolicy(ctx context.Context, id uint, upd HostPolicyUpdate) (*model.Host, error)
	DeleteHost(ctx context.Context, id uint) error
	Authenticate(ctx context.Context, login, password string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	EnsureAdmin(ctx context.Context, password string) (generated string, err error)
}

type hostService struct {
	hosts       repository.HostRepository
	events      repository.EventRepository
	purger      EventPurger
	jwtManager  *jwtpkg.Manager
	defaultDays int
	logger      *zap.Logger
}

func NewHostService(
	hosts repository.HostRepository,
	events repository.EventRepository,
	purger EventPurger,
	jwtManager *jwtpkg.Manager,
	defaultExpiryDays int,
	logger *zap.Logger,
) HostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &hostService{
		hosts:       hosts,
		events:      events,
		purger:      purger,
		jwtManager:  jwtManager,
		defaultDays: policy.DurationOrDefault(0, defaultExpiryDays),
		logger:      logger.Named("hosts"),
	}
}

func validatePolicy(maxEvents *int, expiresInDays int) error {
	if maxEvents != nil && *maxEvents < 0 {
		return fmt.Errorf("%w: max_events must not be negative", ErrInvalidInput)
	}
	if expiresInDays < 0 {
		return fmt.Errorf("%w: expires_in_days must not be negative", ErrInvalidInput)
	}
	return nil
}

func (s *hostService) CreateHost(ctx context.Context, in CreateHostInput) (*model.Host, error) {
	return s.create(ctx, in, model.RoleHost)
}

func (s *hostService) create(ctx context.Context, in CreateHostInput, role model.Role) (*model.Host, error) {
	// 1. Validate input
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if err := validatePolicy(in.MaxEvents, in.ExpiresInDays); err != nil {
		return nil, err
	}
	days := in.ExpiresInDays
	if days == 0 {
		days = s.defaultDays
	}

	// 2. Hash password
	hash, err := crypto.HashPassword(in.Password)
	if errors.Is(err, crypto.ErrPasswordTooLong) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// 3. Persist; the unique indexes decide conflicts
	host := &model.Host{
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		Role:          role,
		MaxEvents:     in.MaxEvents,
		EventDate:     utcPtr(in.EventDate),
		ExpiresInDays: days,
	}
	if err := s.hosts.Create(ctx, host); err != nil {
		return nil, fmt.Errorf("create host %q: %w", username, translate(err))
	}
	s.logger.Info("host created", zap.Uint("host_id", host.ID), zap.String("role", string(role)))
	return host, nil
}

func (s *hostService) ListHosts(ctx context.Context) ([]model.Host, error) {
	hosts, err := s.hosts.List(ctx, model.RoleHost)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	return hosts, nil
}

func (s *hostService) GetHost(ctx context.Context, id uint) (*model.Host, error) {
	host, err := s.hosts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("host %d: %w", id, translate(err))
	}
	return host, nil
}

func (s *hostService) UpdateHostPolicy(ctx context.Context, id uint, upd HostPolicyUpdate) (*model.Host, error) {
	host, err := s.GetHost(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case upd.ClearMaxEvents:
		host.MaxEvents = nil
	case upd.MaxEvents != nil:
		host.MaxEvents = upd.MaxEvents
	}
	switch {
	case upd.ClearEventDate:
		host.EventDate = nil
	case upd.EventDate != nil:
		host.EventDate = utcPtr(upd.EventDate)
	}
	if upd.ExpiresInDays != nil {
		if *upd.ExpiresInDays <= 0 {
			return nil, fmt.Errorf("%w: expires_in_days must be positive", ErrInvalidInput)
		}
		host.ExpiresInDays = *upd.ExpiresInDays
	}
	if err := validatePolicy(host.MaxEvents, host.ExpiresInDays); err != nil {
		return nil, err
	}

	if err := s.hosts.Update(ctx, host); err != nil {
		return nil, fmt.Errorf("update host %d: %w", id, translate(err))
	}
	return host, nil
}

// DeleteHost purges every event the host owns, then removes the host. If
// any event cannot be purged the host row stays so the call can be repeated.
func (s *hostService) DeleteHost(ctx context.Context, id uint) error {
	host, err := s.GetHost(ctx, id)
	if err != nil {
		return err
	}
	if host.IsAdmin() {
		return fmt.Errorf("%w: admin accounts cannot be deleted", ErrForbidden)
	}

	events, err := s.events.ListByHost(ctx, id)
	if err != nil {
		return fmt.Errorf("list events of host %d: %w", id, err)
	}
	var failed []error
	for i := range events {
		rep := s.purger.Purge(ctx, &events[i])
		if !rep.Purged() {
			failed = append(failed, fmt.Errorf("event %d: %w", events[i].ID, errors.Join(rep.UploadRowErr, rep.EventRowErr)))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("delete host %d: %w", id, errors.Join(failed...))
	}

	if err := s.hosts.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete host %d: %w", id, translate(err))
	}
	s.logger.Info("host deleted", zap.Uint("host_id", id), zap.Int("events_purged", len(events)))
	return nil
}

func (s *hostService) Authenticate(ctx context.Context, login, password string) (*TokenSet, error) {
	host, err := s.hosts.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find host: %w", err)
	}
	if !crypto.CheckPassword(password, host.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(host)
}

func (s *hostService) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	claims, err := s.jwtManager.Validate(refreshToken)
	if err != nil || claims.TokenType != jwtpkg.TokenTypeRefresh {
		return nil, ErrTokenInvalid
	}
	id, err := claims.HostID()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	host, err := s.hosts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("find host: %w", err)
	}
	return s.issue(host)
}

func (s *hostService) issue(host *model.Host) (*TokenSet, error) {
	access, err := s.jwtManager.GenerateAccessToken(host.ID, string(host.Role))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.jwtManager.GenerateRefreshToken(host.ID, string(host.Role))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwtManager.AccessTTL().Seconds()),
		Host:         host,
	}, nil
}

// EnsureAdmin creates the admin account on first boot. When password is
// empty a random one is generated and returned so it can be shown once.
func (s *hostService) EnsureAdmin(ctx context.Context, password string) (string, error) {
	admins, err := s.hosts.List(ctx, model.RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("list admins: %w", err)
	}
	if len(admins) > 0 {
		return "", nil
	}

	var generated string
	if password == "" {
		if generated, err = crypto.GeneratePassword(); err != nil {
			return "", err
		}
		password = generated
	}
	if _, err := s.create(ctx, CreateHostInput{
		Username: adminUsername,
		Email:    adminUsername + "@localhost",
		Password: password,
	}, model.RoleAdmin); err != nil {
		return "", err
	}
	return generated, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
