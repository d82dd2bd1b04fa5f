package service

import (
	"errors"

	"fotobox/eventhub/internal/mirror"
	"fotobox/eventhub/internal/policy"
	"fotobox/eventhub/internal/repository"
	"fotobox/eventhub/internal/storage"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrExpired            = errors.New("event has expired")
	ErrConflict           = errors.New("already exists")
	ErrForbidden          = errors.New("not allowed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnsupportedMedia   = errors.New("only image and video files are allowed")
	ErrTokenInvalid       = errors.New("token invalid or expired")

	// ErrQuotaExceeded is matched by every *QuotaError.
	ErrQuotaExceeded = policy.ErrQuotaExceeded
)

type (
	QuotaError  = policy.QuotaError
	AssetError  = storage.AssetError
	MirrorError = mirror.MirrorError
)

// translate maps repository sentinels onto service sentinels and leaves
// everything else untouched.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	}
	return err
}
