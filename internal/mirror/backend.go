package mirror

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Enabled  bool
	Backend  string
	BasePath string
	Timeout  time.Duration
	SMB      SMBConfig
	S3       S3Config
	Local    string
}

// FromConfig builds the process-wide mirror. Missing or incomplete settings
// disable the mirror with a warning rather than failing startup.
func FromConfig(cfg Config, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return Disabled()
	}

	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "smb", "":
		backend, err = NewSMBBackend(cfg.SMB)
	case "s3":
		backend, err = NewS3Backend(cfg.S3)
	case "local":
		backend, err = NewLocalBackend(cfg.Local)
	default:
		err = fmt.Errorf("unknown mirror backend %q", cfg.Backend)
	}
	if err != nil {
		logger.Warn("mirror disabled", zap.Error(err))
		return Disabled()
	}
	return New(backend, Options{BasePath: cfg.BasePath, Timeout: cfg.Timeout}, logger)
}
