package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// localBackend writes into a directory where the share is already mounted
// by the operating system (CIFS, NFS).
type localBackend struct {
	mountPoint string
}

func NewLocalBackend(mountPoint string) (Backend, error) {
	if mountPoint == "" {
		return nil, errors.New("local mirror needs a mount point")
	}
	return &localBackend{mountPoint: mountPoint}, nil
}

func (b *localBackend) Name() string { return "local" }

func (b *localBackend) Mount(context.Context) (Share, error) {
	fi, err := os.Stat(b.mountPoint)
	if err != nil {
		return nil, fmt.Errorf("mount point: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("mount point %s is not a directory", b.mountPoint)
	}
	return &localShare{root: b.mountPoint}, nil
}

type localShare struct {
	root string
}

func (s *localShare) abs(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

func (s *localShare) MkdirAll(_ context.Context, dir string) error {
	return os.MkdirAll(s.abs(dir), 0o755)
}

func (s *localShare) Put(_ context.Context, remotePath string, r io.Reader, _ int64) error {
	dst := s.abs(remotePath)
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".mirror-*")
	if err != nil {
		return err
	}
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
	}
	return err
}

func (s *localShare) Close() error { return nil }
