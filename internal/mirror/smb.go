package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"

	"github.com/hirochachacha/go-smb2"
)

type SMBConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Domain   string
	Share    string
}

func (c SMBConfig) complete() bool {
	return c.Host != "" && c.Username != "" && c.Password != "" && c.Share != ""
}

type smbBackend struct {
	cfg SMBConfig
}

func NewSMBBackend(cfg SMBConfig) (Backend, error) {
	if !cfg.complete() {
		return nil, errors.New("smb mirror needs host, username, password and share")
	}
	if cfg.Port == 0 {
		cfg.Port = 445
	}
	return &smbBackend{cfg: cfg}, nil
}

func (b *smbBackend) Name() string { return "smb" }

func (b *smbBackend) Mount(ctx context.Context) (Share, error) {
	addr := net.JoinHostPort(b.cfg.Host, fmt.Sprint(b.cfg.Port))
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     b.cfg.Username,
			Password: b.cfg.Password,
			Domain:   b.cfg.Domain,
		},
	}
	session, err := d.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smb session: %w", err)
	}

	fsys, err := session.Mount(fmt.Sprintf(`\\%s\%s`, b.cfg.Host, b.cfg.Share))
	if err != nil {
		_ = session.Logoff()
		return nil, fmt.Errorf("mount share %s: %w", b.cfg.Share, err)
	}
	return &smbShare{session: session, fs: fsys}, nil
}

type smbShare struct {
	session *smb2.Session
	fs      *smb2.Share
}

func smbPath(p string) string {
	return strings.ReplaceAll(strings.TrimPrefix(p, "/"), "/", `\`)
}

func (s *smbShare) MkdirAll(ctx context.Context, dir string) error {
	err := s.fs.WithContext(ctx).MkdirAll(smbPath(dir), 0o755)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return nil
}

func (s *smbShare) Put(ctx context.Context, remotePath string, r io.Reader, _ int64) error {
	f, err := s.fs.WithContext(ctx).Create(smbPath(remotePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *smbShare) Close() error {
	uerr := s.fs.Umount()
	lerr := s.session.Logoff()
	return errors.Join(uerr, lerr)
}
