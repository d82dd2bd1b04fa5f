// Package mirror copies uploaded files to an optional remote share. Every
// remote operation is bounded by a timeout and a failure never reaches the
// upload path: it is logged, the connection is dropped and the next call
// mounts again.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultTimeout = 30 * time.Second

type State int32

const (
	StateDisabled State = iota
	StateUnmounted
	StateMounting
	StateMounted
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateUnmounted:
		return "unmounted"
	case StateMounting:
		return "mounting"
	case StateMounted:
		return "mounted"
	}
	return "unknown"
}

// Backend opens a connection to one kind of remote store.
type Backend interface {
	Name() string
	Mount(ctx context.Context) (Share, error)
}

// Share is a mounted remote store. Paths use forward slashes.
type Share interface {
	MkdirAll(ctx context.Context, dir string) error
	Put(ctx context.Context, remotePath string, r io.Reader, size int64) error
	Close() error
}

// MirrorError is a failed sync. It is only ever logged by callers.
type MirrorError struct {
	Op      string
	EventID uint
	Err     error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s (event %d): %v", e.Op, e.EventID, e.Err)
}

func (e *MirrorError) Unwrap() error { return e.Err }

var ErrClosed = errors.New("mirror closed")

type Options struct {
	BasePath string
	Timeout  time.Duration
}

type Mirror struct {
	backend  Backend
	basePath string
	timeout  time.Duration
	logger   *zap.Logger

	mounts singleflight.Group
	mu     sync.Mutex
	share  Share
	state  atomic.Int32

	// closeMu orders wg.Add in Enqueue against wg.Wait in Close.
	closeMu sync.Mutex
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New builds a mirror. A nil backend yields a disabled mirror whose
// operations are no-ops.
func New(backend Backend, opts Options, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	m := &Mirror{
		backend:  backend,
		basePath: strings.Trim(opts.BasePath, "/"),
		timeout:  opts.Timeout,
		logger:   logger.Named("mirror"),
	}
	if backend == nil {
		m.state.Store(int32(StateDisabled))
	} else {
		m.state.Store(int32(StateUnmounted))
	}
	return m
}

// Disabled returns a mirror that never does anything.
func Disabled() *Mirror { return New(nil, Options{}, nil) }

func (m *Mirror) State() State { return State(m.state.Load()) }

func (m *Mirror) Enabled() bool { return m.backend != nil }

// FolderName is the per-event remote folder, "<name>_<id>".
func FolderName(eventName string, eventID uint) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(eventName))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "event"
	}
	return name + "_" + strconv.FormatUint(uint64(eventID), 10)
}

// RemotePath is where Sync puts a file. An existing remote file with the
// same display name is overwritten; callers pass names that are unique
// within the event.
func (m *Mirror) RemotePath(eventID uint, eventName, displayName string) string {
	return path.Join("/", m.basePath, FolderName(eventName, eventID), remoteFilename(displayName))
}

func remoteFilename(displayName string) string {
	name := path.Base(strings.ReplaceAll(displayName, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "upload"
	}
	return name
}

// Sync copies localPath to the event folder on the remote share. It returns
// a *MirrorError on failure so tests can observe it, but callers on the
// upload path should use Enqueue.
func (m *Mirror) Sync(ctx context.Context, eventID uint, eventName, localPath, displayName string) error {
	if !m.Enabled() {
		return nil
	}
	if m.closed.Load() {
		return &MirrorError{Op: "sync", EventID: eventID, Err: ErrClosed}
	}

	share, err := m.ensureMounted(ctx)
	if err != nil {
		return m.fail("mount", eventID, err)
	}

	remote := m.RemotePath(eventID, eventName, displayName)
	if err := m.bounded(ctx, func(ctx context.Context) error {
		return share.MkdirAll(ctx, path.Dir(remote))
	}); err != nil {
		m.drop(share)
		return m.fail("mkdir", eventID, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return m.fail("open", eventID, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return m.fail("stat", eventID, err)
	}

	if err := m.bounded(ctx, func(ctx context.Context) error {
		return share.Put(ctx, remote, f, fi.Size())
	}); err != nil {
		m.drop(share)
		return m.fail("put", eventID, err)
	}

	m.logger.Debug("file mirrored", zap.Uint("event_id", eventID), zap.String("remote", remote))
	return nil
}

// Enqueue runs Sync in the background. The caller never waits for or sees
// the result.
func (m *Mirror) Enqueue(eventID uint, eventName, localPath, displayName string) {
	if !m.Enabled() {
		return
	}
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed.Load() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.Sync(context.Background(), eventID, eventName, localPath, displayName)
	}()
}

// Close waits for queued syncs and unmounts.
func (m *Mirror) Close() error {
	m.closeMu.Lock()
	swapped := m.closed.CompareAndSwap(false, true)
	m.closeMu.Unlock()
	if !swapped {
		return nil
	}
	m.wg.Wait()

	m.mu.Lock()
	share := m.share
	m.share = nil
	m.mu.Unlock()
	if m.Enabled() {
		m.state.Store(int32(StateUnmounted))
	}
	if share != nil {
		return share.Close()
	}
	return nil
}

func (m *Mirror) current() Share {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.share
}

// ensureMounted returns the live share, mounting it if needed. Concurrent
// callers share one mount attempt.
func (m *Mirror) ensureMounted(ctx context.Context) (Share, error) {
	if share := m.current(); share != nil {
		return share, nil
	}

	v, err, _ := m.mounts.Do("mount", func() (interface{}, error) {
		if share := m.current(); share != nil {
			return share, nil
		}
		m.state.Store(int32(StateMounting))

		mountCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		type result struct {
			share Share
			err   error
		}
		done := make(chan result, 1)
		go func() {
			share, err := m.backend.Mount(mountCtx)
			if err == nil && mountCtx.Err() != nil {
				_ = share.Close()
				share, err = nil, mountCtx.Err()
			}
			done <- result{share, err}
		}()

		var res result
		select {
		case res = <-done:
		case <-mountCtx.Done():
			res.err = mountCtx.Err()
		}
		if res.err != nil {
			m.state.Store(int32(StateUnmounted))
			return nil, res.err
		}

		m.mu.Lock()
		m.share = res.share
		m.mu.Unlock()
		m.state.Store(int32(StateMounted))
		m.logger.Info("remote share mounted", zap.String("backend", m.backend.Name()))
		return res.share, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Share), nil
}

// bounded runs fn and gives up after the configured timeout even if fn
// ignores its context.
func (m *Mirror) bounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drop forgets a share that failed so the next sync mounts afresh.
func (m *Mirror) drop(share Share) {
	m.mu.Lock()
	if m.share != share {
		m.mu.Unlock()
		return
	}
	m.share = nil
	m.mu.Unlock()
	m.state.Store(int32(StateUnmounted))
	go func() { _ = share.Close() }()
}

func (m *Mirror) fail(op string, eventID uint, err error) error {
	merr := &MirrorError{Op: op, EventID: eventID, Err: err}
	m.logger.Warn("mirror sync failed",
		zap.String("op", op),
		zap.Uint("event_id", eventID),
		zap.Error(err),
	)
	return merr
}
