// Package storage owns the on-disk layout of uploaded media:
//
//	<root>/events/<event_id>/<generated_filename>        guest uploads
//	<root>/events/<event_id>/cover-<generated_filename>  cover image
//	<root>/qrcodes/qr-<event_code>.png                   QR images
//	<root>/events/temp/                                  staging area
//
// Every reference handed out is relative to the root and uses forward slashes.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	eventsDir   = "events"
	tempDir     = "temp"
	qrcodesDir  = "qrcodes"
	coverPrefix = "cover-"
)

var ErrUnsafePath = errors.New("unsafe path")

// AssetError is a failed filesystem operation.
type AssetError struct {
	Op   string
	Path string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// StagedFile is an incoming file written to the staging area.
type StagedFile struct {
	Path             string
	Filename         string
	OriginalFilename string
	Size             int64
}

type AssetStore struct {
	root   string
	logger *zap.Logger
}

// NewAssetStore prepares the directory skeleton under root.
func NewAssetStore(root string, logger *zap.Logger) (*AssetStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	for _, dir := range []string{
		filepath.Join(abs, eventsDir, tempDir),
		filepath.Join(abs, qrcodesDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &AssetError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetStore{root: abs, logger: logger}, nil
}

func (s *AssetStore) Root() string { return s.root }

func (s *AssetStore) TempDir() string { return filepath.Join(s.root, eventsDir, tempDir) }

func (s *AssetStore) eventDir(eventID uint) string {
	return filepath.Join(s.root, eventsDir, strconv.FormatUint(uint64(eventID), 10))
}

// ValidateFilename rejects names that could leave their directory.
func ValidateFilename(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrUnsafePath, name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return nil
}

// GenerateFilename builds a collision-resistant name keeping the original
// extension.
func GenerateFilename(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if strings.ContainsAny(ext, `/\`) || len(ext) > 16 {
		ext = ""
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12], ext)
}

// Resolve maps a stored reference back to an absolute path inside the root.
// Legacy references prefixed with /uploads/ are accepted.
func (s *AssetStore) Resolve(ref string) (string, error) {
	ref = strings.TrimPrefix(filepath.ToSlash(ref), "/uploads/")
	ref = strings.TrimPrefix(ref, "/")
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, ref)
		}
	}
	clean := path.Clean(ref)
	if clean == "." || clean == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, ref)
	}
	abs := filepath.Join(s.root, filepath.FromSlash(clean))
	if !s.within(s.root, abs) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, ref)
	}
	return abs, nil
}

func (s *AssetStore) within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Stage copies r into the staging area under a generated name.
func (s *AssetStore) Stage(r io.Reader, originalName string) (*StagedFile, error) {
	original := filepath.Base(filepath.ToSlash(originalName))
	if err := ValidateFilename(original); err != nil {
		return nil, err
	}
	name := GenerateFilename(original)
	dst := filepath.Join(s.TempDir(), name)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &AssetError{Op: "stage", Path: dst, Err: err}
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return nil, &AssetError{Op: "stage", Path: dst, Err: err}
	}
	return &StagedFile{Path: dst, Filename: name, OriginalFilename: original, Size: n}, nil
}

// Discard removes a staged file that will not be placed.
func (s *AssetStore) Discard(stagedPath string) {
	if !s.within(s.TempDir(), stagedPath) {
		return
	}
	if err := os.Remove(stagedPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("discard staged file failed", zap.String("path", stagedPath), zap.Error(err))
	}
}

// place moves a staged file into the event directory with a rename, so the
// target either appears complete or not at all.
func (s *AssetStore) place(op string, eventID uint, sourceTempPath, filename string) (string, error) {
	if eventID == 0 {
		return "", fmt.Errorf("%w: event id 0", ErrUnsafePath)
	}
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	src, err := filepath.Abs(sourceTempPath)
	if err != nil || !s.within(s.TempDir(), src) {
		return "", fmt.Errorf("%w: source %q is outside the staging area", ErrUnsafePath, sourceTempPath)
	}

	dir := s.eventDir(eventID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &AssetError{Op: op, Path: dir, Err: err}
	}
	dst := filepath.Join(dir, filename)
	if err := os.Rename(src, dst); err != nil {
		return "", &AssetError{Op: op, Path: dst, Err: err}
	}
	return path.Join(eventsDir, strconv.FormatUint(uint64(eventID), 10), filename), nil
}

// PlaceUpload moves a staged guest upload into the event directory and
// returns its stored reference. Both names are checked before any
// filesystem access.
func (s *AssetStore) PlaceUpload(eventID uint, sourceTempPath, generatedFilename, originalFilename string) (string, error) {
	if err := ValidateFilename(originalFilename); err != nil {
		return "", err
	}
	return s.place("place upload", eventID, sourceTempPath, generatedFilename)
}

// PlaceCover installs a new cover image and then removes the previous one.
func (s *AssetStore) PlaceCover(eventID uint, sourceTempPath, generatedFilename, previous string) (string, error) {
	ref, err := s.place("place cover", eventID, sourceTempPath, coverPrefix+generatedFilename)
	if err != nil {
		return "", err
	}
	if previous != "" && previous != ref {
		if err := s.RemoveFile(previous); err != nil {
			s.logger.Warn("remove previous cover failed", zap.Uint("event_id", eventID), zap.Error(err))
		}
	}
	return ref, nil
}

// PlaceQRImage writes the PNG for code and returns its reference.
func (s *AssetStore) PlaceQRImage(code string, png []byte) (string, error) {
	name := "qr-" + code + ".png"
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, qrcodesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &AssetError{Op: "place qr", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".qr-*")
	if err != nil {
		return "", &AssetError{Op: "place qr", Path: dir, Err: err}
	}
	_, err = tmp.Write(png)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	dst := filepath.Join(dir, name)
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", &AssetError{Op: "place qr", Path: dst, Err: err}
	}
	return path.Join(qrcodesDir, name), nil
}

// RemoveEventDirectory deletes the event directory recursively. A missing
// directory is not an error.
func (s *AssetStore) RemoveEventDirectory(eventID uint) error {
	if eventID == 0 {
		return fmt.Errorf("%w: event id 0", ErrUnsafePath)
	}
	dir := s.eventDir(eventID)
	if err := os.RemoveAll(dir); err != nil {
		return &AssetError{Op: "remove dir", Path: dir, Err: err}
	}
	return nil
}

// RemoveFile deletes one stored file. A file that is already gone is logged
// and treated as removed; any other failure is returned for the caller to
// report.
func (s *AssetStore) RemoveFile(ref string) error {
	abs, err := s.Resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("file already gone", zap.String("path", ref))
			return nil
		}
		return &AssetError{Op: "remove", Path: abs, Err: err}
	}
	return nil
}
