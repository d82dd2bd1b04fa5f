package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *AssetStore {
	t.Helper()
	s, err := NewAssetStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func stage(t *testing.T, s *AssetStore, name, body string) *StagedFile {
	t.Helper()
	f, err := s.Stage(strings.NewReader(body), name)
	require.NoError(t, err)
	return f
}

func TestNewAssetStore_CreatesLayout(t *testing.T) {
	s := newStore(t)
	for _, dir := range []string{"events/temp", "qrcodes"} {
		fi, err := os.Stat(filepath.Join(s.Root(), dir))
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}
}

func TestPlaceUpload_MovesIntoEventDirectory(t *testing.T) {
	s := newStore(t)
	staged := stage(t, s, "holiday.JPG", "jpeg-bytes")
	assert.True(t, strings.HasSuffix(staged.Filename, ".jpg"))
	assert.Equal(t, int64(len("jpeg-bytes")), staged.Size)

	ref, err := s.PlaceUpload(7, staged.Path, staged.Filename, "holiday.JPG")
	require.NoError(t, err)
	assert.Equal(t, "events/7/"+staged.Filename, ref)

	abs, err := s.Resolve(ref)
	require.NoError(t, err)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	_, err = os.Stat(staged.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "staged file must be moved, not copied")
}

func TestPlaceUpload_RejectsTraversalBeforeTouchingDisk(t *testing.T) {
	s := newStore(t)
	staged := stage(t, s, "a.png", "x")

	cases := []struct{ generated, original string }{
		{"../../evil.png", "a.png"},
		{"..", "a.png"},
		{`..\evil.png`, "a.png"},
		{staged.Filename, "../../../etc/passwd"},
		{staged.Filename, `..\..\boot.ini`},
		{"", "a.png"},
	}
	for _, tc := range cases {
		_, err := s.PlaceUpload(1, staged.Path, tc.generated, tc.original)
		assert.ErrorIs(t, err, ErrUnsafePath, "generated=%q original=%q", tc.generated, tc.original)
	}

	_, err := os.Stat(filepath.Join(s.Root(), "events", "1"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "no directory may be created for a rejected placement")
	_, err = os.Stat(staged.Path)
	assert.NoError(t, err, "staged file stays in place")
}

func TestPlaceUpload_RejectsSourceOutsideStaging(t *testing.T) {
	s := newStore(t)
	outside := filepath.Join(t.TempDir(), "x.png")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	_, err := s.PlaceUpload(1, outside, "x.png", "x.png")
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestPlaceUpload_MissingSourceIsAssetError(t *testing.T) {
	s := newStore(t)
	_, err := s.PlaceUpload(1, filepath.Join(s.TempDir(), "gone.png"), "gone.png", "gone.png")
	var ae *AssetError
	assert.True(t, errors.As(err, &ae))
}

func TestPlaceCover_ReplacesPrevious(t *testing.T) {
	s := newStore(t)
	first := stage(t, s, "c1.png", "one")
	ref1, err := s.PlaceCover(3, first.Path, first.Filename, "")
	require.NoError(t, err)
	assert.Equal(t, "events/3/cover-"+first.Filename, ref1)

	second := stage(t, s, "c2.png", "two")
	ref2, err := s.PlaceCover(3, second.Path, second.Filename, ref1)
	require.NoError(t, err)

	abs1, _ := s.Resolve(ref1)
	_, err = os.Stat(abs1)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	abs2, _ := s.Resolve(ref2)
	_, err = os.Stat(abs2)
	assert.NoError(t, err)
}

func TestPlaceQRImage(t *testing.T) {
	s := newStore(t)
	ref, err := s.PlaceQRImage("ABCD1234", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "qrcodes/qr-ABCD1234.png", ref)

	data, err := os.ReadFile(filepath.Join(s.Root(), "qrcodes", "qr-ABCD1234.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	_, err = s.PlaceQRImage("../x", []byte("png"))
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestRemoveEventDirectory_Idempotent(t *testing.T) {
	s := newStore(t)
	staged := stage(t, s, "a.mp4", "v")
	_, err := s.PlaceUpload(9, staged.Path, staged.Filename, "a.mp4")
	require.NoError(t, err)

	require.NoError(t, s.RemoveEventDirectory(9))
	_, err = os.Stat(filepath.Join(s.Root(), "events", "9"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	assert.NoError(t, s.RemoveEventDirectory(9))
}

func TestRemoveFile_MissingIsNotAnError(t *testing.T) {
	s := newStore(t)
	assert.NoError(t, s.RemoveFile("events/1/never-existed.jpg"))
	assert.NoError(t, s.RemoveFile("/uploads/events/1/never-existed.jpg"))
}

func TestRemoveFile_RejectsEscapes(t *testing.T) {
	s := newStore(t)
	assert.ErrorIs(t, s.RemoveFile("../outside.txt"), ErrUnsafePath)
	assert.ErrorIs(t, s.RemoveFile("events/../../outside.txt"), ErrUnsafePath)
}

func TestRemoveFile_OtherFailuresSurface(t *testing.T) {
	s := newStore(t)
	dir := filepath.Join(s.Root(), "events", "4", "nested")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644))

	// Removing a non-empty directory with os.Remove fails with something
	// other than "not exist".
	err := s.RemoveFile("events/4/nested")
	var ae *AssetError
	assert.True(t, errors.As(err, &ae))
}

func TestValidateFilename(t *testing.T) {
	assert.NoError(t, ValidateFilename("IMG_0001.jpg"))
	assert.NoError(t, ValidateFilename("my..holiday.jpg"))
	assert.Error(t, ValidateFilename("a/b.jpg"))
	assert.Error(t, ValidateFilename("nul\x00.jpg"))
	for _, name := range []string{"", ".", "..", "../x.jpg", `..\x.jpg`, "a\\b.jpg"} {
		assert.ErrorIs(t, ValidateFilename(name), ErrUnsafePath, name)
	}
}

func TestDiscard_IgnoresPathsOutsideStaging(t *testing.T) {
	s := newStore(t)
	outside := filepath.Join(t.TempDir(), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	s.Discard(outside)
	_, err := os.Stat(outside)
	assert.NoError(t, err)

	staged := stage(t, s, "a.png", "x")
	s.Discard(staged.Path)
	_, err = os.Stat(staged.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
