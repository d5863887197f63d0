package services

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"microchat/internal/mocks"
	"microchat/internal/models"
	"microchat/internal/repositories"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)
	jpegBytes = append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), bytes.Repeat([]byte{1}, 32)...)
)

func newFiles(t *testing.T) (*Files, *fixture) {
	t.Helper()
	blobs, err := repositories.NewBlobs(t.TempDir())
	require.NoError(t, err)
	f := newFixture(t, blobs)
	return NewFiles(f.store.Storage().Media, logs.GetLoggerFromLevel(slog.LevelDebug)), f
}

func sha3Hex(data []byte) string {
	sum := sha3.Sum512(data)
	return hex.EncodeToString(sum[:])
}

func TestUpload_DetectsKindAndDeduplicates(t *testing.T) {
	files, f := newFiles(t)
	alice := f.actor(t, "alice")

	media, err := files.Upload(f.ctx, alice, Upload{Name: "../../cat.png", Body: bytes.NewReader(pngBytes)})
	require.NoError(t, err)
	assert.Equal(t, models.MediaImage, media.Kind)
	assert.Equal(t, "image/png", media.MIME())
	assert.Equal(t, sha3Hex(pngBytes), media.Hash)
	assert.Equal(t, int64(len(pngBytes)), media.Size)
	assert.Equal(t, "cat.png", media.Name)
	assert.Equal(t, alice.ID, media.LoadedBy)

	again, err := files.Upload(f.ctx, alice, Upload{Name: "copy.png", Body: bytes.NewReader(pngBytes)})
	require.NoError(t, err)
	assert.Equal(t, media.Hash, again.Hash)
	assert.Equal(t, "cat.png", again.Name, "first upload wins")

	stored, body, err := files.Open(f.ctx, media.Hash)
	require.NoError(t, err)
	defer body.Close()
	content, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, content)
	assert.Equal(t, media.Hash, stored.Hash)
}

func TestUpload_UnknownTypesAreFiles(t *testing.T) {
	files, f := newFiles(t)
	alice := f.actor(t, "alice")

	media, err := files.Upload(f.ctx, alice, Upload{Name: "notes.txt", Body: strings.NewReader("plain words")})

	require.NoError(t, err)
	assert.Equal(t, models.MediaFile, media.Kind)
	assert.Equal(t, "text", media.Type)
	assert.Equal(t, "plain", media.Subtype)
}

func TestUpload_Rejections(t *testing.T) {
	files, f := newFiles(t)
	alice := f.actor(t, "alice")

	_, err := files.Upload(f.ctx, alice, Upload{Name: "fake.png", Body: strings.NewReader("plain words"), Kind: models.MediaImage})
	assert.ErrorIs(t, err, ErrUnsupportedMIME)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = files.Upload(f.ctx, alice, Upload{Name: "empty", Body: strings.NewReader("")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = files.Upload(f.ctx, alice, Upload{Name: "notes.txt", Body: strings.NewReader("words"), Preview: bytes.NewReader(jpegBytes)})
	assert.ErrorIs(t, err, ErrValidation, "files carry no preview")

	_, err = files.Upload(f.ctx, alice, Upload{Name: "cat.png", Body: bytes.NewReader(pngBytes), Preview: bytes.NewReader(pngBytes)})
	assert.ErrorIs(t, err, ErrUnsupportedMIME, "previews are JPEG")

	_, _, err = files.Open(f.ctx, "unknown")
	assert.ErrorIs(t, err, ErrDoesNotExist)
}

func TestUpload_WithPreview(t *testing.T) {
	files, f := newFiles(t)
	alice := f.actor(t, "alice")

	media, err := files.Upload(f.ctx, alice, Upload{Name: "cat.png", Body: bytes.NewReader(pngBytes), Preview: bytes.NewReader(jpegBytes)})

	require.NoError(t, err)
	require.NotNil(t, media.Preview)
	assert.Equal(t, models.MediaPreview, media.Preview.Kind)
	assert.Equal(t, sha3Hex(jpegBytes), media.Preview.Hash)
}

func TestUpload_StorageFailures(t *testing.T) {
	alice := models.Actor{ID: 1}
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	t.Run("temp file", func(t *testing.T) {
		repo := new(mocks.MediaRepositoryMock)
		repo.On("CreateTempFile", mock.Anything).Return(nil, errors.New("disk full")).Once()

		_, err := NewFiles(repo, log).Upload(t.Context(), alice, Upload{Name: "a.png", Body: bytes.NewReader(pngBytes)})

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrValidation)
		repo.AssertExpectations(t)
	})

	t.Run("save", func(t *testing.T) {
		repo := new(mocks.MediaRepositoryMock)
		tmp, err := os.CreateTemp(t.TempDir(), "upload-*")
		require.NoError(t, err)
		repo.On("CreateTempFile", mock.Anything).Return(tmp, nil).Once()
		repo.On("SaveMedia", mock.Anything, mock.MatchedBy(func(m models.Media) bool {
			return m.Hash == sha3Hex(pngBytes) && m.Kind == models.MediaImage && m.LoadedBy == alice.ID
		}), tmp.Name()).Return(nil, errors.New("insert failed")).Once()

		_, err = NewFiles(repo, log).Upload(t.Context(), alice, Upload{Name: "a.png", Body: bytes.NewReader(pngBytes)})

		require.ErrorContains(t, err, "insert failed")
		repo.AssertExpectations(t)
		_, statErr := os.Stat(tmp.Name())
		assert.True(t, os.IsNotExist(statErr), "temp file is cleaned up")
	})
}
