package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/sha3"

	"microchat/internal/models"
	"microchat/internal/repositories"
)

// Upload is one file handed to Files.Upload.
type Upload struct {
	Name string
	Body io.Reader
	// Kind forces a media kind. Empty lets the MIME type decide.
	Kind models.MediaKind
	// Preview is an optional JPEG shown in place of image, video and
	// animation media.
	Preview io.Reader
}

// Files stores uploads content-addressed by their SHA3-512 hash.
type Files struct {
	media repositories.MediaRepository
	log   *slog.Logger
}

func NewFiles(media repositories.MediaRepository, log *slog.Logger) *Files {
	return &Files{media: media, log: log}
}

// Upload validates the MIME type against the requested or detected kind
// and stores the file. Uploading identical content twice yields the same media.
func (f *Files) Upload(ctx context.Context, user models.Actor, upload Upload) (models.Media, error) {
	ctx, span := tracer.Start(ctx, "Files.Upload")
	defer span.End()

	var preview *models.Media
	if upload.Preview != nil {
		stored, err := f.store(ctx, user, upload.Name+".preview.jpg", upload.Preview, models.MediaPreview)
		if err != nil {
			return models.Media{}, fmt.Errorf("preview: %w", err)
		}
		preview = &stored
	}

	var media models.Media
	err := f.withSpooled(ctx, upload.Body, func(tmp string, hash string, size int64, mimeType, subtype string) error {
		kind := upload.Kind
		if kind == "" {
			detected, ok := models.KindForMIME(mimeType, subtype)
			if !ok {
				return fmt.Errorf("%w: %s/%s", ErrUnsupportedMIME, mimeType, subtype)
			}
			kind = detected
		} else if !kind.Accepts(mimeType, subtype) {
			return fmt.Errorf("%w: %s/%s is not %s", ErrUnsupportedMIME, mimeType, subtype, kind)
		}
		if preview != nil && !kind.HasPreview() {
			return invalid(fmt.Sprintf("%s media cannot have a preview", kind))
		}

		saved, err := f.media.SaveMedia(ctx, models.Media{
			Hash:     hash,
			Name:     filepath.Base(upload.Name),
			Kind:     kind,
			Type:     mimeType,
			Subtype:  subtype,
			Size:     size,
			LoadedBy: user.ID,
			Preview:  preview,
		}, tmp)
		if err != nil {
			return storageErr("save media", err)
		}
		media = saved
		return nil
	})
	if err != nil {
		return models.Media{}, err
	}
	f.log.Info("Media stored", "hash", media.Hash, "kind", media.Kind, "size", media.Size, "user_id", user.ID)
	return media, nil
}

func (f *Files) store(ctx context.Context, user models.Actor, name string, body io.Reader, kind models.MediaKind) (models.Media, error) {
	var media models.Media
	err := f.withSpooled(ctx, body, func(tmp, hash string, size int64, mimeType, subtype string) error {
		if !kind.Accepts(mimeType, subtype) {
			return fmt.Errorf("%w: %s/%s is not %s", ErrUnsupportedMIME, mimeType, subtype, kind)
		}
		saved, err := f.media.SaveMedia(ctx, models.Media{
			Hash:     hash,
			Name:     filepath.Base(name),
			Kind:     kind,
			Type:     mimeType,
			Subtype:  subtype,
			Size:     size,
			LoadedBy: user.ID,
		}, tmp)
		if err != nil {
			return storageErr("save media", err)
		}
		media = saved
		return nil
	})
	return media, err
}

// withSpooled copies body into a temp file while hashing it, sniffs the MIME
// type and hands everything to save. The temp file is removed unless save
// moved it away.
func (f *Files) withSpooled(ctx context.Context, body io.Reader, save func(tmp, hash string, size int64, mimeType, subtype string) error) error {
	tmp, err := f.media.CreateTempFile(ctx)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha3.New512()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}
	if size == 0 {
		return invalid("empty file")
	}

	detected, err := mimetype.DetectFile(tmp.Name())
	if err != nil {
		return fmt.Errorf("detect mime: %w", err)
	}
	mimeType, subtype := splitMIME(detected.String())
	return save(tmp.Name(), hex.EncodeToString(hasher.Sum(nil)), size, mimeType, subtype)
}

// splitMIME drops parameters and splits "type/subtype".
func splitMIME(raw string) (string, string) {
	raw, _, _ = strings.Cut(raw, ";")
	mimeType, subtype, _ := strings.Cut(strings.TrimSpace(raw), "/")
	return mimeType, subtype
}

// Open returns the media stored under hash and a reader of its content.
func (f *Files) Open(ctx context.Context, hash string) (models.Media, io.ReadCloser, error) {
	media, err := f.media.GetByHash(ctx, hash)
	if err != nil {
		return models.Media{}, nil, storageErr("get media", err)
	}
	body, err := f.media.Open(ctx, media)
	if err != nil {
		return models.Media{}, nil, storageErr("open media", err)
	}
	return media, body, nil
}
