package models

import (
	"fmt"
	"strings"
	"time"
)

// MediaKind is the closed set of media classes a chat can hold.
type MediaKind string

const (
	MediaImage     MediaKind = "image"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaAnimation MediaKind = "animation"
	MediaFile      MediaKind = "file"
	MediaPreview   MediaKind = "preview"
)

var (
	imageSubtypes = set("gif", "jpeg", "pjpeg", "png", "svg+xml", "tiff", "vnd.microsoft.icon", "vnd.wap.wbmp", "webp")
	videoSubtypes = set("mpeg", "mp4", "ogg", "quicktime", "webm", "x-ms-wmv", "x-flv", "x-msvideo", "3gpp", "3gpp2")
	audioSubtypes = set("basic", "L24", "mp4", "aac", "mpeg", "ogg", "vorbis", "x-ms-wma", "x-ms-wax", "vnd.rn-realaudio", "vnd.wave", "webm")
)

func set(items ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}

// ParseMediaKind validates a kind coming from a request path.
func ParseMediaKind(raw string) (MediaKind, error) {
	switch kind := MediaKind(strings.ToLower(raw)); kind {
	case MediaImage, MediaVideo, MediaAudio, MediaAnimation, MediaFile, MediaPreview:
		return kind, nil
	}
	return "", fmt.Errorf("unknown media kind %q", raw)
}

// HasPreview reports whether media of this kind carries a preview image.
func (k MediaKind) HasPreview() bool {
	switch k {
	case MediaImage, MediaVideo, MediaAnimation:
		return true
	}
	return false
}

// Accepts reports whether a MIME type/subtype pair can be stored as this kind.
func (k MediaKind) Accepts(mimeType, subtype string) bool {
	switch k {
	case MediaImage:
		return mimeType == "image" && has(imageSubtypes, subtype)
	case MediaVideo:
		return mimeType == "video" && has(videoSubtypes, subtype)
	case MediaAudio:
		return mimeType == "audio" && has(audioSubtypes, subtype)
	case MediaAnimation:
		return mimeType == "video" && subtype == "webm"
	case MediaPreview:
		return mimeType == "image" && subtype == "jpeg"
	case MediaFile:
		return mimeType != "" && subtype != ""
	}
	return false
}

func has(s map[string]struct{}, key string) bool {
	_, ok := s[key]
	return ok
}

// KindForMIME picks the default kind for an uploaded MIME type. Unknown
// image, audio and video subtypes are rejected; anything else is a file.
func KindForMIME(mimeType, subtype string) (MediaKind, bool) {
	switch mimeType {
	case "image":
		return MediaImage, has(imageSubtypes, subtype)
	case "video":
		return MediaVideo, has(videoSubtypes, subtype)
	case "audio":
		return MediaAudio, has(audioSubtypes, subtype)
	case "":
		return "", false
	}
	return MediaFile, subtype != ""
}

// Media is a stored file together with its classification.
type Media struct {
	ID       int64     `db:"id" json:"-"`
	Hash     string    `db:"hash" json:"hash"`
	Name     string    `db:"name" json:"name"`
	Kind     MediaKind `db:"kind" json:"kind"`
	Type     string    `db:"mime_type" json:"type"`
	Subtype  string    `db:"mime_subtype" json:"subtype"`
	Size     int64     `db:"size" json:"size"`
	Path     string    `db:"path" json:"-"`
	LoadedAt time.Time `db:"loaded_at" json:"loaded_at"`
	LoadedBy int64     `db:"loaded_by" json:"loaded_by"`
	Preview  *Media    `db:"-" json:"preview,omitempty"`
}

// MIME renders the type/subtype pair.
func (m Media) MIME() string {
	return m.Type + "/" + m.Subtype
}
