package intake

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"reisekosten/internal/core"
)

// MaxFileSize bounds a single receipt upload.
const MaxFileSize = 10 << 20

var (
	ErrEmptyFile       = errors.New("empty file")
	ErrFileTooLarge    = fmt.Errorf("file exceeds %d MiB", MaxFileSize>>20)
	ErrUnsupportedFile = errors.New("only images and PDF documents are accepted")
)

// Upload is a raw user-selected file.
type Upload struct {
	Name     string
	MIMEType string
	Data     []byte
}

// PendingFile is a queued receipt in its encoded form.
type PendingFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	DataURI  string `json:"data_uri"`
}

// Encode validates an upload and turns it into a data URI. The declared
// media type is sniffed from the content when missing or generic.
func Encode(u Upload) (PendingFile, error) {
	if len(u.Data) == 0 {
		return PendingFile{}, &core.ValidationError{Field: "image", Err: fmt.Errorf("%s: %w", u.Name, ErrEmptyFile)}
	}
	if len(u.Data) > MaxFileSize {
		return PendingFile{}, &core.ValidationError{Field: "image", Err: fmt.Errorf("%s: %w", u.Name, ErrFileTooLarge)}
	}

	mimeType := mediaType(u.MIMEType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mediaType(http.DetectContentType(u.Data))
	}
	if !strings.HasPrefix(mimeType, "image/") && mimeType != "application/pdf" {
		return PendingFile{}, &core.ValidationError{Field: "image", Err: fmt.Errorf("%s (%s): %w", u.Name, mimeType, ErrUnsupportedFile)}
	}

	return PendingFile{
		Name:     u.Name,
		MIMEType: mimeType,
		DataURI:  core.EncodeDataURI(mimeType, u.Data),
	}, nil
}

func mediaType(s string) string {
	if s == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return ""
	}
	return mt
}
