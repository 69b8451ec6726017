// This file implements parsing of query strings, JSON bodies and multipart
// uploads into domain values.

package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"reisekosten/internal/core"
	"reisekosten/internal/intake"
	"reisekosten/internal/services"
)

// maxJSONBody fits one receipt of intake.MaxFileSize as a data URI.
var maxJSONBody = int64(base64.StdEncoding.EncodedLen(intake.MaxFileSize) + 64<<10)

const (
	// maxFilesPerUpload bounds a single intake selection.
	maxFilesPerUpload = 20
	maxUploadBody     = maxFilesPerUpload*intake.MaxFileSize + 1<<20
	defaultLatest     = 3
	maxLatest         = 100
)

var ErrMalformedBody = errors.New("malformed request body")

// ParseCriteria reads category, from, to and q from the query string.
func ParseCriteria(query url.Values) (services.Criteria, error) {
	var c services.Criteria
	if v := strings.TrimSpace(query.Get("category")); v != "" {
		cat, err := core.ParseCategory(v)
		if err != nil {
			return c, &core.ValidationError{Field: "category", Err: err}
		}
		c.Category = cat
	}
	for _, p := range []struct {
		key string
		dst *core.Date
	}{{"from", &c.From}, {"to", &c.To}} {
		v := strings.TrimSpace(query.Get(p.key))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			return c, &core.ValidationError{Field: p.key, Err: err}
		}
		*p.dst = d
	}
	if !c.From.IsZero() && !c.To.IsZero() && c.To.Before(c.From.Time) {
		return c, &core.ValidationError{Field: "to", Err: core.ErrInvalidDate}
	}
	c.Query = sanitizeInput(query.Get("q"))
	return c, nil
}

// ParseLatestCount reads n, defaulting to three.
func ParseLatestCount(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("n"))
	if v == "" {
		return defaultLatest, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxLatest {
		return 0, &core.ValidationError{Field: "n", Err: fmt.Errorf("must be between 1 and %d", maxLatest)}
	}
	return n, nil
}

// DecodeJSON strictly decodes a single JSON value from the request body.
// Field errors from custom unmarshalers surface as validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return err
		case errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrInvalidCategory),
			errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidKilometers):
			return &core.ValidationError{Err: err}
		default:
			return &core.ValidationError{Err: fmt.Errorf("%w: %v", ErrMalformedBody, err)}
		}
	}
	if dec.More() {
		return &core.ValidationError{Err: fmt.Errorf("%w: trailing data", ErrMalformedBody)}
	}
	return nil
}

// IntakeForm is the multipart request that starts an intake run.
type IntakeForm struct {
	Uploads     []intake.Upload
	SkipAI      bool
	AutoProcess bool
}

// ParseIntakeForm reads the files field and the skip_ai and auto_process flags.
func ParseIntakeForm(w http.ResponseWriter, r *http.Request) (IntakeForm, error) {
	var form IntakeForm
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return form, err
		}
		return form, &core.ValidationError{Field: "files", Err: fmt.Errorf("%w: %v", ErrMalformedBody, err)}
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form.SkipAI = parseBool(r.FormValue("skip_ai"))
	form.AutoProcess = parseBool(r.FormValue("auto_process"))

	headers := r.MultipartForm.File["files"]
	if len(headers) > maxFilesPerUpload {
		return form, &core.ValidationError{Field: "files", Err: fmt.Errorf("at most %d files per upload", maxFilesPerUpload)}
	}
	for _, fh := range headers {
		u, err := readUpload(fh)
		if err != nil {
			return form, &core.ValidationError{Field: "files", Err: err}
		}
		form.Uploads = append(form.Uploads, u)
	}
	return form, nil
}

func readUpload(fh *multipart.FileHeader) (intake.Upload, error) {
	if fh.Size > intake.MaxFileSize {
		return intake.Upload{}, fmt.Errorf("%s: %w", fh.Filename, intake.ErrFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return intake.Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, intake.MaxFileSize+1))
	if err != nil {
		return intake.Upload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return intake.Upload{
		Name:     fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
