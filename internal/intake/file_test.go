package intake

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"reisekosten/internal/core"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		upload   Upload
		wantMIME string
		wantErr  error
	}{
		{
			name:     "png sniffed",
			upload:   Upload{Name: "a.png", Data: []byte("\x89PNG\r\n\x1a\nrest")},
			wantMIME: "image/png",
		},
		{
			name:     "pdf sniffed from octet-stream",
			upload:   Upload{Name: "r.pdf", MIMEType: "application/octet-stream", Data: []byte("%PDF-1.7\n")},
			wantMIME: "application/pdf",
		},
		{
			name:     "declared heic trusted",
			upload:   Upload{Name: "r.heic", MIMEType: "image/heic", Data: []byte("....ftypheic")},
			wantMIME: "image/heic",
		},
		{
			name:    "text rejected",
			upload:  Upload{Name: "notes.txt", Data: []byte("just text")},
			wantErr: ErrUnsupportedFile,
		},
		{
			name:    "empty rejected",
			upload:  Upload{Name: "empty.png"},
			wantErr: ErrEmptyFile,
		},
		{
			name:    "too large",
			upload:  Upload{Name: "big.png", MIMEType: "image/png", Data: bytes.Repeat([]byte{1}, MaxFileSize+1)},
			wantErr: ErrFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Encode(tt.upload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if core.FieldOf(err) != "image" {
					t.Fatalf("expected image field, got %q", core.FieldOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.MIMEType != tt.wantMIME {
				t.Fatalf("expected %s, got %s", tt.wantMIME, f.MIMEType)
			}
			if !strings.HasPrefix(f.DataURI, "data:"+tt.wantMIME+";base64,") {
				t.Fatalf("unexpected data URI prefix: %.40s", f.DataURI)
			}
		})
	}
}

func TestStateTransitions(t *testing.T) {
	allowed := [][2]State{
		{Idle, FilesQueued},
		{FilesQueued, Analyzing},
		{FilesQueued, DraftReady},
		{Analyzing, DraftReady},
		{DraftReady, Committing},
		{Committing, Committed},
		{Committing, DraftReady},
		{Committed, FilesQueued},
		{Analyzing, Idle},
		{Committed, Idle},
	}
	for _, tr := range allowed {
		if !tr[0].canTransition(tr[1]) {
			t.Errorf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]State{
		{Idle, DraftReady},
		{DraftReady, Committed},
		{Committed, DraftReady},
		{Analyzing, Committing},
	}
	for _, tr := range denied {
		if tr[0].canTransition(tr[1]) {
			t.Errorf("%s -> %s should be rejected", tr[0], tr[1])
		}
	}
}

func TestSessions(t *testing.T) {
	s := NewSessions(time.Minute)
	p := New(nil, nil, Options{})
	id := s.Add(p)

	got, ok := s.Get(id)
	if !ok || got != p {
		t.Fatal("expected stored pipeline")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", s.Len())
	}
	s.Remove(id)
	if _, ok := s.Get(id); ok {
		t.Fatal("expected session to be removed")
	}
	if s.Len() != 0 {
		t.Fatalf("lookup of a removed session must not restore it, got %d", s.Len())
	}
}
