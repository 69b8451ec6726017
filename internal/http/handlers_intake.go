package http

import (
	"errors"
	"net/http"

	"reisekosten/internal/core"
	"reisekosten/internal/intake"
	"reisekosten/internal/log"
)

var errNoFiles = errors.New("no files selected")

// IntakeResponse is a pipeline snapshot addressed by its session id.
type IntakeResponse struct {
	ID string `json:"id"`
	intake.View
}

type SubmitResponse struct {
	intake.SubmitResult
	Intake IntakeResponse `json:"intake"`
}

func (s *Server) pipeline(w http.ResponseWriter, r *http.Request) (string, *intake.Pipeline, bool) {
	id := r.PathValue("id")
	p, ok := s.deps.Sessions.Get(id)
	if !ok {
		NotFoundError("intake session not found").Write(w)
		return id, nil, false
	}
	return id, p, true
}

func (s *Server) newPipeline(analyze bool) *intake.Pipeline {
	return intake.New(s.deps.Store, s.deps.Analyzer, intake.Options{
		Analyze:     analyze,
		SettleDelay: s.deps.SettleDelay,
		Location:    s.deps.Location,
		Logger:      s.deps.Logger,
	})
}

// handleStartIntake queues the uploaded receipts. With auto_process the run
// completes within the request; otherwise a session is opened for review.
func (s *Server) handleStartIntake(w http.ResponseWriter, r *http.Request) {
	form, err := ParseIntakeForm(w, r)
	if err != nil {
		writeError(w, r, log.OpParse, err)
		return
	}
	if len(form.Uploads) == 0 {
		writeError(w, r, log.OpValidate, &core.ValidationError{Field: "files", Err: errNoFiles})
		return
	}

	p := s.newPipeline(!form.SkipAI)
	if err := p.Select(r.Context(), form.Uploads...); err != nil {
		writeError(w, r, log.OpValidate, err)
		return
	}

	if form.AutoProcess {
		res, err := p.RunAutomatic(r.Context())
		if err != nil {
			writeError(w, r, log.OpCommit, err)
			return
		}
		NewJSONResponse().Body(res).Write(w)
		return
	}

	id := s.deps.Sessions.Add(p)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Intake session opened",
		log.FieldSessionID, id,
		log.FieldQueueSize, len(form.Uploads))
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/intake/"+id).
		Body(IntakeResponse{ID: id, View: p.View()}).
		Write(w)
}

func (s *Server) handleIntakeView(w http.ResponseWriter, r *http.Request) {
	id, p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(IntakeResponse{ID: id, View: p.View()}).Write(w)
}

func (s *Server) handleEditDraft(w http.ResponseWriter, r *http.Request) {
	id, p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	var patch intake.DraftPatch
	if err := DecodeJSON(w, r, &patch); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	if _, err := p.Edit(patch); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(IntakeResponse{ID: id, View: p.View()}).Write(w)
}

// handleSubmitDraft commits the current draft. The session closes once the
// queue is exhausted.
func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	id, p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	res, err := p.Submit(r.Context())
	if err != nil {
		writeError(w, r, log.OpCommit, err)
		return
	}
	if res.Completion != nil {
		s.deps.Sessions.Remove(id)
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(SubmitResponse{SubmitResult: res, Intake: IntakeResponse{ID: id, View: p.View()}}).
		Write(w)
}

// handleRunAutomatic finishes an open session without further review.
func (s *Server) handleRunAutomatic(w http.ResponseWriter, r *http.Request) {
	id, p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	res, err := p.RunAutomatic(r.Context())
	if err != nil {
		writeError(w, r, log.OpCommit, err)
		return
	}
	s.deps.Sessions.Remove(id)
	NewJSONResponse().Body(res).Write(w)
}

// handleRemoveCurrent discards the file under review, which ends the run.
func (s *Server) handleRemoveCurrent(w http.ResponseWriter, r *http.Request) {
	id, p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	p.RemoveCurrent()
	s.deps.Sessions.Remove(id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCancelIntake(w http.ResponseWriter, r *http.Request) {
	id, p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	p.Cancel()
	s.deps.Sessions.Remove(id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
