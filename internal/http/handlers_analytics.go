package http

import (
	"net/http"

	"reisekosten/internal/analytics"
	"reisekosten/internal/core"
	"reisekosten/internal/log"
)

// SeriesResponse is a chart series with its aggregates.
type SeriesResponse struct {
	Frame   analytics.Frame    `json:"frame"`
	Buckets []analytics.Bucket `json:"buckets"`
	Total   core.Money         `json:"total"`
	Average core.Money         `json:"average"`
}

type CategoriesResponse struct {
	Range      analytics.Range           `json:"range"`
	Categories []analytics.CategoryTotal `json:"categories"`
}

// expenses refreshes the store and returns its collection.
func (s *Server) expenses(r *http.Request) ([]core.Expense, error) {
	if err := s.deps.Store.FetchAll(r.Context()); err != nil {
		return nil, err
	}
	return s.deps.Store.Snapshot().Expenses, nil
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	frame := analytics.FrameMonth
	if v := r.URL.Query().Get("frame"); v != "" {
		f, err := analytics.ParseFrame(v)
		if err != nil {
			writeError(w, r, log.OpRead, err)
			return
		}
		frame = f
	}

	list, err := s.expenses(r)
	if err != nil {
		writeError(w, r, log.OpFetch, err)
		return
	}
	buckets, err := analytics.Series(list, frame, s.today())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(SeriesResponse{
		Frame:   frame,
		Buckets: buckets,
		Total:   analytics.Total(buckets),
		Average: analytics.AveragePerBucket(buckets),
	}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	rng := analytics.RangeMonth
	if v := r.URL.Query().Get("range"); v != "" {
		parsed, err := analytics.ParseRange(v)
		if err != nil {
			writeError(w, r, log.OpRead, err)
			return
		}
		rng = parsed
	}

	list, err := s.expenses(r)
	if err != nil {
		writeError(w, r, log.OpFetch, err)
		return
	}
	totals, err := analytics.Categories(list, rng, s.today())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(CategoriesResponse{Range: rng, Categories: totals}).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	list, err := s.expenses(r)
	if err != nil {
		writeError(w, r, log.OpFetch, err)
		return
	}
	NewJSONResponse().Body(analytics.Stats(list, s.today())).Write(w)
}
