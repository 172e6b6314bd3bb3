package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

// channelStatus decorates a stored channel with its live state.
type channelStatus struct {
	model.Channel
	Live bool `json:"live"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // best effort
	w.Write([]byte("ok"))
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.history.Channels(r.Context())
	if err != nil {
		s.l.Error("could not load channels", log.ErrorField(err))
		http.Error(w, "could not load channels", http.StatusInternalServerError)
		return
	}
	liveNames := make(map[string]struct{})
	for _, c := range s.proxy.LiveChannels() {
		liveNames[c.Name] = struct{}{}
	}
	ret := make([]channelStatus, 0, len(channels))
	for i := range channels {
		_, isLive := liveNames[channels[i].Name]
		ret = append(ret, channelStatus{Channel: *channels[i], Live: isLive})
	}
	s.writeJSON(w, ret)
}

// handleHistory serves archived records in ascending timestamp order.
// Pages are 1-based, a page shorter than pageSize is the last one.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	start, err := queryInt64(r, "start", 0)
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := queryInt64(r, "end", 0)
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		http.Error(w, "invalid page", http.StatusBadRequest)
		return
	}
	pageSize, err := queryInt(r, "pageSize", s.pageSize)
	if err != nil || pageSize < 1 {
		http.Error(w, "invalid pageSize", http.StatusBadRequest)
		return
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	records, err := s.history.LoadRange(r.Context(), name,
		start, end, pageSize, (page-1)*pageSize)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	case err != nil:
		s.l.Error("could not load history",
			log.String("channel", name), log.ErrorField(err))
		http.Error(w, "could not load history", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, records)
}

func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	days, err := s.days.Get(r.Context(), name)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	case err != nil:
		s.l.Error("could not load days",
			log.String("channel", name), log.ErrorField(err))
		http.Error(w, "could not load days", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, *days)
}

// handleLatest prefers the live record and falls back to the archive.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	if rec := s.proxy.LatestRecord(name); rec != nil {
		s.writeJSON(w, rec)
		return
	}
	rec, err := s.history.Latest(r.Context(), name)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, "no data", http.StatusNotFound)
		return
	case err != nil:
		s.l.Error("could not load latest record",
			log.String("channel", name), log.ErrorField(err))
		http.Error(w, "could not load latest record", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, rec)
}

// loadDays feeds the day availability cache.
func (s *Server) loadDays(ctx context.Context, name string) (*[]string, error) {
	days, err := s.history.Days(ctx, name)
	if err != nil {
		return nil, err
	}
	return &days, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.l.Error("could not write response", log.ErrorField(err))
	}
}

func queryInt64(r *http.Request, key string, def int64) (int64, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return def, nil
	}
	return strconv.ParseInt(val, 10, 64)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return def, nil
	}
	return strconv.Atoi(val)
}
