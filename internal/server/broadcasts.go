/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/encore/internal/broadcast"
	"github.com/friendsincode/encore/internal/concerts"
	"github.com/friendsincode/encore/internal/signaling"
)

const defaultCalendarWindow = 30 * 24 * time.Hour

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// concertID parses the route parameter and confirms the concert exists.
// It writes the error response itself and reports false on failure.
func (s *Server) concertID(w http.ResponseWriter, r *http.Request) (int64, time.Time, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "concertID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_concert_id")
		return 0, time.Time{}, false
	}
	start, err := s.store.StartTime(r.Context(), id)
	if errors.Is(err, concerts.ErrConcertNotFound) {
		writeError(w, http.StatusNotFound, "concert_not_found")
		return 0, time.Time{}, false
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("concert_id", id).Msg("concert lookup failed")
		writeError(w, http.StatusInternalServerError, "concert_lookup_failed")
		return 0, time.Time{}, false
	}
	return id, start, true
}

// coordinator returns the concert's coordinator, creating it on first use.
func (s *Server) coordinator(w http.ResponseWriter, id int64) (*broadcast.Coordinator, bool) {
	coord, err := s.registry.Get(id)
	if err != nil {
		s.logger.Error().Err(err).Int64("concert_id", id).Msg("create broadcast coordinator")
		writeError(w, http.StatusInternalServerError, "broadcast_unavailable")
		return nil, false
	}
	return coord, true
}

// handleLive upgrades to a signaling websocket and serves one listener.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.concertID(w, r)
	if !ok {
		return
	}
	coord, ok := s.coordinator(w, id)
	if !ok {
		return
	}

	ch, err := signaling.Accept(w, r, s.cfg.AllowedOrigins)
	if err != nil {
		// Accept has already written the handshake failure.
		s.logger.Debug().Err(err).Int64("concert_id", id).Msg("websocket upgrade failed")
		return
	}

	if err := coord.Serve(r.Context(), ch); err != nil {
		s.logger.Warn().Err(err).Int64("concert_id", id).Msg("listener session ended with error")
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.concertID(w, r)
	if !ok {
		return
	}
	coord, ok := s.coordinator(w, id)
	if !ok {
		return
	}

	if err := coord.Start(r.Context()); err != nil {
		var cerr *broadcast.CompileError
		switch {
		case errors.As(err, &cerr):
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":  "compile_failed",
				"detail": cerr.Err.Error(),
			})
		case errors.Is(err, broadcast.ErrCoordinatorStopped):
			writeError(w, http.StatusConflict, "broadcast_stopped")
		default:
			s.logger.Error().Err(err).Int64("concert_id", id).Msg("start broadcast")
			writeError(w, http.StatusInternalServerError, "start_failed")
		}
		return
	}
	s.writeStatus(w, r, coord)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.concertID(w, r)
	if !ok {
		return
	}
	if err := s.registry.Remove(r.Context(), id); err != nil {
		s.logger.Error().Err(err).Int64("concert_id", id).Msg("stop broadcast")
		writeError(w, http.StatusInternalServerError, "stop_failed")
		return
	}
	writeJSON(w, http.StatusOK, broadcast.Status{ConcertID: id, State: "stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "concertID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_concert_id")
		return
	}
	coord := s.registry.Lookup(id)
	if coord == nil {
		writeError(w, http.StatusNotFound, "broadcast_not_found")
		return
	}
	s.writeStatus(w, r, coord)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, coord *broadcast.Coordinator) {
	st, err := coord.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type scheduleRequest struct {
	StartTime *time.Time `json:"start_time"`
}

// handleSchedule arms the start trigger. Without a body the concert's stored
// start time is used.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id, start, ok := s.concertID(w, r)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.StartTime != nil {
		start = *req.StartTime
	}

	coord, ok := s.coordinator(w, id)
	if !ok {
		return
	}
	if err := coord.ScheduleStart(r.Context(), start); err != nil {
		if errors.Is(err, broadcast.ErrCoordinatorStopped) {
			writeError(w, http.StatusConflict, "broadcast_stopped")
			return
		}
		s.logger.Error().Err(err).Int64("concert_id", id).Msg("schedule broadcast")
		writeError(w, http.StatusInternalServerError, "schedule_failed")
		return
	}
	s.writeStatus(w, r, coord)
}

// handleDeleteBroadcast stops the broadcast and drops it from the registry.
func (s *Server) handleDeleteBroadcast(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "concertID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_concert_id")
		return
	}
	if err := s.registry.Remove(r.Context(), id); err != nil {
		s.logger.Error().Err(err).Int64("concert_id", id).Msg("delete broadcast")
		writeError(w, http.StatusInternalServerError, "stop_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCalendar serves concert start times as an iCal feed.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	from := time.Now().UTC()
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseCalendarTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from")
			return
		}
		from = t
	}
	to := from.Add(defaultCalendarWindow)
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseCalendarTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to")
			return
		}
		to = t
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}

	export, err := s.store.ExportICal(r.Context(), from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("export calendar")
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func parseCalendarTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
