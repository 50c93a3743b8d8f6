package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/health"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type healthWithHistory struct {
	types.HealthSnapshot
	History []types.HealthSnapshot `json:"history"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	includeHistory, err := parseBool(r.URL.Query().Get("include_history"))
	if err != nil {
		writeValidation(w, r, map[string]string{"include_history": "must be a boolean"})
		return
	}

	res, err := s.d.Health.Current(r.Context())
	status := http.StatusOK
	if err != nil {
		if !errors.Is(err, health.ErrDataUnavailable) {
			s.logger.Error("health computation failed", "error", err)
		}
		status = http.StatusServiceUnavailable
	}

	var data any = res.Data
	if includeHistory {
		hist, herr := s.d.Health.History(r.Context(), health.DefaultHistoryHours)
		if herr != nil {
			s.logger.Warn("health history unavailable", "error", herr)
		}
		data = healthWithHistory{HealthSnapshot: res.Data, History: hist.Data}
	}

	writeCached(w, r, status, data, res.Timestamp, res.Cached, res.Stale)
}

func (s *Server) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	hours := health.DefaultHistoryHours
	if raw := strings.TrimSpace(r.URL.Query().Get("hours")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > health.MaxHistoryHours {
			writeValidation(w, r, map[string]string{
				"hours": "must be an integer between 1 and " + strconv.Itoa(health.MaxHistoryHours),
			})
			return
		}
		hours = n
	}

	res, err := s.d.Health.History(r.Context(), hours)
	status := http.StatusOK
	if err != nil {
		s.logger.Warn("health history unavailable", "error", err)
		status = http.StatusServiceUnavailable
	}
	writeCached(w, r, status, res.Data, res.Timestamp, res.Cached, res.Stale)
}

func (s *Server) handleInvalidateHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Health.Invalidate(r.Context()); err != nil {
		s.internalError(w, r, "invalidate health cache", err)
		return
	}
	writeData(w, r, map[string]bool{"invalidated": true})
}

func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
