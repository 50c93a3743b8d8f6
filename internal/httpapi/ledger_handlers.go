package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/service"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.d.Query.ListEvents(r.Context(), service.ListParams{
		DateFrom:       q.Get("date_from"),
		DateTo:         q.Get("date_to"),
		DeviceID:       q.Get("device_id"),
		EventType:      q.Get("event_type"),
		EmployeeRFID:   q.Get("employee_rfid"),
		EmployeeSearch: q.Get("employee_search"),
		Page:           q.Get("page"),
		PerPage:        q.Get("per_page"),
	})
	if err != nil {
		s.queryError(w, r, "list events", err)
		return
	}

	if page.HasNext() {
		u := pageURL(r, page.CurrentPage+1)
		page.NextPageURL = &u
	}
	if page.HasPrev() {
		u := pageURL(r, page.CurrentPage-1)
		page.PrevPageURL = &u
	}
	writeData(w, r, page)
}

// pageURL is the absolute URL of the request with page replaced.
func pageURL(r *http.Request, page int) string {
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseSequenceID(chi.URLParam(r, "sequenceId"))
	if err != nil {
		s.queryError(w, r, "get event", err)
		return
	}

	detail, err := s.d.Query.GetEvent(r.Context(), id)
	if err != nil {
		s.queryError(w, r, "get event", err)
		return
	}
	if detail.SameDay == nil {
		detail.SameDay = []types.LedgerEvent{}
	}
	writeData(w, r, detail)
}

type markProcessedRequest struct {
	SequenceIDs []int64 `json:"sequence_ids"`
}

func (s *Server) handleMarkProcessed(w http.ResponseWriter, r *http.Request) {
	var req markProcessedRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	n, err := s.d.Query.MarkProcessed(r.Context(), req.SequenceIDs)
	if err != nil {
		s.queryError(w, r, "mark processed", err)
		return
	}
	writeData(w, r, map[string]int64{"updated": n})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.d.Devices.List(r.Context())
	if err != nil {
		s.internalError(w, r, "list devices", err)
		return
	}
	if devices == nil {
		devices = []types.Device{}
	}
	writeData(w, r, devices)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.d.Devices.Get(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		s.queryError(w, r, "get device", err)
		return
	}
	writeData(w, r, d)
}

func (s *Server) handleBadgeAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.d.Badges.Analytics(r.Context(), chi.URLParam(r, "badge"))
	if err != nil {
		s.queryError(w, r, "badge analytics", err)
		return
	}
	writeData(w, r, a)
}

// queryError maps read-side errors onto 404, 422 or 500.
func (s *Server) queryError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		writeValidation(w, r, ve.Fields)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	default:
		s.internalError(w, r, op, err)
	}
}
