package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100

	dateLayout = "2006-01-02"
)

// ListParams is the raw listing input as received from a client.
type ListParams struct {
	DateFrom       string
	DateTo         string
	DeviceID       string // "all" or empty disables the filter
	EventType      string
	EmployeeRFID   string
	EmployeeSearch string
	Page           string
	PerPage        string
}

// QueryService is the read side of the ledger.
type QueryService struct {
	events store.EventStore
	loc    *time.Location
}

// NewQueryService interprets calendar dates in loc (UTC when nil).
func NewQueryService(es store.EventStore, loc *time.Location) *QueryService {
	if loc == nil {
		loc = time.UTC
	}
	return &QueryService{events: es, loc: loc}
}

// ListEvents returns one page of events, newest sequence first.
func (s *QueryService) ListEvents(ctx context.Context, p ListParams) (types.Page, error) {
	f, page, perPage, err := s.parseList(p)
	if err != nil {
		return types.Page{}, err
	}

	rows, total, err := s.events.List(ctx, f, perPage, (page-1)*perPage)
	if err != nil {
		return types.Page{}, fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []types.LedgerEvent{}
	}

	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}
	out := types.Page{
		Data:        rows,
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    lastPage,
	}
	if len(rows) > 0 {
		from := (page-1)*perPage + 1
		to := from + len(rows) - 1
		out.From, out.To = &from, &to
	}
	return out, nil
}

func (s *QueryService) parseList(p ListParams) (types.EventFilter, int, int, error) {
	var (
		f  types.EventFilter
		ve ValidationError
	)

	from, fromOK := s.parseDate(&ve, "date_from", p.DateFrom)
	to, toOK := s.parseDate(&ve, "date_to", p.DateTo)
	if fromOK {
		f.From = from
	}
	if toOK {
		// Inclusive of the whole end day.
		f.To = to.AddDate(0, 0, 1)
	}
	if fromOK && toOK && to.Before(from) {
		ve.add("date_to", "must be on or after date_from")
	}

	if d := strings.TrimSpace(p.DeviceID); d != "" && !strings.EqualFold(d, "all") {
		f.DeviceID = d
	}
	if et := strings.TrimSpace(p.EventType); et != "" {
		t, err := types.ParseEventType(et)
		if err != nil {
			ve.add("event_type", "must be one of time_in, time_out, break_start, break_end")
		}
		f.EventType = t
	}
	f.EmployeeRFID = strings.ToUpper(strings.TrimSpace(p.EmployeeRFID))
	f.EmployeeSearch = strings.TrimSpace(p.EmployeeSearch)

	page := parsePositive(&ve, "page", p.Page, 1, 0)
	perPage := parsePositive(&ve, "per_page", p.PerPage, DefaultPerPage, MaxPerPage)

	return f, page, perPage, ve.orNil()
}

func (s *QueryService) parseDate(ve *ValidationError, field, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, raw, s.loc)
	if err != nil {
		ve.add(field, "must be a date in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return t, true
}

// parsePositive parses an integer >= 1, bounded by max when max > 0.
func parsePositive(ve *ValidationError, field, raw string, def, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil || n < 1:
		ve.add(field, "must be a positive integer")
		return def
	case max > 0 && n > max:
		ve.add(field, fmt.Sprintf("must not exceed %d", max))
		return def
	}
	return n
}

// ParseSequenceID validates a sequence id taken from a path.
func ParseSequenceID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, &ValidationError{Fields: map[string]string{"sequence_id": "must be a positive integer"}}
	}
	return id, nil
}

// GetEvent returns the event with its sequence neighbours and the same
// employee's events on the same calendar day.
func (s *QueryService) GetEvent(ctx context.Context, sequenceID int64) (types.EventDetail, error) {
	e, err := s.events.Get(ctx, sequenceID)
	if err != nil {
		return types.EventDetail{}, err
	}

	prev, next, err := s.events.Neighbors(ctx, sequenceID)
	if err != nil {
		return types.EventDetail{}, fmt.Errorf("neighbors of %d: %w", sequenceID, err)
	}

	local := e.ScanTimestamp.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	sameDay, err := s.events.ForEmployeeBetween(ctx, e.EmployeeRFID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return types.EventDetail{}, fmt.Errorf("same-day events for %d: %w", sequenceID, err)
	}

	return types.EventDetail{Event: e, Previous: prev, Next: next, SameDay: sameDay}, nil
}

// MarkProcessed flags events consumed by downstream attendance processing.
func (s *QueryService) MarkProcessed(ctx context.Context, sequenceIDs []int64) (int64, error) {
	if len(sequenceIDs) == 0 {
		return 0, &ValidationError{Fields: map[string]string{"sequence_ids": "at least one sequence id is required"}}
	}
	if len(sequenceIDs) > 1000 {
		return 0, &ValidationError{Fields: map[string]string{"sequence_ids": "at most 1000 sequence ids per call"}}
	}
	for _, id := range sequenceIDs {
		if id < 1 {
			return 0, &ValidationError{Fields: map[string]string{"sequence_ids": "must contain positive integers"}}
		}
	}
	return s.events.MarkProcessed(ctx, sequenceIDs, time.Now().UTC())
}
