package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/BrandonDHaskell/ledgerwatch/internal/cache"
	"github.com/BrandonDHaskell/ledgerwatch/internal/httpapi"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/chain"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/health"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/service"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store/memory"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type fixture struct {
	ts      *httptest.Server
	events  *memory.EventStore
	devices *memory.DeviceStore
	badges  *memory.BadgeStore
}

type option func(*httpapi.Dependencies, *fixture)

func withTokens(tokens map[string]string) option {
	return func(d *httpapi.Dependencies, _ *fixture) { d.APITokens = tokens }
}

type failingComputer struct{}

func (failingComputer) Compute(context.Context) (types.HealthSnapshot, error) {
	return types.HealthSnapshot{}, health.ErrDataUnavailable
}

func withUnavailableLedger() option {
	return func(d *httpapi.Dependencies, f *fixture) {
		d.Health = health.NewService(failingComputer{}, memory.NewHealthLogStore(), cache.NewMemoryStore(),
			slog.New(slog.NewTextHandler(io.Discard, nil)), health.ServiceConfig{})
	}
}

// newTestServer wires up the full dependency graph using in-memory stores
// and returns a fixture whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T, knownDevices []string, opts ...option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		devices: memory.NewDeviceStore(knownDevices),
		badges: memory.NewBadgeStore(types.Badge{
			CardUID: "04A1B2C3", EmployeeID: "EMP-0001", EmployeeName: "Ada Lovelace", Active: true,
		}),
	}
	f.events = memory.NewEventStore(f.badges)

	registry := service.NewDeviceRegistry(f.devices, 5*time.Minute)
	calc := health.NewCalculator(f.events, f.devices, health.CalculatorConfig{HeartbeatTimeout: 5 * time.Minute})

	d := httpapi.Dependencies{
		Logger:     logger,
		Addr:       ":0",
		Health:     health.NewService(calc, memory.NewHealthLogStore(), cache.NewMemoryStore(), logger, health.ServiceConfig{}),
		Query:      service.NewQueryService(f.events, time.UTC),
		Devices:    registry,
		Badges:     service.NewBadgeService(f.events, f.badges, time.UTC),
		Heartbeats: service.NewHeartbeatService(registry),
		Scans:      service.NewScanService(registry, f.events),
	}
	for _, o := range opts {
		o(&d, f)
	}

	f.ts = httptest.NewServer(httpapi.NewServer(d).Handler())
	t.Cleanup(f.ts.Close)
	return f
}

type envelope struct {
	Success   bool              `json:"success"`
	Data      json.RawMessage   `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
	Cached    *bool             `json:"cached"`
	Stale     *bool             `json:"stale"`
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Errors    map[string]string `json:"errors"`
}

func do(t *testing.T, method, url, token string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response, wantStatus int) envelope {
	t.Helper()
	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", wantStatus, resp.StatusCode, b)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func seedEvents(t *testing.T, es *memory.EventStore, n int) {
	t.Helper()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		_, err := es.Append(context.Background(), types.ScanInput{
			EmployeeRFID:  "04A1B2C3",
			DeviceID:      "reader-lobby",
			EventType:     types.EventTimeIn,
			ScanTimestamp: base.Add(time.Duration(i) * time.Minute),
			RecordedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Events
// ═══════════════════════════════════════════════════════════════════════════

func TestListEvents_Pagination(t *testing.T) {
	f := newTestServer(t, nil)
	seedEvents(t, f.events, 45)

	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/events?page=1&per_page=20", "", nil), http.StatusOK)
	var page types.Page
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Data) != 20 || page.Total != 45 || page.LastPage != 3 {
		t.Fatalf("page 1: %d items, total=%d, last_page=%d", len(page.Data), page.Total, page.LastPage)
	}
	if page.Data[0].SequenceID != 45 || page.Data[19].SequenceID != 26 {
		t.Errorf("expected sequence ids 45..26, got %d..%d", page.Data[0].SequenceID, page.Data[19].SequenceID)
	}
	if page.PrevPageURL != nil {
		t.Errorf("first page must not have a prev_page_url, got %q", *page.PrevPageURL)
	}
	if page.NextPageURL == nil || !strings.Contains(*page.NextPageURL, "page=2") || !strings.Contains(*page.NextPageURL, "per_page=20") {
		t.Errorf("unexpected next_page_url: %v", page.NextPageURL)
	}

	env = decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/events?page=3&per_page=20", "", nil), http.StatusOK)
	page = types.Page{}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Data) != 5 || page.NextPageURL != nil || page.PrevPageURL == nil {
		t.Fatalf("page 3: %d items, next=%v prev=%v", len(page.Data), page.NextPageURL, page.PrevPageURL)
	}
	if *page.From != 41 || *page.To != 45 {
		t.Errorf("from/to = %d/%d, want 41/45", *page.From, *page.To)
	}
}

func TestListEvents_EmptyLedger(t *testing.T) {
	f := newTestServer(t, nil)

	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/events", "", nil), http.StatusOK)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["data"]) != "[]" || string(raw["total"]) != "0" || string(raw["last_page"]) != "1" {
		t.Errorf("unexpected empty page: data=%s total=%s last_page=%s", raw["data"], raw["total"], raw["last_page"])
	}
}

func TestListEvents_Validation_422(t *testing.T) {
	f := newTestServer(t, nil)

	env := decodeEnvelope(t, do(t, http.MethodGet,
		f.ts.URL+"/ledger/events?date_from=2026-03-05&date_to=2026-03-01&per_page=500&event_type=lunch", "", nil),
		http.StatusUnprocessableEntity)

	if env.Success {
		t.Error("expected success=false")
	}
	for _, field := range []string{"date_to", "per_page", "event_type"} {
		if env.Errors[field] == "" {
			t.Errorf("expected a field error for %s, got %v", field, env.Errors)
		}
	}
}

func TestGetEvent_RoundTrip(t *testing.T) {
	f := newTestServer(t, nil)
	scanAt := time.Date(2026, 3, 2, 9, 15, 30, 0, time.UTC)
	e := types.LedgerEvent{
		SequenceID:    500,
		EmployeeRFID:  "04A1B2C3",
		DeviceID:      "reader-dock",
		EventType:     types.EventBreakStart,
		ScanTimestamp: scanAt,
		RecordedAt:    scanAt,
	}
	if err := chain.Seal("", &e); err != nil {
		t.Fatal(err)
	}
	f.events.Insert(e)

	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/events/500", "", nil), http.StatusOK)
	var detail types.EventDetail
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := detail.Event
	if got.DeviceID != "reader-dock" || got.EventType != types.EventBreakStart || !got.ScanTimestamp.Equal(scanAt) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if detail.Previous != nil || detail.Next != nil {
		t.Error("a lone event has no neighbours")
	}
	if len(detail.SameDay) != 1 {
		t.Errorf("same_day = %d events, want 1", len(detail.SameDay))
	}
}

func TestGetEvent_NotFoundAndInvalid(t *testing.T) {
	f := newTestServer(t, nil)

	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/events/999", "", nil), http.StatusNotFound)
	if env.Success || env.Code != "not_found" {
		t.Errorf("unexpected 404 envelope: %+v", env)
	}

	env = decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/events/abc", "", nil), http.StatusUnprocessableEntity)
	if env.Errors["sequence_id"] == "" {
		t.Errorf("expected a sequence_id field error, got %v", env.Errors)
	}
}

func TestMarkProcessed(t *testing.T) {
	f := newTestServer(t, nil)
	seedEvents(t, f.events, 3)

	env := decodeEnvelope(t, do(t, http.MethodPost, f.ts.URL+"/ledger/events/processed", "",
		strings.NewReader(`{"sequence_ids":[1,2]}`)), http.StatusOK)
	var out map[string]int64
	_ = json.Unmarshal(env.Data, &out)
	if out["updated"] != 2 {
		t.Errorf("updated = %d, want 2", out["updated"])
	}

	decodeEnvelope(t, do(t, http.MethodPost, f.ts.URL+"/ledger/events/processed", "",
		strings.NewReader(`{"sequence_ids":[]}`)), http.StatusUnprocessableEntity)
	decodeEnvelope(t, do(t, http.MethodPost, f.ts.URL+"/ledger/events/processed", "",
		strings.NewReader(`{"ids":[1]}`)), http.StatusBadRequest)
}

// ═══════════════════════════════════════════════════════════════════════════
// Health
// ═══════════════════════════════════════════════════════════════════════════

func getHealth(t *testing.T, f *fixture, query string, wantStatus int) (envelope, types.HealthSnapshot) {
	t.Helper()
	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/health"+query, "", nil), wantStatus)
	var snap types.HealthSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return env, snap
}

func TestHealth_CacheThenInvalidate(t *testing.T) {
	f := newTestServer(t, []string{"reader-lobby"})

	env, first := getHealth(t, f, "", http.StatusOK)
	if env.Cached == nil || *env.Cached {
		t.Fatalf("first call must not be cached, got %v", env.Cached)
	}
	if first.Status == types.StatusUnknown || first.ID == "" {
		t.Fatalf("unexpected snapshot: %+v", first)
	}

	env, second := getHealth(t, f, "", http.StatusOK)
	if env.Cached == nil || !*env.Cached || second.ID != first.ID {
		t.Fatalf("second call should return the cached snapshot, cached=%v id=%s", env.Cached, second.ID)
	}

	decodeEnvelope(t, do(t, http.MethodDelete, f.ts.URL+"/ledger/health-cache", "", nil), http.StatusOK)

	env, third := getHealth(t, f, "", http.StatusOK)
	if env.Cached == nil || *env.Cached {
		t.Error("expected cached=false right after invalidation")
	}
	if third.ID == first.ID {
		t.Error("expected a freshly computed snapshot")
	}
}

func TestHealth_IncludeHistory(t *testing.T) {
	f := newTestServer(t, nil)

	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/health?include_history=true", "", nil), http.StatusOK)
	var data struct {
		Status  types.Status      `json:"status"`
		History []json.RawMessage `json:"history"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Status == "" || data.History == nil {
		t.Errorf("expected a status and an (empty) history array, got %s", env.Data)
	}

	decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/health?include_history=maybe", "", nil), http.StatusUnprocessableEntity)
}

func TestHealth_UnavailableIsUnknown_503(t *testing.T) {
	f := newTestServer(t, nil, withUnavailableLedger())

	env, snap := getHealth(t, f, "", http.StatusServiceUnavailable)
	if env.Success {
		t.Error("expected success=false")
	}
	if snap.Status != types.StatusUnknown {
		t.Errorf("status = %s, want unknown", snap.Status)
	}
	if env.Code != "data_unavailable" {
		t.Errorf("code = %q", env.Code)
	}
}

func TestHealthHistory(t *testing.T) {
	f := newTestServer(t, nil)

	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/health-history", "", nil), http.StatusOK)
	if string(env.Data) != "[]" {
		t.Errorf("expected an empty history, got %s", env.Data)
	}

	decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/health-history?hours=0", "", nil), http.StatusUnprocessableEntity)
	decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/health-history?hours=500", "", nil), http.StatusUnprocessableEntity)
}

// ═══════════════════════════════════════════════════════════════════════════
// Devices and badges
// ═══════════════════════════════════════════════════════════════════════════

func TestDevices(t *testing.T) {
	f := newTestServer(t, []string{"reader-lobby", "reader-dock"})

	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/devices", "", nil), http.StatusOK)
	var devices []types.Device
	if err := json.Unmarshal(env.Data, &devices); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}

	decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/devices/reader-dock", "", nil), http.StatusOK)
	decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/ledger/devices/nope", "", nil), http.StatusNotFound)
}

func TestBadgeAnalytics(t *testing.T) {
	f := newTestServer(t, nil)
	seedEvents(t, f.events, 3)

	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/badges/04a1b2c3/analytics", "", nil), http.StatusOK)
	var a types.BadgeAnalytics
	if err := json.Unmarshal(env.Data, &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.TotalScans != 3 || a.DistinctDevices != 1 {
		t.Errorf("unexpected analytics: %+v", a)
	}

	decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/badges/FFFFFFFF/analytics", "", nil), http.StatusNotFound)
}

// ═══════════════════════════════════════════════════════════════════════════
// Authorization
// ═══════════════════════════════════════════════════════════════════════════

func TestAuthorization(t *testing.T) {
	f := newTestServer(t, nil, withTokens(map[string]string{"view-token": "viewer", "mgr-token": "manager"}))

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"missing token", http.MethodGet, "/ledger/events", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/ledger/events", "nope", http.StatusUnauthorized},
		{"viewer can view", http.MethodGet, "/ledger/events", "view-token", http.StatusOK},
		{"viewer cannot manage", http.MethodDelete, "/ledger/health-cache", "view-token", http.StatusForbidden},
		{"manager can manage", http.MethodDelete, "/ledger/health-cache", "mgr-token", http.StatusOK},
		{"healthz is open", http.MethodGet, "/healthz", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, tc.method, f.ts.URL+tc.path, tc.token, nil)
			if resp.StatusCode != tc.want {
				t.Errorf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reader endpoints
// ═══════════════════════════════════════════════════════════════════════════

func TestHeartbeat_KnownDevice_OK(t *testing.T) {
	f := newTestServer(t, []string{"reader-lobby"})

	resp := do(t, http.MethodPost, f.ts.URL+"/v1/heartbeat", "", strings.NewReader(`{"device_id":"reader-lobby","uptime_s":42}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var hb types.HeartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&hb); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !hb.OK || !hb.Known || hb.Status != string(types.DeviceOnline) {
		t.Errorf("unexpected heartbeat response: %+v", hb)
	}
}

func TestHeartbeat_UnknownDevice_StillAccepted(t *testing.T) {
	f := newTestServer(t, []string{"reader-lobby"})

	resp := do(t, http.MethodPost, f.ts.URL+"/v1/heartbeat", "", strings.NewReader(`{"device_id":"rogue","uptime_s":1}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var hb types.HeartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&hb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !hb.OK || hb.Known {
		t.Errorf("expected ok=true known=false, got %+v", hb)
	}
}

func TestHeartbeat_BadRequests_400(t *testing.T) {
	f := newTestServer(t, nil)

	for _, body := range []string{`{"uptime_s":42}`, `not json at all`, `{"device_id":"x","door":true}`} {
		resp := do(t, http.MethodPost, f.ts.URL+"/v1/heartbeat", "", strings.NewReader(body))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestScan_AppendsToLedger(t *testing.T) {
	f := newTestServer(t, []string{"reader-lobby"})

	resp := do(t, http.MethodPost, f.ts.URL+"/v1/scans", "",
		strings.NewReader(`{"device_id":"reader-lobby","card_uid":"04a1b2c3","event_type":"time_in"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var sr types.ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sr.OK || sr.SequenceID != 1 || len(sr.HashChain) != 64 {
		t.Fatalf("unexpected scan response: %+v", sr)
	}

	e, err := f.events.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.EmployeeRFID != "04A1B2C3" || e.HashChain != sr.HashChain {
		t.Errorf("stored event mismatch: %+v", e)
	}
}

func TestScan_Rejections(t *testing.T) {
	f := newTestServer(t, []string{"reader-lobby"})

	cases := map[string]struct {
		body string
		want int
	}{
		"unknown device": {`{"device_id":"rogue","card_uid":"04A1B2C3","event_type":"time_in"}`, http.StatusForbidden},
		"missing card":   {`{"device_id":"reader-lobby","event_type":"time_in"}`, http.StatusBadRequest},
		"bad event type": {`{"device_id":"reader-lobby","card_uid":"04A1B2C3","event_type":"lunch"}`, http.StatusBadRequest},
		"bad timestamp":  {`{"device_id":"reader-lobby","card_uid":"04A1B2C3","event_type":"time_in","scan_timestamp":"yesterday"}`, http.StatusBadRequest},
		"missing device": {`{"card_uid":"04A1B2C3","event_type":"time_in"}`, http.StatusBadRequest},
		"malformed json": {`{`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := do(t, http.MethodPost, f.ts.URL+"/v1/scans", "", strings.NewReader(tc.body))
			if resp.StatusCode != tc.want {
				t.Errorf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}

	if _, total, _ := f.events.List(context.Background(), types.EventFilter{}, 10, 0); total != 0 {
		t.Errorf("rejected scans must not reach the ledger, found %d events", total)
	}
}

func TestScan_Protobuf(t *testing.T) {
	f := newTestServer(t, []string{"reader-lobby"})

	var msg []byte
	for _, fld := range []struct {
		num protowire.Number
		val string
	}{{1, "reader-lobby"}, {2, "04A1B2C3"}, {3, "time_out"}, {4, "2026-03-02T17:00:00Z"}} {
		msg = protowire.AppendTag(msg, fld.num, protowire.BytesType)
		msg = protowire.AppendString(msg, fld.val)
	}

	resp, err := http.Post(f.ts.URL+"/v1/scans", "application/x-protobuf", bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Fatalf("content type = %q", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	var ok bool
	var seq uint64
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			t.Fatalf("bad tag")
		}
		body = body[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(body)
			ok, n = protowire.DecodeBool(v), m
		case num == 2 && typ == protowire.VarintType:
			seq, n = protowire.ConsumeVarint(body)
		default:
			n = protowire.ConsumeFieldValue(num, typ, body)
		}
		if n < 0 {
			t.Fatalf("bad field %d", num)
		}
		body = body[n:]
	}
	if !ok || seq != 1 {
		t.Errorf("ok=%v sequence_id=%d, want true/1", ok, seq)
	}

	e, _ := f.events.Get(context.Background(), 1)
	if e.EventType != types.EventTimeOut || !e.ScanTimestamp.Equal(time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)) {
		t.Errorf("stored event mismatch: %+v", e)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ops endpoints
// ═══════════════════════════════════════════════════════════════════════════

func TestMetricsAndRequestID(t *testing.T) {
	f := newTestServer(t, nil)

	resp := do(t, http.MethodGet, f.ts.URL+"/ledger/events", "", nil)
	if id := resp.Header.Get("X-Request-ID"); !strings.HasPrefix(id, "req-") {
		t.Errorf("expected a generated request id, got %q", id)
	}

	resp = do(t, http.MethodGet, f.ts.URL+"/metrics", "", nil)
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	want := fmt.Sprintf(`ledgerwatch_http_requests_total{code="200",method="GET",route="%s"}`, "/ledger/events")
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics output missing %s", want)
	}
}

func TestUnknownRoute_404Envelope(t *testing.T) {
	f := newTestServer(t, nil)
	env := decodeEnvelope(t, do(t, http.MethodGet, f.ts.URL+"/nope", "", nil), http.StatusNotFound)
	if env.Success || env.Code != "not_found" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}
