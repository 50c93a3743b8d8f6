package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/chain"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/service"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store/memory"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// newTestScanService builds a ScanService backed by in-memory stores,
// returning the event store so tests can inspect the ledger.
func newTestScanService(knownDevices []string) (*service.ScanService, *memory.EventStore) {
	registry := service.NewDeviceRegistry(memory.NewDeviceStore(knownDevices), 5*time.Minute)
	es := memory.NewEventStore(nil)
	return service.NewScanService(registry, es), es
}

// ── Appending ────────────────────────────────────────────────────────────────

func TestSubmit_AppendsLinkedEvents(t *testing.T) {
	svc, es := newTestScanService([]string{"reader-1"})
	ctx := context.Background()

	for _, et := range []string{"time_in", "break_start", "break_end", "time_out"} {
		resp, err := svc.Submit(ctx, types.ScanRequest{DeviceID: "reader-1", CardUID: "04a1b2c3", EventType: et})
		if err != nil {
			t.Fatalf("Submit(%s): %v", et, err)
		}
		if !resp.OK || resp.SequenceID == 0 || resp.HashChain == "" {
			t.Fatalf("unexpected response: %+v", resp)
		}
	}

	events := es.Events()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].EmployeeRFID != "04A1B2C3" {
		t.Errorf("card uid should be normalised to upper case, got %q", events[0].EmployeeRFID)
	}
	for i, e := range events {
		if e.SequenceID != int64(i+1) {
			t.Errorf("event %d has sequence %d", i, e.SequenceID)
		}
	}
	if res := chain.VerifyWindow(events); res.Failures != 0 {
		t.Errorf("appended chain should verify, got %+v", res)
	}
}

func TestSubmit_ExplicitScanTimestamp(t *testing.T) {
	svc, es := newTestScanService([]string{"reader-1"})

	_, err := svc.Submit(context.Background(), types.ScanRequest{
		DeviceID: "reader-1", CardUID: "C1", EventType: "time_in", ScanTimestamp: "2026-03-02T08:00:00+02:00",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	want := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	if got := es.Events()[0].ScanTimestamp; !got.Equal(want) {
		t.Errorf("scan timestamp = %v, want %v", got, want)
	}
}

// ── Rejections ───────────────────────────────────────────────────────────────

func TestSubmit_Rejections(t *testing.T) {
	svc, es := newTestScanService([]string{"reader-1"})

	cases := []struct {
		name string
		req  types.ScanRequest
		want error
	}{
		{"missing device", types.ScanRequest{CardUID: "C1", EventType: "time_in"}, service.ErrInvalidDeviceID},
		{"missing card", types.ScanRequest{DeviceID: "reader-1", EventType: "time_in"}, service.ErrInvalidCardUID},
		{"bad event type", types.ScanRequest{DeviceID: "reader-1", CardUID: "C1", EventType: "lunch"}, service.ErrInvalidEventType},
		{"bad timestamp", types.ScanRequest{DeviceID: "reader-1", CardUID: "C1", EventType: "time_in", ScanTimestamp: "yesterday"}, service.ErrInvalidScanTimestamp},
		{"unknown device", types.ScanRequest{DeviceID: "reader-9", CardUID: "C1", EventType: "time_in"}, service.ErrUnknownDevice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if n := len(es.Events()); n != 0 {
		t.Errorf("rejected scans must not be appended, got %d events", n)
	}
}

func TestSubmit_UnknownDeviceResponseCarriesReason(t *testing.T) {
	svc, _ := newTestScanService(nil)
	resp, err := svc.Submit(context.Background(), types.ScanRequest{DeviceID: "ghost", CardUID: "C1", EventType: "time_in"})
	if !errors.Is(err, service.ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
	if resp.OK || resp.Reason != "unknown_device" {
		t.Errorf("unexpected response %+v", resp)
	}
}

// ── Heartbeats ───────────────────────────────────────────────────────────────

func TestHeartbeat_KnownDeviceGoesOnline(t *testing.T) {
	ds := memory.NewDeviceStore([]string{"reader-1"})
	reg := service.NewDeviceRegistry(ds, 5*time.Minute)
	hb := service.NewHeartbeatService(reg)

	resp, err := hb.Record(context.Background(), types.HeartbeatRequest{DeviceID: "reader-1"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !resp.OK || !resp.Known || resp.Status != "online" {
		t.Errorf("unexpected response %+v", resp)
	}

	d, err := reg.Get(context.Background(), "reader-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Status != types.DeviceOnline || d.LastHeartbeat == nil {
		t.Errorf("device = %+v, want online with heartbeat", d)
	}
}

func TestHeartbeat_MaintenanceIsPreserved(t *testing.T) {
	ds := memory.NewDeviceStore(nil)
	_ = ds.UpsertDevice(context.Background(), types.Device{DeviceID: "reader-2", Status: types.DeviceMaintenance})
	hb := service.NewHeartbeatService(service.NewDeviceRegistry(ds, 5*time.Minute))

	resp, _ := hb.Record(context.Background(), types.HeartbeatRequest{DeviceID: "reader-2"})
	if resp.Status != "maintenance" {
		t.Errorf("status = %q, want maintenance", resp.Status)
	}
}

func TestHeartbeat_UnknownDeviceAcknowledged(t *testing.T) {
	hb := service.NewHeartbeatService(service.NewDeviceRegistry(memory.NewDeviceStore(nil), 0))

	resp, err := hb.Record(context.Background(), types.HeartbeatRequest{DeviceID: "stranger"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !resp.OK || resp.Known {
		t.Errorf("expected ok=true known=false, got %+v", resp)
	}

	if _, err := hb.Record(context.Background(), types.HeartbeatRequest{}); !errors.Is(err, service.ErrInvalidDeviceID) {
		t.Errorf("expected ErrInvalidDeviceID, got %v", err)
	}
}

func TestDeviceRegistry_StaleHeartbeatReadsOffline(t *testing.T) {
	ds := memory.NewDeviceStore(nil)
	old := time.Now().UTC().Add(-time.Hour)
	_ = ds.UpsertDevice(context.Background(), types.Device{DeviceID: "r", Status: types.DeviceOnline, LastHeartbeat: &old})
	reg := service.NewDeviceRegistry(ds, 5*time.Minute)

	list, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Status != types.DeviceOffline {
		t.Errorf("expected the stale reader to read offline, got %+v", list)
	}
}
