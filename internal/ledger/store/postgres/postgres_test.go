package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/chain"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store/postgres"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return sqlx.NewDb(db, "pgx"), mock
}

var eventColumns = []string{
	"sequence_id", "employee_rfid", "device_id", "event_type",
	"scan_timestamp", "recorded_at", "prev_hash", "hash_chain",
	"processed", "processed_at", "employee_name",
}

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// ═══════════════════════════════════════════════════════════════════════════
// Append
// ═══════════════════════════════════════════════════════════════════════════

func TestEventStore_Append_Genesis(t *testing.T) {
	db, mock := newMockDB(t)
	es := postgres.NewEventStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT sequence_id, hash_chain FROM ledger_events").
		WillReturnRows(sqlmock.NewRows([]string{"sequence_id", "hash_chain"}))
	mock.ExpectExec("INSERT INTO ledger_events").
		WithArgs(int64(1), "04A1", "lobby", "time_in", now, now, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e, err := es.Append(context.Background(), types.ScanInput{
		EmployeeRFID:  "04A1",
		DeviceID:      "lobby",
		EventType:     types.EventTimeIn,
		ScanTimestamp: now,
		RecordedAt:    now,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.SequenceID != 1 || e.PrevHash != "" {
		t.Errorf("genesis event = %+v", e)
	}
	if want, _ := chain.Digest("", e); e.HashChain != want {
		t.Errorf("hash_chain = %s, want %s", e.HashChain, want)
	}
}

func TestEventStore_Append_LinksToTail(t *testing.T) {
	db, mock := newMockDB(t)
	es := postgres.NewEventStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT sequence_id, hash_chain FROM ledger_events").
		WillReturnRows(sqlmock.NewRows([]string{"sequence_id", "hash_chain"}).AddRow(int64(41), "abc123"))
	mock.ExpectExec("INSERT INTO ledger_events").
		WithArgs(int64(42), "04A1", "lobby", "time_out", sqlmock.AnyArg(), sqlmock.AnyArg(), "abc123", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e, err := es.Append(context.Background(), types.ScanInput{
		EmployeeRFID:  "04A1",
		DeviceID:      "lobby",
		EventType:     types.EventTimeOut,
		ScanTimestamp: now,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.SequenceID != 42 || e.PrevHash != "abc123" {
		t.Errorf("event = %+v", e)
	}
}

func TestEventStore_Append_InsertFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	es := postgres.NewEventStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT sequence_id, hash_chain FROM ledger_events").
		WillReturnRows(sqlmock.NewRows([]string{"sequence_id", "hash_chain"}).AddRow(int64(1), "h1"))
	mock.ExpectExec("INSERT INTO ledger_events").
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	_, err := es.Append(context.Background(), types.ScanInput{
		EmployeeRFID: "04A1", DeviceID: "lobby", EventType: types.EventTimeIn, ScanTimestamp: now,
	})
	if err == nil {
		t.Fatal("expected an error")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reads
// ═══════════════════════════════════════════════════════════════════════════

func TestEventStore_Get(t *testing.T) {
	db, mock := newMockDB(t)
	es := postgres.NewEventStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.sequence_id = $1")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow(int64(500), "04A1", "lobby", "time_in", now, now, "p", "h", true, now.Add(time.Second), "Ada"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.sequence_id = $1")).
		WithArgs(int64(501)).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	e, err := es.Get(context.Background(), 500)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.SequenceID != 500 || e.EmployeeName != "Ada" || !e.Processed || e.ProcessedAt == nil {
		t.Errorf("event = %+v", e)
	}

	if _, err := es.Get(context.Background(), 501); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEventStore_List_WindowCount(t *testing.T) {
	db, mock := newMockDB(t)
	es := postgres.NewEventStore(db)

	cols := append([]string{"total_count"}, eventColumns...)
	rows := sqlmock.NewRows(cols)
	for id := int64(45); id > 25; id-- {
		rows.AddRow(45, id, "04A1", "lobby", "time_in", now, now, "p", "h", false, nil, "")
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) OVER() AS total_count,")).
		WithArgs("lobby", 20).
		WillReturnRows(rows)

	got, total, err := es.List(context.Background(), types.EventFilter{DeviceID: "lobby"}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 45 || len(got) != 20 || got[0].SequenceID != 45 {
		t.Errorf("total=%d len=%d first=%d", total, len(got), got[0].SequenceID)
	}
}

func TestEventStore_List_PastLastPageStillCounts(t *testing.T) {
	db, mock := newMockDB(t)
	es := postgres.NewEventStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) OVER() AS total_count,")).
		WithArgs("ada", 20, 100).
		WillReturnRows(sqlmock.NewRows(append([]string{"total_count"}, eventColumns...)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("ada").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	got, total, err := es.List(context.Background(), types.EventFilter{EmployeeSearch: "ada"}, 20, 100)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 7 || got == nil || len(got) != 0 {
		t.Errorf("total=%d rows=%#v", total, got)
	}
}

func TestEventStore_ProcessingStats(t *testing.T) {
	db, mock := newMockDB(t)
	es := postgres.NewEventStore(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS depth").
		WillReturnRows(sqlmock.NewRows([]string{"depth", "oldest"}).AddRow(int64(3), now.Add(-time.Minute)))
	// Ties on processed_at resolve to the largest delay.
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY processed_at DESC, (processed_at - recorded_at) DESC, sequence_id DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"recorded_at", "processed_at"}).AddRow(now.Add(-time.Hour), now.Add(-time.Hour+12*time.Second)))

	st, err := es.ProcessingStats(context.Background())
	if err != nil {
		t.Fatalf("ProcessingStats: %v", err)
	}
	if st.QueueDepth != 3 || st.OldestUnprocessedAt == nil || !st.OldestUnprocessedAt.Equal(now.Add(-time.Minute)) {
		t.Errorf("stats = %+v", st)
	}
	if st.LastProcessedDelay == nil || *st.LastProcessedDelay != 12*time.Second {
		t.Errorf("last processed delay = %v", st.LastProcessedDelay)
	}
}

func TestEventStore_MarkProcessed(t *testing.T) {
	db, mock := newMockDB(t)
	es := postgres.NewEventStore(db)

	mock.ExpectExec(regexp.QuoteMeta("sequence_id IN ($2, $3)")).
		WithArgs(now, int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := es.MarkProcessed(context.Background(), []int64{1, 2}, now)
	if err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if n != 2 {
		t.Errorf("updated %d, want 2", n)
	}

	// No ids, no query.
	if n, err := es.MarkProcessed(context.Background(), nil, now); n != 0 || err != nil {
		t.Errorf("empty MarkProcessed = %d, %v", n, err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Devices
// ═══════════════════════════════════════════════════════════════════════════

func TestDeviceStore_RecordHeartbeat(t *testing.T) {
	db, mock := newMockDB(t)
	ds := postgres.NewDeviceStore(db)

	mock.ExpectQuery("UPDATE devices SET").
		WithArgs("lobby", now).
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "display_name", "location", "status", "last_heartbeat"}).
			AddRow("lobby", "Lobby", "HQ", "online", now))
	mock.ExpectQuery("UPDATE devices SET").
		WithArgs("ghost", now).
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "display_name", "location", "status", "last_heartbeat"}))

	d, err := ds.RecordHeartbeat(context.Background(), "lobby", now)
	if err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	if d.Status != types.DeviceOnline || d.LastHeartbeat == nil {
		t.Errorf("device = %+v", d)
	}

	if _, err := ds.RecordHeartbeat(context.Background(), "ghost", now); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeviceStore_IsKnownAndList(t *testing.T) {
	db, mock := newMockDB(t)
	ds := postgres.NewDeviceStore(db)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("lobby").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT device_id, display_name, location, status, last_heartbeat FROM devices ORDER BY device_id").
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "display_name", "location", "status", "last_heartbeat"}).
			AddRow("dock", "Dock", "", "maintenance", nil).
			AddRow("lobby", "Lobby", "HQ", "online", now))

	known, err := ds.IsKnown(context.Background(), "lobby")
	if err != nil || !known {
		t.Fatalf("IsKnown = %v, %v", known, err)
	}
	// Blank ids never reach the database.
	if known, _ := ds.IsKnown(context.Background(), "  "); known {
		t.Error("blank id must not be known")
	}

	list, err := ds.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(list) != 2 || list[0].LastHeartbeat != nil || list[1].LastHeartbeat == nil {
		t.Errorf("devices = %+v", list)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Health log
// ═══════════════════════════════════════════════════════════════════════════

func TestHealthLogStore_UpsertAndList(t *testing.T) {
	db, mock := newMockDB(t)
	hs := postgres.NewHealthLogStore(db)

	snap := types.HealthSnapshot{ID: "s1", Status: types.StatusWarning, Timestamp: now.Add(17 * time.Minute), GapDetails: []types.GapDetail{}, Alerts: []types.Alert{}}
	payload, _ := json.Marshal(snap)

	mock.ExpectExec("INSERT INTO health_logs").
		WithArgs(now, "warning", snap.Timestamp, payload).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT snapshot FROM health_logs").
		WithArgs(now.Add(-24 * time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot"}).AddRow(payload))

	if err := hs.UpsertHourly(context.Background(), snap); err != nil {
		t.Fatalf("UpsertHourly: %v", err)
	}
	got, err := hs.ListSince(context.Background(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" || got[0].Status != types.StatusWarning {
		t.Errorf("history = %+v", got)
	}
}
