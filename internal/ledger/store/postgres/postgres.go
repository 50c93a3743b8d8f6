// Package postgres implements the ledger stores on PostgreSQL through sqlx
// and the pgx database/sql driver.
package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

var (
	_ store.EventStore     = (*EventStore)(nil)
	_ store.DeviceStore    = (*DeviceStore)(nil)
	_ store.BadgeStore     = (*BadgeStore)(nil)
	_ store.HealthLogStore = (*HealthLogStore)(nil)
)

// appendLockKey is the pg_advisory_xact_lock key serialising ledger appends
// across every process sharing the database.
const appendLockKey int64 = 0x4c4544474552 // "LEDGER"

const eventColumns = `
  e.sequence_id, e.employee_rfid, e.device_id, e.event_type,
  e.scan_timestamp, e.recorded_at, e.prev_hash, e.hash_chain,
  e.processed, e.processed_at,
  COALESCE(b.employee_name, '') AS employee_name`

const eventFrom = `
FROM ledger_events e
LEFT JOIN badges b ON b.card_uid = e.employee_rfid`

type eventRow struct {
	SequenceID    int64        `db:"sequence_id"`
	EmployeeRFID  string       `db:"employee_rfid"`
	DeviceID      string       `db:"device_id"`
	EventType     string       `db:"event_type"`
	ScanTimestamp time.Time    `db:"scan_timestamp"`
	RecordedAt    time.Time    `db:"recorded_at"`
	PrevHash      string       `db:"prev_hash"`
	HashChain     string       `db:"hash_chain"`
	Processed     bool         `db:"processed"`
	ProcessedAt   sql.NullTime `db:"processed_at"`
	EmployeeName  string       `db:"employee_name"`
}

func (r eventRow) event() types.LedgerEvent {
	e := types.LedgerEvent{
		SequenceID:    r.SequenceID,
		EmployeeRFID:  r.EmployeeRFID,
		DeviceID:      r.DeviceID,
		EventType:     types.EventType(r.EventType),
		ScanTimestamp: r.ScanTimestamp.UTC(),
		RecordedAt:    r.RecordedAt.UTC(),
		PrevHash:      r.PrevHash,
		HashChain:     r.HashChain,
		Processed:     r.Processed,
		EmployeeName:  r.EmployeeName,
	}
	if r.ProcessedAt.Valid {
		t := r.ProcessedAt.Time.UTC()
		e.ProcessedAt = &t
	}
	return e
}

func events(rows []eventRow) []types.LedgerEvent {
	out := make([]types.LedgerEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event())
	}
	return out
}

// argList numbers positional parameters as they are added.
type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return fmt.Sprintf("$%d", len(a.args))
}

func buildWhere(f types.EventFilter, a *argList) string {
	var conds []string
	if !f.From.IsZero() {
		conds = append(conds, "e.scan_timestamp >= "+a.add(f.From.UTC()))
	}
	if !f.To.IsZero() {
		conds = append(conds, "e.scan_timestamp < "+a.add(f.To.UTC()))
	}
	if f.DeviceID != "" {
		conds = append(conds, "e.device_id = "+a.add(f.DeviceID))
	}
	if f.EventType != "" {
		conds = append(conds, "e.event_type = "+a.add(string(f.EventType)))
	}
	if f.EmployeeRFID != "" {
		conds = append(conds, "e.employee_rfid = "+a.add(f.EmployeeRFID))
	}
	if q := strings.TrimSpace(f.EmployeeSearch); q != "" {
		p := a.add(likeEscaper.Replace(q))
		conds = append(conds, fmt.Sprintf(
			"(e.employee_rfid ILIKE '%%' || %[1]s || '%%' OR b.employee_name ILIKE '%%' || %[1]s || '%%' OR b.employee_id ILIKE '%%' || %[1]s || '%%')", p))
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
