// Package sqlite implements the ledger stores on modernc.org/sqlite.
// Timestamps are stored as UTC unix milliseconds. Writes go through a
// db.Worker so that appends and the chain tail they read are serialised.
package sqlite

import (
	"strings"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
)

var (
	_ store.EventStore     = (*EventStore)(nil)
	_ store.DeviceStore    = (*DeviceStore)(nil)
	_ store.BadgeStore     = (*BadgeStore)(nil)
	_ store.HealthLogStore = (*HealthLogStore)(nil)
)

type rowScanner interface {
	Scan(dest ...any) error
}

func toMs(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching s anywhere, lower-cased.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
