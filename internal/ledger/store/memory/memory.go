// Package memory holds in-process store implementations used by tests and
// by local runs without a database.
package memory

import "github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"

var (
	_ store.EventStore     = (*EventStore)(nil)
	_ store.BadgeStore     = (*BadgeStore)(nil)
	_ store.DeviceStore    = (*DeviceStore)(nil)
	_ store.HealthLogStore = (*HealthLogStore)(nil)
)
