package memory

import (
	"strings"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

func matches(e types.LedgerEvent, f types.EventFilter, badge *types.Badge) bool {
	if !f.From.IsZero() && e.ScanTimestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.ScanTimestamp.Before(f.To) {
		return false
	}
	if f.DeviceID != "" && e.DeviceID != f.DeviceID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.EmployeeRFID != "" && e.EmployeeRFID != f.EmployeeRFID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.EmployeeSearch)); q != "" {
		hay := []string{e.EmployeeRFID}
		if badge != nil {
			hay = append(hay, badge.EmployeeName, badge.EmployeeID)
		}
		found := false
		for _, h := range hay {
			if strings.Contains(strings.ToLower(h), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
