package types

import "time"

// BadgeScan is the projection of a ledger event used for badge analytics.
type BadgeScan struct {
	DeviceID      string
	EventType     EventType
	ScanTimestamp time.Time
}

type DeviceUsage struct {
	DeviceID string `json:"device_id"`
	Scans    int    `json:"scans"`
}

type BadgeAnalytics struct {
	CardUID          string            `json:"card_uid"`
	Badge            *Badge            `json:"badge"`
	TotalScans       int               `json:"total_scans"`
	FirstScan        *time.Time        `json:"first_scan"`
	LastScan         *time.Time        `json:"last_scan"`
	DistinctDays     int               `json:"distinct_days"`
	DistinctDevices  int               `json:"distinct_devices"`
	Devices          []DeviceUsage     `json:"devices"`
	EventTypeCounts  map[EventType]int `json:"event_type_counts"`
	PeakHours        [24]int           `json:"peak_hours"`
	PeakHour         *int              `json:"peak_hour"`
	ConsistencyScore float64           `json:"consistency_score"`
}
