package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

const (
	peakHoursWindow   = 90 * 24 * time.Hour
	consistencyWindow = 30 // days
)

// BadgeService aggregates a badge's scan history.
type BadgeService struct {
	events store.EventStore
	badges store.BadgeStore
	loc    *time.Location
	now    func() time.Time
}

func NewBadgeService(es store.EventStore, bs store.BadgeStore, loc *time.Location) *BadgeService {
	if loc == nil {
		loc = time.UTC
	}
	return &BadgeService{
		events: es,
		badges: bs,
		loc:    loc,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Analytics returns zeroed aggregates for a registered badge without scans
// and store.ErrNotFound only when the card is unknown to both the badge
// registry and the ledger.
func (s *BadgeService) Analytics(ctx context.Context, cardUID string) (types.BadgeAnalytics, error) {
	cardUID = strings.ToUpper(strings.TrimSpace(cardUID))
	if cardUID == "" {
		return types.BadgeAnalytics{}, &ValidationError{Fields: map[string]string{"badge": "is required"}}
	}

	var badge *types.Badge
	b, err := s.badges.GetBadge(ctx, cardUID)
	switch {
	case err == nil:
		badge = &b
	case !errors.Is(err, store.ErrNotFound):
		return types.BadgeAnalytics{}, fmt.Errorf("get badge %s: %w", cardUID, err)
	}

	scans, err := s.events.BadgeScans(ctx, cardUID)
	if err != nil {
		return types.BadgeAnalytics{}, fmt.Errorf("badge scans %s: %w", cardUID, err)
	}
	if badge == nil && len(scans) == 0 {
		return types.BadgeAnalytics{}, store.ErrNotFound
	}

	a := ComputeBadgeAnalytics(cardUID, scans, s.now(), s.loc)
	a.Badge = badge
	return a, nil
}

// ComputeBadgeAnalytics aggregates scans, which must be ordered by scan time.
// Calendar days and hours are taken in loc.
func ComputeBadgeAnalytics(cardUID string, scans []types.BadgeScan, now time.Time, loc *time.Location) types.BadgeAnalytics {
	a := types.BadgeAnalytics{
		CardUID:         cardUID,
		Devices:         []types.DeviceUsage{},
		EventTypeCounts: make(map[types.EventType]int, 4),
	}
	for _, et := range types.EventTypes() {
		a.EventTypeCounts[et] = 0
	}
	if len(scans) == 0 {
		return a
	}

	first := scans[0].ScanTimestamp
	last := scans[len(scans)-1].ScanTimestamp
	a.TotalScans = len(scans)
	a.FirstScan, a.LastScan = &first, &last

	days := make(map[string]struct{})
	perDevice := make(map[string]int)
	peakSince := now.Add(-peakHoursWindow)

	localNow := now.In(loc)
	today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)
	consistencyStart := today.AddDate(0, 0, -(consistencyWindow - 1))
	scannedWeekdays := make(map[string]struct{})

	for _, sc := range scans {
		local := sc.ScanTimestamp.In(loc)
		day := local.Format(dateLayout)
		days[day] = struct{}{}
		perDevice[sc.DeviceID]++
		a.EventTypeCounts[sc.EventType]++

		if !sc.ScanTimestamp.Before(peakSince) {
			a.PeakHours[local.Hour()]++
		}
		if !local.Before(consistencyStart) && isWeekday(local.Weekday()) {
			scannedWeekdays[day] = struct{}{}
		}
	}

	a.DistinctDays = len(days)
	a.DistinctDevices = len(perDevice)
	for id, n := range perDevice {
		a.Devices = append(a.Devices, types.DeviceUsage{DeviceID: id, Scans: n})
	}
	sort.Slice(a.Devices, func(i, j int) bool {
		if a.Devices[i].Scans != a.Devices[j].Scans {
			return a.Devices[i].Scans > a.Devices[j].Scans
		}
		return a.Devices[i].DeviceID < a.Devices[j].DeviceID
	})

	best := -1
	for h, n := range a.PeakHours {
		if n > 0 && (best < 0 || n > a.PeakHours[best]) {
			best = h
		}
	}
	if best >= 0 {
		a.PeakHour = &best
	}

	weekdays := 0
	for d := consistencyStart; !d.After(today); d = d.AddDate(0, 0, 1) {
		if isWeekday(d.Weekday()) {
			weekdays++
		}
	}
	if weekdays > 0 {
		score := float64(len(scannedWeekdays)) / float64(weekdays) * 100
		a.ConsistencyScore = math.Round(score*10) / 10
	}
	return a
}

func isWeekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}
