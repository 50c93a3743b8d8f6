package health

import (
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// DetectGaps returns every run of missing ids between consecutive entries of
// ids, which must be sorted ascending. Duplicates are ignored.
func DetectGaps(ids []int64, detectedAt time.Time) []types.GapDetail {
	gaps := []types.GapDetail{}
	for i := 1; i < len(ids); i++ {
		prev, cur := ids[i-1], ids[i]
		if cur-prev <= 1 {
			continue
		}
		gaps = append(gaps, types.GapDetail{
			MissingStart: prev + 1,
			MissingEnd:   cur - 1,
			GapSize:      cur - prev - 1,
			DetectedAt:   detectedAt,
		})
	}
	return gaps
}
