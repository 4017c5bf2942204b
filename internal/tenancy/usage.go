package tenancy

import (
	"sort"

	"github.com/astranetix/bms/pkg/models"
)

// DailyGB totals usage rows per calendar day. Days come back in order and
// days without rows are skipped.
func DailyGB(usage []models.BandwidthUsage) (days []string, series []float64) {
	daily := map[string]float64{}
	for _, u := range usage {
		daily[u.Date.UTC().Format("2006-01-02")] += float64(u.TotalBytes) / models.BytesPerGB
	}
	days = make([]string, 0, len(daily))
	for d := range daily {
		days = append(days, d)
	}
	sort.Strings(days)
	series = make([]float64, len(days))
	for i, d := range days {
		series[i] = daily[d]
	}
	return days, series
}
