package catalog

import (
	"sort"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
)

// Rank orders rows by the requested sort mode and truncates to the cap.
//
//   - date:     establishment last-update descending
//   - score:    stored establishment quality score descending
//   - distance: geodesic distance ascending (rows without a computed
//     distance sink to the end)
//
// The sort is stable so rows that tie keep their retrieval order.
func Rank(rows []model.SearchResult, mode model.SortMode, cap int) []model.SearchResult {
	switch mode {
	case model.SortByDate:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
		})
	case model.SortByScore:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].EstablishmentScore > rows[j].EstablishmentScore
		})
	case model.SortByDistance:
		sort.SliceStable(rows, func(i, j int) bool {
			di, dj := rows[i].DistanceMeters, rows[j].DistanceMeters
			if di == nil {
				return false
			}
			if dj == nil {
				return true
			}
			return *di < *dj
		})
	}

	if cap > 0 && len(rows) > cap {
		rows = rows[:cap]
	}
	return rows
}
