// Package validation folds research-method completion into an item's
// coverage percentage.
package validation

import (
	"math"

	"github.com/PabloGalante/brandlab/internal/domain"
)

// Coverage returns round(completed weight / applicable weight * 100).
// A method is applicable when it has a record for the item and a weight
// for the kind; methods without a record do not count against the item.
func Coverage(records []domain.ResearchMethodRecord, weights domain.MethodWeights) int {
	var total, completed float64
	seen := make(map[domain.ResearchMethod]bool, len(records))
	for _, r := range records {
		w, ok := weights[r.Method]
		if !ok || w <= 0 || seen[r.Method] {
			continue
		}
		seen[r.Method] = true
		total += w
		if r.Status == domain.MethodCompleted {
			completed += w
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(completed / total * 100))
}
