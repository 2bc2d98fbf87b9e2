package review

import (
	"sort"
	"strings"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

// Paginate applies a resolved query to statuses held in memory. Rows are
// ordered by the sort column with participant id as the tiebreak.
func Paginate(statuses []models.ParticipantCohortStatus, q models.ReviewQuery) models.ReviewPage {
	accept := Compose(FromReviewFilters(q.Filters)...)
	matched := make([]models.ParticipantCohortStatus, 0, len(statuses))
	for _, s := range statuses {
		if accept.Accept(s) {
			matched = append(matched, s)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		c := compareColumn(matched[i], matched[j], q.SortColumn)
		if c == 0 {
			return matched[i].ParticipantID < matched[j].ParticipantID
		}
		if q.SortOrder == models.SortDesc {
			return c > 0
		}
		return c < 0
	})

	page := models.ReviewPage{
		ParticipantCohortStatuses: []models.ParticipantCohortStatus{},
		TotalCount:                int64(len(matched)),
	}
	if q.PageSize <= 0 {
		return page
	}
	start := q.Page * q.PageSize
	if start >= len(matched) {
		return page
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	page.ParticipantCohortStatuses = append(page.ParticipantCohortStatuses, matched[start:end]...)
	return page
}

func compareColumn(a, b models.ParticipantCohortStatus, column models.Column) int {
	switch column {
	case models.ColumnParticipantID:
		return compareInt(a.ParticipantID, b.ParticipantID)
	case models.ColumnDeceased:
		return compareInt(boolInt(a.Deceased), boolInt(b.Deceased))
	default:
		return strings.Compare(Value(a, column), Value(b, column))
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
