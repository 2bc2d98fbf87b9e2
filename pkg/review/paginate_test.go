package review

import (
	"testing"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

func ids(page models.ReviewPage) []int64 {
	out := make([]int64, 0, len(page.ParticipantCohortStatuses))
	for _, p := range page.ParticipantCohortStatuses {
		out = append(out, p.ParticipantID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPaginateSortsWithParticipantTiebreak(t *testing.T) {
	q := ResolveQuery(Params{SortColumn: "GENDER", SortOrder: "DESC"}, DefaultLimits())
	page := Paginate(sample, q)
	if want := []int64{2, 4, 1, 3}; !equalIDs(ids(page), want) {
		t.Fatalf("expected %v, got %v", want, ids(page))
	}
	if page.TotalCount != 4 {
		t.Fatalf("unexpected total %d", page.TotalCount)
	}
}

func TestPaginatePages(t *testing.T) {
	q := ResolveQuery(Params{Page: intPtr(1), PageSize: intPtr(3)}, DefaultLimits())
	page := Paginate(sample, q)
	if want := []int64{4}; !equalIDs(ids(page), want) {
		t.Fatalf("expected %v, got %v", want, ids(page))
	}

	q.Page = 9
	page = Paginate(sample, q)
	if len(page.ParticipantCohortStatuses) != 0 || page.ParticipantCohortStatuses == nil || page.TotalCount != 4 {
		t.Fatalf("past the end yields an empty page with the full total, got %+v", page)
	}
}

func TestPaginateFiltersBeforeCounting(t *testing.T) {
	q := ResolveQuery(Params{Filters: []models.ReviewFilter{
		{Property: models.ColumnStatus, Operator: models.FilterIn, Values: []string{"INCLUDED"}},
	}}, DefaultLimits())
	page := Paginate(sample, q)
	if page.TotalCount != 2 || !equalIDs(ids(page), []int64{1, 4}) {
		t.Fatalf("unexpected page %+v", page)
	}
}
