package review

import (
	"errors"
	"net/url"
	"testing"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

func intPtr(v int) *int { return &v }

func TestResolveQueryDefaults(t *testing.T) {
	q := ResolveQuery(Params{}, DefaultLimits())
	if q.Page != 0 || q.PageSize != 25 {
		t.Fatalf("unexpected paging %d/%d", q.Page, q.PageSize)
	}
	if q.SortColumn != models.ColumnParticipantID || q.SortOrder != models.SortAsc {
		t.Fatalf("unexpected sort %s %s", q.SortColumn, q.SortOrder)
	}
	if q.Filters == nil || len(q.Filters) != 0 {
		t.Fatalf("expected empty filters, got %#v", q.Filters)
	}
}

func TestResolveQueryPageAndSize(t *testing.T) {
	cases := []struct {
		name     string
		params   Params
		page     int
		pageSize int
	}{
		{"explicit zero page is kept", Params{Page: intPtr(0), PageSize: intPtr(10)}, 0, 10},
		{"zero page size falls back", Params{Page: intPtr(3), PageSize: intPtr(0)}, 3, 25},
		{"negative page size falls back", Params{PageSize: intPtr(-5)}, 0, 25},
		{"negative page is clamped", Params{Page: intPtr(-2)}, 0, 25},
		{"page size is capped", Params{PageSize: intPtr(5000)}, 0, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := ResolveQuery(tc.params, DefaultLimits())
			if q.Page != tc.page || q.PageSize != tc.pageSize {
				t.Fatalf("expected %d/%d, got %d/%d", tc.page, tc.pageSize, q.Page, q.PageSize)
			}
		})
	}
}

func TestResolveQuerySort(t *testing.T) {
	q := ResolveQuery(Params{SortColumn: "gender", SortOrder: "desc"}, DefaultLimits())
	if q.SortColumn != models.ColumnGender || q.SortOrder != models.SortDesc {
		t.Fatalf("unexpected sort %s %s", q.SortColumn, q.SortOrder)
	}
	q = ResolveQuery(Params{SortColumn: "shoe_size", SortOrder: "sideways"}, DefaultLimits())
	if q.SortColumn != models.ColumnParticipantID || q.SortOrder != models.SortAsc {
		t.Fatalf("unknown sort must fall back, got %s %s", q.SortColumn, q.SortOrder)
	}
}

func TestParseParamsOneBasedPage(t *testing.T) {
	cases := map[string]int{"1": 0, "3": 2, "0": 0}
	for raw, want := range cases {
		p, err := ParseParams(url.Values{"page": {raw}})
		if err != nil {
			t.Fatalf("page %s: %v", raw, err)
		}
		if q := ResolveQuery(p, DefaultLimits()); q.Page != want {
			t.Fatalf("page %s: expected internal %d, got %d", raw, want, q.Page)
		}
	}
}

func TestParseParamsFilters(t *testing.T) {
	p, err := ParseParams(url.Values{
		"status":        {"INCLUDED,EXCLUDED"},
		"gender":        {"FEMALE"},
		"participantId": {"42"},
		"pageSize":      {"50"},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *p.PageSize != 50 {
		t.Fatalf("unexpected page size %d", *p.PageSize)
	}
	byColumn := map[models.Column]models.ReviewFilter{}
	for _, f := range p.Filters {
		byColumn[f.Property] = f
	}
	if f := byColumn[models.ColumnParticipantID]; f.Operator != models.FilterEqual || f.Values[0] != "42" {
		t.Fatalf("unexpected participant filter %+v", f)
	}
	if f := byColumn[models.ColumnStatus]; f.Operator != models.FilterIn || len(f.Values) != 2 {
		t.Fatalf("unexpected status filter %+v", f)
	}
}

func TestParseParamsRejectsGarbage(t *testing.T) {
	for _, v := range []url.Values{{"page": {"two"}}, {"pageSize": {"x"}}, {"participantId": {"abc"}}} {
		if _, err := ParseParams(v); !errors.Is(err, ErrParam) {
			t.Fatalf("expected param error for %v, got %v", v, err)
		}
	}
}
