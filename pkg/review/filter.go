package review

import (
	"strconv"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

// Filter is a column-scoped predicate over participant statuses. A filter
// with no selection is inactive and accepts everything.
type Filter interface {
	Property() models.Column
	IsActive() bool
	Accept(p models.ParticipantCohortStatus) bool
}

// Value renders a participant's column as the string a filter compares.
func Value(p models.ParticipantCohortStatus, column models.Column) string {
	switch column {
	case models.ColumnParticipantID:
		return strconv.FormatInt(p.ParticipantID, 10)
	case models.ColumnStatus:
		return string(p.Status)
	case models.ColumnGender:
		return p.Gender
	case models.ColumnRace:
		return p.Race
	case models.ColumnEthnicity:
		return p.Ethnicity
	case models.ColumnBirthDate:
		return p.BirthDate
	case models.ColumnDeceased:
		return strconv.FormatBool(p.Deceased)
	default:
		return ""
	}
}

// EqualityFilter accepts a participant whose column equals Selection.
type EqualityFilter struct {
	Column    models.Column
	Selection string
}

func (f EqualityFilter) Property() models.Column { return f.Column }

func (f EqualityFilter) IsActive() bool { return f.Selection != "" }

func (f EqualityFilter) Accept(p models.ParticipantCohortStatus) bool {
	return !f.IsActive() || Value(p, f.Column) == f.Selection
}

// MultiSelectFilter accepts a participant whose column is one of Selection.
type MultiSelectFilter struct {
	Column    models.Column
	Selection []string
}

func (f MultiSelectFilter) Property() models.Column { return f.Column }

func (f MultiSelectFilter) IsActive() bool { return len(f.Selection) > 0 }

func (f MultiSelectFilter) Accept(p models.ParticipantCohortStatus) bool {
	if !f.IsActive() {
		return true
	}
	v := Value(p, f.Column)
	for _, s := range f.Selection {
		if s == v {
			return true
		}
	}
	return false
}

type composite []Filter

// Compose accepts a participant only when every active filter accepts it.
func Compose(filters ...Filter) Filter {
	return composite(filters)
}

func (c composite) Property() models.Column { return "" }

func (c composite) IsActive() bool {
	for _, f := range c {
		if f.IsActive() {
			return true
		}
	}
	return false
}

func (c composite) Accept(p models.ParticipantCohortStatus) bool {
	for _, f := range c {
		if f.IsActive() && !f.Accept(p) {
			return false
		}
	}
	return true
}

// FromReviewFilters builds predicates from wire filters.
func FromReviewFilters(in []models.ReviewFilter) []Filter {
	out := make([]Filter, 0, len(in))
	for _, f := range in {
		if f.Operator == models.FilterEqual {
			var sel string
			if len(f.Values) > 0 {
				sel = f.Values[0]
			}
			out = append(out, EqualityFilter{Column: f.Property, Selection: sel})
			continue
		}
		out = append(out, MultiSelectFilter{Column: f.Property, Selection: append([]string(nil), f.Values...)})
	}
	return out
}

// ToReviewFilters renders the active filters for a status source. Inactive
// filters are left out.
func ToReviewFilters(filters ...Filter) []models.ReviewFilter {
	out := []models.ReviewFilter{}
	for _, f := range filters {
		if !f.IsActive() {
			continue
		}
		switch v := f.(type) {
		case EqualityFilter:
			out = append(out, models.ReviewFilter{Property: v.Column, Operator: models.FilterEqual, Values: []string{v.Selection}})
		case MultiSelectFilter:
			out = append(out, models.ReviewFilter{Property: v.Column, Operator: models.FilterIn, Values: append([]string(nil), v.Selection...)})
		case composite:
			out = append(out, ToReviewFilters(v...)...)
		}
	}
	return out
}
