// Package review resolves one filtered, sorted page of a saved cohort's
// participant statuses.
package review

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

const (
	DefaultPageSize    = 25
	DefaultMaxPageSize = 100
	DefaultSortColumn  = models.ColumnParticipantID
	DefaultSortOrder   = models.SortAsc
)

var ErrParam = errors.New("invalid review parameter")

// Limits bounds the page size a caller may request.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

func DefaultLimits() Limits {
	return Limits{DefaultPageSize: DefaultPageSize, MaxPageSize: DefaultMaxPageSize}
}

// Params are the caller's raw choices. A nil pointer means unspecified, which
// is different from an explicit zero.
type Params struct {
	Page       *int
	PageSize   *int
	SortColumn string
	SortOrder  string
	Filters    []models.ReviewFilter
}

// columnParams maps query parameter names to filterable columns.
var columnParams = map[string]models.Column{
	"participantId": models.ColumnParticipantID,
	"status":        models.ColumnStatus,
	"gender":        models.ColumnGender,
	"race":          models.ColumnRace,
	"ethnicity":     models.ColumnEthnicity,
	"birthDate":     models.ColumnBirthDate,
	"deceased":      models.ColumnDeceased,
}

var columns = map[models.Column]bool{
	models.ColumnParticipantID: true,
	models.ColumnStatus:        true,
	models.ColumnGender:        true,
	models.ColumnRace:          true,
	models.ColumnEthnicity:     true,
	models.ColumnBirthDate:     true,
	models.ColumnDeceased:      true,
}

// ParseParams reads review parameters from a URL query. The external page is
// one-based: page=N selects internal page N-1, and page=0 stays on page 0.
func ParseParams(values url.Values) (Params, error) {
	var p Params
	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, fmt.Errorf("%w: page %q", ErrParam, raw)
		}
		page := n - 1
		if n <= 0 {
			page = 0
		}
		p.Page = &page
	}
	if raw := values.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, fmt.Errorf("%w: pageSize %q", ErrParam, raw)
		}
		p.PageSize = &n
	}
	p.SortColumn = values.Get("sortColumn")
	p.SortOrder = values.Get("sortOrder")

	for _, name := range sortedKeys(columnParams) {
		selection := splitValues(values[name])
		if len(selection) == 0 {
			continue
		}
		column := columnParams[name]
		if column == models.ColumnParticipantID {
			if _, err := strconv.ParseInt(selection[0], 10, 64); err != nil {
				return Params{}, fmt.Errorf("%w: participantId %q", ErrParam, selection[0])
			}
			p.Filters = append(p.Filters, models.ReviewFilter{Property: column, Operator: models.FilterEqual, Values: selection[:1]})
			continue
		}
		p.Filters = append(p.Filters, models.ReviewFilter{Property: column, Operator: models.FilterIn, Values: selection})
	}
	return p, nil
}

// ResolveQuery fills defaults. Page 0 is a real page; a page size of zero or
// less is meaningless and falls back to the default.
func ResolveQuery(p Params, limits Limits) models.ReviewQuery {
	if limits.DefaultPageSize <= 0 {
		limits.DefaultPageSize = DefaultPageSize
	}
	if limits.MaxPageSize < limits.DefaultPageSize {
		limits.MaxPageSize = limits.DefaultPageSize
	}

	q := models.ReviewQuery{
		PageSize:   limits.DefaultPageSize,
		SortColumn: DefaultSortColumn,
		SortOrder:  DefaultSortOrder,
		Filters:    []models.ReviewFilter{},
	}
	if p.Page != nil && *p.Page > 0 {
		q.Page = *p.Page
	}
	if p.PageSize != nil && *p.PageSize > 0 {
		q.PageSize = *p.PageSize
		if q.PageSize > limits.MaxPageSize {
			q.PageSize = limits.MaxPageSize
		}
	}
	if c := models.Column(strings.ToUpper(p.SortColumn)); columns[c] {
		q.SortColumn = c
	}
	if o := models.SortOrder(strings.ToUpper(p.SortOrder)); o == models.SortDesc {
		q.SortOrder = o
	}
	for _, f := range p.Filters {
		if !columns[f.Property] || len(f.Values) == 0 {
			continue
		}
		q.Filters = append(q.Filters, f)
	}
	return q
}

func splitValues(raw []string) []string {
	var out []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func sortedKeys(m map[string]models.Column) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
