// Package cohort evaluates cohort definitions and orchestrates the per-group
// participant counts shown while a definition is being edited.
package cohort

import (
	"context"
	"fmt"
	"sort"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

// Set is a set of participant ids.
type Set map[int64]struct{}

func NewSet(ids ...int64) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in ascending order.
func (s Set) IDs() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s Set) Subjects() []models.Subject {
	ids := s.IDs()
	out := make([]models.Subject, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Subject{ParticipantID: id})
	}
	return out
}

// GroupMatcher resolves the participants matching one group.
type GroupMatcher interface {
	Match(ctx context.Context, group models.SearchGroup) (Set, error)
}

// Evaluate computes the union of include groups minus the union of exclude
// groups. Hidden groups and hidden items are ignored; a request without an
// active include group matches nobody.
func Evaluate(ctx context.Context, req models.SearchRequest, m GroupMatcher) (Set, error) {
	included, err := union(ctx, req.Includes, m)
	if err != nil {
		return nil, err
	}
	if len(included) == 0 {
		return Set{}, nil
	}
	excluded, err := union(ctx, req.Excludes, m)
	if err != nil {
		return nil, err
	}
	for id := range excluded {
		delete(included, id)
	}
	return included, nil
}

func union(ctx context.Context, groups []models.SearchGroup, m GroupMatcher) (Set, error) {
	out := Set{}
	for _, g := range groups {
		active, ok := activeGroup(g)
		if !ok {
			continue
		}
		matched, err := m.Match(ctx, active)
		if err != nil {
			return nil, fmt.Errorf("match group %s: %w", g.ID, err)
		}
		for id := range matched {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func activeGroup(g models.SearchGroup) (models.SearchGroup, bool) {
	if g.Status == models.StatusHidden {
		return models.SearchGroup{}, false
	}
	items := make([]models.SearchItem, 0, len(g.Items))
	for _, item := range g.Items {
		if item.Status != models.StatusHidden {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return models.SearchGroup{}, false
	}
	g.Items = items
	return g, true
}

// Intersect returns the members present in every set.
func Intersect(sets ...Set) Set {
	if len(sets) == 0 {
		return Set{}
	}
	out := Set{}
	for id := range sets[0] {
		in := true
		for _, s := range sets[1:] {
			if !s.Has(id) {
				in = false
				break
			}
		}
		if in {
			out[id] = struct{}{}
		}
	}
	return out
}
