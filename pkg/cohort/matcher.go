package cohort

import (
	"context"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/criteria"
)

// IndexMatcher matches groups against an in-memory code index. An item
// matches a participant holding any of its codes; a group matches the
// participants matching every item.
type IndexMatcher struct {
	index map[string]Set
}

func NewIndexMatcher() *IndexMatcher {
	return &IndexMatcher{index: make(map[string]Set)}
}

func indexKey(domain, code string) string {
	return domain + "|" + criteria.NormalizeCode(code)
}

// Add records that participant holds code in domain.
func (m *IndexMatcher) Add(domain, code string, participants ...int64) {
	key := indexKey(domain, code)
	if m.index[key] == nil {
		m.index[key] = Set{}
	}
	for _, id := range participants {
		m.index[key][id] = struct{}{}
	}
}

func (m *IndexMatcher) Match(ctx context.Context, group models.SearchGroup) (Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sets := make([]Set, 0, len(group.Items))
	for _, item := range group.Items {
		matched := Set{}
		for _, p := range item.SearchParameters {
			for id := range m.index[indexKey(p.DomainID, p.Code)] {
				matched[id] = struct{}{}
			}
		}
		sets = append(sets, matched)
	}
	return Intersect(sets...), nil
}

func (m *IndexMatcher) CountGroup(ctx context.Context, group models.SearchGroup) (int64, error) {
	s, err := m.Match(ctx, group)
	if err != nil {
		return 0, err
	}
	return int64(len(s)), nil
}
