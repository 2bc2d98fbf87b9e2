package funnel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/criteria"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoStages      = errors.New("funnel has no resolved groups")
	ErrStageRange    = errors.New("stage out of range")
	ErrUnknownGroup  = errors.New("group not part of funnel")
	ErrTemporalStage = errors.New("temporal groups cannot be intersected")
)

// GroupCounter runs a participant count for a single group.
type GroupCounter interface {
	CountGroup(ctx context.Context, group models.SearchGroup) (int64, error)
}

// Order sorts group counts ascending so the most restrictive group leads.
// Ties keep the original group order; groups still loading go last.
func Order(counts []models.GroupCount) []models.GroupCount {
	out := append([]models.GroupCount(nil), counts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Loading != out[j].Loading {
			return !out[i].Loading
		}
		if out[i].Loading {
			return false
		}
		return out[i].GroupCount < out[j].GroupCount
	})
	return out
}

// Stage is one step of the funnel. Cumulative is the number of participants
// matching this group and every group before it.
type Stage struct {
	models.GroupCount
	Cumulative int64 `json:"cumulative"`
	Resolved   bool  `json:"resolved"`
}

// DefaultCacheTTL bounds how long a stage count is reused.
const DefaultCacheTTL = 2 * time.Minute

type cachedCount struct {
	n       int64
	expires time.Time
}

// Aggregator builds funnels and caches stage counts by canonical form so an
// edit with no functional change does not refetch. Counts expire after the
// cache TTL.
type Aggregator struct {
	counter GroupCounter
	limit   int
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedCount
}

func NewAggregator(counter GroupCounter, limit int) *Aggregator {
	if limit <= 0 {
		limit = 1
	}
	return &Aggregator{
		counter: counter,
		limit:   limit,
		ttl:     DefaultCacheTTL,
		now:     time.Now,
		cache:   make(map[string]cachedCount),
	}
}

// WithCacheTTL overrides how long stage counts are reused.
func (a *Aggregator) WithCacheTTL(ttl time.Duration) *Aggregator {
	if ttl > 0 {
		a.ttl = ttl
	}
	return a
}

func (a *Aggregator) count(ctx context.Context, group models.SearchGroup) (int64, error) {
	key := criteria.Fingerprint(group)
	a.mu.Lock()
	if c, ok := a.cache[key]; ok && a.now().Before(c.expires) {
		a.mu.Unlock()
		return c.n, nil
	}
	a.mu.Unlock()

	n, err := a.counter.CountGroup(ctx, group)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	now := a.now()
	for k, c := range a.cache {
		if !now.Before(c.expires) {
			delete(a.cache, k)
		}
	}
	a.cache[key] = cachedCount{n: n, expires: now.Add(a.ttl)}
	a.mu.Unlock()
	return n, nil
}

// Funnel is the ordered view over one set of include groups.
type Funnel struct {
	agg    *Aggregator
	groups map[string]models.SearchGroup

	mu     sync.Mutex
	stages []Stage
}

// Build orders counts and eagerly resolves only the leading stage. The lead's
// cumulative count is its own group count; it is fetched only when that
// count is still loading.
func (a *Aggregator) Build(ctx context.Context, groups []models.SearchGroup, counts []models.GroupCount) (*Funnel, error) {
	f := &Funnel{agg: a, groups: make(map[string]models.SearchGroup, len(groups))}
	for _, g := range groups {
		f.groups[g.ID] = g
	}
	for _, c := range Order(counts) {
		if _, ok := f.groups[c.GroupID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, c.GroupID)
		}
		f.stages = append(f.stages, Stage{GroupCount: c})
	}
	if len(f.stages) == 0 {
		return f, nil
	}

	lead := &f.stages[0]
	if !lead.Loading {
		lead.Cumulative = lead.GroupCount.GroupCount
		lead.Resolved = true
		return f, nil
	}
	n, err := a.count(ctx, f.groups[lead.GroupID])
	if err != nil {
		return f, err
	}
	lead.GroupCount.GroupCount = n
	lead.Loading = false
	lead.Cumulative = n
	lead.Resolved = true
	return f, nil
}

func (f *Funnel) Stages() []Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Stage(nil), f.stages...)
}

// Lead returns the most restrictive stage.
func (f *Funnel) Lead() (Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stages) == 0 || !f.stages[0].Resolved {
		return Stage{}, ErrNoStages
	}
	return f.stages[0], nil
}

// Resolve computes stage i on demand by intersecting groups 0..i.
func (f *Funnel) Resolve(ctx context.Context, i int) (Stage, error) {
	f.mu.Lock()
	if i < 0 || i >= len(f.stages) {
		f.mu.Unlock()
		return Stage{}, fmt.Errorf("%w: %d", ErrStageRange, i)
	}
	if f.stages[i].Resolved {
		s := f.stages[i]
		f.mu.Unlock()
		return s, nil
	}
	ids := make([]string, 0, i+1)
	for _, s := range f.stages[:i+1] {
		ids = append(ids, s.GroupID)
	}
	f.mu.Unlock()

	merged, err := f.intersect(ids)
	if err != nil {
		return Stage{}, err
	}
	n, err := f.agg.count(ctx, merged)
	if err != nil {
		return Stage{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages[i].Cumulative = n
	f.stages[i].Resolved = true
	return f.stages[i], nil
}

// ResolveAll resolves every remaining stage with bounded concurrency.
func (f *Funnel) ResolveAll(ctx context.Context) ([]Stage, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.agg.limit)
	for i := range f.Stages() {
		g.Go(func() error {
			_, err := f.Resolve(gctx, i)
			if errors.Is(err, ErrTemporalStage) {
				logger.Log.WithField("stage", i).Debug("skipping temporal funnel stage")
				return nil
			}
			return err
		})
	}
	err := g.Wait()
	return f.Stages(), err
}

// intersect folds the items of several groups into one AND-combined group.
func (f *Funnel) intersect(ids []string) (models.SearchGroup, error) {
	merged := models.SearchGroup{ID: "funnel:" + strings.Join(ids, "+")}
	for _, id := range ids {
		g := f.groups[id]
		if g.Temporal != nil && len(ids) > 1 {
			return models.SearchGroup{}, fmt.Errorf("%w: %s", ErrTemporalStage, id)
		}
		merged.Temporal = g.Temporal
		merged.Items = append(merged.Items, g.Items...)
	}
	return merged, nil
}
