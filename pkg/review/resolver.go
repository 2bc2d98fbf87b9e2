package review

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/observability/metrics"
	"golang.org/x/sync/singleflight"
)

// StatusSource fetches one page of participant statuses for a cohort.
type StatusSource interface {
	ParticipantStatuses(ctx context.Context, cohortID string, cdrVersionID int64, q models.ReviewQuery) (models.ReviewPage, error)
}

// DefaultFetchTimeout bounds one shared backend fetch.
const DefaultFetchTimeout = 30 * time.Second

// Resolver turns raw review parameters into a page. Backend failures degrade
// to an empty page instead of an error.
type Resolver struct {
	source  StatusSource
	cache   PageCache
	limits  Limits
	timeout time.Duration
	group   singleflight.Group
}

// NewResolver builds a resolver. cache may be nil.
func NewResolver(source StatusSource, cache PageCache, limits Limits) *Resolver {
	return &Resolver{source: source, cache: cache, limits: limits, timeout: DefaultFetchTimeout}
}

// WithFetchTimeout overrides the shared fetch timeout.
func (r *Resolver) WithFetchTimeout(d time.Duration) *Resolver {
	if d > 0 {
		r.timeout = d
	}
	return r
}

func EmptyPage() models.ReviewPage {
	return models.ReviewPage{ParticipantCohortStatuses: []models.ParticipantCohortStatus{}}
}

// Query resolves parameters with the resolver's limits.
func (r *Resolver) Query(p Params) models.ReviewQuery {
	return ResolveQuery(p, r.limits)
}

// Resolve returns the resolved query together with its page.
func (r *Resolver) Resolve(ctx context.Context, cohortID string, cdrVersionID int64, p Params) (models.ReviewQuery, models.ReviewPage) {
	q := r.Query(p)
	key := PageKey(cdrVersionID, q)

	if r.cache != nil {
		if page, ok := r.cache.Get(ctx, cohortID, key); ok {
			metrics.ObserveReviewPage(metrics.SourceCache)
			return q, normalize(page)
		}
	}

	// Callers share one fetch, so it must outlive any single caller.
	ch := r.group.DoChan(cohortID+"/"+key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		page, err := r.source.ParticipantStatuses(fetchCtx, cohortID, cdrVersionID, q)
		if err != nil {
			return nil, err
		}
		page = normalize(page)
		if r.cache != nil {
			if err := r.cache.Set(fetchCtx, cohortID, key, page); err != nil {
				logger.Log.WithError(err).WithField("cohort_id", cohortID).Debug("review page not cached")
			}
		}
		return page, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		entry := logger.WithFields(logrus.Fields{
			"cohort_id": cohortID,
			"page":      q.Page,
			"page_size": q.PageSize,
		}).WithError(err)
		if errors.Is(err, context.Canceled) {
			entry.Debug("review page request canceled")
		} else {
			entry.Warn("review page query failed, serving empty page")
		}
		metrics.ObserveReviewPage(metrics.SourceFallback)
		return q, EmptyPage()
	}
	if shared {
		logger.Log.WithField("cohort_id", cohortID).Debug("review page shared with concurrent request")
	}
	metrics.ObserveReviewPage(metrics.SourceBackend)
	return q, v.(models.ReviewPage)
}

// Invalidate forgets cached pages of a cohort.
func (r *Resolver) Invalidate(ctx context.Context, cohortID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, cohortID)
}

func normalize(page models.ReviewPage) models.ReviewPage {
	if page.ParticipantCohortStatuses == nil {
		page.ParticipantCohortStatuses = []models.ParticipantCohortStatus{}
	}
	return page
}
