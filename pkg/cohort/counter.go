package cohort

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/criteria"
	"github.com/synaptica-ai/cohort-builder/pkg/funnel"
	"github.com/synaptica-ai/cohort-builder/pkg/observability/metrics"
	"github.com/synaptica-ai/cohort-builder/pkg/requests"
)

const (
	EventGroupCounted     = "cohort.group.counted"
	DefaultDebounceWindow = 1500 * time.Millisecond
)

// Publisher emits count completion events.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source, partitionKey string, data map[string]interface{}) error
}

type countEntry struct {
	seq         int
	path        requests.Path
	group       models.SearchGroup
	fingerprint string
	count       models.GroupCount
	pending     bool
}

// CountRunner keeps one participant count per group path. Edits are
// debounced; an edit that does not change a group's canonical form is a
// no-op, and a changed group cancels its stale count before a new one starts.
type CountRunner struct {
	store     *requests.Store
	counter   funnel.GroupCounter
	agg       *funnel.Aggregator
	publisher Publisher
	debounce  *requests.Debouncer
	source    string

	mu      sync.Mutex
	base    context.Context
	entries map[string]*countEntry
	seq     int
	wg      sync.WaitGroup
}

type RunnerOption func(*CountRunner)

func WithPublisher(p Publisher) RunnerOption {
	return func(r *CountRunner) { r.publisher = p }
}

func WithStore(s *requests.Store) RunnerOption {
	return func(r *CountRunner) { r.store = s }
}

// WithSource names the session in published events.
func WithSource(source string) RunnerOption {
	return func(r *CountRunner) { r.source = source }
}

func NewCountRunner(counter funnel.GroupCounter, agg *funnel.Aggregator, window time.Duration, opts ...RunnerOption) *CountRunner {
	r := &CountRunner{
		counter: counter,
		agg:     agg,
		source:  "cohort-builder",
		base:    context.Background(),
		entries: make(map[string]*countEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.store == nil {
		r.store = requests.NewStore()
	}
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	r.debounce = requests.NewDebouncer(window, r.Flush)
	return r
}

// Debouncer exposes the edit debouncer, e.g. to drive it with a fake clock.
func (r *CountRunner) Debouncer() *requests.Debouncer {
	return r.debounce
}

// Edit records the latest version of the group at path and reports whether
// it changed functionally. Hidden or empty groups drop their count.
func (r *CountRunner) Edit(path requests.Path, role models.Role, group models.SearchGroup) bool {
	active, ok := activeGroup(group)
	if !ok {
		return r.Remove(path) > 0
	}
	fp := criteria.Fingerprint(active)
	key := path.Key()

	r.mu.Lock()
	e := r.entries[key]
	if e != nil && e.fingerprint == fp {
		e.group = active
		e.count.GroupName = group.Name
		r.mu.Unlock()
		return false
	}
	if e == nil {
		r.seq++
		e = &countEntry{seq: r.seq, path: append(requests.Path(nil), path...)}
		r.entries[key] = e
	}
	// the stale request must be gone before Flush can see the entry pending
	if r.store.Cancel(path) {
		logger.WithPath(key).Debug("stale count canceled by edit")
	}
	e.group = active
	e.fingerprint = fp
	e.pending = true
	e.count = models.GroupCount{GroupID: group.ID, GroupName: group.Name, Role: role, Loading: true}
	r.mu.Unlock()

	r.debounce.Touch()
	return true
}

// Remove cancels counts at or below path and forgets them.
func (r *CountRunner) Remove(path requests.Path) int {
	canceled := r.store.CancelPrefix(path)
	prefix := path.Key()

	r.mu.Lock()
	removed := 0
	for key := range r.entries {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			delete(r.entries, key)
			removed++
		}
	}
	r.mu.Unlock()

	metrics.SetInFlight(len(r.store.Active()))
	if canceled > removed {
		return canceled
	}
	return removed
}

// Flush starts a count for every pending edit. The debouncer calls it once
// edits have settled.
func (r *CountRunner) Flush() {
	r.mu.Lock()
	base := r.base
	var starts []countEntry
	for _, e := range r.entries {
		if e.pending {
			e.pending = false
			starts = append(starts, *e)
		}
	}
	r.mu.Unlock()

	sort.Slice(starts, func(i, j int) bool { return starts[i].seq < starts[j].seq })
	for _, e := range starts {
		r.start(base, e.path, e.group, e.fingerprint)
	}
}

func (r *CountRunner) start(base context.Context, path requests.Path, group models.SearchGroup, fp string) {
	ticket, ctx := r.store.Start(base, path)
	metrics.ObserveCount(metrics.OutcomeStarted)
	metrics.SetInFlight(len(r.store.Active()))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		began := time.Now()
		n, err := r.counter.CountGroup(ctx, group)
		metrics.ObserveCountLatency(time.Since(began).Seconds())
		r.finish(ticket, fp, n, err)
	}()
}

func (r *CountRunner) finish(ticket requests.Ticket, fp string, n int64, err error) {
	key := ticket.Path.Key()
	current := r.store.Complete(ticket)
	metrics.SetInFlight(len(r.store.Active()))

	canceled := errors.Is(err, context.Canceled)
	if !current || canceled {
		outcome := metrics.OutcomeStale
		if canceled {
			outcome = metrics.OutcomeCanceled
		}
		metrics.ObserveCount(outcome)
		logger.WithPath(key).WithField("outcome", outcome).Debug("count response discarded")
		return
	}

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.fingerprint != fp {
		r.mu.Unlock()
		metrics.ObserveCount(metrics.OutcomeStale)
		return
	}
	e.count.Loading = false
	if err != nil {
		// a failed count is retried by the next edit, even an equivalent one
		e.fingerprint = ""
		r.mu.Unlock()
		metrics.ObserveCount(metrics.OutcomeFailed)
		logger.WithPath(key).WithError(err).Warn("group count failed")
		return
	}
	e.count.GroupCount = n
	count := e.count
	base := r.base
	r.mu.Unlock()

	metrics.ObserveCount(metrics.OutcomeCompleted)
	r.publish(base, key, count)
}

func (r *CountRunner) publish(ctx context.Context, key string, count models.GroupCount) {
	if r.publisher == nil {
		return
	}
	err := r.publisher.PublishEvent(ctx, EventGroupCounted, r.source, key, map[string]interface{}{
		"path":        key,
		"group_id":    count.GroupID,
		"group_name":  count.GroupName,
		"role":        string(count.Role),
		"group_count": count.GroupCount,
	})
	if err != nil {
		logger.WithFields(logrus.Fields{"path": key, "group_id": count.GroupID}).WithError(err).Warn("failed to publish group count")
	}
}

func (r *CountRunner) IsRequesting(path requests.Path) bool {
	return r.store.IsRequesting(path)
}

// Counts returns the counts of one role in the order groups were first edited.
func (r *CountRunner) Counts(role models.Role) []models.GroupCount {
	entries := r.snapshot(role)
	out := make([]models.GroupCount, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.count)
	}
	return out
}

// Funnel orders the include counts and resolves the leading stage.
func (r *CountRunner) Funnel(ctx context.Context) (*funnel.Funnel, error) {
	entries := r.snapshot(models.RoleIncludes)
	groups := make([]models.SearchGroup, 0, len(entries))
	counts := make([]models.GroupCount, 0, len(entries))
	for _, e := range entries {
		groups = append(groups, e.group)
		counts = append(counts, e.count)
	}
	return r.agg.Build(ctx, groups, counts)
}

func (r *CountRunner) snapshot(role models.Role) []countEntry {
	r.mu.Lock()
	out := make([]countEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.count.Role == role {
			out = append(out, *e)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Run drives the debouncer until ctx is done and waits for outstanding
// counts. Counts started while running inherit ctx.
func (r *CountRunner) Run(ctx context.Context) {
	r.mu.Lock()
	r.base = ctx
	r.mu.Unlock()

	r.debounce.Run(ctx)
	r.wg.Wait()
}

// Wait blocks until every started count has finished.
func (r *CountRunner) Wait() {
	r.wg.Wait()
}
