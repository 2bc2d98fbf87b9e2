package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/cohort-builder/pkg/cohort"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/criteria"
	"github.com/synaptica-ai/cohort-builder/pkg/funnel"
	"github.com/synaptica-ai/cohort-builder/pkg/gateway/middleware"
	"github.com/synaptica-ai/cohort-builder/pkg/review"
	"github.com/synaptica-ai/cohort-builder/pkg/terminology"
)

type memoryDefinitions struct {
	mu      sync.Mutex
	cohorts map[string]models.Cohort
}

func (m *memoryDefinitions) Save(_ context.Context, c models.Cohort) (models.Cohort, error) {
	if err := criteria.ValidateRequest(c.Criteria); err != nil {
		return models.Cohort{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = "c-" + c.Name
	}
	m.cohorts[c.ID] = c
	return c, nil
}

func (m *memoryDefinitions) Get(_ context.Context, id string) (models.Cohort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cohorts[id]
	if !ok {
		return models.Cohort{}, cohort.ErrCohortNotFound
	}
	return c, nil
}

func (m *memoryDefinitions) List(_ context.Context, limit int) ([]models.Cohort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Cohort, 0, len(m.cohorts))
	for _, c := range m.cohorts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryDefinitions) FindEquivalent(_ context.Context, req models.SearchRequest) ([]models.Cohort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := criteria.RequestFingerprint(req)
	var out []models.Cohort
	for _, c := range m.cohorts {
		if criteria.RequestFingerprint(c.Criteria) == want {
			out = append(out, c)
		}
	}
	return out, nil
}

type staticSource struct {
	rows []models.ParticipantCohortStatus
	err  error
}

func (s staticSource) ParticipantStatuses(_ context.Context, _ string, _ int64, q models.ReviewQuery) (models.ReviewPage, error) {
	if s.err != nil {
		return models.ReviewPage{}, s.err
	}
	return review.Paginate(s.rows, q), nil
}

type server struct {
	handler  http.Handler
	registry *cohort.Registry
	defs     *memoryDefinitions
}

func newServer(t *testing.T, source review.StatusSource) *server {
	t.Helper()
	index := cohort.NewIndexMatcher()
	index.Add("CONDITION", "E11", 1, 2, 3)
	index.Add("CONDITION", "I10", 2, 3, 4, 5)

	registry := cohort.NewRegistry(context.Background(), index, funnel.NewAggregator(index, 2), time.Hour, nil)
	t.Cleanup(registry.Shutdown)
	defs := &memoryDefinitions{cohorts: map[string]models.Cohort{
		"c1": {ID: "c1", Name: "diabetics", CDRVersionID: 3},
	}}

	r := mux.NewRouter()
	NewHealthHandler("cohort-service").Register(r)
	api := r.PathPrefix("/api/v1").Subrouter()
	NewCohortHandler(registry, defs, index).Register(api)
	NewReviewHandler(review.NewResolver(source, nil, review.DefaultLimits()), defs).Register(api)
	NewCriteriaHandler(terminology.DefaultCatalog()).Register(api)

	return &server{handler: middleware.Session(r), registry: registry, defs: defs}
}

func (s *server) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(middleware.SessionHeader, "s1")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func group(id, code string) models.SearchGroup {
	return models.SearchGroup{ID: id, Items: []models.SearchItem{{
		ID:               id + "-1",
		Type:             models.CriteriaICD10,
		SearchParameters: []models.SearchParameter{{Code: code, DomainID: "CONDITION"}},
	}}}
}

func TestValidateEndpoint(t *testing.T) {
	s := newServer(t, staticSource{})
	bad := group("g1", "E11")
	bad.Items[0].Modifiers = []models.Modifier{{Name: models.ModifierAgeAtEvent, Operator: models.OperatorBetween, Operands: []string{"60", "20"}}}

	rec := s.do(t, http.MethodPost, "/api/v1/cohort/validate", models.SearchRequest{Includes: []models.SearchGroup{bad}})
	var rep validationReport
	json.NewDecoder(rec.Body).Decode(&rep)
	if rec.Code != http.StatusOK || rep.Valid || len(rep.Errors) != 1 {
		t.Fatalf("unexpected report %d %+v", rec.Code, rep)
	}
}

func TestGroupCountLifecycle(t *testing.T) {
	s := newServer(t, staticSource{})
	rec := s.do(t, http.MethodPost, "/api/v1/cohort/groups/count", groupEdit{Role: models.RoleIncludes, Group: group("g1", "E11")})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	runner, _ := s.registry.Session("s1")
	runner.Flush()
	runner.Wait()

	rec = s.do(t, http.MethodGet, "/api/v1/cohort/requests?path=includes/g1", nil)
	var requesting map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&requesting)
	if requesting["requesting"] != false {
		t.Fatalf("count finished, got %+v", requesting)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/cohort/funnel", nil)
	var body struct {
		Stages []funnel.Stage `json:"stages"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if len(body.Stages) != 1 || body.Stages[0].Cumulative != 3 {
		t.Fatalf("unexpected funnel %+v", body.Stages)
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/cohort/groups/count?path=includes/g1", nil)
	if rec.Code != http.StatusOK || len(runner.Counts(models.RoleIncludes)) != 0 {
		t.Fatalf("remove failed: %d", rec.Code)
	}
}

func TestGroupEditRequiresSession(t *testing.T) {
	s := newServer(t, staticSource{})
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(groupEdit{Role: models.RoleIncludes, Group: group("g1", "E11")})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cohort/groups/count", &buf))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a session, got %d", rec.Code)
	}
}

func TestGroupEditRejectsInvalidGroup(t *testing.T) {
	s := newServer(t, staticSource{})
	rec := s.do(t, http.MethodPost, "/api/v1/cohort/groups/count", groupEdit{Role: models.RoleIncludes, Group: models.SearchGroup{ID: "g1", Items: []models.SearchItem{{ID: "i", Type: models.CriteriaICD10}}}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestReviewEndpoint(t *testing.T) {
	rows := []models.ParticipantCohortStatus{
		{ParticipantID: 1, Status: models.CohortStatusIncluded},
		{ParticipantID: 2, Status: models.CohortStatusExcluded},
		{ParticipantID: 3, Status: models.CohortStatusIncluded},
	}
	s := newServer(t, staticSource{rows: rows})

	rec := s.do(t, http.MethodGet, "/api/v1/cohorts/c1/review?page=1&pageSize=0&status=INCLUDED", nil)
	var resp reviewResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Query.Page != 0 || resp.Query.PageSize != 25 {
		t.Fatalf("unexpected query %+v", resp.Query)
	}
	if resp.TotalCount != 2 || len(resp.ParticipantCohortStatuses) != 2 {
		t.Fatalf("unexpected page %+v", resp.ReviewPage)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/cohorts/missing/review", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cohort, got %d", rec.Code)
	}
}

func TestReviewEndpointFallsBackToEmptyPage(t *testing.T) {
	s := newServer(t, staticSource{err: errors.New("warehouse offline")})
	rec := s.do(t, http.MethodGet, "/api/v1/cohorts/c1/review?cdrVersionId=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("failures must not surface, got %d", rec.Code)
	}
	var resp reviewResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.TotalCount != 0 || resp.ParticipantCohortStatuses == nil {
		t.Fatalf("expected empty page, got %+v", resp.ReviewPage)
	}
}

func TestSaveAndGetCohort(t *testing.T) {
	s := newServer(t, staticSource{})
	c := models.Cohort{Name: "hypertension", CDRVersionID: 3, Criteria: models.SearchRequest{Includes: []models.SearchGroup{group("g1", "I10")}}}
	rec := s.do(t, http.MethodPost, "/api/v1/cohorts", c)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/cohorts/c-hypertension", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected saved cohort, got %d", rec.Code)
	}

	c.Criteria.Includes = append(c.Criteria.Includes, group("g1", "E11"))
	if rec := s.do(t, http.MethodPost, "/api/v1/cohorts", c); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate group ids must be rejected, got %d", rec.Code)
	}
}

func TestCriteriaChildren(t *testing.T) {
	s := newServer(t, staticSource{})
	rec := s.do(t, http.MethodGet, "/api/v1/criteria/icd10/children?parentId=1", nil)
	var body struct {
		Items []terminology.Criteria `json:"items"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusOK || len(body.Items) != 1 {
		t.Fatalf("unexpected children %d %+v", rec.Code, body.Items)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/criteria/shoes/children", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t, staticSource{})
	if rec := s.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	s := newServer(t, staticSource{})
	req := models.SearchRequest{
		Includes: []models.SearchGroup{group("g1", "E11"), group("g2", "I10")},
		Excludes: []models.SearchGroup{group("g3", "e11")},
	}
	rec := s.do(t, http.MethodPost, "/api/v1/cohort/evaluate", req)
	var body struct {
		Count          int     `json:"count"`
		ParticipantIDs []int64 `json:"participant_ids"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusOK || body.Count != 2 || body.ParticipantIDs[0] != 4 || body.ParticipantIDs[1] != 5 {
		t.Fatalf("unexpected evaluation %d %+v", rec.Code, body)
	}
}

func TestListAndFindEquivalent(t *testing.T) {
	s := newServer(t, staticSource{})
	c := models.Cohort{Name: "both", Criteria: models.SearchRequest{Includes: []models.SearchGroup{group("g1", "E11"), group("g2", "I10")}}}
	if rec := s.do(t, http.MethodPost, "/api/v1/cohorts", c); rec.Code != http.StatusCreated {
		t.Fatalf("save failed: %d", rec.Code)
	}

	var body struct {
		Items []models.Cohort `json:"items"`
	}
	rec := s.do(t, http.MethodGet, "/api/v1/cohorts?limit=1", nil)
	json.NewDecoder(rec.Body).Decode(&body)
	if len(body.Items) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(body.Items))
	}

	reordered := models.SearchRequest{Includes: []models.SearchGroup{group("g2", "I10"), group("g1", "E11")}}
	rec = s.do(t, http.MethodPost, "/api/v1/cohorts/equivalent", reordered)
	body.Items = nil
	json.NewDecoder(rec.Body).Decode(&body)
	if len(body.Items) != 1 || body.Items[0].ID != "c-both" {
		t.Fatalf("expected the reordered definition to match, got %+v", body.Items)
	}
}
