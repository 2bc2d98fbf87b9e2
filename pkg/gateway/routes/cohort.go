package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/cohort-builder/pkg/cohort"
	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/criteria"
	"github.com/synaptica-ai/cohort-builder/pkg/funnel"
	"github.com/synaptica-ai/cohort-builder/pkg/gateway/middleware"
	"github.com/synaptica-ai/cohort-builder/pkg/requests"
)

// DefinitionStore persists saved cohorts.
type DefinitionStore interface {
	Save(ctx context.Context, c models.Cohort) (models.Cohort, error)
	Get(ctx context.Context, id string) (models.Cohort, error)
	List(ctx context.Context, limit int) ([]models.Cohort, error)
	FindEquivalent(ctx context.Context, req models.SearchRequest) ([]models.Cohort, error)
}

type CohortHandler struct {
	sessions    *cohort.Registry
	definitions DefinitionStore
	matcher     cohort.GroupMatcher
}

func NewCohortHandler(sessions *cohort.Registry, definitions DefinitionStore, matcher cohort.GroupMatcher) *CohortHandler {
	return &CohortHandler{sessions: sessions, definitions: definitions, matcher: matcher}
}

func (h *CohortHandler) Register(r *mux.Router) {
	r.HandleFunc("/cohort/validate", h.handleValidate).Methods(http.MethodPost)
	r.HandleFunc("/cohort/evaluate", h.handleEvaluate).Methods(http.MethodPost)
	r.HandleFunc("/cohort/groups/count", h.handleEdit).Methods(http.MethodPost)
	r.HandleFunc("/cohort/groups/count", h.handleCancel).Methods(http.MethodDelete)
	r.HandleFunc("/cohort/groups/counts", h.handleCounts).Methods(http.MethodGet)
	r.HandleFunc("/cohort/requests", h.handleRequesting).Methods(http.MethodGet)
	r.HandleFunc("/cohort/funnel", h.handleFunnel).Methods(http.MethodGet)
	r.HandleFunc("/cohort/session", h.handleCloseSession).Methods(http.MethodDelete)
	r.HandleFunc("/cohorts", h.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/cohorts", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/cohorts/equivalent", h.handleEquivalent).Methods(http.MethodPost)
	r.HandleFunc("/cohorts/{cohortId}", h.handleGet).Methods(http.MethodGet)
}

type validationReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func report(err error) validationReport {
	if err == nil {
		return validationReport{Valid: true}
	}
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	out := validationReport{Errors: make([]string, 0, len(errs))}
	for _, e := range errs {
		out.Errors = append(out.Errors, e.Error())
	}
	return out
}

func (h *CohortHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid search request", http.StatusBadRequest)
		return
	}
	writeJSON(w, report(criteria.ValidateRequest(req)))
}

func (h *CohortHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid search request", http.StatusBadRequest)
		return
	}
	if err := criteria.ValidateRequest(req); err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, report(err))
		return
	}
	members, err := cohort.Evaluate(r.Context(), req, h.matcher)
	if err != nil {
		logger.Log.WithError(err).Warn("cohort evaluation failed")
		http.Error(w, "cohort evaluation failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]interface{}{
		"count":           len(members),
		"participant_ids": members.IDs(),
	})
}

type groupEdit struct {
	Path  []string           `json:"path"`
	Role  models.Role        `json:"role"`
	Group models.SearchGroup `json:"group"`
}

func (h *CohortHandler) runner(w http.ResponseWriter, r *http.Request) (*cohort.CountRunner, bool) {
	runner, err := h.sessions.Session(middleware.SessionID(r.Context()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return runner, true
}

func pathParam(r *http.Request) (requests.Path, bool) {
	raw := strings.Trim(r.URL.Query().Get("path"), "/")
	if raw == "" {
		return nil, false
	}
	return requests.ParsePath(raw), true
}

func (h *CohortHandler) handleEdit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var edit groupEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		http.Error(w, "invalid group edit", http.StatusBadRequest)
		return
	}
	if edit.Role != models.RoleIncludes && edit.Role != models.RoleExcludes {
		http.Error(w, "role must be includes or excludes", http.StatusBadRequest)
		return
	}
	if err := criteria.ValidateGroup(edit.Group); err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, report(err))
		return
	}
	runner, ok := h.runner(w, r)
	if !ok {
		return
	}

	path := requests.Path(edit.Path)
	if len(path) == 0 {
		path = requests.Path{string(edit.Role), edit.Group.ID}
	}
	changed := runner.Edit(path, edit.Role, edit.Group)
	writeStatus(w, http.StatusAccepted, map[string]interface{}{
		"path":    path.Key(),
		"changed": changed,
	})
}

func (h *CohortHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(r)
	if !ok {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	runner, ok := h.runner(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]interface{}{"path": path.Key(), "removed": runner.Remove(path)})
}

func (h *CohortHandler) handleRequesting(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(r)
	if !ok {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	runner, ok := h.runner(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]interface{}{"path": path.Key(), "requesting": runner.IsRequesting(path)})
}

func (h *CohortHandler) handleCounts(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.runner(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]interface{}{
		"includes": runner.Counts(models.RoleIncludes),
		"excludes": runner.Counts(models.RoleExcludes),
	})
}

func (h *CohortHandler) handleFunnel(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.runner(w, r)
	if !ok {
		return
	}
	f, err := runner.Funnel(r.Context())
	if err != nil {
		logger.Log.WithError(err).Warn("failed to build funnel")
		http.Error(w, "failed to build funnel", http.StatusBadGateway)
		return
	}

	stages := f.Stages()
	if r.URL.Query().Get("resolve") == "all" {
		if stages, err = f.ResolveAll(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Warn("funnel stages partially resolved")
		}
	}
	if stages == nil {
		stages = []funnel.Stage{}
	}
	writeJSON(w, map[string]interface{}{"stages": stages})
}

func (h *CohortHandler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	closed := h.sessions.Close(middleware.SessionID(r.Context()))
	writeJSON(w, map[string]bool{"closed": closed})
}

func (h *CohortHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var c models.Cohort
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid cohort", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(c.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	saved, err := h.definitions.Save(r.Context(), c)
	if err != nil {
		if isValidation(err) {
			writeStatus(w, http.StatusUnprocessableEntity, report(err))
			return
		}
		logger.Log.WithError(err).Error("failed to save cohort")
		http.Error(w, "failed to save cohort", http.StatusInternalServerError)
		return
	}
	writeStatus(w, http.StatusCreated, saved)
}

func (h *CohortHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	cohorts, err := h.definitions.List(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list cohorts")
		http.Error(w, "failed to list cohorts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"items": cohorts})
}

// handleEquivalent finds saved cohorts whose criteria match the posted
// request up to ordering and hidden nodes.
func (h *CohortHandler) handleEquivalent(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid search request", http.StatusBadRequest)
		return
	}
	cohorts, err := h.definitions.FindEquivalent(r.Context(), req)
	if err != nil {
		logger.Log.WithError(err).Error("failed to look up equivalent cohorts")
		http.Error(w, "failed to look up cohorts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"items": cohorts})
}

func (h *CohortHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.definitions.Get(r.Context(), mux.Vars(r)["cohortId"])
	if errors.Is(err, cohort.ErrCohortNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load cohort")
		http.Error(w, "failed to load cohort", http.StatusInternalServerError)
		return
	}
	writeJSON(w, c)
}

func isValidation(err error) bool {
	for _, target := range []error{
		criteria.ErrShape, criteria.ErrDuplicateGroup, criteria.ErrAnchor,
		criteria.ErrUnknownType, criteria.ErrUnknownModifier, criteria.ErrNotApplicable,
		criteria.ErrOperator, criteria.ErrOperands, criteria.ErrOperandValue, criteria.ErrBetweenOrder,
		criteria.ErrDuplicateModifier,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return criteria.IsValidationError(err)
}
