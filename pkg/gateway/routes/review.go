package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/cohort-builder/pkg/cohort"
	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/review"
)

type ReviewHandler struct {
	resolver    *review.Resolver
	definitions DefinitionStore
}

func NewReviewHandler(resolver *review.Resolver, definitions DefinitionStore) *ReviewHandler {
	return &ReviewHandler{resolver: resolver, definitions: definitions}
}

func (h *ReviewHandler) Register(r *mux.Router) {
	r.HandleFunc("/cohorts/{cohortId}/review", h.handleReview).Methods(http.MethodGet)
}

type reviewResponse struct {
	models.ReviewPage
	Query models.ReviewQuery `json:"query"`
}

func (h *ReviewHandler) handleReview(w http.ResponseWriter, r *http.Request) {
	cohortID := mux.Vars(r)["cohortId"]
	params, err := review.ParseParams(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var cdrVersionID int64
	if raw := r.URL.Query().Get("cdrVersionId"); raw != "" {
		if cdrVersionID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			http.Error(w, "cdrVersionId must be an integer", http.StatusBadRequest)
			return
		}
	} else {
		c, err := h.definitions.Get(r.Context(), cohortID)
		if errors.Is(err, cohort.ErrCohortNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Log.WithError(err).WithField("cohort_id", cohortID).Warn("cohort lookup failed, serving empty review page")
			writeJSON(w, reviewResponse{ReviewPage: review.EmptyPage(), Query: h.resolver.Query(params)})
			return
		}
		cdrVersionID = c.CDRVersionID
	}

	query, page := h.resolver.Resolve(r.Context(), cohortID, cdrVersionID, params)
	writeJSON(w, reviewResponse{ReviewPage: page, Query: query})
}
