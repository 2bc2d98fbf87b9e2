package routes

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/terminology"
)

type CriteriaHandler struct {
	catalog *terminology.Catalog
}

func NewCriteriaHandler(catalog *terminology.Catalog) *CriteriaHandler {
	return &CriteriaHandler{catalog: catalog}
}

func (h *CriteriaHandler) Register(r *mux.Router) {
	r.HandleFunc("/criteria/{type}/children", h.handleChildren).Methods(http.MethodGet)
}

func (h *CriteriaHandler) handleChildren(w http.ResponseWriter, r *http.Request) {
	t := models.CriteriaType(strings.ToUpper(mux.Vars(r)["type"]))
	parentID := terminology.RootID
	if raw := r.URL.Query().Get("parentId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "parentId must be an integer", http.StatusBadRequest)
			return
		}
		parentID = id
	}

	children, err := h.catalog.Children(r.Context(), t, parentID)
	if errors.Is(err, terminology.ErrUnknownType) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to list criteria children")
		http.Error(w, "failed to list criteria", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"items": children})
}
