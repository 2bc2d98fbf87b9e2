package criteria

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

// canonical shapes drop display-only fields (names, item and parameter IDs)
// and hidden items, and sort every unordered collection.
type canonicalParameter struct {
	Code      string              `json:"c"`
	DomainID  string              `json:"d"`
	Type      models.CriteriaType `json:"t,omitempty"`
	ConceptID *int64              `json:"i,omitempty"`
	Group     bool                `json:"g,omitempty"`
}

type canonicalItem struct {
	Type       models.CriteriaType  `json:"t"`
	Parameters []canonicalParameter `json:"p"`
	Modifiers  []models.Modifier    `json:"m,omitempty"`
}

type canonicalGroup struct {
	ID       string           `json:"id"`
	Items    []canonicalItem  `json:"items"`
	Temporal *models.Temporal `json:"temporal,omitempty"`
}

type canonicalRequest struct {
	Includes []canonicalGroup `json:"i"`
	Excludes []canonicalGroup `json:"e"`
}

func canonicalizeItem(item models.SearchItem) canonicalItem {
	params := make([]canonicalParameter, 0, len(item.SearchParameters))
	for _, p := range item.SearchParameters {
		params = append(params, canonicalParameter{
			Code:      NormalizeCode(p.Code),
			DomainID:  p.DomainID,
			Type:      p.Type,
			ConceptID: p.ConceptID,
			Group:     p.Group,
		})
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i].DomainID != params[j].DomainID {
			return params[i].DomainID < params[j].DomainID
		}
		return params[i].Code < params[j].Code
	})

	var mods []models.Modifier
	for _, m := range item.Modifiers {
		if m.Operator == models.OperatorAny {
			continue
		}
		mods = append(mods, models.Modifier{
			Name:     m.Name,
			Operator: m.Operator,
			Operands: append([]string(nil), m.Operands...),
		})
	}
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })

	return canonicalItem{Type: item.Type, Parameters: params, Modifiers: mods}
}

func itemKey(item canonicalItem) string {
	b, _ := json.Marshal(item)
	return string(b)
}

func canonicalizeGroup(group models.SearchGroup) canonicalGroup {
	items := make([]canonicalItem, 0, len(group.Items))
	for _, item := range group.Items {
		if item.Status == models.StatusHidden {
			continue
		}
		items = append(items, canonicalizeItem(item))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type < items[j].Type
		}
		return itemKey(items[i]) < itemKey(items[j])
	})
	return canonicalGroup{ID: group.ID, Items: items, Temporal: group.Temporal}
}

// Canonical returns the comparison form of a group: insertion order of items,
// parameters and modifiers does not affect it.
func Canonical(group models.SearchGroup) []byte {
	b, _ := json.Marshal(canonicalizeGroup(group))
	return b
}

// CanonicalRequest is the comparison form of a whole request. Groups are
// OR-combined so their order is not significant either.
func CanonicalRequest(req models.SearchRequest) []byte {
	build := func(groups []models.SearchGroup) []canonicalGroup {
		out := make([]canonicalGroup, 0, len(groups))
		for _, g := range groups {
			if g.Status == models.StatusHidden {
				continue
			}
			out = append(out, canonicalizeGroup(g))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	}
	b, _ := json.Marshal(canonicalRequest{Includes: build(req.Includes), Excludes: build(req.Excludes)})
	return b
}

func Equivalent(a, b models.SearchGroup) bool {
	return string(Canonical(a)) == string(Canonical(b))
}

func Fingerprint(group models.SearchGroup) string {
	sum := sha256.Sum256(Canonical(group))
	return hex.EncodeToString(sum[:])
}

func RequestFingerprint(req models.SearchRequest) string {
	sum := sha256.Sum256(CanonicalRequest(req))
	return hex.EncodeToString(sum[:])
}

// NormalizeCode upper-cases and trims a code so that equivalent selections
// typed differently compare equal.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
