package terminology

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/criteria"
	"gopkg.in/yaml.v3"
)

var ErrUnknownType = errors.New("unknown criteria type")

// RootID is the parent id of top level criteria.
const RootID int64 = 0

// Criteria is one node of the criteria tree. Group nodes have children and
// may also be selectable as a whole.
type Criteria struct {
	ID         int64               `yaml:"id" json:"id"`
	ParentID   int64               `yaml:"parent_id" json:"parent_id"`
	Type       models.CriteriaType `yaml:"type" json:"type"`
	Code       string              `yaml:"code" json:"code"`
	Name       string              `yaml:"name" json:"name"`
	DomainID   string              `yaml:"domain_id" json:"domain_id"`
	ConceptID  *int64              `yaml:"concept_id,omitempty" json:"concept_id,omitempty"`
	Group      bool                `yaml:"group" json:"group"`
	Selectable bool                `yaml:"selectable" json:"selectable"`
	Count      int64               `yaml:"count" json:"count"`
}

// SearchParameter turns a selected node into a criterion value.
func (c Criteria) SearchParameter() models.SearchParameter {
	return models.SearchParameter{
		ParameterID: fmt.Sprintf("param%d", c.ID),
		Name:        c.Name,
		Code:        c.Code,
		DomainID:    c.DomainID,
		Type:        c.Type,
		ConceptID:   c.ConceptID,
		Group:       c.Group,
	}
}

type childKey struct {
	t      models.CriteriaType
	parent int64
}

type Catalog struct {
	Criteria []Criteria `yaml:"criteria" json:"criteria"`

	children map[childKey][]Criteria
	byCode   map[string]Criteria
}

func Load(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return nil, err
	}
	if len(cat.Criteria) == 0 {
		return nil, fmt.Errorf("criteria catalog empty")
	}
	for _, c := range cat.Criteria {
		if !criteria.ValidType(c.Type) {
			return nil, fmt.Errorf("%w: %q (criteria %d)", ErrUnknownType, c.Type, c.ID)
		}
	}
	cat.index()
	return &cat, nil
}

func (c *Catalog) index() {
	c.children = make(map[childKey][]Criteria)
	c.byCode = make(map[string]Criteria)
	for _, node := range c.Criteria {
		k := childKey{node.Type, node.ParentID}
		c.children[k] = append(c.children[k], node)
		if node.Code != "" {
			c.byCode[codeKey(node.Type, node.Code)] = node
		}
	}
	for k := range c.children {
		list := c.children[k]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}
}

func codeKey(t models.CriteriaType, code string) string {
	return string(t) + "|" + criteria.NormalizeCode(code)
}

// Children lists one level of the tree below parentID. Every call returns a
// new slice; callers needing the level again must call again.
func (c *Catalog) Children(ctx context.Context, t models.CriteriaType, parentID int64) ([]Criteria, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !criteria.ValidType(t) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	level := c.children[childKey{t, parentID}]
	return append(make([]Criteria, 0, len(level)), level...), nil
}

func (c *Catalog) Lookup(t models.CriteriaType, code string) (Criteria, bool) {
	node, ok := c.byCode[codeKey(t, strings.TrimSpace(code))]
	return node, ok
}

func conceptID(id int64) *int64 { return &id }

func DefaultCatalog() *Catalog {
	cat := &Catalog{Criteria: []Criteria{
		{ID: 1, Type: models.CriteriaICD10, Name: "Endocrine, nutritional and metabolic diseases", Code: "E00-E89", DomainID: "CONDITION", Group: true},
		{ID: 2, ParentID: 1, Type: models.CriteriaICD10, Name: "Type 2 diabetes mellitus", Code: "E11", DomainID: "CONDITION", Group: true, Selectable: true, ConceptID: conceptID(201826)},
		{ID: 3, ParentID: 2, Type: models.CriteriaICD10, Name: "Type 2 diabetes mellitus without complications", Code: "E11.9", DomainID: "CONDITION", Selectable: true, ConceptID: conceptID(45576876)},
		{ID: 4, Type: models.CriteriaICD10, Name: "Diseases of the circulatory system", Code: "I00-I99", DomainID: "CONDITION", Group: true},
		{ID: 5, ParentID: 4, Type: models.CriteriaICD10, Name: "Essential (primary) hypertension", Code: "I10", DomainID: "CONDITION", Selectable: true, ConceptID: conceptID(320128)},
		{ID: 10, Type: models.CriteriaDemo, Name: "Gender", Code: "GEN", DomainID: "PERSON", Group: true},
		{ID: 11, ParentID: 10, Type: models.CriteriaDemo, Name: "Female", Code: "8532", DomainID: "PERSON", Selectable: true, ConceptID: conceptID(8532)},
		{ID: 12, ParentID: 10, Type: models.CriteriaDemo, Name: "Male", Code: "8507", DomainID: "PERSON", Selectable: true, ConceptID: conceptID(8507)},
		{ID: 20, Type: models.CriteriaLabs, Name: "Glucose [Mass/volume] in Blood", Code: "2339-0", DomainID: "MEASUREMENT", Selectable: true, ConceptID: conceptID(3000483)},
		{ID: 21, Type: models.CriteriaVitals, Name: "Blood pressure panel", Code: "85354-9", DomainID: "MEASUREMENT", Selectable: true, ConceptID: conceptID(3031203)},
	}}
	cat.index()
	return cat
}
