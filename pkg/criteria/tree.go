package criteria

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrNotAGroup    = errors.New("node is not a group")
	ErrNotAnItem    = errors.New("node is not an item")
)

type NodeKind int

const (
	KindGroup NodeKind = iota
	KindItem
)

// Node is one entry of the flat cohort tree. Groups keep their items as an
// ordered list of child IDs; items point back at their group.
type Node struct {
	ID       string
	Kind     NodeKind
	Role     models.Role
	Parent   string
	Children []string
	Name     string
	Status   models.NodeStatus
	Temporal *models.Temporal
	Item     models.SearchItem
}

// Tree is the editable cohort definition. Nodes are stored by value and a
// mutation replaces only the entry it touches. A Tree is not safe for
// concurrent use.
type Tree struct {
	nodes map[string]Node
	roots map[models.Role][]string
	newID func() string
}

func NewTree() *Tree {
	return &Tree{
		nodes: make(map[string]Node),
		roots: map[models.Role][]string{models.RoleIncludes: nil, models.RoleExcludes: nil},
		newID: func() string { return uuid.New().String() },
	}
}

// FromSearchRequest loads a saved definition, keeping its IDs.
func FromSearchRequest(req models.SearchRequest) *Tree {
	t := NewTree()
	load := func(role models.Role, groups []models.SearchGroup) {
		for _, g := range groups {
			id := g.ID
			if id == "" {
				id = t.newID()
			}
			t.putGroup(role, id, g.Name, g.Status, g.Temporal)
			for _, item := range g.Items {
				_, _ = t.AddItem(id, item)
			}
		}
	}
	load(models.RoleIncludes, req.Includes)
	load(models.RoleExcludes, req.Excludes)
	return t
}

func (t *Tree) putGroup(role models.Role, id, name string, status models.NodeStatus, temporal *models.Temporal) {
	if status == "" {
		status = models.StatusActive
	}
	t.nodes[id] = Node{ID: id, Kind: KindGroup, Role: role, Name: name, Status: status, Temporal: temporal}
	t.roots[role] = appendCopy(t.roots[role], id)
}

func (t *Tree) AddGroup(role models.Role, name string) string {
	id := t.newID()
	t.putGroup(role, id, name, models.StatusActive, nil)
	return id
}

func (t *Tree) AddItem(groupID string, item models.SearchItem) (string, error) {
	group, err := t.group(groupID)
	if err != nil {
		return "", err
	}
	if item.ID == "" {
		item.ID = t.newID()
	}
	if item.Status == "" {
		item.Status = models.StatusActive
	}
	t.nodes[item.ID] = Node{ID: item.ID, Kind: KindItem, Role: group.Role, Parent: groupID, Status: item.Status, Item: item}
	group.Children = appendCopy(group.Children, item.ID)
	t.nodes[groupID] = group
	return item.ID, nil
}

// ReplaceItem swaps an item's content in place, keeping its position.
func (t *Tree) ReplaceItem(itemID string, item models.SearchItem) error {
	node, err := t.item(itemID)
	if err != nil {
		return err
	}
	item.ID = itemID
	if item.Status == "" {
		item.Status = node.Status
	}
	node.Item = item
	node.Status = item.Status
	t.nodes[itemID] = node
	return nil
}

func (t *Tree) SetTemporal(groupID string, temporal *models.Temporal) error {
	group, err := t.group(groupID)
	if err != nil {
		return err
	}
	group.Temporal = temporal
	t.nodes[groupID] = group
	return nil
}

func (t *Tree) Rename(groupID, name string) error {
	group, err := t.group(groupID)
	if err != nil {
		return err
	}
	group.Name = name
	t.nodes[groupID] = group
	return nil
}

func (t *Tree) SetStatus(id string, status models.NodeStatus) error {
	node, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	node.Status = status
	if node.Kind == KindItem {
		node.Item.Status = status
	}
	t.nodes[id] = node
	return nil
}

// Remove deletes a node and its descendants and returns every removed ID so
// callers can cancel requests addressed to them.
func (t *Tree) Remove(id string) ([]string, error) {
	node, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	removed := []string{id}
	switch node.Kind {
	case KindGroup:
		removed = append(removed, node.Children...)
		for _, child := range node.Children {
			delete(t.nodes, child)
		}
		t.roots[node.Role] = without(t.roots[node.Role], id)
	case KindItem:
		parent := t.nodes[node.Parent]
		parent.Children = without(parent.Children, id)
		t.nodes[node.Parent] = parent
	}
	delete(t.nodes, id)
	return removed, nil
}

func (t *Tree) Node(id string) (Node, bool) {
	node, ok := t.nodes[id]
	return node, ok
}

// Path is the structural address of a node: role, group and, for items, the
// item ID.
func (t *Tree) Path(id string) ([]string, error) {
	node, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if node.Kind == KindItem {
		return []string{string(node.Role), node.Parent, id}, nil
	}
	return []string{string(node.Role), id}, nil
}

func (t *Tree) GroupIDs(role models.Role) []string {
	return append([]string(nil), t.roots[role]...)
}

// GroupName falls back to "Group N", numbering excludes after includes.
func (t *Tree) GroupName(groupID string) string {
	node, ok := t.nodes[groupID]
	if !ok {
		return ""
	}
	if node.Name != "" {
		return node.Name
	}
	offset := 0
	if node.Role == models.RoleExcludes {
		offset = len(t.roots[models.RoleIncludes])
	}
	for i, id := range t.roots[node.Role] {
		if id == groupID {
			return fmt.Sprintf("Group %d", offset+i+1)
		}
	}
	return ""
}

// Group assembles the display form of a group: insertion order, hidden items
// included.
func (t *Tree) Group(groupID string) (models.SearchGroup, error) {
	node, err := t.group(groupID)
	if err != nil {
		return models.SearchGroup{}, err
	}
	group := models.SearchGroup{
		ID:       node.ID,
		Name:     t.GroupName(node.ID),
		Temporal: node.Temporal,
		Status:   node.Status,
		Items:    make([]models.SearchItem, 0, len(node.Children)),
	}
	for _, child := range node.Children {
		group.Items = append(group.Items, t.nodes[child].Item)
	}
	return group, nil
}

// ActiveGroup is the form sent for counting: hidden items are dropped.
func (t *Tree) ActiveGroup(groupID string) (models.SearchGroup, bool) {
	group, err := t.Group(groupID)
	if err != nil || group.Status == models.StatusHidden {
		return models.SearchGroup{}, false
	}
	items := group.Items[:0:0]
	for _, item := range group.Items {
		if item.Status != models.StatusHidden {
			items = append(items, item)
		}
	}
	group.Items = items
	return group, len(items) > 0
}

// SearchRequest builds the request that is sent for counting and saved.
// Hidden groups and empty groups are omitted.
func (t *Tree) SearchRequest() models.SearchRequest {
	req := models.SearchRequest{Includes: []models.SearchGroup{}, Excludes: []models.SearchGroup{}}
	for _, id := range t.roots[models.RoleIncludes] {
		if g, ok := t.ActiveGroup(id); ok {
			req.Includes = append(req.Includes, g)
		}
	}
	for _, id := range t.roots[models.RoleExcludes] {
		if g, ok := t.ActiveGroup(id); ok {
			req.Excludes = append(req.Excludes, g)
		}
	}
	return req
}

func (t *Tree) group(id string) (Node, error) {
	node, ok := t.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if node.Kind != KindGroup {
		return Node{}, fmt.Errorf("%w: %s", ErrNotAGroup, id)
	}
	return node, nil
}

func (t *Tree) item(id string) (Node, error) {
	node, ok := t.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if node.Kind != KindItem {
		return Node{}, fmt.Errorf("%w: %s", ErrNotAnItem, id)
	}
	return node, nil
}

// appendCopy never writes into a backing array shared with a previous node value.
func appendCopy(list []string, id string) []string {
	out := make([]string, len(list), len(list)+1)
	copy(out, list)
	return append(out, id)
}

func without(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
