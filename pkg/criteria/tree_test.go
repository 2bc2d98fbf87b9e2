package criteria

import (
	"errors"
	"testing"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

func TestTreeBuildsSearchRequestInInsertionOrder(t *testing.T) {
	tree := NewTree()
	g1 := tree.AddGroup(models.RoleIncludes, "")
	g2 := tree.AddGroup(models.RoleIncludes, "Hypertension")
	ex := tree.AddGroup(models.RoleExcludes, "")

	if _, err := tree.AddItem(g1, icd10("", "E11")); err != nil {
		t.Fatalf("add item: %v", err)
	}
	second, _ := tree.AddItem(g1, icd10("", "E10"))
	_, _ = tree.AddItem(g2, icd10("", "I10"))
	_, _ = tree.AddItem(ex, icd10("", "C50"))

	req := tree.SearchRequest()
	if len(req.Includes) != 2 || len(req.Excludes) != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Includes[0].Items[1].ID != second {
		t.Fatal("items must keep insertion order")
	}
	if req.Includes[0].Name != "Group 1" || req.Includes[1].Name != "Hypertension" || req.Excludes[0].Name != "Group 3" {
		t.Fatalf("unexpected names %q %q %q", req.Includes[0].Name, req.Includes[1].Name, req.Excludes[0].Name)
	}
}

func TestTreeHiddenAndEmptyGroupsAreNotSent(t *testing.T) {
	tree := NewTree()
	g1 := tree.AddGroup(models.RoleIncludes, "")
	g2 := tree.AddGroup(models.RoleIncludes, "")
	tree.AddGroup(models.RoleIncludes, "")
	item, _ := tree.AddItem(g1, icd10("", "E11"))
	_, _ = tree.AddItem(g2, icd10("", "I10"))

	if err := tree.SetStatus(g2, models.StatusHidden); err != nil {
		t.Fatalf("set status: %v", err)
	}
	req := tree.SearchRequest()
	if len(req.Includes) != 1 || req.Includes[0].ID != g1 {
		t.Fatalf("expected only g1, got %+v", req.Includes)
	}

	_ = tree.SetStatus(item, models.StatusHidden)
	if len(tree.SearchRequest().Includes) != 0 {
		t.Fatal("a group whose items are all hidden is not sent")
	}
	display, _ := tree.Group(g1)
	if len(display.Items) != 1 || display.Items[0].Status != models.StatusHidden {
		t.Fatal("display form keeps hidden items")
	}
}

func TestTreeRemoveReturnsDescendants(t *testing.T) {
	tree := NewTree()
	g := tree.AddGroup(models.RoleIncludes, "")
	i1, _ := tree.AddItem(g, icd10("", "E11"))
	i2, _ := tree.AddItem(g, icd10("", "E10"))

	removed, err := tree.Remove(g)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(removed) != 3 || removed[0] != g || removed[1] != i1 || removed[2] != i2 {
		t.Fatalf("unexpected removed ids %v", removed)
	}
	if _, ok := tree.Node(i1); ok {
		t.Fatal("children must be removed with their group")
	}
	if len(tree.GroupIDs(models.RoleIncludes)) != 0 {
		t.Fatal("group must be removed from its role")
	}
	if _, err := tree.Remove(g); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTreeMutationsTouchOnlyOneEntry(t *testing.T) {
	tree := NewTree()
	g := tree.AddGroup(models.RoleIncludes, "")
	i1, _ := tree.AddItem(g, icd10("", "E11"))
	before, _ := tree.Node(g)

	i2, _ := tree.AddItem(g, icd10("", "E10"))
	if len(before.Children) != 1 {
		t.Fatal("earlier node values must not observe later mutations")
	}

	replacement := icd10("", "E13")
	if err := tree.ReplaceItem(i1, replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}
	group, _ := tree.Group(g)
	if group.Items[0].ID != i1 || group.Items[0].SearchParameters[0].Code != "E13" || group.Items[1].ID != i2 {
		t.Fatalf("replace must keep position, got %+v", group.Items)
	}
	if err := tree.ReplaceItem(g, replacement); !errors.Is(err, ErrNotAnItem) {
		t.Fatalf("expected not an item, got %v", err)
	}
}

func TestTreePaths(t *testing.T) {
	tree := NewTree()
	g := tree.AddGroup(models.RoleExcludes, "")
	i, _ := tree.AddItem(g, icd10("", "E11"))

	path, _ := tree.Path(i)
	if len(path) != 3 || path[0] != "excludes" || path[1] != g || path[2] != i {
		t.Fatalf("unexpected item path %v", path)
	}
	path, _ = tree.Path(g)
	if len(path) != 2 || path[1] != g {
		t.Fatalf("unexpected group path %v", path)
	}
}

func TestFromSearchRequestRoundTrip(t *testing.T) {
	req := models.SearchRequest{
		Includes: []models.SearchGroup{{ID: "g1", Items: []models.SearchItem{icd10("i1", "E11")}}},
		Excludes: []models.SearchGroup{{ID: "g2", Name: "Cancer", Items: []models.SearchItem{icd10("i2", "C50")}}},
	}
	tree := FromSearchRequest(req)
	if RequestFingerprint(tree.SearchRequest()) != RequestFingerprint(req) {
		t.Fatal("loading a saved definition must not change its meaning")
	}
	if tree.GroupName("g2") != "Cancer" {
		t.Fatalf("unexpected name %q", tree.GroupName("g2"))
	}
}
