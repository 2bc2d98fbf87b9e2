package criteria

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

var (
	ErrShape          = errors.New("invalid search request")
	ErrDuplicateGroup = errors.New("duplicate group id")
	ErrAnchor         = errors.New("temporal anchor not found")
)

var shape = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequest checks a whole definition. Each problem is reported; none
// of them stops the remaining groups from being checked.
func ValidateRequest(req models.SearchRequest) error {
	errs := shapeErrors(shape.Struct(req))

	seen := make(map[string]struct{})
	all := append(append([]models.SearchGroup(nil), req.Includes...), req.Excludes...)
	for _, g := range all {
		if _, dup := seen[g.ID]; dup && g.ID != "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateGroup, g.ID))
		}
		seen[g.ID] = struct{}{}
	}

	for _, g := range all {
		if g.Temporal != nil {
			if _, ok := seen[g.Temporal.AnchorGroupID]; !ok || g.Temporal.AnchorGroupID == g.ID {
				errs = append(errs, fmt.Errorf("group %s: %w: %q", g.ID, ErrAnchor, g.Temporal.AnchorGroupID))
			}
		}
		errs = append(errs, itemErrors(g)...)
	}
	return errors.Join(errs...)
}

// ValidateGroup checks one group on its own. Temporal anchors are not
// resolved since the anchor lives elsewhere in the definition.
func ValidateGroup(g models.SearchGroup) error {
	errs := shapeErrors(shape.Struct(g))
	return errors.Join(append(errs, itemErrors(g)...)...)
}

func shapeErrors(err error) []error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{fmt.Errorf("%w: %v", ErrShape, err)}
	}
	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Errorf("%w: %s failed %s", ErrShape, fe.Namespace(), fe.Tag()))
	}
	return out
}

func itemErrors(g models.SearchGroup) []error {
	var errs []error
	for _, item := range g.Items {
		if !ValidType(item.Type) {
			errs = append(errs, fmt.Errorf("item %s: %w: %q", item.ID, ErrUnknownType, item.Type))
			continue
		}
		modErrs := ValidateModifiers(item.Type, item.Modifiers)
		for _, name := range sortedModifierNames(modErrs) {
			errs = append(errs, fmt.Errorf("item %s modifier %s: %w", item.ID, name, modErrs[name]))
		}
	}
	return errs
}

func sortedModifierNames(errs map[models.ModifierType]error) []models.ModifierType {
	names := make([]models.ModifierType, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
