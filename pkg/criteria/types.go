package criteria

import (
	"fmt"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

// Types lists every criteria kind in catalog order.
var Types = []models.CriteriaType{
	models.CriteriaDemo,
	models.CriteriaICD9,
	models.CriteriaICD10,
	models.CriteriaPhecode,
	models.CriteriaCPT,
	models.CriteriaMeds,
	models.CriteriaLabs,
	models.CriteriaVitals,
	models.CriteriaTemporal,
}

var eventModifiers = []models.ModifierType{
	models.ModifierAgeAtEvent,
	models.ModifierEventDate,
	models.ModifierEncounters,
	models.ModifierNumOfOccurrences,
	models.ModifierCATI,
}

// Domain maps a criteria kind to the domain its search parameters live in.
func Domain(t models.CriteriaType) (string, error) {
	switch t {
	case models.CriteriaDemo:
		return "PERSON", nil
	case models.CriteriaICD9, models.CriteriaICD10, models.CriteriaPhecode:
		return "CONDITION", nil
	case models.CriteriaCPT:
		return "PROCEDURE", nil
	case models.CriteriaMeds:
		return "DRUG", nil
	case models.CriteriaLabs, models.CriteriaVitals:
		return "MEASUREMENT", nil
	case models.CriteriaTemporal:
		return "TEMPORAL", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// AllowedModifiers reports which modifiers may be attached to an item of kind t.
func AllowedModifiers(t models.CriteriaType) ([]models.ModifierType, error) {
	switch t {
	case models.CriteriaDemo, models.CriteriaTemporal:
		return nil, nil
	case models.CriteriaICD9, models.CriteriaICD10, models.CriteriaPhecode,
		models.CriteriaCPT, models.CriteriaMeds, models.CriteriaLabs, models.CriteriaVitals:
		return eventModifiers, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

func ValidType(t models.CriteriaType) bool {
	_, err := Domain(t)
	return err == nil
}

func modifierAllowed(t models.CriteriaType, name models.ModifierType) bool {
	allowed, err := AllowedModifiers(t)
	if err != nil {
		return false
	}
	for _, m := range allowed {
		if m == name {
			return true
		}
	}
	return false
}
