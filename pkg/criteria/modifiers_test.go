package criteria

import (
	"errors"
	"testing"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

func mod(name models.ModifierType, op models.Operator, operands ...string) models.Modifier {
	return models.Modifier{Name: name, Operator: op, Operands: operands}
}

func TestValidateModifier(t *testing.T) {
	cases := []struct {
		name string
		mod  models.Modifier
		want error
	}{
		{"age any", mod(models.ModifierAgeAtEvent, models.OperatorAny), nil},
		{"age gte", mod(models.ModifierAgeAtEvent, models.OperatorGreaterThanOrEqualTo, "18"), nil},
		{"age between", mod(models.ModifierAgeAtEvent, models.OperatorBetween, "18", "65"), nil},
		{"age between reversed", mod(models.ModifierAgeAtEvent, models.OperatorBetween, "65", "18"), ErrBetweenOrder},
		{"age not integer", mod(models.ModifierAgeAtEvent, models.OperatorLessThanOrEqualTo, "forty"), ErrInteger},
		{"age out of range", mod(models.ModifierAgeAtEvent, models.OperatorLessThanOrEqualTo, "150"), ErrRange},
		{"age missing operand", mod(models.ModifierAgeAtEvent, models.OperatorBetween, "18"), ErrOperands},
		{"age bad operator", mod(models.ModifierAgeAtEvent, models.OperatorIn, "18"), ErrOperator},
		{"date between", mod(models.ModifierEventDate, models.OperatorBetween, "2020-01-01", "2021-01-01"), nil},
		{"date reversed", mod(models.ModifierEventDate, models.OperatorBetween, "2021-01-01", "2020-01-01"), ErrBetweenOrder},
		{"date loose format", mod(models.ModifierEventDate, models.OperatorGreaterThanOrEqualTo, "2020-1-1"), ErrDateFormat},
		{"date within years", mod(models.ModifierEventDate, models.OperatorWithinYears, "5"), nil},
		{"visit inpatient", mod(models.ModifierEncounters, models.OperatorIn, "INPATIENT"), nil},
		{"visit unknown", mod(models.ModifierEncounters, models.OperatorIn, "ER"), ErrOperandValue},
		{"occurrences gte", mod(models.ModifierNumOfOccurrences, models.OperatorGreaterThanOrEqualTo, "1"), nil},
		{"occurrences zero", mod(models.ModifierNumOfOccurrences, models.OperatorGreaterThanOrEqualTo, "0"), ErrRange},
		{"occurrences within days", mod(models.ModifierNumOfOccurrences, models.OperatorWithinDays, "2", "30"), nil},
		{"occurrences apart years", mod(models.ModifierNumOfOccurrences, models.OperatorApartYears, "2", "x"), ErrInteger},
		{"cati", mod(models.ModifierCATI, models.OperatorIn, "NON_CATI"), nil},
		{"unknown", mod("SOMETHING", models.OperatorAny), ErrUnknownModifier},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateModifier(tc.mod)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateModifierReportsEveryOperand(t *testing.T) {
	err := ValidateModifier(mod(models.ModifierNumOfOccurrences, models.OperatorWithinDays, "abc", "99999"))
	if !errors.Is(err, ErrInteger) || !errors.Is(err, ErrRange) {
		t.Fatalf("expected both operand errors, got %v", err)
	}
}

func TestApplyValidKeepsGoodModifiers(t *testing.T) {
	mods := []models.Modifier{
		mod(models.ModifierAgeAtEvent, models.OperatorGreaterThanOrEqualTo, "abc"),
		mod(models.ModifierEventDate, models.OperatorLessThanOrEqualTo, "2022-12-31"),
		mod(models.ModifierEncounters, models.OperatorAny),
	}
	valid, errs := ApplyValid(models.CriteriaICD10, mods)
	if len(valid) != 1 || valid[0].Name != models.ModifierEventDate {
		t.Fatalf("unexpected valid modifiers %+v", valid)
	}
	if _, ok := errs[models.ModifierAgeAtEvent]; !ok || len(errs) != 1 {
		t.Fatalf("expected only age error, got %v", errs)
	}
}

func TestModifiersNotApplicableToDemographics(t *testing.T) {
	errs := ValidateModifiers(models.CriteriaDemo, []models.Modifier{mod(models.ModifierAgeAtEvent, models.OperatorAny)})
	if !errors.Is(errs[models.ModifierAgeAtEvent], ErrNotApplicable) {
		t.Fatalf("expected not applicable, got %v", errs)
	}
}

func TestDomainCoversEveryType(t *testing.T) {
	for _, typ := range Types {
		if _, err := Domain(typ); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if _, err := AllowedModifiers(typ); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}
	if _, err := Domain("icd11"); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected unknown type, got %v", err)
	}
}

func TestDuplicateModifierKeepsFirstValid(t *testing.T) {
	mods := []models.Modifier{
		mod(models.ModifierAgeAtEvent, models.OperatorGreaterThanOrEqualTo, "40"),
		mod(models.ModifierAgeAtEvent, models.OperatorGreaterThanOrEqualTo, "abc"),
	}
	valid, errs := ApplyValid(models.CriteriaICD10, mods)
	if len(valid) != 1 || valid[0].Operands[0] != "40" {
		t.Fatalf("first valid modifier must apply, got %+v", valid)
	}
	if !errors.Is(errs[models.ModifierAgeAtEvent], ErrDuplicateModifier) {
		t.Fatalf("expected duplicate error, got %v", errs)
	}

	errs = ValidateModifiers(models.CriteriaICD10, []models.Modifier{
		mod(models.ModifierAgeAtEvent, models.OperatorGreaterThanOrEqualTo, "abc"),
		mod(models.ModifierAgeAtEvent, models.OperatorLessThanOrEqualTo, "30"),
	})
	err := errs[models.ModifierAgeAtEvent]
	if !errors.Is(err, ErrDuplicateModifier) || !IsValidationError(err) {
		t.Fatalf("both failures must be reported, got %v", err)
	}
}
