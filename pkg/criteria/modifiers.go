package criteria

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

var (
	ErrUnknownType       = errors.New("unknown criteria type")
	ErrUnknownModifier   = errors.New("unknown modifier")
	ErrOperator          = errors.New("operator not supported")
	ErrOperands          = errors.New("wrong number of operands")
	ErrOperandValue      = errors.New("operand not allowed")
	ErrBetweenOrder      = errors.New("between bounds out of order")
	ErrNotApplicable     = errors.New("modifier not applicable")
	ErrDuplicateModifier = errors.New("modifier given more than once")
)

const (
	MinAge         = 0
	MaxAge         = 120
	MinOccurrences = 1
	MaxOccurrences = 99
	MaxYears       = 99
	MaxDays        = 3650
)

var (
	ageValidator         = RangeValidator(MinAge, MaxAge)
	occurrenceValidator  = RangeValidator(MinOccurrences, MaxOccurrences)
	yearsValidator       = RangeValidator(1, MaxYears)
	daysValidator        = RangeValidator(1, MaxDays)
	dateOperandValidator = DateValidator()
)

type operandRule struct {
	fields     []string
	validators []Validator
}

func rule(pairs ...interface{}) operandRule {
	var r operandRule
	for i := 0; i+1 < len(pairs); i += 2 {
		r.fields = append(r.fields, pairs[i].(string))
		r.validators = append(r.validators, pairs[i+1].(Validator))
	}
	return r
}

func enumValidator(allowed ...string) Validator {
	return func(c Control) error {
		if !c.Dirty {
			return nil
		}
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(c.Value), a) {
				return nil
			}
		}
		return &FieldError{Value: c.Value, Kind: ErrOperandValue}
	}
}

var (
	VisitTypes = []string{"INPATIENT", "OUTPATIENT"}
	CATITypes  = []string{"CATI", "NON_CATI"}
)

// operandRules holds, per modifier and operator, the operand validators in
// positional order. Operators absent from a modifier's map are rejected.
var operandRules = map[models.ModifierType]map[models.Operator]operandRule{
	models.ModifierAgeAtEvent: {
		models.OperatorAny:                  {},
		models.OperatorGreaterThanOrEqualTo: rule("age", ageValidator),
		models.OperatorLessThanOrEqualTo:    rule("age", ageValidator),
		models.OperatorBetween:              rule("age from", ageValidator, "age to", ageValidator),
	},
	models.ModifierEventDate: {
		models.OperatorAny:                  {},
		models.OperatorWithinYears:          rule("years", yearsValidator),
		models.OperatorGreaterThanOrEqualTo: rule("date", dateOperandValidator),
		models.OperatorLessThanOrEqualTo:    rule("date", dateOperandValidator),
		models.OperatorBetween:              rule("date from", dateOperandValidator, "date to", dateOperandValidator),
	},
	models.ModifierEncounters: {
		models.OperatorAny: {},
		models.OperatorIn:  rule("visit type", enumValidator(VisitTypes...)),
	},
	models.ModifierNumOfOccurrences: {
		models.OperatorAny:                  {},
		models.OperatorGreaterThanOrEqualTo: rule("occurrences", occurrenceValidator),
		models.OperatorWithinDays:           rule("occurrences", occurrenceValidator, "days", daysValidator),
		models.OperatorWithinYears:          rule("occurrences", occurrenceValidator, "years", yearsValidator),
		models.OperatorApartDays:            rule("occurrences", occurrenceValidator, "days", daysValidator),
		models.OperatorApartYears:           rule("occurrences", occurrenceValidator, "years", yearsValidator),
	},
	models.ModifierCATI: {
		models.OperatorAny: {},
		models.OperatorIn:  rule("collection method", enumValidator(CATITypes...)),
	},
}

// Operators lists the operators a modifier accepts, sorted.
func Operators(name models.ModifierType) []models.Operator {
	ops := make([]models.Operator, 0, len(operandRules[name]))
	for op := range operandRules[name] {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// ValidateModifier checks operator legality, operand arity and every operand.
// All operand errors are reported together.
func ValidateModifier(m models.Modifier) error {
	ops, ok := operandRules[m.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModifier, m.Name)
	}
	r, ok := ops[m.Operator]
	if !ok {
		return fmt.Errorf("%s: %w: %q", m.Name, ErrOperator, m.Operator)
	}
	if len(m.Operands) != len(r.validators) {
		return fmt.Errorf("%s %s: %w: expected %d, got %d", m.Name, m.Operator, ErrOperands, len(r.validators), len(m.Operands))
	}

	var errs []error
	for i, operand := range m.Operands {
		if err := Named(r.fields[i], r.validators[i])(Dirty(operand)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if m.Operator == models.OperatorBetween && m.Name == models.ModifierAgeAtEvent {
		lo, _ := strconv.Atoi(strings.TrimSpace(m.Operands[0]))
		hi, _ := strconv.Atoi(strings.TrimSpace(m.Operands[1]))
		if lo > hi {
			return fmt.Errorf("%s: %w", m.Name, ErrBetweenOrder)
		}
	}
	if m.Operator == models.OperatorBetween && m.Name == models.ModifierEventDate && m.Operands[0] > m.Operands[1] {
		// YYYY-MM-DD orders lexically.
		return fmt.Errorf("%s: %w", m.Name, ErrBetweenOrder)
	}
	return nil
}

// modifierErrors validates each modifier for an item of kind t and returns
// the failures by position. Only the first modifier of a name can apply; later
// ones fail with ErrDuplicateModifier.
func modifierErrors(t models.CriteriaType, mods []models.Modifier) []error {
	errs := make([]error, len(mods))
	seen := make(map[models.ModifierType]bool, len(mods))
	for i, m := range mods {
		if seen[m.Name] {
			errs[i] = fmt.Errorf("%s: %w", m.Name, ErrDuplicateModifier)
			continue
		}
		seen[m.Name] = true
		if !modifierAllowed(t, m.Name) {
			errs[i] = fmt.Errorf("%s on %s: %w", m.Name, t, ErrNotApplicable)
			continue
		}
		errs[i] = ValidateModifier(m)
	}
	return errs
}

// ValidateModifiers validates each modifier independently for an item of kind t.
// The returned map only holds the modifiers that failed; failures sharing a
// name are joined.
func ValidateModifiers(t models.CriteriaType, mods []models.Modifier) map[models.ModifierType]error {
	errs := make(map[models.ModifierType]error)
	for i, err := range modifierErrors(t, mods) {
		if err == nil {
			continue
		}
		name := mods[i].Name
		errs[name] = errors.Join(errs[name], err)
	}
	return errs
}

// ApplyValid keeps the modifiers that pass validation, dropping ANY operators
// since they do not constrain the item. A valid first modifier survives a bad
// duplicate. Failures are returned for display.
func ApplyValid(t models.CriteriaType, mods []models.Modifier) ([]models.Modifier, map[models.ModifierType]error) {
	perMod := modifierErrors(t, mods)
	valid := make([]models.Modifier, 0, len(mods))
	errs := make(map[models.ModifierType]error)
	for i, m := range mods {
		if perMod[i] != nil {
			errs[m.Name] = errors.Join(errs[m.Name], perMod[i])
			continue
		}
		if m.Operator == models.OperatorAny {
			continue
		}
		valid = append(valid, m)
	}
	return valid, errs
}
