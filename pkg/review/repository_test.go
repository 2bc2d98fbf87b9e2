package review

import (
	"errors"
	"testing"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

func TestConditionsTypesValues(t *testing.T) {
	conds, err := conditions([]models.ReviewFilter{
		{Property: models.ColumnParticipantID, Operator: models.FilterEqual, Values: []string{"12"}},
		{Property: models.ColumnDeceased, Operator: models.FilterIn, Values: []string{"true"}},
		{Property: models.ColumnRace, Operator: models.FilterIn, Values: nil},
	})
	if err != nil {
		t.Fatalf("conditions: %v", err)
	}
	if len(conds) != 2 {
		t.Fatalf("empty filters produce no clause, got %+v", conds)
	}
	if conds[0].query != "participant_id = ?" || conds[0].arg != int64(12) {
		t.Fatalf("unexpected clause %+v", conds[0])
	}
	if args, ok := conds[1].arg.([]interface{}); !ok || args[0] != true {
		t.Fatalf("unexpected clause %+v", conds[1])
	}
}

func TestConditionsRejectBadValues(t *testing.T) {
	_, err := conditions([]models.ReviewFilter{{Property: models.ColumnDeceased, Operator: models.FilterIn, Values: []string{"maybe"}}})
	if !errors.Is(err, ErrParam) {
		t.Fatalf("expected param error, got %v", err)
	}
	_, err = conditions([]models.ReviewFilter{{Property: "SHOE_SIZE", Operator: models.FilterIn, Values: []string{"9"}}})
	if !errors.Is(err, ErrParam) {
		t.Fatalf("expected param error, got %v", err)
	}
}

func TestOrderClause(t *testing.T) {
	if got := orderClause(models.ReviewQuery{SortColumn: models.ColumnParticipantID, SortOrder: models.SortDesc}); got != "participant_id desc" {
		t.Fatalf("unexpected order %q", got)
	}
	if got := orderClause(models.ReviewQuery{SortColumn: models.ColumnBirthDate}); got != "birth_date asc, participant_id asc" {
		t.Fatalf("unexpected order %q", got)
	}
}
