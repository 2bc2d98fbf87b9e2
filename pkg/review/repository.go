package review

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type StatusModel struct {
	CohortID      string         `gorm:"primaryKey;column:cohort_id"`
	ParticipantID int64          `gorm:"primaryKey;column:participant_id"`
	CDRVersionID  int64          `gorm:"column:cdr_version_id;index"`
	Status        string         `gorm:"column:status"`
	Gender        string         `gorm:"column:gender"`
	Race          string         `gorm:"column:race"`
	Ethnicity     string         `gorm:"column:ethnicity"`
	BirthDate     datatypes.Date `gorm:"column:birth_date"`
	Deceased      bool           `gorm:"column:deceased"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (StatusModel) TableName() string {
	return "participant_cohort_statuses"
}

func (m StatusModel) toStatus() models.ParticipantCohortStatus {
	var birth string
	if t := time.Time(m.BirthDate); !t.IsZero() {
		birth = t.Format("2006-01-02")
	}
	return models.ParticipantCohortStatus{
		ParticipantID: m.ParticipantID,
		Status:        models.CohortStatus(m.Status),
		Gender:        m.Gender,
		Race:          m.Race,
		Ethnicity:     m.Ethnicity,
		BirthDate:     birth,
		Deceased:      m.Deceased,
	}
}

var columnNames = map[models.Column]string{
	models.ColumnParticipantID: "participant_id",
	models.ColumnStatus:        "status",
	models.ColumnGender:        "gender",
	models.ColumnRace:          "race",
	models.ColumnEthnicity:     "ethnicity",
	models.ColumnBirthDate:     "birth_date",
	models.ColumnDeceased:      "deceased",
}

type condition struct {
	query string
	arg   interface{}
}

// conditions translates wire filters into WHERE clauses. Values are typed
// per column so postgres compares like with like.
func conditions(filters []models.ReviewFilter) ([]condition, error) {
	out := make([]condition, 0, len(filters))
	for _, f := range filters {
		name, ok := columnNames[f.Property]
		if !ok {
			return nil, fmt.Errorf("%w: filter column %q", ErrParam, f.Property)
		}
		args := make([]interface{}, 0, len(f.Values))
		for _, v := range f.Values {
			arg, err := typedValue(f.Property, v)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		if len(args) == 0 {
			continue
		}
		if f.Operator == models.FilterEqual {
			out = append(out, condition{query: name + " = ?", arg: args[0]})
			continue
		}
		out = append(out, condition{query: name + " IN ?", arg: args})
	}
	return out, nil
}

func typedValue(column models.Column, v string) (interface{}, error) {
	switch column {
	case models.ColumnParticipantID:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: participant id %q", ErrParam, v)
		}
		return n, nil
	case models.ColumnDeceased:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: deceased %q", ErrParam, v)
		}
		return b, nil
	default:
		return v, nil
	}
}

func orderClause(q models.ReviewQuery) string {
	name, ok := columnNames[q.SortColumn]
	if !ok {
		name = columnNames[DefaultSortColumn]
	}
	dir := "asc"
	if q.SortOrder == models.SortDesc {
		dir = "desc"
	}
	if name == "participant_id" {
		return name + " " + dir
	}
	return name + " " + dir + ", participant_id asc"
}

// Repository reads participant statuses from postgres.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&StatusModel{})
}

func (r *Repository) ParticipantStatuses(ctx context.Context, cohortID string, cdrVersionID int64, q models.ReviewQuery) (models.ReviewPage, error) {
	conds, err := conditions(q.Filters)
	if err != nil {
		return models.ReviewPage{}, err
	}
	tx := r.db.WithContext(ctx).Model(&StatusModel{}).
		Where("cohort_id = ? AND cdr_version_id = ?", cohortID, cdrVersionID)
	for _, c := range conds {
		tx = tx.Where(c.query, c.arg)
	}
	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return models.ReviewPage{}, fmt.Errorf("count participant statuses: %w", err)
	}

	var rows []StatusModel
	if err := tx.Order(orderClause(q)).Limit(q.PageSize).Offset(q.Page * q.PageSize).Find(&rows).Error; err != nil {
		return models.ReviewPage{}, fmt.Errorf("list participant statuses: %w", err)
	}

	page := models.ReviewPage{
		ParticipantCohortStatuses: make([]models.ParticipantCohortStatus, 0, len(rows)),
		TotalCount:                total,
	}
	for _, row := range rows {
		page.ParticipantCohortStatuses = append(page.ParticipantCohortStatuses, row.toStatus())
	}
	return page, nil
}
